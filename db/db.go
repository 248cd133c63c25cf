package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // Need for postgres driver.
	"gopkg.in/reform.v1"
	"gopkg.in/reform.v1/dialects/postgresql"

	"github.com/dzeckelev/gift-ledger/config"
)

// ConnectArgs returns a libpq connection string for the journal database.
func ConnectArgs(cfg *config.DB) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s"+
		" port=%d sslmode=%s", cfg.Host, cfg.User, cfg.Password,
		cfg.DBName, cfg.Port, sslMode)
}

// Connect opens and checks a postgres connection.
func Connect(connectArgs string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", connectArgs)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// NewDB connects to a database.
func NewDB(conn *sql.DB) *reform.DB {
	return reform.NewDB(conn, postgresql.Dialect, nil)
}

// CloseDB closes the connection pool behind db.
func CloseDB(db *reform.DB) error {
	conn, ok := db.DBInterface().(*sql.DB)
	if !ok {
		return nil
	}
	return conn.Close()
}
