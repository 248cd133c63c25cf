package db

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dzeckelev/gift-ledger/config"
	"github.com/dzeckelev/gift-ledger/proc"
)

var recipient = common.HexToAddress("0xa7dba6053a0d631177340e8061bc12f5009ba453")

func newJournal(t *testing.T) (*Journal, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := NewDB(conn)
	t.Cleanup(func() { _ = CloseDB(database) })

	return NewJournal(database), mock
}

func pending() *proc.PendingTransaction {
	now := time.Unix(1700000000, 0)
	return &proc.PendingTransaction{
		ID:                "9f8a6a5e-8f1a-4a36-9c1e-6a9a1b0c2d3e",
		Kind:              proc.KindSendGift,
		State:             proc.Confirmed,
		Recipient:         recipient,
		Amount:            big.NewInt(50),
		PredictedRecordID: 5,
		RecordID:          6,
		ActionTx:          common.HexToHash("0xabc"),
		Created:           now,
		Updated:           now,
	}
}

func TestConnectArgs(t *testing.T) {
	args := ConnectArgs(&config.DB{DBName: "giftbox", Host: "localhost",
		Port: 5432, User: "postgres", Password: "secret"})

	assert.Equal(t, "host=localhost user=postgres password=secret"+
		" dbname=giftbox port=5432 sslmode=disable", args)

	args = ConnectArgs(&config.DB{DBName: "giftbox", Host: "db.internal",
		Port: 5433, User: "gifts", SSLMode: "verify-full"})
	assert.Equal(t, "host=db.internal user=gifts password= dbname=giftbox"+
		" port=5433 sslmode=verify-full", args)
}

func TestRecord(t *testing.T) {
	row := Record(pending())

	assert.Equal(t, "confirmed", row.State)
	assert.Equal(t, "none", row.Class)
	assert.Equal(t, "0xa7dba6053a0d631177340e8061bc12f5009ba453",
		row.Recipient)
	assert.Equal(t, "50", *row.Amount)
	assert.Equal(t, uint64(6), *row.RecordID)
	assert.Nil(t, row.ApprovalTx)
	assert.Equal(t, common.HexToHash("0xabc").Hex(), *row.ActionTx)
	assert.Nil(t, row.Error)
}

func TestMigrate(t *testing.T) {
	j, mock := newJournal(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS submissions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, j.Migrate())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSave(t *testing.T) {
	j, mock := newJournal(t)
	tx := pending()

	mock.ExpectExec(`(?s)INSERT INTO submissions .+\s+ON CONFLICT \(id\)`).
		WithArgs(tx.ID, "sendGift", "confirmed", "none",
			"0xa7dba6053a0d631177340e8061bc12f5009ba453", "50", 5, 6, nil,
			common.HexToHash("0xabc").Hex(), nil, sqlmock.AnyArg(),
			sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, j.Save(context.Background(), tx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveError(t *testing.T) {
	j, mock := newJournal(t)

	mock.ExpectExec(`INSERT INTO submissions`).
		WillReturnError(errors.New("connection reset"))

	err := j.Save(context.Background(), pending())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveCancelled(t *testing.T) {
	j, mock := newJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, errors.Is(j.Save(ctx, pending()), context.Canceled))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecent(t *testing.T) {
	j, mock := newJournal(t)
	now := time.Unix(1700000000, 0).UTC()

	rows := sqlmock.NewRows(columns).
		AddRow("a", "sendGift", "confirmed", "none", "0x01", "50", 5, 6,
			"0xaa", "0xbb", nil, now, now).
		AddRow("b", "redeemGift", "failed", "ledger_revert", "0x02", nil,
			nil, nil, nil, nil, "transaction reverted", now, now)

	mock.ExpectQuery(`SELECT (.+) FROM submissions`).
		WithArgs(10).WillReturnRows(rows)

	result, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, "50", *result[0].Amount)
	assert.Equal(t, uint64(6), *result[0].RecordID)
	assert.Nil(t, result[0].Error)

	assert.Nil(t, result[1].Amount)
	assert.Nil(t, result[1].PredictedID)
	assert.Equal(t, "transaction reverted", *result[1].Error)
	assert.Equal(t, now, result[1].Updated)

	assert.NoError(t, mock.ExpectationsWereMet())
}
