package config

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// EnvPrefix is a prefix of environment variables overriding the config file.
const EnvPrefix = "GIFTBOX"

// DefaultGateways are read-only mirrors tried after the primary gateway.
var DefaultGateways = []string{
	"https://gateway.pinata.cloud",
	"https://ipfs.io",
	"https://cloudflare-ipfs.com",
	"https://dweb.link",
}

type Config struct {
	Eth  *Eth
	IPFS *IPFS
	Proc *Proc
	DB   *DB
	API  *API
	Log  *Log
}

type Eth struct {
	NodeURL     string `envconfig:"NODE_URL"`
	GiftManager string `envconfig:"GIFT_MANAGER"`
	Token       string `envconfig:"TOKEN"`
	// Hex encoded key of the sending account. Never stored in the file.
	PrivateKey string `json:"-" envconfig:"PRIVATE_KEY"`
	ChainID    int64  `envconfig:"CHAIN_ID"`
	SyncPause  uint64 `envconfig:"SYNC_PAUSE"` // In milliseconds.
}

type IPFS struct {
	Gateway   string   `envconfig:"GATEWAY"`
	Fallbacks []string `envconfig:"FALLBACKS"`
	PinataURL string   `envconfig:"PINATA_URL"`
	PinataJWT string   `json:"-" envconfig:"PINATA_JWT"`
	Timeout   uint64   `envconfig:"TIMEOUT"` // In milliseconds.
	CacheSize int      `envconfig:"CACHE_SIZE"`
}

type Proc struct {
	BatchSize   int    `envconfig:"BATCH_SIZE"`
	ReadTimeout uint64 `envconfig:"READ_TIMEOUT"` // In milliseconds.
}

type DB struct {
	Enabled  bool   `envconfig:"DB_ENABLED"`
	DBName   string `envconfig:"DB_NAME"`
	Host     string `envconfig:"DB_HOST"`
	Port     uint16 `envconfig:"DB_PORT"`
	User     string `envconfig:"DB_USER"`
	Password string `json:"-" envconfig:"DB_PASSWORD"`
	// One of the libpq sslmode values, e.g. disable or verify-full.
	SSLMode string `envconfig:"DB_SSLMODE"`
}

type API struct {
	Addr string `envconfig:"API_ADDR"`
}

type Log struct {
	Level string `envconfig:"LOG_LEVEL"`
}

func NewConfig() *Config {
	return &Config{
		Eth: &Eth{
			NodeURL:   "http://localhost:8545",
			SyncPause: 5000, // 5 seconds
		},
		IPFS: &IPFS{
			Gateway:   "https://gateway.pinata.cloud",
			Fallbacks: append([]string(nil), DefaultGateways...),
			PinataURL: "https://api.pinata.cloud",
			Timeout:   10000,
			CacheSize: 256,
		},
		Proc: &Proc{
			BatchSize:   10,
			ReadTimeout: 15000,
		},
		DB: &DB{
			DBName:  "giftbox",
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			SSLMode: "disable",
		},
		API: &API{
			Addr: "localhost:8080",
		},
		Log: &Log{
			Level: "info",
		},
	}
}

// ReadFile fills the config from a JSON file. A missing file is not an error.
func (c *Config) ReadFile(name string) error {
	file, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	return errors.Wrapf(json.NewDecoder(file).Decode(c),
		"failed to decode %s", name)
}

// ReadEnv loads dotenv files (if any) and applies environment overrides.
func (c *Config) ReadEnv(dotenv ...string) error {
	if err := godotenv.Load(dotenv...); err != nil && len(dotenv) > 0 {
		return errors.Wrap(err, "failed to load env file")
	}

	for _, section := range []interface{}{c.Eth, c.IPFS, c.Proc, c.DB,
		c.API, c.Log} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return errors.Wrap(err, "failed to process environment")
		}
	}

	return nil
}

// Load reads a config file and environment overrides on top of defaults.
func Load(name string, dotenv ...string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.ReadFile(name); err != nil {
		return nil, err
	}

	if err := cfg.ReadEnv(dotenv...); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values the rest of the module relies on.
func (c *Config) Validate() error {
	if c.Eth.NodeURL == "" {
		return errors.New("eth node url is required")
	}

	if c.Proc.BatchSize <= 0 {
		return errors.Errorf("invalid batch size: %d", c.Proc.BatchSize)
	}

	if c.IPFS.Gateway == "" {
		return errors.New("ipfs gateway is required")
	}

	return nil
}
