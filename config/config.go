package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values come from an optional YAML file
// and are overridden by environment variables (loaded from .env when present).
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Economy  EconomyConfig  `yaml:"economy"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Badger   BadgerConfig   `yaml:"badger"`
	NATS     NATSConfig     `yaml:"nats"`
	Anchor   AnchorConfig   `yaml:"anchor"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

type LogConfig struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

type EconomyConfig struct {
	StartingBalance decimal.Decimal `yaml:"starting_balance"`
	CasePrice       decimal.Decimal `yaml:"case_price"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// BadgerConfig configures the embedded round log used when Postgres is not
// configured. An empty Path keeps the log in memory.
type BadgerConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type AnchorConfig struct {
	RPCURL     string `yaml:"rpc_url"`
	PrivateKey string `yaml:"private_key"`
}

func (a AnchorConfig) Enabled() bool {
	return a.RPCURL != "" && a.PrivateKey != ""
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: DefaultServerHost, Port: DefaultServerPort},
		Log:    LogConfig{Level: "info"},
		Economy: EconomyConfig{
			StartingBalance: DefaultStartingBalance,
			CasePrice:       DefaultCasePrice,
		},
		NATS: NATSConfig{SubjectPrefix: DefaultNATSSubjectPrefix},
	}
}

// Load reads .env, then the YAML file at path (skipped when path is empty),
// then applies environment overrides.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setString(&cfg.Server.Port, "PORT")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Postgres.URL, "DATABASE_URL")
	setString(&cfg.Redis.Addr, "REDIS_URL")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Badger.Path, "BADGER_PATH")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.NATS.SubjectPrefix, "NATS_SUBJECT_PREFIX")
	setString(&cfg.Anchor.RPCURL, "ANCHOR_RPC_URL")
	setString(&cfg.Anchor.PrivateKey, "SERVER_PRIVATE_KEY")

	if v := os.Getenv("LOG_NO_COLOR"); v != "" {
		cfg.Log.NoColor = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		var db int
		if _, err := fmt.Sscanf(v, "%d", &db); err != nil {
			return fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.Redis.DB = db
	}
	if err := setDecimal(&cfg.Economy.StartingBalance, "STARTING_BALANCE"); err != nil {
		return err
	}
	return setDecimal(&cfg.Economy.CasePrice, "CASE_PRICE")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Economy.CasePrice.IsNegative() {
		errs = append(errs, errors.New("case price must not be negative"))
	}
	if c.Economy.StartingBalance.IsNegative() {
		errs = append(errs, errors.New("starting balance must not be negative"))
	}
	if (c.Anchor.RPCURL == "") != (c.Anchor.PrivateKey == "") {
		errs = append(errs, errors.New("anchor needs both rpc url and private key"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDecimal(dst *decimal.Decimal, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
