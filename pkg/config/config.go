package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xaenox/lummy-bot/internal/storage"
)

type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Corpus   CorpusConfig   `mapstructure:"corpus"`
	Session  SessionConfig  `mapstructure:"session"`
	Log      LogConfig      `mapstructure:"log"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type StorageConfig struct {
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   DatabaseConfig `mapstructure:"postgres"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type CorpusConfig struct {
	// Path to a JSON corpus; empty means the embedded one.
	Path string `mapstructure:"path"`
}

type SessionConfig struct {
	ReplyDelay time.Duration `mapstructure:"reply_delay"`
	StorageKey string        `mapstructure:"storage_key"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// StorageOptions converts the storage section for storage.New.
func (c StorageConfig) StorageOptions() storage.Config {
	return storage.Config{
		Driver:     c.Driver,
		SQLitePath: c.SQLitePath,
		Postgres: storage.DatabaseConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			DBName:   c.Postgres.DBName,
			SSLMode:  c.Postgres.SSLMode,
		},
	}
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return DatabaseConfig{}, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   strings.TrimPrefix(u.Path, "/"),
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.token", "")
	v.SetDefault("storage.driver", storage.DriverSQLite)
	v.SetDefault("storage.sqlite_path", "data/lummy.db")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.user", "postgres")
	v.SetDefault("storage.postgres.dbname", "lummy")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("corpus.path", "")
	v.SetDefault("session.reply_delay", "800ms")
	v.SetDefault("session.storage_key", "lummy-conversations")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
}

// LoadConfig reads the YAML file at path, if any, and applies environment
// overrides. A missing file is not an error: defaults and environment
// variables are enough to run.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// LUMMY_STORAGE_DRIVER overrides storage.driver and so on
	v.SetEnvPrefix("lummy")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	// Well-known variables without prefix, as used by hosting platforms
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Storage.Driver = storage.DriverPostgres
		config.Storage.Postgres = dbConfig
	}

	if token := os.Getenv("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case storage.DriverMemory, storage.DriverSQLite, storage.DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Session.ReplyDelay < 0 {
		return fmt.Errorf("session.reply_delay must not be negative")
	}
	if c.Session.StorageKey == "" {
		return fmt.Errorf("session.storage_key must not be empty")
	}
	return nil
}
