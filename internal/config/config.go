// Package config loads the run configuration from environment variables and
// an optional .env / config.env file.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sink drivers.
const (
	DriverMySQL     = "mysql"
	DriverSQLServer = "sqlserver"
	DriverSQLite    = "sqlite"
	DriverMongo     = "mongo"
)

// Config holds everything a run needs. It is built once at start-up and
// passed down explicitly.
type Config struct {
	App     AppConfig
	Online  PostgresConfig
	InStore FileConfig
	Sink    SinkConfig
	Run     RunConfig
}

// AppConfig is process-level settings.
type AppConfig struct {
	Env      string // development, production
	LogLevel string
	LogFile  string
}

// PostgresConfig locates the online-sales database. DatabaseURL wins over
// the individual fields when set.
type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	Table       string
}

// ConnectionString returns DatabaseURL or a DSN built from the fields.
func (c PostgresConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// FileConfig locates the in-store sales CSV.
type FileConfig struct {
	CSVPath string
}

// SinkConfig selects the reporting store.
type SinkConfig struct {
	Driver        string
	DSN           string
	Table         string
	MongoDatabase string
}

// RunConfig tunes the coordinator.
type RunConfig struct {
	Strict           bool
	DryRun           bool
	StageRetries     int
	RetryBackoff     time.Duration
	ExtractTimeout   time.Duration
	AggregateTimeout time.Duration
	LoadTimeout      time.Duration
	RunLogPath       string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load reads configuration. Environment variables take precedence over the
// optional files.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.SetConfigName("config")
	v.AddConfigPath("./config")
	_ = v.MergeInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Env:      v.GetString("APP_ENV"),
			LogLevel: v.GetString("LOG_LEVEL"),
			LogFile:  v.GetString("LOG_FILE"),
		},
		Online: PostgresConfig{
			DatabaseURL: v.GetString("ONLINE_DATABASE_URL"),
			Host:        v.GetString("ONLINE_DB_HOST"),
			Port:        v.GetInt("ONLINE_DB_PORT"),
			User:        v.GetString("ONLINE_DB_USER"),
			Password:    v.GetString("ONLINE_DB_PASSWORD"),
			DBName:      v.GetString("ONLINE_DB_NAME"),
			SSLMode:     v.GetString("ONLINE_DB_SSLMODE"),
			Table:       v.GetString("ONLINE_TABLE"),
		},
		InStore: FileConfig{
			CSVPath: v.GetString("IN_STORE_CSV_PATH"),
		},
		Sink: SinkConfig{
			Driver:        strings.ToLower(v.GetString("SINK_DRIVER")),
			DSN:           v.GetString("SINK_DSN"),
			Table:         v.GetString("SINK_TABLE"),
			MongoDatabase: v.GetString("SINK_MONGO_DATABASE"),
		},
		Run: RunConfig{
			Strict:           v.GetBool("STRICT_LOAD"),
			DryRun:           v.GetBool("DRY_RUN"),
			StageRetries:     v.GetInt("STAGE_RETRIES"),
			RetryBackoff:     v.GetDuration("RETRY_BACKOFF"),
			ExtractTimeout:   v.GetDuration("EXTRACT_TIMEOUT"),
			AggregateTimeout: v.GetDuration("AGGREGATE_TIMEOUT"),
			LoadTimeout:      v.GetDuration("LOAD_TIMEOUT"),
			RunLogPath:       v.GetString("RUN_LOG_PATH"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")

	v.SetDefault("ONLINE_DB_HOST", "localhost")
	v.SetDefault("ONLINE_DB_PORT", 5432)
	v.SetDefault("ONLINE_DB_USER", "postgres")
	v.SetDefault("ONLINE_DB_NAME", "sales_db")
	v.SetDefault("ONLINE_DB_SSLMODE", "disable")
	v.SetDefault("ONLINE_TABLE", "online_sales")

	v.SetDefault("IN_STORE_CSV_PATH", "in_store_sales.csv")

	v.SetDefault("SINK_DRIVER", DriverMySQL)
	v.SetDefault("SINK_TABLE", "product_sales_summary")
	v.SetDefault("SINK_MONGO_DATABASE", "sales_warehouse")

	v.SetDefault("STAGE_RETRIES", 1)
	v.SetDefault("RETRY_BACKOFF", "5s")
	v.SetDefault("EXTRACT_TIMEOUT", "2m")
	v.SetDefault("AGGREGATE_TIMEOUT", "1m")
	v.SetDefault("LOAD_TIMEOUT", "5m")
}

// Validate checks the fields a run cannot do without.
func (c *Config) Validate() error {
	switch c.Sink.Driver {
	case DriverMySQL, DriverSQLServer, DriverSQLite, DriverMongo:
	default:
		return fmt.Errorf("unsupported SINK_DRIVER %q", c.Sink.Driver)
	}
	if c.Sink.DSN == "" {
		return errors.New("SINK_DSN environment variable not set")
	}
	if !identRe.MatchString(c.Sink.Table) {
		return fmt.Errorf("SINK_TABLE %q is not a plain identifier", c.Sink.Table)
	}
	if !identRe.MatchString(c.Online.Table) {
		return fmt.Errorf("ONLINE_TABLE %q is not a plain identifier", c.Online.Table)
	}
	if c.InStore.CSVPath == "" {
		return errors.New("IN_STORE_CSV_PATH environment variable not set")
	}
	if c.Run.StageRetries < 0 {
		return fmt.Errorf("STAGE_RETRIES must be >= 0, got %d", c.Run.StageRetries)
	}
	if c.Run.ExtractTimeout <= 0 || c.Run.AggregateTimeout <= 0 || c.Run.LoadTimeout <= 0 {
		return errors.New("stage timeouts must be positive")
	}
	return nil
}
