package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Server     ServerConfig     `validate:"required"`
	ClickHouse ClickHouseConfig `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Logging    LoggingConfig    `validate:"required"`
	Ingestion  IngestionConfig  `validate:"required"`
	Analytics  AnalyticsConfig  `validate:"required"`
}

type ServerConfig struct {
	Address string `validate:"required"`
}

type ClickHouseConfig struct {
	Address  string
	TLS      bool
	Username string
	Password string
	Database string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LoggingConfig struct {
	Level string `validate:"required"`
}

type IngestionConfig struct {
	// BatchSize bounds peak buffered rows per session; a flush is forced
	// when the buffer reaches it.
	BatchSize int `validate:"required,gt=0"`
}

// AnalyticsConfig carries the statistical thresholds of the analytics
// engine. These are deployment tunables, not business rules baked into the
// engine; defaults are documented in DESIGN.md.
type AnalyticsConfig struct {
	// AnomalyStdDevMultiplier flags a bucket when it deviates from the
	// rolling baseline by more than this many rolling standard deviations.
	AnomalyStdDevMultiplier float64 `mapstructure:"anomaly_std_dev_multiplier" validate:"required,gt=0"`
	// AnomalyWindow is the trailing bucket count of the rolling baseline.
	AnomalyWindow int `mapstructure:"anomaly_window" validate:"required,gt=1"`
	// Concentration band thresholds on top-3 cumulative share percent.
	ConcentrationWatchPercent    float64 `mapstructure:"concentration_watch_percent" validate:"required,gt=0"`
	ConcentrationCriticalPercent float64 `mapstructure:"concentration_critical_percent" validate:"required,gt=0"`
	// ForecastMinHistory is the bucket count below which forecast
	// confidence degrades to none.
	ForecastMinHistory int `mapstructure:"forecast_min_history" validate:"required,gt=0"`
	// TopN is the series/breakdown entity cap before the Others rollup.
	TopN int `mapstructure:"top_n" validate:"required,gt=0"`
}

func NewConfig() (*Configuration, error) {
	// Local development convenience; deployments set real env vars.
	godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/costlens")

	v.SetEnvPrefix("COSTLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, err
		}
	}

	var config Configuration
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("clickhouse.address", "localhost:9000")
	v.SetDefault("clickhouse.database", "costlens")
	v.SetDefault("clickhouse.username", "default")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.dbname", "costlens")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("ingestion.batchsize", 500)
	v.SetDefault("analytics.anomaly_std_dev_multiplier", 2.0)
	v.SetDefault("analytics.anomaly_window", 7)
	v.SetDefault("analytics.concentration_watch_percent", 45.0)
	v.SetDefault("analytics.concentration_critical_percent", 70.0)
	v.SetDefault("analytics.forecast_min_history", 7)
	v.SetDefault("analytics.top_n", 5)
}

func (c Configuration) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// GetDefaultConfig returns a default configuration for local development
// and tests.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Server:    ServerConfig{Address: ":8080"},
		Logging:   LoggingConfig{Level: "debug"},
		Ingestion: IngestionConfig{BatchSize: 500},
		Analytics: AnalyticsConfig{
			AnomalyStdDevMultiplier:      2.0,
			AnomalyWindow:                7,
			ConcentrationWatchPercent:    45.0,
			ConcentrationCriticalPercent: 70.0,
			ForecastMinHistory:           7,
			TopN:                         5,
		},
		ClickHouse: ClickHouseConfig{
			Address:  "localhost:9000",
			Database: "costlens",
			Username: "default",
		},
		Postgres: PostgresConfig{
			Host:    "localhost",
			Port:    5432,
			User:    "postgres",
			DBName:  "costlens",
			SSLMode: "disable",
		},
	}
}

func (c ClickHouseConfig) GetClientOptions() *clickhouse.Options {
	options := &clickhouse.Options{
		Addr: []string{c.Address},
		Auth: clickhouse.Auth{
			Database: c.Database,
			Username: c.Username,
			Password: c.Password,
		},
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	}
	if c.TLS {
		options.TLS = &tls.Config{}
	}
	return options
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
	)
}
