package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Session   SessionConfig   `mapstructure:"session"`
	Render    RenderConfig    `mapstructure:"render"`
	Classify  ClassifyConfig  `mapstructure:"classify"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Port int    `mapstructure:"port"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type DatabaseConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxIdle     int    `mapstructure:"max_idle"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
	EnableTLS   bool   `mapstructure:"enable_tls"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	PoolSize  int    `mapstructure:"pool_size"`
	EnableTLS bool   `mapstructure:"enable_tls"`
}

type RabbitMQConfig struct {
	// URL empty disables event publishing entirely.
	URL       string `mapstructure:"url"`
	Exchange  string `mapstructure:"exchange"`
	EnableTLS bool   `mapstructure:"enable_tls"`
}

type StorageConfig struct {
	// Root is the asset root; uploads, rendered previews, committed plans
	// and exports all live under it. Served statically at /assets.
	Root string `mapstructure:"root"`
}

type SessionConfig struct {
	UploadTTL  time.Duration `mapstructure:"upload_ttl"`
	PreviewTTL time.Duration `mapstructure:"preview_ttl"`
}

type RenderConfig struct {
	// DPI is the default raster resolution when a request does not carry one.
	DPI       float64 `mapstructure:"dpi"`
	MaxPixels int     `mapstructure:"max_pixels"`
	MarginPx  int     `mapstructure:"margin_px"`
	Workers   int     `mapstructure:"workers"`
}

type ClassifyConfig struct {
	Keywords       []string `mapstructure:"keywords"`
	Blacklist      []string `mapstructure:"blacklist"`
	ExcludedLayers []string `mapstructure:"excluded_layers"`
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	OtlpEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("FLOORPLAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// The config file is optional; defaults plus env are enough to run.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "floorplan-api")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", 8080)

	v.SetDefault("log.level", "info")

	v.SetDefault("database.dsn", "host=127.0.0.1 user=postgres password=postgres dbname=floorplan port=5432 sslmode=disable")
	v.SetDefault("database.max_open", 20)
	v.SetDefault("database.max_idle", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "floorplan.events")

	v.SetDefault("storage.root", "./data")

	v.SetDefault("session.upload_ttl", time.Hour)
	v.SetDefault("session.preview_ttl", 30*time.Minute)

	v.SetDefault("render.dpi", 300)
	v.SetDefault("render.max_pixels", 8192)
	v.SetDefault("render.margin_px", 16)
	v.SetDefault("render.workers", 4)

	v.SetDefault("classify.keywords", []string{})
	v.SetDefault("classify.blacklist", []string{"ALL", "LEVEL", "TAG"})
	v.SetDefault("classify.excluded_layers", []string{})

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sample_ratio", 1.0)
}
