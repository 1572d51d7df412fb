package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       Logger    `mapstructure:"logger"`
	DB        Database  `mapstructure:"database"`
	API       API       `mapstructure:"api"`
	Scheduler Scheduler `mapstructure:"scheduler"`
	Retention Retention `mapstructure:"retention"`
	Cache     Cache     `mapstructure:"cache"`
	Executor  Executor  `mapstructure:"executor"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

type Scheduler struct {
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	ClaimBatchSize  int           `mapstructure:"claim_batch_size"`
	ClaimTTL        time.Duration `mapstructure:"claim_ttl"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	MisfireGrace    time.Duration `mapstructure:"misfire_grace"`
	PurgeEvery      time.Duration `mapstructure:"purge_every"`
	EventBufferSize int           `mapstructure:"event_buffer_size"`
}

type Retention struct {
	DefaultDays int `mapstructure:"default_days"`
}

type API struct {
	Port int `mapstructure:"port"`
}

type Cache struct {
	DefaultExpiration   time.Duration `mapstructure:"default_expiration"`
	CleanupInterval     time.Duration `mapstructure:"cleanup_interval"`
	SysParamExpDuration time.Duration `mapstructure:"sys_param_exp_duration"`
}

type Executor struct {
	HTTPTimeout    time.Duration `mapstructure:"http_timeout"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

func Load() (*Config, error) {
	// .env is optional; real env vars win either way.
	_ = godotenv.Load()

	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.encoding", "json")

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.log_level", "Warn")

	viper.SetDefault("api.port", 8080)

	viper.SetDefault("scheduler.tick_interval", 5*time.Second)
	viper.SetDefault("scheduler.claim_batch_size", 20)
	viper.SetDefault("scheduler.claim_ttl", 2*time.Minute)
	viper.SetDefault("scheduler.max_concurrency", 5)
	viper.SetDefault("scheduler.misfire_grace", time.Minute)
	viper.SetDefault("scheduler.purge_every", time.Hour)
	viper.SetDefault("scheduler.event_buffer_size", 256)

	viper.SetDefault("retention.default_days", 30)

	viper.SetDefault("cache.default_expiration", 5*time.Minute)
	viper.SetDefault("cache.cleanup_interval", 10*time.Minute)
	viper.SetDefault("cache.sys_param_exp_duration", time.Minute)

	viper.SetDefault("executor.http_timeout", 30*time.Second)
	viper.SetDefault("executor.default_timeout", time.Minute)
}
