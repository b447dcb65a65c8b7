package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// EnvPrefix prefixes every environment override, e.g. LIVEDB_SERVER_PORT.
const EnvPrefix = "LIVEDB"

// Config is the server configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Schema  SchemaConfig  `mapstructure:"schema"`
	Log     LogConfig     `mapstructure:"log"`
	Realm   RealmConfig   `mapstructure:"realm"`
	Index   IndexConfig   `mapstructure:"index"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	CheckpointFile string `mapstructure:"checkpoint_file"`
	// BackgroundSave is the checkpoint interval. Zero disables periodic saves.
	BackgroundSave time.Duration `mapstructure:"background_save"`
	GCInterval     time.Duration `mapstructure:"gc_interval"`
}

type SchemaConfig struct {
	File string `mapstructure:"file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RealmConfig struct {
	Workers      int           `mapstructure:"workers"`
	TickInterval time.Duration `mapstructure:"tick_interval"`
}

type IndexConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// New returns a viper instance carrying the defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("storage.data_dir", ".")
	v.SetDefault("storage.checkpoint_file", "livedb.lvdb")
	v.SetDefault("storage.background_save", 5*time.Minute)
	v.SetDefault("storage.gc_interval", time.Minute)
	v.SetDefault("schema.file", "schema.json")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("realm.workers", 4)
	v.SetDefault("realm.tick_interval", 100*time.Millisecond)
	v.SetDefault("index.cache_size", 64)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if any, and unmarshals v. An explicit file must
// exist; otherwise livedb.{yaml,json,toml} in the working directory is optional.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName("livedb")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("%w: server.port %d out of range", domain.ErrIllegalArgument, c.Server.Port)
	case c.Realm.Workers <= 0:
		return fmt.Errorf("%w: realm.workers must be positive", domain.ErrIllegalArgument)
	case c.Realm.TickInterval <= 0:
		return fmt.Errorf("%w: realm.tick_interval must be positive", domain.ErrIllegalArgument)
	case c.Index.CacheSize <= 0:
		return fmt.Errorf("%w: index.cache_size must be positive", domain.ErrIllegalArgument)
	case c.Storage.BackgroundSave < 0 || c.Storage.GCInterval < 0:
		return fmt.Errorf("%w: storage intervals cannot be negative", domain.ErrIllegalArgument)
	}
	return nil
}

// Addr is the listen address for the configured port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// CheckpointPath resolves the checkpoint file against the data directory.
func (c *Config) CheckpointPath() string {
	if filepath.IsAbs(c.Storage.CheckpointFile) {
		return c.Storage.CheckpointFile
	}
	return filepath.Join(c.Storage.DataDir, c.Storage.CheckpointFile)
}
