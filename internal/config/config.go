// Package config loads the API server settings. Precedence, lowest first:
// defaults, an optional config file, TABSERVE_* environment variables, then
// command-line flags bound by the caller.
package config

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"tabserve/internal/errors"
)

const EnvPrefix = "TABSERVE"

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
}

type Config struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	ModelPath  string `mapstructure:"model_path"`
	WatchModel bool   `mapstructure:"watch_model"`

	ArtifactDir string `mapstructure:"artifact_dir" validate:"required"`
	// StagingDir holds uploads while they are parsed; empty means the
	// system temp dir.
	StagingDir      string        `mapstructure:"staging_dir"`
	Storage         string        `mapstructure:"storage" validate:"oneof=file redis"`
	Redis           Redis         `mapstructure:"redis"`
	Retention       time.Duration `mapstructure:"retention" validate:"gte=0"`
	JanitorInterval time.Duration `mapstructure:"janitor_interval" validate:"gt=0"`
	CacheSize       int           `mapstructure:"cache_size" validate:"gte=0"`

	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
	MaxConcurrent  int64         `mapstructure:"max_concurrent" validate:"gte=1"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFile  string `mapstructure:"log_file"`
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8000)
	v.SetDefault("model_path", "models/model.gob")
	v.SetDefault("watch_model", false)
	v.SetDefault("artifact_dir", "tmp")
	v.SetDefault("staging_dir", "")
	v.SetDefault("storage", "file")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("retention", "168h")
	v.SetDefault("janitor_interval", "10m")
	v.SetDefault("cache_size", 128)
	v.SetDefault("max_upload_bytes", 32<<20)
	v.SetDefault("request_timeout", "30s")
	v.SetDefault("max_concurrent", 8)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
}

// NewViper returns a viper instance with defaults and environment binding.
// Nested keys map to TABSERVE_REDIS_ADDR and so on.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads file when non-empty, then decodes and validates v.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config file %s", file)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := validator.New().Struct(c); err != nil {
		return Config{}, errors.WithHint(errors.Wrap(err, "invalid config"), describe(err))
	}
	return c, nil
}

func describe(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err.Error()
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fe.Namespace()+" fails "+fe.Tag()+" "+fe.Param())
	}
	return strings.Join(parts, "; ")
}
