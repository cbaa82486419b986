package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App struct {
		Env      string
		LogLevel string `mapstructure:"log_level"`
	} `mapstructure:"app"`

	HTTP struct {
		Port            int
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"http"`

	Database struct {
		Path string
	} `mapstructure:"database"`

	Auth struct {
		JWTSecret     string        `mapstructure:"jwt_secret"`
		TokenTTL      time.Duration `mapstructure:"token_ttl"`
		ApproverRoles []string      `mapstructure:"approver_roles"`
	} `mapstructure:"auth"`

	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
	} `mapstructure:"redis"`

	Metrics struct {
		Enabled bool
	} `mapstructure:"metrics"`

	Catalog struct {
		SeedFile string `mapstructure:"seed_file"`
	} `mapstructure:"catalog"`

	Manufacturing struct {
		DefaultLaborRate float64 `mapstructure:"default_labor_rate"`
	} `mapstructure:"manufacturing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "prod")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("http.port", 9000)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("database.path", "fms.db")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("auth.approver_roles", []string{"admin", "manager"})
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", 10*time.Minute)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("catalog.seed_file", "")
	v.SetDefault("manufacturing.default_labor_rate", 25.0)
}

// Load reads the YAML config at path. A .env file next to the process is
// loaded first; FMS_* variables override any key (FMS_HTTP_PORT, ...).
// An empty path runs on defaults and environment only.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return c, err
		}
	}
	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	if c.Auth.JWTSecret == "" {
		return c, errors.New("auth.jwt_secret is required (set FMS_AUTH_JWT_SECRET)")
	}
	return c, nil
}
