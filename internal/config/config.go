package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Redis    Redis
	Cache    Cache
	Task     Task
	Fallback Fallback
	Worker   Worker
}

type Redis struct {
	Addr           string        `env:"Redis_Address" envDefault:"localhost:6379"`
	Password       string        `env:"Redis_Password"`
	DB             int           `env:"Redis_DB" envDefault:"0"`
	PoolSize       int           `env:"Redis_PoolSize" envDefault:"20"`
	SocketTimeout  time.Duration `env:"Redis_SocketTimeout" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"Redis_ConnectTimeout" envDefault:"5s"`
}

type Cache struct {
	KeyPrefix            string        `env:"Cache_KeyPrefix" envDefault:"cache"`
	DefaultTTL           time.Duration `env:"Cache_DefaultTTL" envDefault:"24h"`
	Version              int           `env:"Cache_Version" envDefault:"2"`
	CompressionThreshold int           `env:"Cache_CompressionThreshold" envDefault:"512"`
	HealthCheckInterval  time.Duration `env:"Cache_HealthCheckInterval" envDefault:"30s"`
	BreakerThreshold     int           `env:"Cache_BreakerThreshold" envDefault:"5"`
	BreakerRecovery      time.Duration `env:"Cache_BreakerRecovery" envDefault:"60s"`
}

type Task struct {
	KeyPrefix        string        `env:"Task_KeyPrefix" envDefault:"task"`
	DefaultTTL       time.Duration `env:"Task_DefaultTTL" envDefault:"24h"`
	Retention        time.Duration `env:"Task_Retention" envDefault:"24h"`
	ReapInterval     time.Duration `env:"Task_ReapInterval" envDefault:"10m"`
	MaxRetries       int           `env:"Task_MaxRetries" envDefault:"3"`
	BreakerThreshold int           `env:"Task_BreakerThreshold" envDefault:"3"`
	BreakerRecovery  time.Duration `env:"Task_BreakerRecovery" envDefault:"30s"`
}

type Fallback struct {
	Capacity int `env:"Fallback_Capacity" envDefault:"1024"`
}

type Worker struct {
	PollInterval time.Duration `env:"Worker_PollInterval" envDefault:"1s"`
	BaseBackoff  time.Duration `env:"Worker_BaseBackoff" envDefault:"500ms"`
	MaxBackoff   time.Duration `env:"Worker_MaxBackoff" envDefault:"30s"`
}

// Load parses the environment and validates once; nothing downstream
// re-checks configuration.
func Load() (*Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Redis.PoolSize <= 0 {
		return fmt.Errorf("redis pool size must be positive, got %d", c.Redis.PoolSize)
	}
	if c.Cache.BreakerThreshold <= 0 || c.Task.BreakerThreshold <= 0 {
		return fmt.Errorf("breaker failure thresholds must be positive")
	}
	if c.Cache.CompressionThreshold < 0 {
		return fmt.Errorf("compression threshold must not be negative, got %d", c.Cache.CompressionThreshold)
	}
	if c.Cache.KeyPrefix == "" || c.Task.KeyPrefix == "" {
		return fmt.Errorf("key prefixes must not be empty")
	}
	if c.Cache.KeyPrefix == c.Task.KeyPrefix {
		return fmt.Errorf("cache and task key prefixes must differ")
	}
	if c.Task.MaxRetries < 0 {
		return fmt.Errorf("max retries must not be negative, got %d", c.Task.MaxRetries)
	}
	if c.Fallback.Capacity <= 0 {
		return fmt.Errorf("fallback capacity must be positive, got %d", c.Fallback.Capacity)
	}
	return nil
}
