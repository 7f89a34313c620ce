package configs

import (
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ikoral/burnbox/internal/infrastructure/env"
)

type Config struct {
	HTTP        HTTPConfig        `koanf:"http"`
	Redis       RedisConfig       `koanf:"redis"`
	Room        RoomConfig        `koanf:"room"`
	History     HistoryConfig     `koanf:"history"`
	RateLimiter RateLimiterConfig `koanf:"rateLimiter"`
}

type HTTPConfig struct {
	Host           string        `koanf:"host"`
	Port           uint16        `koanf:"port"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
	ReadTimeout    time.Duration `koanf:"read_timeout"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	// Bounded retry budget for transient failures; the client backs off
	// between attempts and gives up after MaxRetries.
	MaxRetries int `koanf:"max_retries"`
}

type RoomConfig struct {
	Lifetime time.Duration `koanf:"lifetime"`
}

type HistoryConfig struct {
	MaxLength int           `koanf:"max_length"`
	MaxAge    time.Duration `koanf:"max_age"`
}

type RateLimiterConfig struct {
	RequestsPerTimeFrame int           `koanf:"requestsPerTimeFrame"`
	TimeFrame            time.Duration `koanf:"timeFrame"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	setDefault(k, "http.host", "0.0.0.0")
	setDefault(k, "http.port", 8080)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.allowed_origins", []string{"*"})

	setDefault(k, "redis.addr", "localhost:6379")
	setDefault(k, "redis.db", 0)
	setDefault(k, "redis.max_retries", 3)

	setDefault(k, "room.lifetime", 10*time.Minute)

	setDefault(k, "history.max_length", 100)
	setDefault(k, "history.max_age", time.Hour)

	setDefault(k, "rateLimiter.requestsPerTimeFrame", 20)
	setDefault(k, "rateLimiter.timeFrame", 5*time.Second)
}

func applyEnvOverrides(k *koanf.Koanf) {
	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}

	if addr := env.GetString("REDIS_ADDR", ""); addr != "" {
		k.Set("redis.addr", addr)
	}
	if user := env.GetString("REDIS_USER", ""); user != "" {
		k.Set("redis.username", user)
	}
	if password := env.GetString("REDIS_PASSWORD", ""); password != "" {
		k.Set("redis.password", password)
	}
	if db := env.GetInt("REDIS_DB", -1); db >= 0 {
		k.Set("redis.db", db)
	}

	if lifetime := env.GetInt("ROOM_LIFETIME_SECONDS", 0); lifetime > 0 {
		k.Set("room.lifetime", time.Duration(lifetime)*time.Second)
	}

	if maxLen := env.GetInt("HISTORY_MAX_LENGTH", 0); maxLen > 0 {
		k.Set("history.max_length", maxLen)
	}
	if maxAge := env.GetInt("HISTORY_MAX_AGE_SECONDS", 0); maxAge > 0 {
		k.Set("history.max_age", time.Duration(maxAge)*time.Second)
	}

	if requests := env.GetInt("RATE_LIMIT_REQUESTS", 0); requests > 0 {
		k.Set("rateLimiter.requestsPerTimeFrame", requests)
	}
	if frame := env.GetInt("RATE_LIMIT_TIME_FRAME_SECONDS", 0); frame > 0 {
		k.Set("rateLimiter.timeFrame", time.Duration(frame)*time.Second)
	}
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value interface{}) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
