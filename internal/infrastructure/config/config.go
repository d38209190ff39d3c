package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth     AuthConfig
	Throttle ThrottleConfig
	Mongo    MongoConfig
	Redis    RedisConfig
}

type AuthConfig struct {
	// JWTSecret signs both access and refresh tokens. Required.
	JWTSecret string `env:"JWT_SECRET, required"`
	// JWTAlgorithm names the HMAC signing algorithm: HS256, HS384, or HS512.
	JWTAlgorithm string        `env:"JWT_ALGORITHM,     default=HS256"`
	AccessTTL    time.Duration `env:"ACCESS_TOKEN_TTL,  default=30m"`
	RefreshTTL   time.Duration `env:"REFRESH_TOKEN_TTL, default=168h"`
	// BcryptCost is the password hashing work factor. 0 selects the
	// library default.
	BcryptCost int `env:"BCRYPT_COST, default=12"`
}

type ThrottleConfig struct {
	MaxFailures int           `env:"LOGIN_MAX_FAILURES,    default=10"`
	Window      time.Duration `env:"LOGIN_FAILURE_WINDOW,  default=15m"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=identity_system"`
}

type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB,   default=0"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	var cfg Config
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return &cfg
}
