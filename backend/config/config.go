package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the environment-sourced part of the configuration. Listen
// addresses and log level come from command line flags instead.
type Config struct {
	DatabasePath string `envconfig:"DATABASE_PATH" default:"parley.db"`
	SecretKey    string `envconfig:"SECRET_KEY"`
	// REDIS_ADDR switches the AI endpoint rate limiter to a shared redis
	// backend; empty means per-process in-memory limiting.
	RedisAddr    string `envconfig:"REDIS_ADDR"`
	UploadDir    string `envconfig:"UPLOAD_FOLDER" default:"uploads"`
	AIServiceURL string `envconfig:"AI_SERVICE_URL"`
	// Empty private rooms older than PrivateRoomTTL are deleted every
	// ReapInterval.
	PrivateRoomTTL time.Duration `envconfig:"PRIVATE_ROOM_TTL" default:"24h"`
	ReapInterval   time.Duration `envconfig:"REAP_INTERVAL" default:"1h"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
