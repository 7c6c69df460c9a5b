// Package config loads the server settings from the environment.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var validate = validator.New()

type Config struct {
	Port        int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	DatabaseURL string `envconfig:"DATABASE_URL" validate:"required"`
	// REDIS_URL left empty runs a single instance on the in-process bridge.
	RedisURL    string `envconfig:"REDIS_URL"`
	RedisPrefix string `envconfig:"REDIS_PREFIX" default:"letstalk:"`

	JWTSecret string        `envconfig:"JWT_SECRET" validate:"required"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h" validate:"gt=0"`

	LogLevel   string `envconfig:"LOG_LEVEL" default:"INFO"`
	InstanceID string `envconfig:"INSTANCE_ID"`

	PredefinedRooms  []string `envconfig:"PREDEFINED_ROOMS" default:"JavaScript,Python,PHP,C#,Ruby,Java"`
	JoinCodeLength   int      `envconfig:"JOIN_CODE_LENGTH" default:"6" validate:"min=4,max=32"`
	MaxMessageLength int      `envconfig:"MAX_MESSAGE_LENGTH" default:"2000" validate:"min=1"`

	ArchiveQueueSize int           `envconfig:"ARCHIVE_QUEUE_SIZE" default:"1024" validate:"min=1"`
	ArchiveWorkers   int           `envconfig:"ARCHIVE_WORKERS" default:"2" validate:"min=1"`
	ArchiveTimeout   time.Duration `envconfig:"ARCHIVE_TIMEOUT" default:"5s" validate:"gt=0"`

	BridgeLocalFallback bool `envconfig:"BRIDGE_LOCAL_FALLBACK" default:"true"`

	// Instances silent for three intervals lose their users from merged rosters.
	RosterRefreshInterval time.Duration `envconfig:"ROSTER_REFRESH_INTERVAL" default:"15s" validate:"gt=0"`
}

// Load reads .env.local or .env when present, then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv()
}

// FromEnv decodes and validates the current environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
