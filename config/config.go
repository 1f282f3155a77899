// Package config loads runtime settings from the environment (and an optional
// .env file).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PartySize is the fixed number of players per match.
const PartySize = 2

type Config struct {
	Port           string
	DatabaseURL    string
	AuthSecret     string
	AdminToken     string
	AllowedOrigins []string
	Production     bool

	QuestionsPerMatch int
	ClaimTimeout      time.Duration
	PollInterval      time.Duration
	TokenTTL          time.Duration

	RedisURL      string
	QuestionCache time.Duration

	R2 R2Config
}

// R2Config is optional; archiving is disabled when Bucket is empty.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	Endpoint        string
}

func (r R2Config) Enabled() bool {
	return r.Bucket != "" && r.AccountID != ""
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, applying defaults.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           withDefault(getenv("PORT"), "3000"),
		DatabaseURL:    getenv("DATABASE_URL"),
		AuthSecret:     getenv("AUTH_SECRET"),
		AdminToken:     getenv("ADMIN_TOKEN"),
		AllowedOrigins: splitOrigins(withDefault(getenv("ALLOWED_ORIGINS"), "http://localhost:5173")),
		Production:     strings.EqualFold(getenv("APP_ENV"), "production"),
		RedisURL:       getenv("REDIS_URL"),
		R2: R2Config{
			AccountID:       getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          getenv("R2_BUCKET_NAME"),
			Endpoint:        getenv("R2_ENDPOINT"),
		},
	}

	var err error
	if cfg.QuestionsPerMatch, err = intVar(getenv, "QUESTIONS_PER_MATCH", 5); err != nil {
		return nil, err
	}
	if cfg.QuestionsPerMatch < 1 {
		return nil, errors.New("QUESTIONS_PER_MATCH must be at least 1")
	}
	if cfg.ClaimTimeout, err = durationVar(getenv, "CLAIM_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.TokenTTL, err = durationVar(getenv, "TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.QuestionCache, err = durationVar(getenv, "QUESTION_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}

	defaultInterval := 500 * time.Millisecond
	if cfg.Production {
		defaultInterval = 100 * time.Millisecond
	}
	if cfg.PollInterval, err = durationVar(getenv, "MATCHMAKER_INTERVAL", defaultInterval); err != nil {
		return nil, err
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL environment variable not set")
	}
	if cfg.AuthSecret == "" {
		return nil, errors.New("AUTH_SECRET environment variable not set")
	}
	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func splitOrigins(raw string) []string {
	var out []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	raw := getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
