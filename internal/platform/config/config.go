package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-level configuration. Built from environment
// variables so main stays lean.
type Server struct {
	Addr        string
	DatabaseURL string // empty runs on in-memory stores
	CADir       string

	ChallengeTTL time.Duration
	DNSTimeout   time.Duration
	DNSAttempts  int
	DNSRetryWait time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:         envString("ANS_REGISTRY_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		CADir:        envString("ANS_CA_DIR", "./ca-data"),
		ChallengeTTL: envDuration("ANS_CHALLENGE_TTL", time.Hour),
		DNSTimeout:   envDuration("ANS_DNS_TIMEOUT", 5*time.Second),
		DNSAttempts:  envInt("ANS_DNS_ATTEMPTS", 3),
		DNSRetryWait: envDuration("ANS_DNS_RETRY_WAIT", time.Second),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
