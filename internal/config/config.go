// Package config reads server settings from the environment. A .env file,
// when present, is loaded first so local runs don't need exported vars.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	DatabaseDSN string

	// PublicBaseURL is what join links and QR codes point at.
	PublicBaseURL string

	EventLogCap  int
	SessionTTL   time.Duration
	TimeDilation float64

	TurnLimit  time.Duration
	RoundLimit time.Duration

	// VoteQuorum is the minimum distinct voters before a team vote can
	// resolve a topic.
	VoteQuorum int

	AlertNoise  bool
	TimelineSLA bool
	// WSResync gates incremental reconnect replay; off means every resync
	// falls back to a full snapshot.
	WSResync bool

	Debug bool
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:    envStr("RANGE_ADDR", ":8080"),
		DatabaseDSN:   os.Getenv("RANGE_DB_DSN"),
		PublicBaseURL: envStr("RANGE_PUBLIC_URL", "http://localhost:8080"),
		EventLogCap:   envInt("RANGE_EVENT_LOG_CAP", 512),
		SessionTTL:    envDuration("RANGE_SESSION_TTL", 24*time.Hour),
		TimeDilation:  envFloat("RANGE_TIME_DILATION", 1),
		TurnLimit:     envDuration("RANGE_TURN_LIMIT", 5*time.Minute),
		RoundLimit:    envDuration("RANGE_ROUND_LIMIT", 30*time.Minute),
		VoteQuorum:    envInt("RANGE_VOTE_QUORUM", 2),
		AlertNoise:    envBool("RANGE_ALERT_NOISE", true),
		TimelineSLA:   envBool("RANGE_TIMELINE_SLA", false),
		WSResync:      envBool("RANGE_WS_RESYNC", true),
		Debug:         envBool("RANGE_DEBUG", false),
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
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
