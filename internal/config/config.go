package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Engine struct {
	MaxAttempts       int           // Hard ceiling on attempts per delivery
	DLQAfterAttempts  int           // Retryable failures allowed before DLQ
	InitialDelay      time.Duration // First retry delay
	BackoffMultiplier float64       // Exponential growth factor
	MaxDelay          time.Duration // Retry delay cap
	Jitter            bool          // Randomize retry delays
	RetryableStatuses []int         // HTTP statuses eligible for retry
	AttemptTimeout    time.Duration // Per-attempt HTTP timeout
	BatchSize         int           // Bulk submission batch size
	DLQTTL            time.Duration // Dead letter entry lifetime
	TickInterval      time.Duration // Background processor interval
}

type Breaker struct {
	FailureThreshold    int           // Consecutive failures before opening
	SuccessThreshold    int           // Half-open successes before closing
	Cooldown            time.Duration // Open state cool-down
	HalfOpenMaxAttempts int           // Probe budget while half-open
}

type Signing struct {
	Secret string // Shared HMAC secret; empty disables signing
	Header string // Signature header name
}

type NSQ struct {
	NsqdTCPAddr string // e.g. nsqd:4150
	EventsTopic string // Topic for lifecycle event publication
	Enabled     bool   // Whether to publish events to NSQ
}

type Store struct {
	Backend string // "memory" or "postgres"
	DSN     string // Postgres DSN when Backend is "postgres"
}

type Config struct {
	AppName  string
	HTTPPort string // :8080
	Engine   Engine
	Breaker  Breaker
	Signing  Signing
	NSQ      NSQ
	Store    Store
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseStatusList(raw string, def []int) []int {
	if raw == "" {
		return def
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		if code, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, code)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "hookline"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		Engine: Engine{
			MaxAttempts:       getenvInt("MAX_ATTEMPTS", 5),
			DLQAfterAttempts:  getenvInt("DLQ_AFTER_ATTEMPTS", 3),
			InitialDelay:      getenvDuration("RETRY_INITIAL_DELAY", time.Second),
			BackoffMultiplier: getenvFloat("RETRY_BACKOFF_MULTIPLIER", 2),
			MaxDelay:          getenvDuration("RETRY_MAX_DELAY", 60*time.Second),
			Jitter:            getenvBool("RETRY_JITTER", true),
			RetryableStatuses: parseStatusList(getenv("RETRYABLE_STATUSES", ""), []int{429, 500, 502, 503, 504}),
			AttemptTimeout:    getenvDuration("ATTEMPT_TIMEOUT", 30*time.Second),
			BatchSize:         getenvInt("BULK_BATCH_SIZE", 10),
			DLQTTL:            getenvDuration("DLQ_TTL", 30*24*time.Hour),
			TickInterval:      getenvDuration("TICK_INTERVAL", 5*time.Second),
		},
		Breaker: Breaker{
			FailureThreshold:    getenvInt("BREAKER_FAILURE_THRESHOLD", 5),
			SuccessThreshold:    getenvInt("BREAKER_SUCCESS_THRESHOLD", 3),
			Cooldown:            getenvDuration("BREAKER_COOLDOWN", 60*time.Second),
			HalfOpenMaxAttempts: getenvInt("BREAKER_HALF_OPEN_MAX_ATTEMPTS", 3),
		},
		Signing: Signing{
			Secret: getenv("SIGNING_SECRET", ""),
			Header: getenv("WEBHOOK_SIGNATURE_HEADER", "X-Webhook-Signature"),
		},
		NSQ: NSQ{
			NsqdTCPAddr: getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			EventsTopic: getenv("NSQ_EVENTS_TOPIC", "webhook_events"),
			Enabled:     getenvBool("PUBLISH_NSQ_EVENTS", false),
		},
		Store: Store{
			Backend: getenv("STORE_BACKEND", "memory"),
			DSN:     getenv("STORE_DSN", ""),
		},
	}
}
