package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/naval-1647/CodeMonitor/cmd/internal/history"
	"github.com/naval-1647/CodeMonitor/cmd/internal/realtime"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	WSURL    string
	APIURL   string
	Token    string
	Username string

	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadyTimeout   time.Duration
	WSWriteTimeout time.Duration

	HistoryLimit       int
	HistoryDatabaseURL string
	HistoryUserID      string
	HistorySchema      string
	DBMaxConns         int32

	APITimeout time.Duration
	APIRetries int
	APIRPS     float64

	// MetricsAddr enables the diagnostics server (/healthz, /readyz, /metrics) when set.
	MetricsAddr string

	DevAddr           string
	DevTokens         string
	DevAllowAnyToken  bool
	DevAllowedOrigins []string
	DevChunkDelay     time.Duration
	DevRateLimit      int
	DevRateWindow     time.Duration

	// Security policy: when true, CODEMONITOR_TOKEN_HMAC_KEY must be set so token fingerprints
	// in logs are keyed.
	RequireTokenHMAC bool
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		WSURL:    EnvString("CODEMONITOR_WS_URL", "ws://localhost:8000"),
		APIURL:   EnvString("CODEMONITOR_API_URL", "http://localhost:8000"),
		Token:    EnvString("CODEMONITOR_TOKEN", ""),
		Username: EnvString("CODEMONITOR_USERNAME", ""),

		LogLevel:  EnvString("CODEMONITOR_LOG_LEVEL", "info"),
		LogFormat: EnvString("CODEMONITOR_LOG_FORMAT", "pretty"),

		ReadyTimeout:   EnvDuration("CODEMONITOR_READY_TIMEOUT", realtime.DefaultReadyTimeout),
		WSWriteTimeout: EnvDuration("CODEMONITOR_WS_WRITE_TIMEOUT", 5*time.Second),

		HistoryLimit:       EnvInt("CODEMONITOR_HISTORY_LIMIT", history.DefaultLimit),
		HistoryDatabaseURL: EnvString("CODEMONITOR_HISTORY_DATABASE_URL", ""),
		HistoryUserID:      EnvString("CODEMONITOR_HISTORY_USER_ID", ""),
		HistorySchema:      EnvString("CODEMONITOR_HISTORY_SCHEMA", "public"),
		DBMaxConns:         EnvInt32("CODEMONITOR_DB_MAX_CONNS", 4),

		APITimeout: EnvDuration("CODEMONITOR_API_TIMEOUT", 15*time.Second),
		APIRetries: EnvInt("CODEMONITOR_API_RETRIES", 2),
		APIRPS:     EnvFloat("CODEMONITOR_API_RPS", 0),

		MetricsAddr: EnvString("CODEMONITOR_METRICS_ADDR", ""),

		DevAddr:           EnvString("CODEMONITOR_DEV_ADDR", "127.0.0.1:8000"),
		DevTokens:         EnvString("CODEMONITOR_DEV_TOKENS", ""),
		DevAllowAnyToken:  EnvBool("CODEMONITOR_DEV_ALLOW_ANY_TOKEN", true),
		DevAllowedOrigins: EnvCSV("CODEMONITOR_DEV_ALLOWED_ORIGINS", "http://localhost,http://127.0.0.1"),
		DevChunkDelay:     EnvDuration("CODEMONITOR_DEV_CHUNK_DELAY", 30*time.Millisecond),
		DevRateLimit:      EnvInt("CODEMONITOR_DEV_RATE_LIMIT", 50),
		DevRateWindow:     EnvDuration("CODEMONITOR_DEV_RATE_WINDOW", time.Hour),

		RequireTokenHMAC: EnvBool("CODEMONITOR_REQUIRE_TOKEN_HMAC", false),
	}
}

// ValidateConfig fails fast on settings a command cannot run without.
func ValidateConfig(cfg Config, cmd string) error {
	switch cmd {
	case cmdChat, cmdRoom, cmdHistory, cmdSnippets:
		if cfg.Token == "" {
			return fmt.Errorf("%s: CODEMONITOR_TOKEN is required", cmd)
		}
	}
	if cmd == cmdRoom && cfg.Username == "" {
		return errors.New("room: CODEMONITOR_USERNAME is required")
	}
	if cfg.HistoryDatabaseURL != "" && cfg.HistoryUserID == "" {
		return errors.New("CODEMONITOR_HISTORY_DATABASE_URL requires CODEMONITOR_HISTORY_USER_ID")
	}
	return ValidateSecurityConfig(cfg)
}
