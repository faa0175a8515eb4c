package config

import (
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/dgnsrekt/devtools_bridge/internal/netutil"
)

// portWindow is how many consecutive ports agents scan when discovering the
// bridge. Must stay in sync with the agent-side discovery range.
const portWindow = 10

// Config holds all configuration for the bridge binary.
type Config struct {
	// Bind settings
	BindAddr         string
	PortCandidates   []string
	PortAutoFallback bool

	// Agent connection settings
	HeartbeatIntervalMS int

	// Per-command-class reply budgets
	DOMTimeoutMS        int
	NavTimeoutMS        int
	ScreenshotTimeoutMS int

	// Telemetry bounding and retention
	TelemetryStringCap  int
	TelemetryBatchBytes int
	TelemetryBuffer     int

	// Tool-surface output
	SnapshotDir string

	// Optional page-analysis engine debug endpoint
	DebugPortURL string

	// Optional lifecycle webhook
	NotifyURL string

	// SSE relay
	RelayEnabled bool
	RelayConfig  string

	// Logging
	LogLevel string
	LogFile  string
}

// Load reads configuration from environment variables and an optional .env
// file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:            getEnvOrDefault("BRIDGE_BIND_ADDR", "127.0.0.1:8765"),
		PortAutoFallback:    getEnvBoolOrDefault("BRIDGE_PORT_AUTO_FALLBACK", true),
		HeartbeatIntervalMS: getEnvIntOrDefault("BRIDGE_HEARTBEAT_INTERVAL_MS", 30000),
		DOMTimeoutMS:        getEnvIntOrDefault("BRIDGE_DOM_TIMEOUT_MS", 5000),
		NavTimeoutMS:        getEnvIntOrDefault("BRIDGE_NAV_TIMEOUT_MS", 15000),
		ScreenshotTimeoutMS: getEnvIntOrDefault("BRIDGE_SCREENSHOT_TIMEOUT_MS", 10000),
		TelemetryStringCap:  getEnvIntOrDefault("BRIDGE_TELEMETRY_STRING_CAP", 500),
		TelemetryBatchBytes: getEnvIntOrDefault("BRIDGE_TELEMETRY_BATCH_BYTES", 20000),
		TelemetryBuffer:     getEnvIntOrDefault("BRIDGE_TELEMETRY_BUFFER", 1000),
		SnapshotDir:         getEnvOrDefault("BRIDGE_SNAPSHOT_DIR", "./snapshots"),
		DebugPortURL:        getEnvOrDefault("BRIDGE_DEBUG_PORT_URL", ""),
		NotifyURL:           getEnvOrDefault("BRIDGE_NOTIFY_URL", ""),
		RelayEnabled:        getEnvBoolOrDefault("BRIDGE_RELAY_ENABLED", false),
		RelayConfig:         getEnvOrDefault("BRIDGE_RELAY_CONFIG", "./config/relay.yaml"),
		LogLevel:            strings.ToLower(getEnvOrDefault("BRIDGE_LOG_LEVEL", "info")),
		LogFile:             getEnvOrDefault("BRIDGE_LOG_FILE", "logs/devtools_bridge.log"),
	}
	if cfg.HeartbeatIntervalMS < 1000 {
		cfg.HeartbeatIntervalMS = 1000
	}
	cfg.PortCandidates = candidateAddrs(cfg.BindAddr)

	return cfg, nil
}

// candidateAddrs derives the fallback bind addresses from the preferred one.
// Agents scan the same window, so the bridge must not bind outside it.
func candidateAddrs(bindAddr string) []string {
	host, portStr, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil
	}
	return netutil.CandidateRange(host, port, port+portWindow-1)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}
