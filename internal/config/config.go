package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address the HTTP surface listens on.
	DefaultAddr = ":8085"
	// DefaultGRPCAddr is the default gRPC listener. An explicitly empty value disables it.
	DefaultGRPCAddr = ":8086"
	// DefaultTickHz is the frame rate of the server-side session loop.
	DefaultTickHz = 60.0
	// DefaultPlayerName is recorded against scores when no name is supplied.
	DefaultPlayerName = "Guest"
	// DefaultAutopilot keeps the throttle latched during a run.
	DefaultAutopilot = true
	// DefaultScoresPath is the JSON file backing the local leaderboard.
	DefaultScoresPath = "scores.json"

	// DefaultScoreSubmitWindow bounds how frequently external score submissions are accepted.
	DefaultScoreSubmitWindow = time.Minute
	// DefaultScoreSubmitBurst sets how many external submissions may be made per window.
	DefaultScoreSubmitBurst = 5

	// DefaultChatRetain caps the in-memory chat history.
	DefaultChatRetain = 100
	// DefaultChatBacklog is how many recent messages a new chat client receives.
	DefaultChatBacklog = 50
	// DefaultChatFloodRate is the inbound byte budget per chat connection per second.
	DefaultChatFloodRate = 1024.0
	// DefaultPingInterval controls the keepalive cadence for chat WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound chat frame size.
	DefaultMaxPayloadBytes int64 = 4 << 10

	// DefaultReplayKeep is how many run bundles survive pruning.
	DefaultReplayKeep = 10
	// DefaultStateInterval is how often the server state snapshot is flushed.
	DefaultStateInterval = 15 * time.Second

	// DefaultLogLevel controls verbosity for server logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "endlessdrive.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// Config captures all runtime tunables for the endlessdrive server.
type Config struct {
	Address           string
	GRPCAddress       string
	AllowedOrigins    []string
	TickHz            float64
	Seed              uint64
	PlayerName        string
	Autopilot         bool
	ScoresPath        string
	ScoresURL         string
	ScoresKey         string
	ScoreSubmitWindow time.Duration
	ScoreSubmitBurst  int
	ChatRetain        int
	ChatBacklog       int
	ChatSecret        string
	ChatFloodRate     float64
	PingInterval      time.Duration
	MaxPayloadBytes   int64
	AdminToken        string
	GRPCSecret        string
	GRPCCertPath      string
	GRPCKeyPath       string
	GRPCClientCAPath  string
	ReplayDir         string
	ReplayKeep        int
	StatePath         string
	StateInterval     time.Duration
	Logging           LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	// FileOnly suppresses the stdout mirror, for the terminal HUD.
	FileOnly bool
}

// SeedOrClock returns the configured seed, or a time based one when unset.
func (c *Config) SeedOrClock(now func() time.Time) uint64 {
	if c != nil && c.Seed != 0 {
		return c.Seed
	}
	if now == nil {
		now = time.Now
	}
	return uint64(now().UnixNano())
}

// Load reads the server configuration from environment variables, applying sane defaults
// and returning descriptive errors for invalid overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:           getString("DRIVE_ADDR", DefaultAddr),
		GRPCAddress:       DefaultGRPCAddr,
		AllowedOrigins:    parseList(os.Getenv("DRIVE_ALLOWED_ORIGINS")),
		TickHz:            DefaultTickHz,
		PlayerName:        getString("DRIVE_PLAYER_NAME", DefaultPlayerName),
		Autopilot:         DefaultAutopilot,
		ScoresPath:        getString("DRIVE_SCORES_PATH", DefaultScoresPath),
		ScoresURL:         strings.TrimRight(strings.TrimSpace(os.Getenv("DRIVE_SCORES_URL")), "/"),
		ScoresKey:         strings.TrimSpace(os.Getenv("DRIVE_SCORES_KEY")),
		ScoreSubmitWindow: DefaultScoreSubmitWindow,
		ScoreSubmitBurst:  DefaultScoreSubmitBurst,
		ChatRetain:        DefaultChatRetain,
		ChatBacklog:       DefaultChatBacklog,
		ChatSecret:        strings.TrimSpace(os.Getenv("DRIVE_CHAT_SECRET")),
		ChatFloodRate:     DefaultChatFloodRate,
		PingInterval:      DefaultPingInterval,
		MaxPayloadBytes:   DefaultMaxPayloadBytes,
		AdminToken:        strings.TrimSpace(os.Getenv("DRIVE_ADMIN_TOKEN")),
		GRPCSecret:        strings.TrimSpace(os.Getenv("DRIVE_GRPC_SECRET")),
		GRPCCertPath:      strings.TrimSpace(os.Getenv("DRIVE_GRPC_CERT")),
		GRPCKeyPath:       strings.TrimSpace(os.Getenv("DRIVE_GRPC_KEY")),
		GRPCClientCAPath:  strings.TrimSpace(os.Getenv("DRIVE_GRPC_CLIENT_CA")),
		ReplayDir:         strings.TrimSpace(os.Getenv("DRIVE_REPLAY_DIR")),
		ReplayKeep:        DefaultReplayKeep,
		StatePath:         strings.TrimSpace(os.Getenv("DRIVE_STATE_PATH")),
		StateInterval:     DefaultStateInterval,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("DRIVE_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("DRIVE_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	//1.- An explicitly empty gRPC address disables the listener, so LookupEnv instead of getString.
	if raw, ok := os.LookupEnv("DRIVE_GRPC_ADDR"); ok {
		cfg.GRPCAddress = strings.TrimSpace(raw)
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_TICK_HZ")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 || value > 1000 {
			problems = append(problems, fmt.Sprintf("DRIVE_TICK_HZ must be a frequency in (0, 1000], got %q", raw))
		} else {
			cfg.TickHz = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_SEED")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			problems = append(problems, fmt.Sprintf("DRIVE_SEED must be an unsigned integer, got %q", raw))
		} else {
			cfg.Seed = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_AUTOPILOT")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("DRIVE_AUTOPILOT must be a boolean value, got %q", raw))
		} else {
			cfg.Autopilot = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_SCORE_SUBMIT_WINDOW")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_SCORE_SUBMIT_WINDOW must be a positive duration, got %q", raw))
		} else {
			cfg.ScoreSubmitWindow = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_SCORE_SUBMIT_BURST")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_SCORE_SUBMIT_BURST must be a positive integer, got %q", raw))
		} else {
			cfg.ScoreSubmitBurst = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_CHAT_RETAIN")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_CHAT_RETAIN must be a positive integer, got %q", raw))
		} else {
			cfg.ChatRetain = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_CHAT_BACKLOG")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_CHAT_BACKLOG must be a non-negative integer, got %q", raw))
		} else {
			cfg.ChatBacklog = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_CHAT_FLOOD_RATE")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_CHAT_FLOOD_RATE must be a positive number of bytes per second, got %q", raw))
		} else {
			cfg.ChatFloodRate = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_REPLAY_KEEP")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_REPLAY_KEEP must be a positive integer, got %q", raw))
		} else {
			cfg.ReplayKeep = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_STATE_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_STATE_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.StateInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("DRIVE_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("DRIVE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("DRIVE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	//2.- The hosted leaderboard needs both its endpoint and its key.
	if (cfg.ScoresURL == "") != (cfg.ScoresKey == "") {
		problems = append(problems, "DRIVE_SCORES_URL and DRIVE_SCORES_KEY must be provided together")
	}

	//3.- Mutual TLS is all or nothing.
	if set := countSet(cfg.GRPCCertPath, cfg.GRPCKeyPath, cfg.GRPCClientCAPath); set != 0 && set != 3 {
		problems = append(problems, "DRIVE_GRPC_CERT, DRIVE_GRPC_KEY and DRIVE_GRPC_CLIENT_CA must be provided together")
	}

	if len(problems) > 0 {
		return nil, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// GRPCMutualTLS reports whether certificate paths were configured.
func (c *Config) GRPCMutualTLS() bool {
	return c != nil && c.GRPCCertPath != "" && c.GRPCKeyPath != "" && c.GRPCClientCAPath != ""
}

func countSet(values ...string) int {
	count := 0
	for _, value := range values {
		if value != "" {
			count++
		}
	}
	return count
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
