// Package config loads router configuration from the process environment.
// The core has no persisted configuration store (spec: "stateless across
// restarts beyond its configuration"); everything is read once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Config is the complete router configuration.
type Config struct {
	// ServerSecret gates every client session. Required unless
	// ServerSecretFile is set; when it is empty every authentication fails.
	ServerSecret string
	// AdminSecret gates the admin path. Empty disables it (fails closed).
	AdminSecret string

	// ServerSecretFile, when set, replaces ServerSecret as the session-token
	// signing secret: the file holds that secret encrypted at rest with
	// ServerSecretEncryptionKeyHex and is decrypted once at startup. Client
	// admission still checks ServerSecret.
	ServerSecretFile string
	// ServerSecretEncryptionKeyHex is the hex-encoded 32-byte ChaCha20-Poly1305
	// key used to decrypt ServerSecretFile. Required when ServerSecretFile is set.
	ServerSecretEncryptionKeyHex string

	Media MediaConfig

	SignalingPort int
	MetricsPort   int

	Logging LoggingConfig

	HandlerTimeout  time.Duration
	ICETimeout      time.Duration
	ShutdownTimeout time.Duration

	Speaking SpeakingConfig
}

// MediaConfig controls the Media Worker's ICE/transport behavior.
type MediaConfig struct {
	ListenIP    string
	AnnouncedIP string
	PortMin     uint16
	PortMax     uint16

	TURNHost   string
	TURNSecret string
	// TURNCredentialTTL bounds the lifetime of minted TURN credentials.
	TURNCredentialTTL time.Duration
}

// TURNEnabled reports whether TURN credential minting is configured.
func (m MediaConfig) TURNEnabled() bool {
	return m.TURNHost != "" && m.TURNSecret != ""
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level  string // error, warn, info, debug
	Format string // json, console
}

// SpeakingConfig controls the active-speaker observer.
type SpeakingConfig struct {
	ThresholdDBFS float64
	Interval      time.Duration
	HoldOff       time.Duration
}

// Load reads configuration from the environment. Absence of both
// SERVER_SECRET and SERVER_SECRET_FILE is a fatal configuration error; with
// only SERVER_SECRET_FILE set, admission fails closed for every client.
func Load() (*Config, error) {
	cfg := &Config{
		ServerSecret:                 os.Getenv("SERVER_SECRET"),
		AdminSecret:                  os.Getenv("ADMIN_SECRET"),
		ServerSecretFile:             os.Getenv("SERVER_SECRET_FILE"),
		ServerSecretEncryptionKeyHex: os.Getenv("SERVER_SECRET_ENCRYPTION_KEY"),
		Media: MediaConfig{
			ListenIP:          getenvDefault("MEDIA_LISTEN_IP", "0.0.0.0"),
			AnnouncedIP:       os.Getenv("MEDIA_ANNOUNCED_IP"),
			PortMin:           getenvUint16Default("MEDIA_PORT_MIN", 40000),
			PortMax:           getenvUint16Default("MEDIA_PORT_MAX", 40100),
			TURNHost:          os.Getenv("MEDIA_TURN_HOST"),
			TURNSecret:        os.Getenv("MEDIA_TURN_SECRET"),
			TURNCredentialTTL: getenvDurationDefault("MEDIA_TURN_TTL", time.Hour),
		},
		SignalingPort: getenvIntDefault("SIGNALING_PORT", 5000),
		MetricsPort:   getenvIntDefault("METRICS_PORT", 9090),
		Logging: LoggingConfig{
			Level:  getenvDefault("LOG_LEVEL", "info"),
			Format: getenvDefault("LOG_FORMAT", "json"),
		},
		HandlerTimeout:  getenvDurationDefault("HANDLER_TIMEOUT", 10*time.Second),
		ICETimeout:      getenvDurationDefault("ICE_TIMEOUT", 20*time.Second),
		ShutdownTimeout: getenvDurationDefault("SHUTDOWN_TIMEOUT", 10*time.Second),
		Speaking: SpeakingConfig{
			ThresholdDBFS: getenvFloatDefault("SPEAKING_THRESHOLD_DBFS", -70),
			Interval:      getenvDurationDefault("SPEAKING_INTERVAL_MS", 800*time.Millisecond),
			HoldOff:       getenvDurationDefault("SPEAKING_HOLDOFF_MS", 800*time.Millisecond),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ServerSecret == "" && c.ServerSecretFile == "" {
		return fmt.Errorf("config: SERVER_SECRET or SERVER_SECRET_FILE is required")
	}
	if c.ServerSecretFile != "" && c.ServerSecretEncryptionKeyHex == "" {
		return fmt.Errorf("config: SERVER_SECRET_ENCRYPTION_KEY is required when SERVER_SECRET_FILE is set")
	}
	if c.SignalingPort < 1 || c.SignalingPort > 65535 {
		return fmt.Errorf("config: invalid SIGNALING_PORT %d", c.SignalingPort)
	}
	if c.Media.PortMin == 0 || c.Media.PortMax < c.Media.PortMin {
		return fmt.Errorf("config: invalid MEDIA_PORT_MIN/MEDIA_PORT_MAX range")
	}
	switch c.Logging.Level {
	case "error", "warn", "info", "debug":
	default:
		return fmt.Errorf("config: invalid LOG_LEVEL %q", c.Logging.Level)
	}
	return nil
}

// AdminEnabled reports whether the admin authentication path is active.
func (c *Config) AdminEnabled() bool {
	return c.AdminSecret != ""
}

// GetLogLevel maps the configured level string to a zerolog.Level.
func (c *Config) GetLogLevel() zerolog.Level {
	switch c.Logging.Level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvUint16Default(key string, def uint16) uint16 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			return uint16(n)
		}
	}
	return def
}

func getenvFloatDefault(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	// Values like SPEAKING_INTERVAL_MS are bare milliseconds; everything
	// else accepts a Go duration string (e.g. "10s").
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}
