package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultModel is the generation model used when MODEL_NAME is unset.
const DefaultModel = "gemini-1.5-flash"

// ErrMissingAPIKey is returned when GOOGLE_AI_API_KEY is not configured.
var ErrMissingAPIKey = errors.New("GOOGLE_AI_API_KEY is not set; export it or add GOOGLE_AI_API_KEY=<key> to a .env file in the working directory")

type Config struct {
	Addr string

	// Generation backend.
	APIKey          string
	Model           string
	GeminiBaseURL   string // empty => SDK default
	GenerateTimeout time.Duration

	// Optional directory served instead of the embedded client.
	StaticDir string

	LogLevel slog.Level

	// Live WebSocket.
	MaxMessageBytes  int64
	WSPingInterval   time.Duration
	WSWriteTimeout   time.Duration
	HandshakeTimeout time.Duration

	// Operational defaults
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration
}

// FileConfig is the optional YAML configuration named by REVLIVE_CONFIG.
// Every field may be overridden by its environment variable.
type FileConfig struct {
	Addr                string        `yaml:"addr"`
	Model               string        `yaml:"model"`
	GeminiBaseURL       string        `yaml:"gemini_base_url"`
	GenerateTimeout     time.Duration `yaml:"generate_timeout"`
	StaticDir           string        `yaml:"static_dir"`
	LogLevel            string        `yaml:"log_level"`
	MaxMessageBytes     int64         `yaml:"max_message_bytes"`
	WSPingInterval      time.Duration `yaml:"ws_ping_interval"`
	WSWriteTimeout      time.Duration `yaml:"ws_write_timeout"`
	HandshakeTimeout    time.Duration `yaml:"handshake_timeout"`
	ReadHeaderTimeout   time.Duration `yaml:"read_header_timeout"`
	ShutdownGracePeriod time.Duration `yaml:"shutdown_grace_period"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:                ":3000",
		Model:               DefaultModel,
		GenerateTimeout:     30 * time.Second,
		LogLevel:            slog.LevelInfo,
		MaxMessageBytes:     64 * 1024,
		WSPingInterval:      20 * time.Second,
		WSWriteTimeout:      5 * time.Second,
		HandshakeTimeout:    5 * time.Second,
		ReadHeaderTimeout:   10 * time.Second,
		ShutdownGracePeriod: 30 * time.Second,
	}
}

// LoadFromEnv builds the configuration from defaults, then the YAML file named
// by REVLIVE_CONFIG (if any), then environment variables.
func LoadFromEnv() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("REVLIVE_CONFIG")); path != "" {
		fc, err := LoadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("config %q: %w", path, err)
		}
	}

	cfg.APIKey = strings.TrimSpace(os.Getenv("GOOGLE_AI_API_KEY"))
	cfg.Model = envOr("MODEL_NAME", cfg.Model)
	cfg.GeminiBaseURL = envOr("REVLIVE_GEMINI_BASE_URL", cfg.GeminiBaseURL)
	cfg.GenerateTimeout = envDurationOr("REVLIVE_GENERATE_TIMEOUT", cfg.GenerateTimeout)
	cfg.StaticDir = envOr("REVLIVE_STATIC_DIR", cfg.StaticDir)
	cfg.MaxMessageBytes = envInt64Or("REVLIVE_MAX_MESSAGE_BYTES", cfg.MaxMessageBytes)
	cfg.WSPingInterval = envDurationOr("REVLIVE_WS_PING_INTERVAL", cfg.WSPingInterval)
	cfg.WSWriteTimeout = envDurationOr("REVLIVE_WS_WRITE_TIMEOUT", cfg.WSWriteTimeout)
	cfg.HandshakeTimeout = envDurationOr("REVLIVE_HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	cfg.ReadHeaderTimeout = envDurationOr("REVLIVE_READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout)
	cfg.ShutdownGracePeriod = envDurationOr("REVLIVE_SHUTDOWN_GRACE_PERIOD", cfg.ShutdownGracePeriod)

	if raw := strings.TrimSpace(os.Getenv("REVLIVE_LOG_LEVEL")); raw != "" {
		lvl, err := parseLevel(raw)
		if err != nil {
			return Config{}, fmt.Errorf("REVLIVE_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = lvl
	}

	// PORT keeps the conventional single-variable form; REVLIVE_ADDR wins.
	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return Config{}, fmt.Errorf("PORT must be a number between 1 and 65535")
		}
		cfg.Addr = ":" + port
	}
	cfg.Addr = envOr("REVLIVE_ADDR", cfg.Addr)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("MODEL_NAME must not be empty")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("REVLIVE_ADDR must not be empty")
	}
	if c.GenerateTimeout <= 0 {
		return fmt.Errorf("REVLIVE_GENERATE_TIMEOUT must be > 0")
	}
	if c.MaxMessageBytes <= 0 {
		return fmt.Errorf("REVLIVE_MAX_MESSAGE_BYTES must be > 0")
	}
	if c.WSPingInterval <= 0 {
		return fmt.Errorf("REVLIVE_WS_PING_INTERVAL must be > 0")
	}
	if c.WSWriteTimeout <= 0 {
		return fmt.Errorf("REVLIVE_WS_WRITE_TIMEOUT must be > 0")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("REVLIVE_HANDSHAKE_TIMEOUT must be > 0")
	}
	if c.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("REVLIVE_READ_HEADER_TIMEOUT must be > 0")
	}
	if c.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("REVLIVE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

// LoadFile reads a YAML configuration file. Unknown keys are rejected.
func LoadFile(path string) (FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	fc, err := DecodeFile(f)
	if err != nil {
		return FileConfig{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return fc, nil
}

// DecodeFile decodes a YAML configuration from r.
func DecodeFile(r io.Reader) (FileConfig, error) {
	var fc FileConfig
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, fmt.Errorf("decode yaml: %w", err)
	}
	return fc, nil
}

func (fc FileConfig) apply(cfg *Config) error {
	if fc.Addr != "" {
		cfg.Addr = fc.Addr
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.GeminiBaseURL != "" {
		cfg.GeminiBaseURL = fc.GeminiBaseURL
	}
	if fc.GenerateTimeout != 0 {
		cfg.GenerateTimeout = fc.GenerateTimeout
	}
	if fc.StaticDir != "" {
		cfg.StaticDir = fc.StaticDir
	}
	if fc.LogLevel != "" {
		lvl, err := parseLevel(fc.LogLevel)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	if fc.MaxMessageBytes != 0 {
		cfg.MaxMessageBytes = fc.MaxMessageBytes
	}
	if fc.WSPingInterval != 0 {
		cfg.WSPingInterval = fc.WSPingInterval
	}
	if fc.WSWriteTimeout != 0 {
		cfg.WSWriteTimeout = fc.WSWriteTimeout
	}
	if fc.HandshakeTimeout != 0 {
		cfg.HandshakeTimeout = fc.HandshakeTimeout
	}
	if fc.ReadHeaderTimeout != 0 {
		cfg.ReadHeaderTimeout = fc.ReadHeaderTimeout
	}
	if fc.ShutdownGracePeriod != 0 {
		cfg.ShutdownGracePeriod = fc.ShutdownGracePeriod
	}
	return nil
}

func parseLevel(raw string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return 0, fmt.Errorf("invalid level %q; valid values: debug, info, warn, error", raw)
	}
	return lvl, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
