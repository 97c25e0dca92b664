package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/park285/reversi-server/internal/obslog"
)

type AppConfig struct {
	ListenAddr string
	WSAddr     string
	AdminAddr  string

	TurnTimeout  time.Duration
	NameTimeout  time.Duration
	WriteTimeout time.Duration
	PassRule     string

	MaxConcurrentSessions int
	ChatBuffer            int

	RedisURL   string
	SessionTTL time.Duration

	MessagesDir string

	Log obslog.Options
}

// fileConfig mirrors the optional YAML file. Durations accept "30s" or plain seconds.
type fileConfig struct {
	ListenAddr            string `yaml:"listen_addr"`
	WSAddr                string `yaml:"ws_addr"`
	AdminAddr             string `yaml:"admin_addr"`
	TurnTimeout           string `yaml:"turn_timeout"`
	NameTimeout           string `yaml:"name_timeout"`
	WriteTimeout          string `yaml:"write_timeout"`
	PassRule              string `yaml:"pass_rule"`
	MaxConcurrentSessions int    `yaml:"max_concurrent_sessions"`
	ChatBuffer            int    `yaml:"chat_buffer"`
	RedisURL              string `yaml:"redis_url"`
	SessionTTL            string `yaml:"session_ttl"`
	MessagesDir           string `yaml:"messages_dir"`
	Log                   struct {
		Level   string `yaml:"level"`
		Format  string `yaml:"format"`
		Console *bool  `yaml:"console"`
		File    string `yaml:"file"`
		Caller  bool   `yaml:"caller"`
	} `yaml:"log"`
}

func Default() *AppConfig {
	return &AppConfig{
		ListenAddr:            ":2025",
		TurnTimeout:           30 * time.Second,
		NameTimeout:           30 * time.Second,
		WriteTimeout:          5 * time.Second,
		PassRule:              "conditional",
		MaxConcurrentSessions: 200,
		ChatBuffer:            32,
		SessionTTL:            2 * time.Hour,
		Log: obslog.Options{
			Level:   "info",
			Format:  "legacy",
			Console: true,
		},
	}
}

// Load resolves configuration: defaults, then the YAML file named by
// REVERSI_CONFIG, then environment variables (a .env file in the working
// directory seeds variables that are not already set).
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("REVERSI_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *AppConfig) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.ListenAddr, fc.ListenAddr)
	setString(&cfg.WSAddr, fc.WSAddr)
	setString(&cfg.AdminAddr, fc.AdminAddr)
	setString(&cfg.PassRule, fc.PassRule)
	setString(&cfg.RedisURL, fc.RedisURL)
	setString(&cfg.MessagesDir, fc.MessagesDir)
	if fc.MaxConcurrentSessions > 0 {
		cfg.MaxConcurrentSessions = fc.MaxConcurrentSessions
	}
	if fc.ChatBuffer > 0 {
		cfg.ChatBuffer = fc.ChatBuffer
	}
	for _, d := range []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&cfg.TurnTimeout, fc.TurnTimeout, "turn_timeout"},
		{&cfg.NameTimeout, fc.NameTimeout, "name_timeout"},
		{&cfg.WriteTimeout, fc.WriteTimeout, "write_timeout"},
		{&cfg.SessionTTL, fc.SessionTTL, "session_ttl"},
	} {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		v, err := parseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("config file %s: %w", d.key, err)
		}
		*d.dst = v
	}

	setString(&cfg.Log.Level, fc.Log.Level)
	setString(&cfg.Log.Format, fc.Log.Format)
	setString(&cfg.Log.File, fc.Log.File)
	if fc.Log.Console != nil {
		cfg.Log.Console = *fc.Log.Console
	}
	if fc.Log.Caller {
		cfg.Log.Caller = true
	}
	return nil
}

func (cfg *AppConfig) applyEnv() error {
	setString(&cfg.ListenAddr, os.Getenv("REVERSI_LISTEN_ADDR"))
	setString(&cfg.WSAddr, os.Getenv("REVERSI_WS_ADDR"))
	setString(&cfg.AdminAddr, os.Getenv("REVERSI_ADMIN_ADDR"))
	setString(&cfg.PassRule, os.Getenv("REVERSI_PASS_RULE"))
	setString(&cfg.RedisURL, os.Getenv("REDIS_URL"))
	setString(&cfg.MessagesDir, os.Getenv("REVERSI_MESSAGES_DIR"))

	if v := strings.TrimSpace(os.Getenv("REVERSI_MAX_SESSIONS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxConcurrentSessions = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("REVERSI_CHAT_BUFFER")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChatBuffer = n
		}
	}

	for _, d := range []struct {
		dst *time.Duration
		key string
	}{
		{&cfg.TurnTimeout, "REVERSI_TURN_TIMEOUT"},
		{&cfg.NameTimeout, "REVERSI_NAME_TIMEOUT"},
		{&cfg.WriteTimeout, "REVERSI_WRITE_TIMEOUT"},
		{&cfg.SessionTTL, "REVERSI_SESSION_TTL"},
	} {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	setString(&cfg.Log.Level, os.Getenv("LOG_LEVEL"))
	setString(&cfg.Log.Format, os.Getenv("LOG_FORMAT"))
	setString(&cfg.Log.File, os.Getenv("LOG_FILE"))
	if v := strings.TrimSpace(os.Getenv("LOG_TO_CONSOLE")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Console = b
		}
	}
	if v := strings.TrimSpace(os.Getenv("LOG_CALLER")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Log.Caller = b
		}
	}
	return nil
}

// Validate rejects values the server cannot run with.
func (cfg *AppConfig) Validate() error {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return errors.New("REVERSI_LISTEN_ADDR is required")
	}
	if cfg.TurnTimeout < time.Second {
		return fmt.Errorf("turn timeout %s is below 1s", cfg.TurnTimeout)
	}
	if cfg.NameTimeout <= 0 || cfg.WriteTimeout <= 0 {
		return errors.New("name and write timeouts must be positive")
	}
	switch cfg.PassRule {
	case "conditional", "always":
	default:
		return fmt.Errorf("pass rule %q: want conditional or always", cfg.PassRule)
	}
	return nil
}

// parseDuration accepts Go durations ("30s", "1m") or whole seconds ("30").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("duration %q must be positive", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}
