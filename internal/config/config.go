// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/supervisor/internal/agent"
	"github.com/ashureev/supervisor/internal/health"
	"github.com/ashureev/supervisor/internal/throttle"
	"github.com/ashureev/supervisor/internal/tts"
	"github.com/ashureev/supervisor/internal/watchdog"
)

// Config holds all application configuration.
type Config struct {
	BotToken      string
	AllowedUser   int64
	AlertChatID   int64
	TelegramAPI   string
	PollTimeout   time.Duration
	MaxMessageLen int

	Agent  agent.Config
	Edits  throttle.Policy
	Typing time.Duration

	Health         health.Config
	HealthInterval time.Duration
	Service        ServiceConfig

	TTSEnabled bool
	TTS        tts.Config

	StatusAddr     string
	StatusToken    string
	GRPCHealthAddr string

	DBPath           string
	JournalRetention time.Duration

	LogLevel string
}

// ServiceConfig names the supervised service and how to control it.
type ServiceConfig struct {
	// Manager is launchctl, systemd or docker.
	Manager string
	Name    string
	// Target is the launchctl domain target, or "user" for systemd --user.
	// Docker uses Name as the container name.
	Target string
}

// lookupFunc resolves a setting by its environment variable name.
type lookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables, falling back to the
// optional YAML file at path for anything the environment does not set.
func Load(path string) (*Config, error) {
	base := map[string]string{}
	if path != "" {
		var err error
		base, err = readFile(path)
		if err != nil {
			return nil, err
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := base[key]
		return v, ok
	}

	cfg := fromLookup(lookup)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readFile parses a flat YAML mapping of variable names to values.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return values, nil
}

func fromLookup(lookup lookupFunc) *Config {
	env := envReader{lookup: lookup}
	home, _ := os.UserHomeDir()

	allowed := env.getEnvInt64("SUPERVISOR_ALLOWED_USER", 0)

	agentCfg := agent.DefaultConfig()
	agentCfg.Binary = env.getEnv("CLAUDE_BIN", filepath.Join(home, ".local", "bin", "claude"))
	agentCfg.Model = env.getEnv("CLAUDE_MODEL", agentCfg.Model)
	agentCfg.WorkDir = env.getEnv("CLAUDE_WORKDIR", home)
	agentCfg.SystemPromptPath = env.getEnv("SYSTEM_PROMPT_PATH", "")
	agentCfg.Timeout = env.getEnvDuration("CLAUDE_TIMEOUT", agentCfg.Timeout)

	maxLen := env.getEnvInt("MAX_MESSAGE_LEN", throttle.DefaultMaxLen)
	edits := throttle.Policy{
		Interval: env.getEnvDuration("EDIT_INTERVAL", throttle.DefaultInterval),
		MinDelta: env.getEnvInt("EDIT_MIN_DELTA", throttle.DefaultMinDelta),
		MaxLen:   maxLen,
	}

	healthCfg := health.DefaultConfig()
	healthCfg.Label = env.getEnv("SERVICE_LABEL", healthCfg.Label)
	healthCfg.Host = env.getEnv("SERVICE_HOST", healthCfg.Host)
	healthCfg.Port = env.getEnvInt("SERVICE_PORT", healthCfg.Port)
	healthCfg.LogDir = env.getEnv("SERVICE_LOG_DIR", healthCfg.LogDir)
	healthCfg.Timeout = env.getEnvDuration("PROBE_TIMEOUT", healthCfg.Timeout)

	ttsCfg := tts.DefaultConfig()
	ttsCfg.Python = env.getEnv("TTS_PYTHON", ttsCfg.Python)
	ttsCfg.Script = env.getEnv("TTS_SCRIPT", ttsCfg.Script)
	ttsCfg.OnnxDir = env.getEnv("TTS_ONNX_DIR", ttsCfg.OnnxDir)
	ttsCfg.VoiceStyle = env.getEnv("TTS_VOICE_STYLE", ttsCfg.VoiceStyle)
	ttsCfg.FFmpeg = env.getEnv("TTS_FFMPEG", ttsCfg.FFmpeg)

	return &Config{
		BotToken:      env.getEnv("SUPERVISOR_BOT_TOKEN", ""),
		AllowedUser:   allowed,
		AlertChatID:   env.getEnvInt64("ALERT_CHAT_ID", allowed),
		TelegramAPI:   env.getEnv("TELEGRAM_API_URL", ""),
		PollTimeout:   env.getEnvDuration("POLL_TIMEOUT", 30*time.Second),
		MaxMessageLen: maxLen,

		Agent:  agentCfg,
		Edits:  edits,
		Typing: env.getEnvDuration("TYPING_INTERVAL", 5*time.Second),

		Health:         healthCfg,
		HealthInterval: env.getEnvDuration("HEALTH_CHECK_INTERVAL", watchdog.DefaultInterval),
		Service: ServiceConfig{
			Manager: env.getEnv("SERVICE_MANAGER", "launchctl"),
			Name:    env.getEnv("SERVICE_NAME", "ai.openclaw.gateway"),
			Target:  env.getEnv("SERVICE_TARGET", ""),
		},

		TTSEnabled: env.getEnvBool("TTS_ENABLED", true),
		TTS:        ttsCfg,

		StatusAddr:     env.getEnv("STATUS_ADDR", "127.0.0.1:8089"),
		StatusToken:    env.getEnv("STATUS_TOKEN", ""),
		GRPCHealthAddr: env.getEnv("GRPC_HEALTH_ADDR", ""),

		DBPath:           env.getEnv("DB_PATH", filepath.Join(home, ".supervisor", "journal.db")),
		JournalRetention: env.getEnvDuration("JOURNAL_RETENTION", 30*24*time.Hour),

		LogLevel: env.getEnv("LOG_LEVEL", "info"),
	}
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("SUPERVISOR_BOT_TOKEN must be set"))
	}
	if c.AllowedUser <= 0 {
		errs = append(errs, errors.New("SUPERVISOR_ALLOWED_USER must be a positive user ID"))
	}
	if c.Agent.Binary == "" {
		errs = append(errs, errors.New("CLAUDE_BIN cannot be empty"))
	}
	if c.Agent.Timeout <= 0 {
		errs = append(errs, errors.New("CLAUDE_TIMEOUT must be > 0"))
	}
	if c.MaxMessageLen <= 0 || c.MaxMessageLen > 4096 {
		errs = append(errs, errors.New("MAX_MESSAGE_LEN must be in 1..4096"))
	}
	if c.Health.Port <= 0 || c.Health.Port > 65535 {
		errs = append(errs, fmt.Errorf("SERVICE_PORT %d out of range", c.Health.Port))
	}
	if c.HealthInterval <= 0 {
		errs = append(errs, errors.New("HEALTH_CHECK_INTERVAL must be > 0"))
	}
	switch c.Service.Manager {
	case "launchctl", "systemd", "docker":
	default:
		errs = append(errs, fmt.Errorf("SERVICE_MANAGER %q is not one of launchctl, systemd, docker", c.Service.Manager))
	}
	if c.Service.Name == "" {
		errs = append(errs, errors.New("SERVICE_NAME cannot be empty"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	lookup lookupFunc
}

func (e envReader) getEnv(key, fallback string) string {
	if value, ok := e.lookup(key); ok {
		return value
	}
	return fallback
}

func (e envReader) getEnvBool(key string, fallback bool) bool {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func (e envReader) getEnvInt(key string, fallback int) int {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func (e envReader) getEnvInt64(key string, fallback int64) int64 {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func (e envReader) getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := e.lookup(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
