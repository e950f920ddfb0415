// Package config loads server configuration from defaults, an optional YAML
// file and environment variables.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Session   SessionConfig   `yaml:"session"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	LLM       LLMConfig       `yaml:"llm"`
	Storage   StorageConfig   `yaml:"storage"`
	Redis     RedisConfig     `yaml:"redis"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	// Dir holds command recordings.
	Dir string `yaml:"dir"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type WorkspaceConfig struct {
	Root           string        `yaml:"root"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
}

// ProviderConfig configures one response back end. A provider without an API
// key is not registered.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type LLMConfig struct {
	// Timeout bounds every single responder call.
	Timeout   time.Duration  `yaml:"timeout"`
	OpenAI    ProviderConfig `yaml:"openai"`
	Anthropic ProviderConfig `yaml:"anthropic"`
	DeepSeek  ProviderConfig `yaml:"deepseek"`
	Gemini    ProviderConfig `yaml:"gemini"`
}

type StorageConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type RedisConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	Password    string `yaml:"password"`
	DB          int    `yaml:"db"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"*"},
		},
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
		},
		Session: SessionConfig{
			IdleTimeout:   24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Workspace: WorkspaceConfig{
			Root:           "./workspace",
			CommandTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Timeout:   60 * time.Second,
			OpenAI:    ProviderConfig{Model: "gpt-4"},
			Anthropic: ProviderConfig{Model: "claude-3-sonnet-20240229"},
			DeepSeek:  ProviderConfig{Model: "deepseek-chat"},
			Gemini:    ProviderConfig{Model: "gemini-2.0-flash"},
		},
		Storage: StorageConfig{
			Path: "data/sessions.db",
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			TopicPrefix: "sessions",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrapf(err, "parse config %s", path)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate checks values that would make the server misbehave.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Session.IdleTimeout <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if c.Workspace.CommandTimeout <= 0 {
		return errors.New("command timeout must be positive")
	}
	if c.LLM.Timeout <= 0 {
		return errors.New("llm timeout must be positive")
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := getEnv("PORT", ""); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrap(err, "parse PORT")
		}
		c.Server.Port = port
	}
	if v := getEnv("CORS_ORIGINS", ""); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Dir = getEnv("LOG_DIR", c.Log.Dir)
	c.Workspace.Root = getEnv("WORKSPACE_ROOT", c.Workspace.Root)

	if v := getEnv("SESSION_IDLE_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.Wrap(err, "parse SESSION_IDLE_TIMEOUT")
		}
		c.Session.IdleTimeout = d
	}

	if v := getEnv("DB_PATH", ""); v != "" {
		c.Storage.Enabled = true
		c.Storage.Path = v
	}
	if v := getEnv("REDIS_ADDR", ""); v != "" {
		c.Redis.Enabled = true
		c.Redis.Addr = v
	}

	applyProviderEnv(&c.LLM.OpenAI, "OPENAI")
	applyProviderEnv(&c.LLM.Anthropic, "ANTHROPIC")
	applyProviderEnv(&c.LLM.DeepSeek, "DEEPSEEK")
	applyProviderEnv(&c.LLM.Gemini, "GEMINI")
	return nil
}

func applyProviderEnv(p *ProviderConfig, prefix string) {
	p.APIKey = getEnv(prefix+"_API_KEY", p.APIKey)
	p.Model = getEnv(prefix+"_MODEL", p.Model)
	p.BaseURL = getEnv(prefix+"_BASE_URL", p.BaseURL)
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
