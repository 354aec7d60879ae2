package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL      = "http://localhost:11434"
	defaultModel        = "llama3"
	defaultPort         = "8080"
	defaultSystemPrompt = "You are a helpful coding assistant. Provide clear, concise answers."

	configDirName  = "ollama-assistant"
	configFileName = "config.yaml"
)

type config struct {
	BaseURL        string        `yaml:"baseUrl"`
	Model          string        `yaml:"model"`
	Port           string        `yaml:"port"`
	SystemPrompt   string        `yaml:"systemPrompt"`
	LogLevel       string        `yaml:"logLevel"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	HighlightStyle string        `yaml:"highlightStyle"`
}

func defaultConfig() config {
	return config{
		Model:        defaultModel,
		Port:         defaultPort,
		SystemPrompt: defaultSystemPrompt,
		LogLevel:     "info",
	}
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig config

	raw := rawConfig(defaultConfig())
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = config(raw)

	return nil
}

// applyDefaults fills what the file left empty. The base URL falls back to OLLAMA_HOST before the default.
func (c *config) applyDefaults() {
	d := defaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = hostFromEnv(os.Getenv("OLLAMA_HOST"))
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.Port == "" {
		c.Port = d.Port
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

func (c config) validate() error {
	if c.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must not be negative, got %s", c.RequestTimeout)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func defaultConfigPath() (string, error) {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("error getting user config dir: %w", err)
	}
	return filepath.Join(cfgDir, configDirName, configFileName), nil
}

// loadConfig reads the configuration file at path, or at the default location if path is empty. A missing
// file is not an error: the defaults are used.
func loadConfig(path string) (config, error) {
	if path == "" {
		p, err := defaultConfigPath()
		if err != nil {
			return config{}, err
		}
		path = p
	}

	cfg := defaultConfig()

	cfgFile, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer cfgFile.Close()
		if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return config{}, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// hostFromEnv turns an OLLAMA_HOST value, which may omit the scheme, into a base URL.
func hostFromEnv(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl, err := parseLogLevel(level)
	if err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
