package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for vidbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Pipeline PipelineConfig `json:"pipeline"`
	History  HistoryConfig  `json:"history"`
	Channels ChannelsConfig `json:"channels"`
	Gateway  GatewayConfig  `json:"gateway"`
	Metrics  MetricsConfig  `json:"metrics"`
}

type GeneralConfig struct {
	Workspace string `json:"workspace"`
	LogLevel  string `json:"logLevel"`
	LogFile   string `json:"logFile,omitempty"` // optional log file path
}

// PipelineConfig points at the remote media-processing backend.
type PipelineConfig struct {
	BaseURL               string `json:"baseUrl"`
	ManifestPath          string `json:"manifestPath,omitempty"` // optional capabilities.yaml with per-service overrides
	ClarifyTimeoutSeconds int    `json:"clarifyTimeoutSeconds"`
	RequestTimeoutSeconds int    `json:"requestTimeoutSeconds"`
	UploadMaxBytes        int64  `json:"uploadMaxBytes"`
}

type HistoryConfig struct {
	DBPath     string `json:"dbPath"`
	Session    string `json:"session"`    // snapshot key; single linear conversation
	FetchLimit int    `json:"fetchLimit"` // messages requested from the remote history
}

type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	CLI      CLIConfig      `json:"cli"`
}

type TelegramConfig struct {
	Enabled   bool     `json:"enabled"`
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

type CLIConfig struct {
	Enabled bool `json:"enabled"`
}

// GatewayConfig configures the local HTTP gateway (chat, upload, history,
// artifact downloads).
type GatewayConfig struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ArtifactsDir string `json:"artifactsDir"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.vidbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vidbot"
	}
	return filepath.Join(home, ".vidbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.General.Workspace = ExpandPath(cfg.General.Workspace)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.History.DBPath = ExpandPath(cfg.History.DBPath)
	cfg.Pipeline.ManifestPath = ExpandPath(cfg.Pipeline.ManifestPath)
	cfg.Gateway.ArtifactsDir = ExpandPath(cfg.Gateway.ArtifactsDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Pipeline.BaseURL == "" {
		errs = append(errs, "pipeline.baseUrl is required")
	}
	if cfg.Pipeline.ClarifyTimeoutSeconds < 1 {
		errs = append(errs, "pipeline.clarifyTimeoutSeconds must be >= 1")
	}
	if cfg.Pipeline.RequestTimeoutSeconds < 1 {
		errs = append(errs, "pipeline.requestTimeoutSeconds must be >= 1")
	}
	if cfg.Pipeline.UploadMaxBytes < 1 {
		errs = append(errs, "pipeline.uploadMaxBytes must be >= 1")
	}

	if cfg.History.Session == "" {
		errs = append(errs, "history.session is required")
	}
	if cfg.History.FetchLimit < 1 {
		errs = append(errs, "history.fetchLimit must be >= 1")
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		errs = append(errs, "gateway.port must be between 0 and 65535")
	}

	if cfg.Channels.Telegram.Enabled && cfg.Channels.Telegram.Token == "" {
		errs = append(errs, "channels.telegram.token is required when telegram is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
