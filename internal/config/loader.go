package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"botd/internal/common/fsutil"
)

// Config holds runtime parameters for the bot daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	// Path to the gguf model weights, or a directory containing exactly
	// one *.gguf file.
	ModelPath string `json:"model_path" yaml:"model_path" toml:"model_path"`
	// Path of the serialized base-prompt session.
	SessionPath string `json:"session_path" yaml:"session_path" toml:"session_path"`
	// Ops HTTP listen address.
	Addr string `json:"addr" yaml:"addr" toml:"addr"`
	// Telegram bot token. Usually provided via BOTD_TELEGRAM_TOKEN.
	TelegramToken string `json:"telegram_token" yaml:"telegram_token" toml:"telegram_token"`
	// Context window size in tokens. Part of the session's identity.
	NCtx int `json:"n_ctx" yaml:"n_ctx" toml:"n_ctx"`
	// Decode thread counts. NThreads 0 means NumCPU; NThreadsBatch 0 means
	// the same value as NThreads.
	NThreads      int `json:"n_threads" yaml:"n_threads" toml:"n_threads"`
	NThreadsBatch int `json:"n_threads_batch" yaml:"n_threads_batch" toml:"n_threads_batch"`
	// Hard cap on generated tokens per inference call.
	MaxGenerationTokens int `json:"max_generation_tokens" yaml:"max_generation_tokens" toml:"max_generation_tokens"`
	// Concurrent decode limit across all users.
	MaxConcurrentDecodes int `json:"max_concurrent_decodes" yaml:"max_concurrent_decodes" toml:"max_concurrent_decodes"`
	// Seconds a stuck non-idle user waits before being force-reset.
	ForceResetSeconds int `json:"force_reset_seconds" yaml:"force_reset_seconds" toml:"force_reset_seconds"`
	// Seconds of inactivity before the goodbye turn fires.
	GoodbyeSeconds int `json:"goodbye_seconds" yaml:"goodbye_seconds" toml:"goodbye_seconds"`
	// Logging verbosity: debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

const (
	DefaultAddr                 = ":8080"
	DefaultSessionPath          = "resources/base_prompt.session"
	DefaultNCtx                 = 8192
	DefaultMaxGenerationTokens  = 2000
	DefaultMaxConcurrentDecodes = 1
	DefaultForceResetSeconds    = 120
	DefaultGoodbyeSeconds       = 300
	DefaultLogLevel             = "info"
)

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. MODEL_PATH and LOG_LEVEL
// are the documented names; the rest use a BOTD_ prefix.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.ModelPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BOTD_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("BOTD_SESSION_PATH"); v != "" {
		c.SessionPath = v
	}
	if v := os.Getenv("BOTD_TELEGRAM_TOKEN"); v != "" {
		c.TelegramToken = v
	}
	if v, ok := envInt("BOTD_N_CTX"); ok {
		c.NCtx = v
	}
	if v, ok := envInt("BOTD_N_THREADS"); ok {
		c.NThreads = v
	}
	if v, ok := envInt("BOTD_MAX_GENERATION_TOKENS"); ok {
		c.MaxGenerationTokens = v
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ApplyDefaults fills unset fields with package defaults.
func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.SessionPath == "" {
		c.SessionPath = DefaultSessionPath
	}
	if c.NCtx <= 0 {
		c.NCtx = DefaultNCtx
	}
	if c.MaxGenerationTokens <= 0 {
		c.MaxGenerationTokens = DefaultMaxGenerationTokens
	}
	if c.MaxConcurrentDecodes <= 0 {
		c.MaxConcurrentDecodes = DefaultMaxConcurrentDecodes
	}
	if c.ForceResetSeconds <= 0 {
		c.ForceResetSeconds = DefaultForceResetSeconds
	}
	if c.GoodbyeSeconds <= 0 {
		c.GoodbyeSeconds = DefaultGoodbyeSeconds
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// ResolveModelPath expands '~' and, when the path is a directory, scans it
// for *.gguf files; exactly one match is required.
func ResolveModelPath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("model path not configured (set MODEL_PATH)")
	}
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("abs path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("model path: %w", err)
	}
	if !fi.IsDir() {
		return abs, nil
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return "", fmt.Errorf("read dir: %w", err)
	}
	var found []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			found = append(found, filepath.Join(abs, e.Name()))
		}
	}
	switch len(found) {
	case 0:
		return "", fmt.Errorf("no *.gguf files in %s", abs)
	case 1:
		return found[0], nil
	default:
		return "", fmt.Errorf("%d *.gguf files in %s, point model_path at one", len(found), abs)
	}
}
