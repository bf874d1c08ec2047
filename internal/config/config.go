// Package config loads gateway settings from a YAML file with
// environment variable overrides, mirroring the env names the original
// deployment scripts already use (OPENAI_API_KEY, RLM_TIMEOUT, ...).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full gateway configuration.
type Config struct {
	Listen string `yaml:"listen"`
	Debug  bool   `yaml:"debug"`

	API       APIConfig       `yaml:"api"`
	Limits    LimitsConfig    `yaml:"limits"`
	RLM       RLMConfig       `yaml:"rlm"`
	Log       LogConfig       `yaml:"log"`
	Image     ImageConfig     `yaml:"image"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Tailscale TailscaleConfig `yaml:"tailscale"`

	SessionTTLMinutes int `yaml:"session_ttl_minutes"`
}

// APIConfig points at the upstream OpenAI-compatible API.
type APIConfig struct {
	BaseURL            string   `yaml:"base_url"`
	Key                string   `yaml:"key"`
	DefaultModel       string   `yaml:"default_model"`
	DefaultTemperature float64  `yaml:"default_temperature"`
	AvailableModels    []string `yaml:"available_models"`
}

// LimitsConfig bounds inbound requests.
type LimitsConfig struct {
	MaxMessageChars int `yaml:"max_message_chars"`
	MaxHistory      int `yaml:"max_history"`
	MaxPromptTokens int `yaml:"max_prompt_tokens"`
	RateRPM         int `yaml:"rate_rpm"`
	RateBurst       int `yaml:"rate_burst"`
}

// RLMConfig controls the code-executing agent loop.
type RLMConfig struct {
	Enabled        bool   `yaml:"enabled"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxIterations  int    `yaml:"max_iterations"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	Passcode       string `yaml:"passcode"`
	MaxDocuments   int    `yaml:"max_documents_in_context"`
}

// Timeout returns the hard wall-clock budget for one RLM run.
func (c RLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogConfig configures the conversation log sink. ChatLog is either
// empty (disabled), a file path (JSONL), "sqlite:<path>", or a
// postgres:// DSN.
type LogConfig struct {
	ChatLog string `yaml:"chat_log"`
}

// ImageConfig selects and configures the image generation provider.
type ImageConfig struct {
	Provider string            `yaml:"provider"` // "swarmui" or "openai"
	SwarmUI  SwarmUIConfig     `yaml:"swarmui"`
	OpenAI   OpenAIImageConfig `yaml:"openai"`
}

type SwarmUIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	CFGScale       float64 `yaml:"cfg_scale"`
	Steps          int     `yaml:"steps"`
	Width          int     `yaml:"width"`
	Height         int     `yaml:"height"`
	Seed           int     `yaml:"seed"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

type OpenAIImageConfig struct {
	Key     string `yaml:"key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Size    string `yaml:"size"`
}

// TelemetryConfig configures OTLP span export (requires -tags otel).
type TelemetryConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Endpoint    string            `yaml:"endpoint"`
	Protocol    string            `yaml:"protocol"` // "grpc" (default) or "http"
	Insecure    bool              `yaml:"insecure"`
	ServiceName string            `yaml:"service_name"`
	Headers     map[string]string `yaml:"headers"`
}

// TailscaleConfig configures the optional tsnet listener (-tags tsnet).
type TailscaleConfig struct {
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	Ephemeral bool   `yaml:"ephemeral"`
	StateDir  string `yaml:"state_dir"`
	EnableTLS bool   `yaml:"enable_tls"`
}

// SessionTTL returns how long a tracked session counts as active.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMinutes) * time.Minute
}

// Load reads the config file at path (missing file is fine — defaults
// plus env apply), overlays environment variables, normalizes the model
// list, and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// env-only configuration
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.normalizeModels()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Listen: ":8000",
		API: APIConfig{
			BaseURL:            "https://api.openai.com/v1",
			DefaultModel:       "gpt-3.5-turbo",
			DefaultTemperature: 0.7,
		},
		Limits: LimitsConfig{
			MaxMessageChars: 262144,
			MaxHistory:      50,
			MaxPromptTokens: 16000,
			RateRPM:         0, // disabled
			RateBurst:       5,
		},
		RLM: RLMConfig{
			Enabled:        true,
			TimeoutSeconds: 60,
			MaxIterations:  10,
			MaxConcurrent:  3,
			MaxDocuments:   3,
		},
		Image: ImageConfig{
			Provider: "swarmui",
			SwarmUI: SwarmUIConfig{
				BaseURL:        "http://localhost:7801",
				Model:          "Flux/flux1-schnell-fp8",
				CFGScale:       1.0,
				Steps:          6,
				Width:          1024,
				Height:         1024,
				Seed:           -1,
				TimeoutSeconds: 300,
			},
			OpenAI: OpenAIImageConfig{
				BaseURL: "https://api.openai.com/v1",
				Model:   "dall-e-3",
				Size:    "1024x1024",
			},
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "tinychat-gateway",
		},
		SessionTTLMinutes: 5,
	}
}

// applyEnv overlays the environment variables the original deployment
// used, so existing .env files keep working unchanged.
func applyEnv(cfg *Config) {
	setStr(&cfg.API.BaseURL, "OPENAI_API_URL")
	setStr(&cfg.API.Key, "OPENAI_API_KEY")
	setStr(&cfg.API.DefaultModel, "DEFAULT_MODEL")
	setFloat(&cfg.API.DefaultTemperature, "DEFAULT_TEMPERATURE")
	if v := os.Getenv("AVAILABLE_MODELS"); v != "" {
		cfg.API.AvailableModels = strings.Split(v, ",")
	}

	setInt(&cfg.Limits.MaxMessageChars, "MAX_MESSAGE_LENGTH")
	setInt(&cfg.Limits.MaxHistory, "MAX_CONVERSATION_HISTORY")

	setInt(&cfg.RLM.TimeoutSeconds, "RLM_TIMEOUT")
	setInt(&cfg.RLM.MaxIterations, "RLM_MAX_ITERATIONS")
	setInt(&cfg.RLM.MaxConcurrent, "MAX_CONCURRENT_RLM")
	setStr(&cfg.RLM.Passcode, "RLM_PASSCODE")
	setInt(&cfg.RLM.MaxDocuments, "MAX_DOCUMENTS_IN_CONTEXT")

	setStr(&cfg.Log.ChatLog, "CHAT_LOG")

	setStr(&cfg.Image.Provider, "IMAGE_PROVIDER")
	setStr(&cfg.Image.SwarmUI.BaseURL, "SWARMUI")
	setStr(&cfg.Image.SwarmUI.Model, "IMAGE_MODEL")
	setStr(&cfg.Image.OpenAI.Key, "OPENAI_IMAGE_API_KEY")
	setStr(&cfg.Image.OpenAI.BaseURL, "OPENAI_IMAGE_API_BASE")
	setStr(&cfg.Image.OpenAI.Model, "OPENAI_IMAGE_MODEL")
	setStr(&cfg.Image.OpenAI.Size, "OPENAI_IMAGE_SIZE")

	cfg.Image.Provider = strings.ToLower(cfg.Image.Provider)
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// normalizeModels dedupes the model list, trims whitespace, and makes
// sure the default model is always offered.
func (c *Config) normalizeModels() {
	seen := make(map[string]struct{})
	var models []string
	for _, m := range c.API.AvailableModels {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		models = append(models, m)
	}
	if _, ok := seen[c.API.DefaultModel]; !ok && c.API.DefaultModel != "" {
		models = append([]string{c.API.DefaultModel}, models...)
	}
	c.API.AvailableModels = models
}

// ModelAllowed reports whether a requested model may be served.
func (c *Config) ModelAllowed(model string) bool {
	for _, m := range c.API.AvailableModels {
		if m == model {
			return true
		}
	}
	return false
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	if c.API.DefaultTemperature < 0 || c.API.DefaultTemperature > 2 {
		return fmt.Errorf("api.default_temperature must be in [0, 2], got %g", c.API.DefaultTemperature)
	}
	if c.RLM.MaxIterations < 1 {
		return fmt.Errorf("rlm.max_iterations must be >= 1, got %d", c.RLM.MaxIterations)
	}
	if c.RLM.MaxConcurrent < 1 {
		return fmt.Errorf("rlm.max_concurrent must be >= 1, got %d", c.RLM.MaxConcurrent)
	}
	if c.RLM.TimeoutSeconds < 1 {
		return fmt.Errorf("rlm.timeout_seconds must be >= 1, got %d", c.RLM.TimeoutSeconds)
	}
	switch c.Image.Provider {
	case "swarmui", "openai", "":
	default:
		return fmt.Errorf("image.provider must be \"swarmui\" or \"openai\", got %q", c.Image.Provider)
	}
	if c.Limits.MaxHistory < 1 {
		return fmt.Errorf("limits.max_history must be >= 1, got %d", c.Limits.MaxHistory)
	}
	return nil
}
