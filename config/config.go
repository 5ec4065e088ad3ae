package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/viper"

	"blossom/internal/ai"
	"blossom/internal/artifacts"
	"blossom/internal/generation"
	"blossom/internal/preview"
)

// Config holds all configuration for the application.
// Mapstructure tags are used to map environment variables and config file keys.
type Config struct {
	// Server Configuration
	ServerAddress string `mapstructure:"SERVER_ADDRESS"` // e.g., ":8080"
	AppEnv        string `mapstructure:"APP_ENV"`        // "production" switches gin and zap to release settings
	LogLevel      string `mapstructure:"LOG_LEVEL"`

	// Upstream providers used by the relay. A provider without a key is not offered.
	AnthropicAPIKey  string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `mapstructure:"ANTHROPIC_MODEL"`
	AnthropicBaseURL string `mapstructure:"ANTHROPIC_BASE_URL"`
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel      string `mapstructure:"GEMINI_MODEL"`
	GeminiBaseURL    string `mapstructure:"GEMINI_BASE_URL"`
	OpenAIKey        string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel      string `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL    string `mapstructure:"OPENAI_BASE_URL"`
	DefaultProvider  string `mapstructure:"DEFAULT_PROVIDER"`

	// RelayToken, when set, is required as a bearer token on /api/relay.
	RelayToken string `mapstructure:"RELAY_TOKEN"`

	// Generation client. An empty endpoint points the builder at this server's own relay.
	GenerationEndpoint       string        `mapstructure:"GENERATION_ENDPOINT"`
	GenerationStreamEndpoint string        `mapstructure:"GENERATION_STREAM_ENDPOINT"`
	GenerationModel          string        `mapstructure:"GENERATION_MODEL"`
	GenerationCredential     string        `mapstructure:"GENERATION_CREDENTIAL"`
	GenerationTimeout        time.Duration `mapstructure:"GENERATION_TIMEOUT"`

	// Project persistence: a postgres:// URL or a SQLite file path.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Object storage for saved file sets; in-memory when the endpoint is empty.
	Artifacts artifacts.S3Config `mapstructure:",squash"`

	// Preview iframe capabilities
	PreviewAllowScripts    bool `mapstructure:"PREVIEW_ALLOW_SCRIPTS"`
	PreviewAllowSameOrigin bool `mapstructure:"PREVIEW_ALLOW_SAME_ORIGIN"`
	PreviewAllowForms      bool `mapstructure:"PREVIEW_ALLOW_FORMS"`
	PreviewAllowModals     bool `mapstructure:"PREVIEW_ALLOW_MODALS"`

	// Typing effect pace
	TypingCharsPerTick int           `mapstructure:"TYPING_CHARS_PER_TICK"`
	TypingInterval     time.Duration `mapstructure:"TYPING_INTERVAL"`

	// ConfigFile is the file viper read, empty when only the environment was used.
	ConfigFile string `mapstructure:"-"`
}

var defaults = map[string]any{
	"SERVER_ADDRESS":             ":8080",
	"APP_ENV":                    "development",
	"LOG_LEVEL":                  "",
	"ANTHROPIC_API_KEY":          "",
	"ANTHROPIC_MODEL":            ai.DefaultAnthropicModel,
	"ANTHROPIC_BASE_URL":         "",
	"GEMINI_API_KEY":             "",
	"GEMINI_MODEL":               ai.DefaultGeminiModel,
	"GEMINI_BASE_URL":            "",
	"OPENAI_API_KEY":             "",
	"OPENAI_MODEL":               "",
	"OPENAI_BASE_URL":            "",
	"DEFAULT_PROVIDER":           "anthropic",
	"RELAY_TOKEN":                "",
	"GENERATION_ENDPOINT":        "",
	"GENERATION_STREAM_ENDPOINT": "",
	"GENERATION_MODEL":           "",
	"GENERATION_CREDENTIAL":      "",
	"GENERATION_TIMEOUT":         "120s",
	"DATABASE_URL":               "blossom.db",
	"ARTIFACT_S3_ENDPOINT":       "",
	"ARTIFACT_S3_REGION":         "",
	"ARTIFACT_S3_ACCESS_KEY":     "",
	"ARTIFACT_S3_SECRET_KEY":     "",
	"ARTIFACT_S3_BUCKET":         "blossom-projects",
	"ARTIFACT_S3_USE_SSL":        false,
	"PREVIEW_ALLOW_SCRIPTS":      true,
	"PREVIEW_ALLOW_SAME_ORIGIN":  false,
	"PREVIEW_ALLOW_FORMS":        false,
	"PREVIEW_ALLOW_MODALS":       false,
	"TYPING_CHARS_PER_TICK":      3,
	"TYPING_INTERVAL":            "16ms",
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)     // Path to look for the config file in
	v.SetConfigName("config") // Name of config file (without extension)
	v.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	// AutomaticEnv only sees keys viper already knows about, so every key gets a default.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.ConfigFile = v.ConfigFileUsed()

	if err = config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	switch strings.ToLower(strings.TrimSpace(c.DefaultProvider)) {
	case "anthropic", "gemini", "openai":
	default:
		return fmt.Errorf("DEFAULT_PROVIDER must be anthropic, gemini or openai, got %q", c.DefaultProvider)
	}
	if c.GenerationTimeout < 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must not be negative")
	}
	if c.TypingCharsPerTick < 1 {
		return fmt.Errorf("TYPING_CHARS_PER_TICK must be at least 1")
	}
	if c.TypingInterval <= 0 {
		return fmt.Errorf("TYPING_INTERVAL must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV selects release mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// ProviderSettings returns the relay's upstream credentials.
func (c Config) ProviderSettings() ai.Settings {
	return ai.Settings{
		AnthropicAPIKey:  c.AnthropicAPIKey,
		AnthropicModel:   c.AnthropicModel,
		AnthropicBaseURL: c.AnthropicBaseURL,
		GeminiAPIKey:     c.GeminiAPIKey,
		GeminiModel:      c.GeminiModel,
		GeminiBaseURL:    c.GeminiBaseURL,
		OpenAIAPIKey:     c.OpenAIKey,
		OpenAIModel:      c.OpenAIModel,
		OpenAIBaseURL:    c.OpenAIBaseURL,
		DefaultProvider:  c.DefaultProvider,
	}
}

// GenerationConfig resolves the generation client's endpoint. Without an explicit
// endpoint it targets the default provider on this server's relay.
func (c Config) GenerationConfig() generation.Config {
	endpoint := strings.TrimSpace(c.GenerationEndpoint)
	if endpoint == "" {
		endpoint = localBaseURL(c.ServerAddress) + "/api/relay/" + strings.ToLower(c.DefaultProvider)
	}
	credential := c.GenerationCredential
	if credential == "" {
		credential = c.RelayToken
	}
	return generation.Config{
		EndpointURL: endpoint,
		StreamURL:   strings.TrimSpace(c.GenerationStreamEndpoint),
		Model:       c.GenerationModel,
		Credential:  credential,
		Timeout:     c.GenerationTimeout,
	}
}

// Sandbox returns the preview iframe capabilities.
func (c Config) Sandbox() preview.SandboxOptions {
	return preview.SandboxOptions{
		AllowScripts:    c.PreviewAllowScripts,
		AllowSameOrigin: c.PreviewAllowSameOrigin,
		AllowForms:      c.PreviewAllowForms,
		AllowModals:     c.PreviewAllowModals,
	}
}

// localBaseURL turns a listen address into a URL this process can dial; wildcard
// hosts become the loopback address.
func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil || port == "" {
		return "http://127.0.0.1:8080"
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}
