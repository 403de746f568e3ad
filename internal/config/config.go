package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	// Remote pipeline endpoints
	PipelineBaseURL string `mapstructure:"PIPELINE_BASE_URL"`
	TranscribeURL   string `mapstructure:"TRANSCRIBE_URL"`
	StructureURL    string `mapstructure:"STRUCTURE_URL"`
	RelanceURL      string `mapstructure:"RELANCE_URL"`
	AnalyzeURL      string `mapstructure:"ANALYZE_URL"`
	ArretURL        string `mapstructure:"ARRET_URL"`
	DictationURL    string `mapstructure:"DICTATION_WEBHOOK_URL"`

	// OpenAI settings for the in-process analysis service
	OpenAIAPIKey  string  `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL string  `mapstructure:"OPENAI_BASE_URL"`
	OpenAIModel   string  `mapstructure:"OPENAI_MODEL"`
	OpenAITemp    float64 `mapstructure:"OPENAI_TEMPERATURE"`

	RequestTimeoutSeconds int    `mapstructure:"REQUEST_TIMEOUT_SECONDS"`
	BodyLimit             string `mapstructure:"BODY_LIMIT"`
	AudioBodyLimit        string `mapstructure:"AUDIO_BODY_LIMIT"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("PIPELINE_BASE_URL", "http://localhost:3000")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("OPENAI_MODEL", "gpt-4o")
	v.SetDefault("OPENAI_TEMPERATURE", 0.3)
	v.SetDefault("REQUEST_TIMEOUT_SECONDS", 90)
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("AUDIO_BODY_LIMIT", "25M")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("PIPELINE_BASE_URL")
	v.BindEnv("TRANSCRIBE_URL")
	v.BindEnv("STRUCTURE_URL")
	v.BindEnv("RELANCE_URL")
	v.BindEnv("ANALYZE_URL")
	v.BindEnv("ARRET_URL")
	v.BindEnv("DICTATION_WEBHOOK_URL")
	v.BindEnv("OPENAI_API_KEY")
	v.BindEnv("OPENAI_BASE_URL")
	v.BindEnv("OPENAI_MODEL")
	v.BindEnv("OPENAI_TEMPERATURE")
	v.BindEnv("REQUEST_TIMEOUT_SECONDS")
	v.BindEnv("BODY_LIMIT")
	v.BindEnv("AUDIO_BODY_LIMIT")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	cfg.applyEndpointDefaults()

	return cfg, nil
}

// applyEndpointDefaults derives each pipeline endpoint from PIPELINE_BASE_URL
// unless it was set explicitly.
func (c *Config) applyEndpointDefaults() {
	base := strings.TrimSuffix(c.PipelineBaseURL, "/")
	if c.TranscribeURL == "" {
		c.TranscribeURL = base + "/api/transcribe"
	}
	if c.StructureURL == "" {
		c.StructureURL = base + "/api/structure"
	}
	if c.RelanceURL == "" {
		c.RelanceURL = base + "/api/relance"
	}
	if c.AnalyzeURL == "" {
		c.AnalyzeURL = base + "/api/analyze"
	}
	if c.ArretURL == "" {
		c.ArretURL = base + "/api/arret"
	}
	if c.DictationURL == "" {
		c.DictationURL = base + "/api/dictee"
	}
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. The in-process
// analysis service degrades gracefully without an API key in development,
// but production requires one so diagnostic assessments are real.
func (c *Config) Validate() error {
	if c.Env != "development" && c.Env != "production" && c.Env != "test" {
		return fmt.Errorf("ENV must be \"development\", \"production\", or \"test\", got %q", c.Env)
	}
	if c.IsProduction() && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in production")
	}
	if c.OpenAITemp < 0 || c.OpenAITemp > 2 {
		return fmt.Errorf("OPENAI_TEMPERATURE must be between 0 and 2, got %v", c.OpenAITemp)
	}
	if c.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", c.RequestTimeoutSeconds)
	}
	return nil
}
