package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Field defaults
	v.SetDefault("field.image", "")
	v.SetDefault("field.auto_caption", false)
	v.SetDefault("field.location", "")

	// Provider defaults
	v.SetDefault("provider.type", ProviderAuto)
	v.SetDefault("provider.max_requests_per_minute", 10)
	v.SetDefault("provider.timeout_seconds", 120)

	// Hub defaults
	v.SetDefault("hub.endpoint", "https://api.amplience.net/graphql")

	// OpenRouter defaults
	v.SetDefault("openrouter.model", "openai/gpt-4o-mini") // Cost-effective vision model
	v.SetDefault("openrouter.temperature", 0.2)
	v.SetDefault("openrouter.max_tokens", 300)

	// Anthropic defaults
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.max_tokens", 300)

	// Local inference (Ollama) defaults, disabled unless asked for
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434/v1")
	v.SetDefault("local_inference.model", "llava:7b")
	v.SetDefault("local_inference.timeout_seconds", 300)

	v.SetDefault("log.json", false)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("hub.token", "CAPTION_HUB_TOKEN")
	v.BindEnv("hub.organization_id", "CAPTION_HUB_ORGANIZATION_ID")
	v.BindEnv("openrouter.api_key", "CAPTION_OPENROUTER_API_KEY", "OPENROUTER_API_KEY")
	v.BindEnv("anthropic.api_key", "CAPTION_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")

	v.BindEnv("local_inference.enabled", "CAPTION_LOCAL_INFERENCE_ENABLED")
	v.BindEnv("local_inference.base_url", "CAPTION_LOCAL_INFERENCE_BASE_URL")
	v.BindEnv("local_inference.model", "CAPTION_LOCAL_INFERENCE_MODEL")

	// default image host, the last fallback before a link's own defaultHost
	v.BindEnv("field.image_host", "CAPTION_IMAGE_HOST")
}

// GetProviderType returns the provider type, defaulting to auto
func (c *Config) GetProviderType() string {
	if c.Provider.Type == "" {
		return ProviderAuto
	}
	return c.Provider.Type
}

// String returns a short summary of the config with secrets omitted
func (c *Config) String() string {
	return fmt.Sprintf("Config{Field: {Image: %q, Location: %q, AutoCaption: %t}, Provider: %s}",
		c.Field.Image, c.Field.Location, c.Field.AutoCaption, c.GetProviderType())
}
