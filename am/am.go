// Package am loads the caption tool configuration from TOML files and
// CAPTION_* environment variables.
package am

import (
	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/field"
)

// Config represents the complete caption configuration
type Config struct {
	Field          FieldConfig          `mapstructure:"field"`
	Provider       ProviderConfig       `mapstructure:"provider"`
	Hub            HubConfig            `mapstructure:"hub"`
	OpenRouter     OpenRouterConfig     `mapstructure:"openrouter"`
	Anthropic      AnthropicConfig      `mapstructure:"anthropic"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
	Log            LogConfig            `mapstructure:"log"`
}

// FieldConfig describes the captioned field, as a field instance would be
// configured in the content schema
type FieldConfig struct {
	Image       string            `mapstructure:"image"`        // pointer to the image link, absolute or relative to Location
	AutoCaption bool              `mapstructure:"auto_caption"` // caption automatically when an image appears and the field is empty
	ImageHost   string            `mapstructure:"image_host"`   // overrides the link's defaultHost
	Location    string            `mapstructure:"location"`     // the field's own absolute pointer in the document
	Schema      FieldSchemaConfig `mapstructure:"schema"`
}

// FieldSchemaConfig mirrors the string field's JSON schema limits
type FieldSchemaConfig struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	MaxLength   int    `mapstructure:"max_length"` // 0 = unlimited
	MinLength   int    `mapstructure:"min_length"`
	Pattern     string `mapstructure:"pattern"`
}

// ProviderConfig selects and throttles the caption provider
type ProviderConfig struct {
	Type                 string `mapstructure:"type"`                    // hub, openrouter, anthropic, local or auto
	MaxRequestsPerMinute int    `mapstructure:"max_requests_per_minute"` // 0 = unlimited
	TimeoutSeconds       int    `mapstructure:"timeout_seconds"`         // per request
}

// HubConfig configures the hub GraphQL caption service
type HubConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	OrganizationID string `mapstructure:"organization_id"`
	Token          string `mapstructure:"token"`
}

// OpenRouterConfig configures OpenRouter.ai API access
type OpenRouterConfig struct {
	APIKey      string   `mapstructure:"api_key"`
	Model       string   `mapstructure:"model"`       // vision-capable model, e.g. "openai/gpt-4o-mini"
	Prompt      string   `mapstructure:"prompt"`      // "" = built-in alt-text prompt
	Temperature *float64 `mapstructure:"temperature"` // nil = default 0.2
	MaxTokens   *int     `mapstructure:"max_tokens"`  // nil = default 300
}

// AnthropicConfig configures direct Anthropic API access
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// LocalInferenceConfig configures an OpenAI-compatible local vision model
// (Ollama, LocalAI, LM Studio)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BaseURL        string `mapstructure:"base_url"` // e.g. "http://localhost:11434/v1"
	Model          string `mapstructure:"model"`    // e.g. "llava:7b"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// LogConfig configures logging output
type LogConfig struct {
	JSON bool `mapstructure:"json"`
}

// Provider type names accepted in provider.type
const (
	ProviderHub        = "hub"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
	ProviderLocal      = "local"
	ProviderAuto       = "auto"
)

// ProviderTypes lists the valid provider.type values
var ProviderTypes = []string{ProviderHub, ProviderOpenRouter, ProviderAnthropic, ProviderLocal, ProviderAuto}

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// CaptionParams returns the field configuration as the per-field instance
// parameter layer.
func (c *Config) CaptionParams() caption.Params {
	return caption.Params{
		Instance: map[string]any{
			"image":       c.Field.Image,
			"autoCaption": c.Field.AutoCaption,
			"imageHost":   c.Field.ImageHost,
		},
	}
}

// FieldSchema compiles the configured field schema.
func (c *Config) FieldSchema() (field.Schema, error) {
	s := c.Field.Schema
	return field.SchemaFromMap(map[string]any{
		"title":       s.Title,
		"description": s.Description,
		"maxLength":   s.MaxLength,
		"minLength":   s.MinLength,
		"pattern":     s.Pattern,
	})
}
