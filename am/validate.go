package am

import (
	"slices"

	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/pointer"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Image pointer: optional (the field then works as plain text), but must parse when set
	if c.Field.Image != "" && !pointer.IsValid(c.Field.Image) {
		return errors.WithHint(
			errors.NewInvalidPointerError(c.Field.Image, "field.image is not a valid pointer"),
			"use an absolute pointer like /image or a relative one like 1/image")
	}

	// Location must be absolute: relative image pointers climb from it
	if c.Field.Location != "" {
		p, err := pointer.Parse(c.Field.Location)
		if err != nil {
			return errors.Wrap(err, "field.location")
		}
		if p.Relative {
			return errors.NewInvalidPointerError(c.Field.Location, "field.location must be an absolute pointer")
		}
	}

	if _, err := c.FieldSchema(); err != nil {
		return errors.Wrap(err, "field.schema")
	}
	s := c.Field.Schema
	if s.MaxLength < 0 || s.MinLength < 0 {
		return errors.Newf("field.schema lengths must be >= 0, got min %d max %d", s.MinLength, s.MaxLength)
	}
	if s.MaxLength > 0 && s.MinLength > s.MaxLength {
		return errors.Newf("field.schema.min_length (%d) exceeds max_length (%d)", s.MinLength, s.MaxLength)
	}

	// Provider
	if !slices.Contains(ProviderTypes, c.GetProviderType()) {
		return errors.Newf("provider.type %q is not one of %v", c.Provider.Type, ProviderTypes)
	}
	if c.Provider.MaxRequestsPerMinute < 0 {
		return errors.Newf("provider.max_requests_per_minute must be >= 0, got %d", c.Provider.MaxRequestsPerMinute)
	}
	if c.Provider.TimeoutSeconds < 0 {
		return errors.Newf("provider.timeout_seconds must be >= 0, got %d", c.Provider.TimeoutSeconds)
	}

	switch c.GetProviderType() {
	case ProviderHub:
		if c.Hub.OrganizationID == "" {
			return errors.WithHint(errors.New("hub.organization_id is required for the hub provider"),
				"set CAPTION_HUB_ORGANIZATION_ID")
		}
	case ProviderOpenRouter:
		if c.OpenRouter.APIKey == "" {
			return errors.WithHint(errors.New("openrouter.api_key is required for the openrouter provider"),
				"set OPENROUTER_API_KEY")
		}
	case ProviderAnthropic:
		if c.Anthropic.APIKey == "" {
			return errors.WithHint(errors.New("anthropic.api_key is required for the anthropic provider"),
				"set ANTHROPIC_API_KEY")
		}
	}

	// Validate local inference configuration only when it will be used
	if c.LocalInference.Enabled || c.GetProviderType() == ProviderLocal {
		if c.LocalInference.BaseURL == "" {
			return errors.New("local_inference.base_url cannot be empty when enabled")
		}
		if c.LocalInference.Model == "" {
			return errors.New("local_inference.model cannot be empty when enabled")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return errors.Newf("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	}

	if c.OpenRouter.MaxTokens != nil && *c.OpenRouter.MaxTokens <= 0 {
		return errors.Newf("openrouter.max_tokens must be > 0, got %d (omit for default)", *c.OpenRouter.MaxTokens)
	}
	if c.Anthropic.MaxTokens < 0 {
		return errors.Newf("anthropic.max_tokens must be >= 0, got %d", c.Anthropic.MaxTokens)
	}

	return nil
}
