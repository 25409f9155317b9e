// Package provider turns configuration into a caption.Requester.
package provider

import (
	"time"

	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/ai/anthropic"
	"github.com/teranos/qntx-caption/ai/openrouter"
	"github.com/teranos/qntx-caption/am"
	"github.com/teranos/qntx-caption/caption"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/hub"
	"github.com/teranos/qntx-caption/logger"
)

// Provider represents a caption provider type
type Provider string

const (
	// ProviderHub uses the content hub's server-side caption generation
	ProviderHub Provider = am.ProviderHub
	// ProviderLocal uses an OpenAI-compatible local vision model (Ollama, LocalAI)
	ProviderLocal Provider = am.ProviderLocal
	// ProviderOpenRouter uses OpenRouter.ai API
	ProviderOpenRouter Provider = am.ProviderOpenRouter
	// ProviderAnthropic uses direct Anthropic API
	ProviderAnthropic Provider = am.ProviderAnthropic
	// ProviderAuto automatically selects based on configuration
	ProviderAuto Provider = am.ProviderAuto
)

// ParseProvider converts a string to a Provider type
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "hub", "amplience":
		return ProviderHub, nil
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "auto", "":
		return ProviderAuto, nil
	default:
		return "", errors.WithHint(
			errors.Newf("unknown provider: %s", s),
			"valid providers: hub, local, openrouter, anthropic, auto")
	}
}

// Select resolves ProviderAuto to a concrete provider.
// Priority: LocalInference (if enabled) → Hub (if organization set) →
// Anthropic (if API key set) → OpenRouter
func Select(cfg *am.Config, p Provider) Provider {
	if p != ProviderAuto {
		return p
	}
	switch {
	case cfg.LocalInference.Enabled:
		return ProviderLocal
	case cfg.Hub.OrganizationID != "":
		return ProviderHub
	case cfg.Anthropic.APIKey != "":
		return ProviderAnthropic
	default:
		return ProviderOpenRouter
	}
}

// configured is implemented by every requester the factory builds
type configured interface {
	caption.Requester
	IsConfigured() bool
}

// NewRequester builds the requester for p (resolving auto first), wrapped
// in the configured rate limit. It fails with ErrNotConfigured when the
// chosen provider lacks credentials.
func NewRequester(cfg *am.Config, p Provider, log *zap.SugaredLogger) (caption.Requester, Provider, error) {
	if log == nil {
		log = logger.Logger
	}
	p = Select(cfg, p)

	var client configured
	var hint string
	switch p {
	case ProviderHub:
		client = newHubClient(cfg, log)
		hint = "set hub.organization_id or CAPTION_HUB_ORGANIZATION_ID"
	case ProviderLocal:
		client = newLocalClient(cfg, log)
		hint = "set local_inference.base_url and local_inference.model"
	case ProviderAnthropic:
		client = newAnthropicClient(cfg, log)
		hint = "set anthropic.api_key or ANTHROPIC_API_KEY"
	case ProviderOpenRouter:
		client = newOpenRouterClient(cfg, log)
		hint = "set openrouter.api_key or OPENROUTER_API_KEY, or choose another provider"
	default:
		return nil, p, errors.Newf("unknown provider: %s", p)
	}

	if !client.IsConfigured() {
		return nil, p, errors.WithHint(
			errors.Wrapf(errors.ErrNotConfigured, "%s provider", p), hint)
	}

	log.Debugw("Caption provider selected",
		logger.FieldProvider, string(p),
		"max_requests_per_minute", cfg.Provider.MaxRequestsPerMinute)
	return caption.RateLimited(client, cfg.Provider.MaxRequestsPerMinute), p, nil
}

func requestTimeout(cfg *am.Config) time.Duration {
	return time.Duration(cfg.Provider.TimeoutSeconds) * time.Second
}

func newHubClient(cfg *am.Config, log *zap.SugaredLogger) *hub.Client {
	return hub.NewClient(hub.Config{
		Endpoint:       cfg.Hub.Endpoint,
		OrganizationID: cfg.Hub.OrganizationID,
		Token:          cfg.Hub.Token,
		Timeout:        requestTimeout(cfg),
		Logger:         log.Named("hub"),
	})
}

// newLocalClient points the OpenAI-compatible client at the local server
func newLocalClient(cfg *am.Config, log *zap.SugaredLogger) *openrouter.Client {
	if cfg.LocalInference.BaseURL == "" || cfg.LocalInference.Model == "" {
		// an unconfigured local client still needs a model to report
		return openrouter.NewClient(openrouter.Config{Logger: log.Named("local")})
	}
	return openrouter.NewClient(openrouter.Config{
		BaseURL:     cfg.LocalInference.BaseURL,
		Model:       cfg.LocalInference.Model,
		Prompt:      cfg.OpenRouter.Prompt,
		Temperature: cfg.OpenRouter.Temperature,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		Timeout:     time.Duration(cfg.LocalInference.TimeoutSeconds) * time.Second,
		Local:       true,
		Logger:      log.Named("local"),
	})
}

func newAnthropicClient(cfg *am.Config, log *zap.SugaredLogger) *anthropic.Client {
	return anthropic.NewClient(anthropic.Config{
		APIKey:      cfg.Anthropic.APIKey,
		Model:       cfg.Anthropic.Model,
		Prompt:      cfg.OpenRouter.Prompt,
		Temperature: cfg.Anthropic.Temperature,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Timeout:     requestTimeout(cfg),
		Logger:      log.Named("anthropic"),
	})
}

func newOpenRouterClient(cfg *am.Config, log *zap.SugaredLogger) *openrouter.Client {
	return openrouter.NewClient(openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		Prompt:      cfg.OpenRouter.Prompt,
		Temperature: cfg.OpenRouter.Temperature,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		Timeout:     requestTimeout(cfg),
		Logger:      log.Named("openrouter"),
	})
}

// GetAvailableProviders returns the providers that have what they need to run
func GetAvailableProviders(cfg *am.Config) []Provider {
	var providers []Provider

	if cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != "" && cfg.LocalInference.Model != "" {
		providers = append(providers, ProviderLocal)
	}
	if cfg.Hub.OrganizationID != "" {
		providers = append(providers, ProviderHub)
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, ProviderAnthropic)
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderOpenRouter)
	}

	return providers
}
