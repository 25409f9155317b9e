package am

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"github.com/teranos/qntx-caption/internal/util"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.GetProviderType() != ProviderAuto {
		t.Errorf("expected default provider %q, got %q", ProviderAuto, cfg.GetProviderType())
	}
	if cfg.Provider.MaxRequestsPerMinute != 10 {
		t.Errorf("expected default rate 10/min, got %d", cfg.Provider.MaxRequestsPerMinute)
	}
	if cfg.OpenRouter.Temperature == nil || *cfg.OpenRouter.Temperature != 0.2 {
		t.Errorf("expected default openrouter temperature 0.2, got %v", cfg.OpenRouter.Temperature)
	}
	if cfg.LocalInference.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("expected default local inference URL, got %q", cfg.LocalInference.BaseURL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	tests := []struct {
		key      string
		expected interface{}
	}{
		{"field.auto_caption", false},
		{"provider.type", "auto"},
		{"provider.timeout_seconds", 120},
		{"hub.endpoint", "https://api.amplience.net/graphql"},
		{"openrouter.model", "openai/gpt-4o-mini"},
		{"anthropic.max_tokens", 300},
		{"local_inference.enabled", false},
		{"local_inference.model", "llava:7b"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := v.Get(tt.key)
			if got != tt.expected {
				t.Errorf("default %s = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "empty config is valid", config: Config{}},
		{name: "absolute image pointer", config: Config{Field: FieldConfig{Image: "/image"}}},
		{name: "relative image pointer", config: Config{Field: FieldConfig{Image: "1/image", Location: "/slides/0/caption"}}},
		{name: "invalid image pointer", config: Config{Field: FieldConfig{Image: "image"}}, wantErr: true},
		{name: "relative location", config: Config{Field: FieldConfig{Location: "0/caption"}}, wantErr: true},
		{name: "bad location", config: Config{Field: FieldConfig{Location: "caption"}}, wantErr: true},
		{name: "bad schema pattern", config: Config{Field: FieldConfig{Schema: FieldSchemaConfig{Pattern: "("}}}, wantErr: true},
		{name: "min exceeds max", config: Config{Field: FieldConfig{Schema: FieldSchemaConfig{MinLength: 10, MaxLength: 5}}}, wantErr: true},
		{name: "negative max length", config: Config{Field: FieldConfig{Schema: FieldSchemaConfig{MaxLength: -1}}}, wantErr: true},
		{name: "unknown provider", config: Config{Provider: ProviderConfig{Type: "gpt"}}, wantErr: true},
		{name: "zero rate limit is valid (unlimited)", config: Config{Provider: ProviderConfig{MaxRequestsPerMinute: 0}}},
		{name: "negative rate limit", config: Config{Provider: ProviderConfig{MaxRequestsPerMinute: -1}}, wantErr: true},
		{name: "negative timeout", config: Config{Provider: ProviderConfig{TimeoutSeconds: -1}}, wantErr: true},
		{name: "hub without organization", config: Config{Provider: ProviderConfig{Type: ProviderHub}}, wantErr: true},
		{
			name:   "hub with organization",
			config: Config{Provider: ProviderConfig{Type: ProviderHub}, Hub: HubConfig{OrganizationID: "org"}},
		},
		{name: "openrouter without key", config: Config{Provider: ProviderConfig{Type: ProviderOpenRouter}}, wantErr: true},
		{name: "anthropic without key", config: Config{Provider: ProviderConfig{Type: ProviderAnthropic}}, wantErr: true},
		{name: "local without model", config: Config{Provider: ProviderConfig{Type: ProviderLocal}}, wantErr: true},
		{
			name: "local complete",
			config: Config{
				Provider:       ProviderConfig{Type: ProviderLocal},
				LocalInference: LocalInferenceConfig{BaseURL: "http://localhost:11434/v1", Model: "llava:7b", TimeoutSeconds: 60},
			},
		},
		{name: "zero openrouter max tokens", config: Config{OpenRouter: OpenRouterConfig{MaxTokens: util.Ptr(0)}}, wantErr: true},
		{name: "openrouter max tokens set", config: Config{OpenRouter: OpenRouterConfig{MaxTokens: util.Ptr(300)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCaptionParams(t *testing.T) {
	cfg := Config{Field: FieldConfig{Image: "/image", AutoCaption: true, ImageHost: "images.example.com"}}

	p := cfg.CaptionParams()
	if p.ImagePointer() != "/image" {
		t.Errorf("ImagePointer() = %q", p.ImagePointer())
	}
	if !p.AutoCaption() {
		t.Error("expected auto caption")
	}
	if p.ImageHost() != "images.example.com" {
		t.Errorf("ImageHost() = %q", p.ImageHost())
	}

	// explicit installation values override the config layer
	p.Installation = map[string]any{"image": "/hero"}
	if p.ImagePointer() != "/hero" {
		t.Errorf("ImagePointer() = %q, want installation value", p.ImagePointer())
	}
}

func TestFieldSchema(t *testing.T) {
	cfg := Config{Field: FieldConfig{Schema: FieldSchemaConfig{Title: "Alt text", MaxLength: 5}}}

	s, err := cfg.FieldSchema()
	if err != nil {
		t.Fatalf("FieldSchema() failed: %v", err)
	}
	if s.MaxLength != 5 || s.Title != "Alt text" {
		t.Errorf("unexpected schema %+v", s)
	}
	if len(s.Validate("too long for five")) == 0 {
		t.Error("expected a max length violation")
	}
}

func TestFindProjectConfig(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("found in parent", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test1", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)
		os.WriteFile(filepath.Join(tmpDir, "test1", ConfigFileName), []byte(""), DefaultFilePermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		result := findProjectConfig()
		if result == "" {
			t.Fatal("expected to find config file")
		}
		if !filepath.IsAbs(result) {
			t.Error("expected absolute path")
		}
		if filepath.Base(result) != ConfigFileName {
			t.Errorf("expected %s, got %s", ConfigFileName, filepath.Base(result))
		}
	})

	t.Run("no config found", func(t *testing.T) {
		subDir := filepath.Join(tmpDir, "test2", "subdir")
		os.MkdirAll(subDir, DefaultDirPermissions)

		oldWd, _ := os.Getwd()
		defer os.Chdir(oldWd)
		os.Chdir(subDir)

		// a caption.toml above the temp dir would be found legitimately
		if result := findProjectConfig(); strings.HasPrefix(result, tmpDir) {
			t.Errorf("unexpected config inside temp dir: %s", result)
		}
	})
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	content := `
[field]
image = "1/image"
location = "/slides/0/caption"
auto_caption = true

[field.schema]
max_length = 120

[provider]
type = "hub"

[hub]
organization_id = "org12345"
`
	if err := os.WriteFile(path, []byte(content), DefaultFilePermissions); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if cfg.Field.Image != "1/image" || !cfg.Field.AutoCaption || cfg.Field.Schema.MaxLength != 120 {
		t.Errorf("field section not loaded: %+v", cfg.Field)
	}
	if cfg.Hub.OrganizationID != "org12345" {
		t.Errorf("hub.organization_id = %q", cfg.Hub.OrganizationID)
	}
	// untouched sections keep defaults
	if cfg.Hub.Endpoint != "https://api.amplience.net/graphql" {
		t.Errorf("hub.endpoint = %q", cfg.Hub.Endpoint)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("CAPTION_FIELD_IMAGE", "/from-env")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")

	v := newViper()
	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}
	if cfg.Field.Image != "/from-env" {
		t.Errorf("field.image = %q, want env value", cfg.Field.Image)
	}
	if cfg.OpenRouter.APIKey != "sk-or-test" {
		t.Errorf("openrouter.api_key = %q, want env value", cfg.OpenRouter.APIKey)
	}
}
