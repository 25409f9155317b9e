package am

import (
	"os"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/qntx-caption/caption.toml
	SourceUser        ConfigSource = "user"        // ~/.qntx/caption.toml
	SourceProject     ConfigSource = "project"     // nearest caption.toml upwards
	SourceEnvironment ConfigSource = "environment" // CAPTION_* env vars
)

// SourceInfo tracks where a configuration value originated
type SourceInfo struct {
	Source ConfigSource
	Path   string // File path or environment variable name
}

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key" yaml:"key" toml:"key"`
	Value      interface{}  `json:"value" yaml:"value" toml:"value"`
	Source     ConfigSource `json:"source" yaml:"source" toml:"source"`
	SourcePath string       `json:"source_path,omitempty" yaml:"source_path,omitempty" toml:"source_path,omitempty"`
}

// sensitiveKeys are masked in introspection output
var sensitiveKeys = map[string]bool{
	"hub.token":          true,
	"openrouter.api_key": true,
	"anthropic.api_key":  true,
}

// Introspect lists every effective setting of v with the source that set it.
// Secrets are masked.
func Introspect(v *viper.Viper) []SettingInfo {
	var settings []SettingInfo
	flattenSettingsWithSources(v.AllSettings(), "", &settings, ConfigSources)
	for i := range settings {
		if s, ok := settings[i].Value.(string); ok && s != "" && sensitiveKeys[settings[i].Key] {
			settings[i].Value = maskSecret(s)
		}
	}
	return settings
}

// GetConfigIntrospection introspects the process-wide configuration
func GetConfigIntrospection() []SettingInfo {
	return Introspect(GetViper())
}

// flattenSettingsWithSources flattens settings and assigns sources from sourceMap
func flattenSettingsWithSources(settings map[string]interface{}, prefix string, out *[]SettingInfo, sourceMap map[string]SourceInfo) {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := settings[key]
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		if nestedMap, ok := value.(map[string]interface{}); ok {
			flattenSettingsWithSources(nestedMap, fullKey, out, sourceMap)
			continue
		}

		sourceInfo := SourceInfo{Source: SourceDefault, Path: "built-in default"}
		if si, ok := sourceMap[fullKey]; ok {
			sourceInfo = si
		}

		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(fullKey, ".", "_"))
		if envValue := os.Getenv(envKey); envValue != "" {
			sourceInfo = SourceInfo{Source: SourceEnvironment, Path: envKey}
		}

		*out = append(*out, SettingInfo{
			Key:        fullKey,
			Value:      value,
			Source:     sourceInfo.Source,
			SourcePath: sourceInfo.Path,
		})
	}
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "…" + s[len(s)-4:]
}
