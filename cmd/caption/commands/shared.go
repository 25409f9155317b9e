// Package commands implements the caption CLI subcommands.
package commands

import (
	"encoding/json"
	"fmt"

	"github.com/teranos/qntx-caption/am"
	"github.com/teranos/qntx-caption/document"
	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/logger"
	"github.com/teranos/qntx-caption/pointer"
)

// ConfigPath overrides the configuration cascade when set (--config)
var ConfigPath string

// InitLogging starts the global logger at the level -v asks for, in JSON
// when log.json is configured.
func InitLogging(verbosity int) error {
	jsonOutput := false
	if cfg, err := loadConfig(); err == nil {
		jsonOutput = cfg.Log.JSON
	}
	if err := logger.Initialize(jsonOutput, logger.VerbosityToLevel(verbosity)); err != nil {
		return errors.Wrap(err, "failed to initialize logger")
	}
	return nil
}

func loadConfig() (*am.Config, error) {
	if ConfigPath != "" {
		return am.LoadFromFile(ConfigPath)
	}
	cfg, err := am.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}

func requireDoc(path string) (any, error) {
	if path == "" {
		return nil, errors.WithHint(errors.New("no document given"), "pass --doc FILE (.json, .yaml or .toml)")
	}
	return document.Load(path)
}

// absolute resolves ptr against at when ptr is relative
func absolute(ptr, at string) (string, error) {
	p, err := pointer.Parse(ptr)
	if err != nil {
		return "", err
	}
	if !p.Relative {
		return ptr, nil
	}
	if at == "" {
		return "", errors.WithHint(
			errors.NewInvalidPointerError(ptr, "relative pointer needs a location"),
			"pass --at with the absolute pointer the relative one starts from")
	}
	return pointer.Resolve(ptr, at)
}

// textAt reads the string at location, "" when absent or not a string
func textAt(doc any, location string) string {
	if location == "" {
		return ""
	}
	v, ok, err := pointer.Evaluate(location, doc)
	if err != nil || !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func formatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// parseValue reads a command-line value as JSON, falling back to a plain
// string so `set /alt "A red bicycle"` works without extra quoting.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
