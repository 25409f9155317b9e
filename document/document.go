// Package document loads and saves the content documents captions are
// generated for. JSON, YAML and TOML files all decode into the same
// JSON-like tree: map[string]any, []any, string, float64, bool and nil.
package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/qntx-caption/errors"
)

// Format is a document encoding
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// DefaultFilePermissions for documents written back to disk
const DefaultFilePermissions = 0644

// backupCount is how many rotated copies WriteFile keeps (.back1 newest)
const backupCount = 3

// ErrUnknownFormat is returned for file extensions with no decoder
var ErrUnknownFormat = errors.New("unknown document format")

// FormatOf picks the format from a path's extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.WithHint(
		errors.Wrapf(ErrUnknownFormat, "%s", path),
		"use a .json, .yaml, .yml or .toml file")
}

// Load reads and decodes the document at path.
func Load(path string) (any, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read document %s", path)
	}
	doc, err := Decode(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "document %s", path)
	}
	return doc, nil
}

// Decode parses data in the given format into a JSON-like tree.
func Decode(data []byte, format Format) (any, error) {
	var raw any
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "invalid JSON")
		}
		return raw, nil
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "invalid YAML")
		}
	case FormatTOML:
		m := map[string]any{}
		if _, err := toml.Decode(string(data), &m); err != nil {
			return nil, errors.Wrap(err, "invalid TOML")
		}
		raw = m
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
	}
	return Normalize(raw), nil
}

// Normalize converts YAML and TOML decoder output into the JSON-like shapes
// pointer evaluation expects. Numbers become float64, dates become RFC 3339
// strings and non-string map keys are formatted.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[fmt.Sprint(k)] = Normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = Normalize(e)
		}
		return out
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	case time.Time:
		return formatTime(t)
	}
	return v
}

// formatTime keeps TOML local dates and times free of a zone offset
func formatTime(t time.Time) string {
	switch t.Location().String() {
	case "date-local":
		return t.Format(time.DateOnly)
	case "time-local":
		return t.Format("15:04:05.999999999")
	case "datetime-local":
		return t.Format("2006-01-02T15:04:05.999999999")
	}
	return t.Format(time.RFC3339Nano)
}

// Encode renders doc in the given format. TOML needs an object at the root.
func Encode(doc any, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode JSON")
		}
		return append(data, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, errors.Wrap(err, "failed to encode YAML")
		}
		if err := enc.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to encode YAML")
		}
		return buf.Bytes(), nil
	case FormatTOML:
		if _, ok := doc.(map[string]any); !ok {
			return nil, errors.Newf("TOML documents need an object at the root, got %T", doc)
		}
		data, err := gotoml.Marshal(doc)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode TOML")
		}
		return data, nil
	}
	return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
}

// Save encodes doc by the path's extension and writes it with WriteFile.
// It returns the bytes written.
func Save(path string, doc any) ([]byte, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := Encode(doc, format)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, data); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteFile rotates backups (.back1 newest, .back3 oldest) and writes data
// to path.
func WriteFile(path string, data []byte) error {
	if err := createBackup(path); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}
	if err := os.WriteFile(path, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write document %s", path)
	}
	return nil
}

// BackupPath names the nth rotated backup of path.
func BackupPath(path string, n int) string {
	return fmt.Sprintf("%s.back%d", path, n)
}

func createBackup(path string) error {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil // nothing to back up
	}
	if err != nil {
		return errors.Wrap(err, "failed to read document for backup")
	}

	if err := os.Remove(BackupPath(path, backupCount)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
	}
	for n := backupCount - 1; n >= 1; n-- {
		from := BackupPath(path, n)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, BackupPath(path, n+1)); err != nil {
			return errors.Wrapf(err, "failed to rotate .back%d", n)
		}
	}

	return os.WriteFile(BackupPath(path, 1), content, DefaultFilePermissions)
}
