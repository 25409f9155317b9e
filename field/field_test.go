package field

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchemaFromMap(t *testing.T) {
	s, err := SchemaFromMap(map[string]any{
		"title":       "Alt text",
		"description": "Describe the image",
		"maxLength":   120.0,
		"minLength":   int64(3),
		"pattern":     "^[^<>]*$",
	})
	require.NoError(t, err)

	assert.Equal(t, "Alt text", s.Label())
	assert.Equal(t, "Describe the image", s.Description)
	assert.Equal(t, 120, s.MaxLength)
	assert.Equal(t, 3, s.MinLength)
	require.NotNil(t, s.Pattern)
}

func TestSchemaFromMap_BadPattern(t *testing.T) {
	_, err := SchemaFromMap(map[string]any{"pattern": "(?<=x)y"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pattern")
}

func TestValidate(t *testing.T) {
	s := Schema{MaxLength: 5, MinLength: 2, Pattern: regexp.MustCompile(`^[a-z]+$`)}

	tests := []struct {
		value string
		want  []ViolationKind
	}{
		{"", nil},
		{"abc", nil},
		{"a", []ViolationKind{ViolationMinLength}},
		{"abcdef", []ViolationKind{ViolationMaxLength}},
		{"ABC", []ViolationKind{ViolationPattern}},
		{"ABCDEFG", []ViolationKind{ViolationMaxLength, ViolationPattern}},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			var got []ViolationKind
			for _, v := range s.Validate(tt.value) {
				got = append(got, v.Kind)
				assert.NotEmpty(t, v.Message)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate_CountsRunes(t *testing.T) {
	s := Schema{MaxLength: 3}
	assert.Empty(t, s.Validate("äöü"))
	assert.Equal(t, "3 / 3", s.Counter("äöü"))
}

func TestCounter(t *testing.T) {
	assert.Equal(t, "", Schema{}.Counter("anything"))
	assert.Equal(t, "0 / 10", Schema{MaxLength: 10}.Counter(""))
}
