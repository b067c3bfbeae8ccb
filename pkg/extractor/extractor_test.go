package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractStrings(t *testing.T) {
	doc := map[string]any{
		"name": "Ada Lovelace",
		"emails": []any{
			map[string]any{"email": "ada@example.com"},
			map[string]any{"email": "countess@example.com"},
			map[string]any{"label": "no email"},
		},
		"domains": []any{"acme.com", "acme.io"},
		"metadata": map[string]any{
			"city": "London",
			"age":  float64(36),
			"address": map[string]any{
				"zip": "N1",
			},
		},
		"tags": []string{"a", "b"},
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{"top level", "name", []string{"Ada Lovelace"}},
		{"array of objects", "emails.email", []string{"ada@example.com", "countess@example.com"}},
		{"wildcard", "emails[*].email", []string{"ada@example.com", "countess@example.com"}},
		{"index", "emails[1].email", []string{"countess@example.com"}},
		{"index out of range", "emails[5].email", []string{}},
		{"array of strings flattened", "domains", []string{"acme.com", "acme.io"}},
		{"typed string slice", "tags", []string{"a", "b"}},
		{"nested", "metadata.address.zip", []string{"N1"}},
		{"number", "metadata.age", []string{"36"}},
		{"missing", "phones.number", []string{}},
		{"missing nested", "metadata.country.code", []string{}},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, e.ExtractStrings(doc, tt.path))
		})
	}
}

func TestExtractAll_EmptyPathReturnsDocument(t *testing.T) {
	e := New()
	assert.Equal(t, []any{"x"}, e.ExtractAll("x", ""))
	assert.Nil(t, e.ExtractAll(nil, "name"))
}

func TestParsePath(t *testing.T) {
	parts := parsePath("users[*].emails[0].email")
	assert.Len(t, parts, 3)
	assert.Equal(t, "users", parts[0].key)
	assert.True(t, parts[0].isWildcard)
	assert.Equal(t, "emails", parts[1].key)
	assert.True(t, parts[1].isArray)
	assert.Equal(t, 0, parts[1].arrayIndex)
	assert.Equal(t, "email", parts[2].key)
}
