package blocking

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/phonetic"
)

const (
	defaultPrefixLength   = 3
	defaultNgramSize      = 2
	defaultNgramDelimiter = "|"
)

// transformFunc derives a blocking value from a raw field value. An empty result produces no key.
type transformFunc func(value string, params map[string]any) string

func resolveTransform(t models.BlockingTransform) (transformFunc, error) {
	switch t {
	case models.TransformLowercase:
		return func(v string, _ map[string]any) string {
			return strings.ToLower(strings.TrimSpace(v))
		}, nil
	case models.TransformPrefix:
		return prefix, nil
	case models.TransformSoundex:
		return func(v string, _ map[string]any) string { return phonetic.Soundex(v) }, nil
	case models.TransformMetaphone:
		return func(v string, _ map[string]any) string {
			if code := phonetic.Metaphone(v); code != "" {
				return code
			}
			return phonetic.Soundex(v)
		}, nil
	case models.TransformNgram:
		return ngram, nil
	}

	if fn, ok := normalizers.Get(string(t)); ok {
		return func(v string, _ map[string]any) string { return fn(v) }, nil
	}

	return nil, fmt.Errorf("unknown blocking transform %q", t)
}

// prefix keeps the first N runes of the lowercased value
func prefix(value string, params map[string]any) string {
	n := intParam(params, "length", defaultPrefixLength)
	runes := []rune(strings.ToLower(strings.TrimSpace(value)))
	if n <= 0 || len(runes) == 0 {
		return ""
	}
	if len(runes) < n {
		return string(runes)
	}
	return string(runes[:n])
}

// ngram slides a window of N runes over the lowercased value and joins the grams
func ngram(value string, params map[string]any) string {
	n := intParam(params, "size", defaultNgramSize)
	delimiter := stringParam(params, "delimiter", defaultNgramDelimiter)

	runes := []rune(strings.ToLower(strings.TrimSpace(value)))
	if n <= 0 || len(runes) == 0 {
		return ""
	}
	if len(runes) <= n {
		return string(runes)
	}

	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return strings.Join(grams, delimiter)
}

func intParam(params map[string]any, key string, fallback int) int {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func stringParam(params map[string]any, key string, fallback string) string {
	raw, ok := params[key]
	if !ok {
		return fallback
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fallback
}
