// Package normalizers provides field normalization functions for matching and blocking
package normalizers

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

var (
	mu       sync.RWMutex
	registry = make(map[string]Normalizer)
)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nphone", NormalizePhone)
	Register("nemail", NormalizeEmail)
	Register("nname", NormalizeName)
	Register("nwebsite", NormalizeWebsite)
	Register("ndomain", NormalizeDomain)
	Register("remove_whitespace", RemoveWhitespace)
	Register("remove_punctuation", RemovePunctuation)
	Register("digits_only", DigitsOnly)
	Register("alphanumeric", Alphanumeric)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	mu.RLock()
	defer mu.RUnlock()
	fn, ok := registry[name]
	return fn, ok
}

// Names lists the registered normalizers in sorted order
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := Get(normalizer)
	if !ok {
		return value
	}
	return fn(value)
}

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// NormalizePhone removes all non-digit characters from a phone number
func NormalizePhone(s string) string {
	return DigitsOnly(s)
}

// NormalizeEmail normalizes an email address (lowercase, trim)
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeWebsite strips the protocol, a leading "www." and a trailing slash, then lowercases.
// "https://www.Acme.com/" and "acme.com" normalize to the same value.
func NormalizeWebsite(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, "/")
}

// NormalizeDomain lowercases a bare domain and drops a leading "www." and trailing dot
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "www.")
	return strings.TrimSuffix(s, ".")
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	return keep(s, func(r rune) bool { return !unicode.IsSpace(r) })
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	return keep(s, func(r rune) bool { return !unicode.IsPunct(r) })
}

// NormalizeName normalizes a person's name for matching
// - Lowercase
// - Remove common suffixes (Jr., Sr., III, etc.)
// - Remove punctuation and collapse whitespace
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	suffixes := []string{" jr.", " jr", " sr.", " sr", " iii", " ii", " iv", " phd", " md", " dds"}
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}

	var result strings.Builder
	prevSpace := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace {
				result.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimSpace(result.String())
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	return keep(s, unicode.IsDigit)
}

// Alphanumeric keeps only alphanumeric characters
func Alphanumeric(s string) string {
	return keep(s, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) })
}

func keep(s string, fn func(rune) bool) string {
	var result strings.Builder
	for _, r := range s {
		if fn(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}
