// Package phonetic provides phonetic encodings used for blocking and fuzzy matching
package phonetic

import (
	"strings"
	"unicode"
)

// Soundex returns the four character American Soundex code of s.
// Non-letters are ignored; a string without letters encodes to "".
func Soundex(s string) string {
	letters := upperLetters(s)
	if len(letters) == 0 {
		return ""
	}

	var result strings.Builder
	result.WriteByte(letters[0])
	prevCode := soundexCode(letters[0])

	for i := 1; i < len(letters) && result.Len() < 4; i++ {
		code := soundexCode(letters[i])
		// vowels and H/W/Y carry code 0 and reset the previous code
		if code != 0 && code != prevCode {
			result.WriteByte(code)
		}
		prevCode = code
	}

	for result.Len() < 4 {
		result.WriteByte('0')
	}

	return result.String()
}

// soundexCode returns the Soundex digit for an uppercase ASCII letter, or 0
func soundexCode(char byte) byte {
	switch char {
	case 'B', 'F', 'P', 'V':
		return '1'
	case 'C', 'G', 'J', 'K', 'Q', 'S', 'X', 'Z':
		return '2'
	case 'D', 'T':
		return '3'
	case 'L':
		return '4'
	case 'M', 'N':
		return '5'
	case 'R':
		return '6'
	default:
		return 0
	}
}

// upperLetters uppercases s and keeps only ASCII letters
func upperLetters(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range strings.ToUpper(s) {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			out = append(out, byte(r))
		}
	}
	return out
}
