package phonetic

const maxMetaphoneLength = 6

// Metaphone returns a simplified Metaphone key of s, at most six characters long.
// It is lossy and only meant for grouping similar sounding names.
func Metaphone(s string) string {
	word := upperLetters(s)
	if len(word) == 0 {
		return ""
	}

	word = skipSilentPrefix(word)

	out := make([]byte, 0, maxMetaphoneLength)
	var prev byte
	for i := 0; i < len(word) && len(out) < maxMetaphoneLength; i++ {
		// doubled letters collapse, except C (as in "accident")
		if i > 0 && word[i] == word[i-1] && word[i] != 'C' {
			continue
		}
		code := metaphoneCode(word, i)
		if code != 0 && code != prev {
			out = append(out, code)
		}
		prev = code
	}

	return string(out)
}

// skipSilentPrefix drops the first letter of KN, GN, PN, AE and WR openings
func skipSilentPrefix(word []byte) []byte {
	if len(word) < 2 {
		return word
	}
	switch string(word[:2]) {
	case "KN", "GN", "PN", "AE", "WR":
		return word[1:]
	}
	if word[0] == 'X' {
		word = append([]byte{'S'}, word[1:]...)
	}
	return word
}

func metaphoneCode(word []byte, pos int) byte {
	char := word[pos]
	next := at(word, pos+1)
	prev := at(word, pos-1)

	switch char {
	case 'A', 'E', 'I', 'O', 'U':
		if pos == 0 {
			return char
		}
		return 0
	case 'B':
		if prev == 'M' && pos == len(word)-1 {
			return 0
		}
		return 'B'
	case 'C':
		if next == 'H' {
			return 'X'
		}
		if next == 'I' || next == 'E' || next == 'Y' {
			return 'S'
		}
		return 'K'
	case 'D':
		if next == 'G' && isFrontVowel(at(word, pos+2)) {
			return 'J'
		}
		return 'T'
	case 'G':
		if next == 'H' && !isVowel(at(word, pos+2)) {
			return 0
		}
		if next == 'N' {
			return 0
		}
		if isFrontVowel(next) {
			return 'J'
		}
		return 'K'
	case 'H':
		if isVowel(next) && !isVarson(prev) {
			return 'H'
		}
		return 0
	case 'K':
		if prev == 'C' {
			return 0
		}
		return 'K'
	case 'P':
		if next == 'H' {
			return 'F'
		}
		return 'P'
	case 'Q':
		return 'K'
	case 'S':
		if next == 'H' {
			return 'X'
		}
		if next == 'I' && (at(word, pos+2) == 'O' || at(word, pos+2) == 'A') {
			return 'X'
		}
		return 'S'
	case 'T':
		if next == 'H' {
			return '0'
		}
		if next == 'I' && (at(word, pos+2) == 'O' || at(word, pos+2) == 'A') {
			return 'X'
		}
		return 'T'
	case 'V':
		return 'F'
	case 'W', 'Y':
		if isVowel(next) {
			return char
		}
		return 0
	case 'X':
		return 'S'
	case 'Z':
		return 'S'
	case 'F', 'J', 'L', 'M', 'N', 'R':
		return char
	default:
		return 0
	}
}

func at(word []byte, i int) byte {
	if i < 0 || i >= len(word) {
		return 0
	}
	return word[i]
}

func isVowel(c byte) bool {
	switch c {
	case 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

func isFrontVowel(c byte) bool {
	return c == 'E' || c == 'I' || c == 'Y'
}

// isVarson reports letters after which H is silent
func isVarson(c byte) bool {
	switch c {
	case 'C', 'S', 'P', 'T', 'G':
		return true
	}
	return false
}
