package fallback

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dshills/codeintel/internal/document"
)

// Words returns the distinct identifiers in text that are at least minLen
// runes long, with their occurrence counts. Identifiers start with a letter
// or underscore.
func Words(text string, minLen int) map[string]int {
	out := make(map[string]int)
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !document.IsWordRune(r) {
			i += size
			continue
		}
		start := i
		runes := 0
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !document.IsWordRune(r) {
				break
			}
			i += size
			runes++
		}
		first, _ := utf8.DecodeRuneInString(text[start:])
		if runes >= minLen && (first == '_' || unicode.IsLetter(first)) {
			out[text[start:i]]++
		}
	}
	return out
}

// occurrences returns the byte ranges of word in text at identifier
// boundaries.
func occurrences(text, word string) [][2]int {
	if word == "" {
		return nil
	}
	var out [][2]int
	for off := 0; ; {
		idx := strings.Index(text[off:], word)
		if idx < 0 {
			break
		}
		idx += off
		end := idx + len(word)
		before, _ := utf8.DecodeLastRuneInString(text[:idx])
		after, _ := utf8.DecodeRuneInString(text[end:])
		if (idx == 0 || !document.IsWordRune(before)) && (end == len(text) || !document.IsWordRune(after)) {
			out = append(out, [2]int{idx, end})
		}
		off = end
	}
	return out
}

// position converts a byte offset to a zero-based line and UTF-16 column.
func position(text string, off int) (int, int) {
	line := strings.Count(text[:off], "\n")
	start := strings.LastIndexByte(text[:off], '\n') + 1
	return line, document.UTF16Column(text, line, off-start)
}
