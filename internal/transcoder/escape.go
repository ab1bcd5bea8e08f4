package transcoder

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Delimiter opens and closes a block string in notebook code.
const Delimiter = `"""`

// unescapedQuote matches a double quote not preceded by a backslash.
var unescapedQuote = regexp2.MustCompile(`(?<!\\)"`, regexp2.None)

// EscapeQuotes escapes every double quote that is not already escaped.
// Strings without unescaped quotes are returned unchanged.
func EscapeQuotes(s string) string {
	if !strings.Contains(s, `"`) {
		return s
	}
	out, err := unescapedQuote.Replace(s, `\"`, -1, -1)
	if err != nil {
		// Only a match timeout can fail here, and none is configured.
		return s
	}
	return out
}

// Mode selects which delimiter occurrence Normalize splits on.
type Mode int

const (
	// ModeStart splits on the first delimiter (the line opening a block string).
	ModeStart Mode = iota
	// ModeEnd splits on the last delimiter (the line closing a block string).
	ModeEnd
)

// Normalize replaces one block-string delimiter in line with a single double
// quote and escapes the quotes on either side of it.
func Normalize(line string, mode Mode) string {
	var prefix, suffix string
	switch mode {
	case ModeEnd:
		i := strings.LastIndex(line, Delimiter)
		if i < 0 {
			prefix, suffix = "", line
		} else {
			prefix, suffix = line[:i], line[i+len(Delimiter):]
		}
	default:
		prefix, suffix, _ = strings.Cut(line, Delimiter)
	}
	return EscapeQuotes(prefix) + `"` + EscapeQuotes(suffix)
}

// IsTransition reports whether line opens or closes a block string: it holds
// an odd number of delimiters and is not a comment.
func IsTransition(line string) bool {
	n := strings.Count(line, Delimiter)
	if n == 0 || n%2 == 0 {
		return false
	}
	return !strings.HasPrefix(strings.TrimSpace(line), "#")
}
