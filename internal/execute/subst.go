package execute

import (
	"context"
	"strings"
)

// Expander resolves $(...) command substitutions.
type Expander struct {
	// Run executes command and returns its standard output.
	Run func(ctx context.Context, command string) (string, error)
}

// Expand replaces every $(...) span of text, left to right, with the output
// of the enclosed command minus one trailing newline. Nested spans are
// resolved by the inner run. Spliced output is not scanned again.
func (e *Expander) Expand(ctx context.Context, text string) (string, error) {
	from := 0
	for {
		start, end := findSubstitution(text, from)
		if start < 0 {
			return text, nil
		}

		out, err := e.Run(ctx, text[start+2:end])
		if err != nil {
			return "", err
		}
		out = strings.TrimSuffix(out, "\n")

		text = text[:start] + out + text[end+1:]
		from = start + len(out)
	}
}

// findSubstitution returns the offsets of the first "$(" at or after from
// and of its matching ")", or -1, -1. Single-quoted text is skipped.
func findSubstitution(s string, from int) (int, int) {
	start := -1
	inSingle := false
	for i := from; i+1 < len(s); i++ {
		switch {
		case s[i] == '\'':
			inSingle = !inSingle
		case !inSingle && s[i] == '\\':
			i++
		case !inSingle && s[i] == '$' && s[i+1] == '(':
			start = i
		}
		if start >= 0 {
			break
		}
	}
	if start < 0 {
		return -1, -1
	}

	depth := 0
	var quote byte
	for i := start + 2; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth == 0 {
				return start, i
			}
			depth--
		}
	}

	return -1, -1
}
