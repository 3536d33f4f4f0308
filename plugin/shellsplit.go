package plugin

import (
	"fmt"
	"strings"
)

// splitShell tokenizes a command line the way a POSIX shell would: tokens
// are separated by unquoted whitespace, single quotes preserve everything
// literally, double quotes preserve everything except backslash escapes,
// and an unquoted backslash escapes the next character. This matters for
// the nolog guard: the marker must be a whole token, not a substring of
// one.
func splitShell(command string) ([]string, error) {
	var (
		tokens  []string
		current strings.Builder
		inToken bool
		quote   rune
		escaped bool
	)

	for _, r := range command {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case quote == '\'' && r != '\'':
			current.WriteRune(r)
		case r == '\\' && quote != '\'':
			escaped = true
			inToken = true
		case quote != 0 && r == quote:
			quote = 0
		case quote != 0:
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if escaped {
		return nil, fmt.Errorf("trailing backslash in %q", command)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q", quote, command)
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, nil
}
