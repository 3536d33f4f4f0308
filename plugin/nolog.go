package plugin

import (
	"github.com/termsync/termsync/entry"
)

// NologGuard vetoes logging when the nolog token appears as a standalone
// shell token in the command. The command is tokenized with shell quoting
// rules so that a quoted or escaped token is not mistaken for the marker.
type NologGuard struct {
	Token string
}

func (n NologGuard) Name() string { return "nolog" }

func (n NologGuard) Process(e *entry.Entry) Result {
	if n.Token == "" {
		return Declined()
	}

	// An untokenizable command cannot carry the marker as a clean token.
	tokens, err := splitShell(e.Command)
	if err != nil {
		return Declined()
	}

	for _, token := range tokens {
		if token == n.Token {
			return Vetoed()
		}
	}
	return Declined()
}
