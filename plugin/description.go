package plugin

import (
	"strings"

	"github.com/termsync/termsync/entry"
)

// DescriptionSplitter extracts an inline description from the command: on
// the first occurrence of the token, everything to the left stays the
// command and everything to the right becomes the description.
type DescriptionSplitter struct {
	Token string
}

func (d DescriptionSplitter) Name() string { return "description" }

func (d DescriptionSplitter) Process(e *entry.Entry) Result {
	if d.Token == "" || !strings.Contains(e.Command, d.Token) {
		return Declined()
	}

	command, description, _ := strings.Cut(e.Command, d.Token)
	e.SetCommand(command)
	e.SetDescription(description)
	return Matched(e)
}
