package plugin

import (
	"github.com/termsync/termsync/entry"
)

// ManualUpdate forwards any entry that already carries a Ghostwriter id.
// Out-of-band updates made by an operator must never be dropped just
// because the command matches no keyword or tool pattern.
type ManualUpdate struct{}

func (ManualUpdate) Name() string { return "manual_update" }

func (ManualUpdate) Process(e *entry.Entry) Result {
	if e.GwID == nil {
		return Declined()
	}
	return Matched(e)
}
