package engine

import (
	"time"

	"github.com/termsync/termsync/entry"
)

// Event is one lifecycle notification about a command: a start, a
// completion, or a manual out-of-band update. Both transport bindings (the
// HTTP API and the hook CLI) reduce to this form. Zero values mean "not
// supplied"; a GwID identifies a manual update of an existing remote entry.
type Event struct {
	Command         string
	Description     string
	Comments        string
	Operator        string
	Output          string
	SourceHost      string
	DestinationHost string
	UserContext     string
	GwID            *int
	UUID            string
	OplogID         int
	StartTime       time.Time
	EndTime         time.Time
}

// Defaults are the configured values applied to fields an event leaves
// empty.
type Defaults struct {
	Operator        string
	OplogID         int
	SourceHost      string
	DestinationHost string
}

// newEntry builds a fresh entry from the event, filling gaps from the
// defaults and establishing the model invariants.
func newEntry(ev Event, d Defaults) *entry.Entry {
	e := &entry.Entry{
		Command:         ev.Command,
		Description:     ev.Description,
		Comments:        ev.Comments,
		Operator:        ev.Operator,
		Output:          ev.Output,
		SourceHost:      ev.SourceHost,
		DestinationHost: ev.DestinationHost,
		UserContext:     ev.UserContext,
		GwID:            ev.GwID,
		UUID:            ev.UUID,
		OplogID:         ev.OplogID,
		StartTime:       ev.StartTime,
		EndTime:         ev.EndTime,
	}
	if e.Operator == "" {
		e.Operator = d.Operator
	}
	if e.OplogID == 0 {
		e.OplogID = d.OplogID
	}
	if e.SourceHost == "" {
		e.SourceHost = d.SourceHost
	}
	if e.DestinationHost == "" {
		e.DestinationHost = d.DestinationHost
	}
	return entry.NewFrom(e)
}

// Entry returns only what the event actually carried, unnormalized. Merging
// it into a tracked entry cannot clobber recorded values with defaults, and
// a manual update built from it sends just the operator-supplied fields.
func (ev Event) Entry() *entry.Entry {
	e := mergeSource(ev)
	e.UUID = ev.UUID
	e.OplogID = ev.OplogID
	return e
}

// NewEntry builds a fresh normalized entry from the event, filling gaps
// from the defaults.
func (ev Event) NewEntry(d Defaults) *entry.Entry {
	return newEntry(ev, d)
}

// mergeSource builds the raw merge input for an existing entry: only what
// the event actually carried, no defaults, so empty fields do not clobber
// recorded values.
func mergeSource(ev Event) *entry.Entry {
	return &entry.Entry{
		Command:         ev.Command,
		Description:     ev.Description,
		Comments:        ev.Comments,
		Operator:        ev.Operator,
		Output:          ev.Output,
		SourceHost:      ev.SourceHost,
		DestinationHost: ev.DestinationHost,
		UserContext:     ev.UserContext,
		GwID:            ev.GwID,
		StartTime:       ev.StartTime,
		EndTime:         ev.EndTime,
	}
}
