package engine

import "github.com/termsync/termsync/entry"

// Status classifies what happened to one event.
type Status int

const (
	// StatusFiltered means the command matched no trigger keyword. Not an
	// error; no record was produced.
	StatusFiltered Status = iota

	// StatusVetoed means a plugin explicitly forbade logging. Distinct from
	// filtered: a record may already have been tentatively built.
	StatusVetoed

	// StatusNotMatched means no plugin claimed the entry and the flow
	// requires a plugin match (hook CLI). No record was produced.
	StatusNotMatched

	// StatusCreated means the entry was created in Ghostwriter.
	StatusCreated

	// StatusUpdated means the existing Ghostwriter entry was updated.
	StatusUpdated

	// StatusSavedLocally means the entry went only to the local archive,
	// either because no remote is configured or because delivery failed.
	StatusSavedLocally

	// StatusFailed means neither the remote nor the local archive took the
	// entry. There is no further fallback; the event is lost.
	StatusFailed
)

// Logged reports whether a durable record was produced anywhere.
func (s Status) Logged() bool {
	return s == StatusCreated || s == StatusUpdated || s == StatusSavedLocally
}

// Outcome is the result of processing one event: what happened, the final
// entry (nil when no record was produced), a human-readable status line,
// and the remote error when delivery fell back to local storage.
type Outcome struct {
	Status  Status
	Entry   *entry.Entry
	Message string

	// RemoteErr is the delivery error when a configured remote could not be
	// reached or rejected the entry. The entry was still archived locally;
	// the error is carried so the transport binding can surface a warning.
	RemoteErr error

	// ArchiveErr reports the last-line-of-defense failure: the local
	// archive write failed and the entry may be lost.
	ArchiveErr error
}
