// Package entry defines the log entry model shared by the termsync server,
// the shell hook CLI, and the local archive.
package entry

import (
	"fmt"
	"strings"
	"time"
)

// TimeFormat is the timestamp layout accepted by Ghostwriter's Oplog APIs.
const TimeFormat = "2006-01-02 15:04:05"

// fileTimeFormat keeps archive filenames free of spaces and colons.
const fileTimeFormat = "2006-01-02_150405"

// DefaultComments marks entries produced by termsync.
const DefaultComments = "Logged by termsync"

// Entry is one loggable unit of operator activity: a command executed in a
// terminal, or a manual action recorded out of band. An Entry is created by
// a "start" event, mutated in place by the matching "end" event, by the
// plugin chain, and by the delivery coordinator when a remote id is
// assigned.
type Entry struct {
	// Command is the text of the command executed. Never stored with
	// surrounding whitespace.
	Command string

	// Description is the goal/intent of the command, usually parsed out of
	// the command line after the description token.
	Description string

	// StartTime and EndTime bracket the activity. EndTime is never earlier
	// than StartTime; assignments that would violate that are clamped.
	StartTime time.Time
	EndTime   time.Time

	// GwID is the log entry id assigned by Ghostwriter. nil means the entry
	// has not been created remotely yet. It is set exactly once, on the
	// first successful remote create.
	GwID *int

	// UUID correlates the start and end events of one command. Empty means
	// no correlation.
	UUID string

	SourceHost      string
	DestinationHost string
	Operator        string
	Tool            string
	UserContext     string
	Output          string
	Comments        string

	// OplogID is the Ghostwriter Oplog the entry belongs to. 0 means unset.
	OplogID int
}

// New returns an Entry with the invariants established: command trimmed,
// timestamps defaulted to now (UTC) and ordered, source host detected, and
// the comments marker applied.
func New(command string) *Entry {
	e := &Entry{Command: command}
	e.normalize()
	return e
}

// NewFrom establishes the invariants on a caller-built Entry and returns
// it: timestamps defaulted and ordered, command and description trimmed,
// source host and comments defaulted.
func NewFrom(e *Entry) *Entry {
	e.normalize()
	return e
}

// SetCommand assigns the command, trimming surrounding whitespace.
func (e *Entry) SetCommand(command string) {
	e.Command = strings.TrimSpace(command)
}

// SetDescription assigns the description, trimming surrounding whitespace.
func (e *Entry) SetDescription(description string) {
	e.Description = strings.TrimSpace(description)
}

// SetEndTime assigns the end time, clamping it to StartTime if it would
// otherwise precede it.
func (e *Entry) SetEndTime(t time.Time) {
	if t.Before(e.StartTime) {
		t = e.StartTime
	}
	e.EndTime = t
}

// normalize establishes the Entry invariants. Called from New and after
// every merge.
func (e *Entry) normalize() {
	e.SetCommand(e.Command)
	e.SetDescription(e.Description)

	now := time.Now().UTC()
	if e.StartTime.IsZero() {
		e.StartTime = now
	}
	if e.EndTime.IsZero() {
		e.EndTime = now
	}
	e.SetEndTime(e.EndTime)

	if e.SourceHost == "" {
		e.SourceHost = LocalHost()
	}
	if e.Comments == "" {
		e.Comments = DefaultComments
	}
}

// MergePolicy controls which otherwise-writable fields Merge must leave
// alone. UUID, OplogID, and StartTime are always protected; protecting
// Output and Comments is an operator policy (it prevents a completion event
// from erasing detail entered by hand).
type MergePolicy struct {
	ProtectOutput bool
}

// Merge overwrites the entry's fields with the non-empty fields of in.
// UUID, OplogID, and StartTime are never overwritten: StartTime is
// immutable once set at creation so a completion event's clock skew cannot
// corrupt the recorded start. The EndTime ordering invariant is re-checked
// after the merge. Merging the same input twice yields the same result as
// merging it once.
func (e *Entry) Merge(in *Entry, policy MergePolicy) {
	if in.Command != "" {
		e.SetCommand(in.Command)
	}
	if in.Description != "" {
		e.SetDescription(in.Description)
	}
	if in.GwID != nil {
		e.GwID = in.GwID
	}
	if in.SourceHost != "" {
		e.SourceHost = in.SourceHost
	}
	if in.DestinationHost != "" {
		e.DestinationHost = in.DestinationHost
	}
	if in.Operator != "" {
		e.Operator = in.Operator
	}
	if in.Tool != "" {
		e.Tool = in.Tool
	}
	if in.UserContext != "" {
		e.UserContext = in.UserContext
	}
	if in.Output != "" && !(policy.ProtectOutput && e.Output != "") {
		e.Output = in.Output
	}
	if in.Comments != "" && !(policy.ProtectOutput && e.Comments != "" && e.Comments != DefaultComments) {
		e.Comments = in.Comments
	}
	if !in.EndTime.IsZero() {
		e.SetEndTime(in.EndTime)
	}
	e.normalize()
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	if e.GwID != nil {
		id := *e.GwID
		c.GwID = &id
	}
	return &c
}

// Filename returns the deterministic archive filename for the entry,
// encoding (oplog id, start time, correlation uuid).
func (e *Entry) Filename() string {
	return formatFilename(e.OplogID, e.StartTime.Format(fileTimeFormat), e.UUID)
}

// FilenamePattern returns a glob matching every archived copy of the entry
// identified by (oplogID, uuid), with the start time as a wildcard. Used to
// recover a pending entry when the exact start time is unknown.
func FilenamePattern(oplogID int, uuid string) string {
	return formatFilename(oplogID, "*", uuid)
}

func formatFilename(oplogID int, start, uuid string) string {
	return fmt.Sprintf("%d_%s_%s.json", oplogID, start, uuid)
}
