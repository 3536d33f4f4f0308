package entry

import (
	"encoding/json"
	"fmt"
	"time"
)

// entryJSON is the wire form used by the local JSON archive. Field names
// are the internal ones; empty optional fields are omitted so a file holds
// only what was actually recorded.
type entryJSON struct {
	Command         string `json:"command"`
	Description     string `json:"description,omitempty"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	GwID            *int   `json:"gw_id,omitempty"`
	UUID            string `json:"uuid,omitempty"`
	SourceHost      string `json:"source_host,omitempty"`
	DestinationHost string `json:"destination_host,omitempty"`
	Operator        string `json:"operator,omitempty"`
	Tool            string `json:"tool,omitempty"`
	UserContext     string `json:"user_context,omitempty"`
	Output          string `json:"output,omitempty"`
	Comments        string `json:"comments,omitempty"`
	OplogID         int    `json:"oplog_id"`
}

// MarshalJSON serializes the entry for the local archive.
func (e *Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Command:         e.Command,
		Description:     e.Description,
		StartTime:       e.StartTime.Format(TimeFormat),
		EndTime:         e.EndTime.Format(TimeFormat),
		GwID:            e.GwID,
		UUID:            e.UUID,
		SourceHost:      e.SourceHost,
		DestinationHost: e.DestinationHost,
		Operator:        e.Operator,
		Tool:            e.Tool,
		UserContext:     e.UserContext,
		Output:          e.Output,
		Comments:        e.Comments,
		OplogID:         e.OplogID,
	})
}

// UnmarshalJSON restores an entry from its local archive form.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	start, err := parseTime(w.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start_time %q: %w", w.StartTime, err)
	}
	end, err := parseTime(w.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end_time %q: %w", w.EndTime, err)
	}

	*e = Entry{
		Command:         w.Command,
		Description:     w.Description,
		StartTime:       start,
		EndTime:         end,
		GwID:            w.GwID,
		UUID:            w.UUID,
		SourceHost:      w.SourceHost,
		DestinationHost: w.DestinationHost,
		Operator:        w.Operator,
		Tool:            w.Tool,
		UserContext:     w.UserContext,
		Output:          w.Output,
		Comments:        w.Comments,
		OplogID:         w.OplogID,
	}
	e.normalize()
	return nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(TimeFormat, s)
}

// RestColumns is the field order expected by Ghostwriter's Oplog CSV import
// and REST API.
var RestColumns = []string{
	"oplog_id",
	"start_date",
	"end_date",
	"source_ip",
	"dest_ip",
	"tool",
	"user_context",
	"command",
	"description",
	"output",
	"comments",
	"operator_name",
}

// RestFields returns the entry's non-empty fields keyed by the names used
// by Ghostwriter's Oplog REST API and CSV import. GwID and UUID are local
// bookkeeping and are never part of the payload. Zero timestamps are
// omitted: a manual update supplying no dates must not overwrite the
// remote entry's recorded ones.
func (e *Entry) RestFields() map[string]any {
	fields := map[string]any{
		"oplog_id": e.OplogID,
		"command":  e.Command,
	}
	if !e.StartTime.IsZero() {
		fields["start_date"] = e.StartTime.Format(TimeFormat)
	}
	if !e.EndTime.IsZero() {
		fields["end_date"] = e.EndTime.Format(TimeFormat)
	}
	putNonEmpty(fields, "source_ip", e.SourceHost)
	putNonEmpty(fields, "dest_ip", e.DestinationHost)
	putNonEmpty(fields, "tool", e.Tool)
	putNonEmpty(fields, "user_context", e.UserContext)
	putNonEmpty(fields, "description", e.Description)
	putNonEmpty(fields, "output", e.Output)
	putNonEmpty(fields, "comments", e.Comments)
	putNonEmpty(fields, "operator_name", e.Operator)
	return fields
}

// GraphQLVars returns the entry's fields as variables for Ghostwriter's
// insert/update oplogEntry mutations.
func (e *Entry) GraphQLVars() map[string]any {
	vars := map[string]any{
		"oplog":   e.OplogID,
		"command": e.Command,
	}
	if !e.StartTime.IsZero() {
		vars["startDate"] = e.StartTime.Format(TimeFormat)
	}
	if !e.EndTime.IsZero() {
		vars["endDate"] = e.EndTime.Format(TimeFormat)
	}
	putNonEmpty(vars, "sourceIp", e.SourceHost)
	putNonEmpty(vars, "destIp", e.DestinationHost)
	putNonEmpty(vars, "tool", e.Tool)
	putNonEmpty(vars, "userContext", e.UserContext)
	putNonEmpty(vars, "description", e.Description)
	putNonEmpty(vars, "output", e.Output)
	putNonEmpty(vars, "comments", e.Comments)
	putNonEmpty(vars, "operatorName", e.Operator)
	return vars
}

func putNonEmpty(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}
