package entry

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewEstablishesInvariants(t *testing.T) {
	e := New("  nmap -sV 10.0.0.5  ")

	if e.Command != "nmap -sV 10.0.0.5" {
		t.Errorf("command not trimmed: %q", e.Command)
	}
	if e.StartTime.IsZero() || e.EndTime.IsZero() {
		t.Error("timestamps not defaulted")
	}
	if e.EndTime.Before(e.StartTime) {
		t.Error("end time precedes start time")
	}
	if e.Comments != DefaultComments {
		t.Errorf("comments not defaulted: %q", e.Comments)
	}
	if e.SourceHost == "" {
		t.Error("source host not detected")
	}
}

func TestSetEndTimeClampsToStart(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{Command: "whoami", StartTime: start}

	e.SetEndTime(start.Add(-time.Hour))
	if !e.EndTime.Equal(start) {
		t.Errorf("end time not clamped: got %v, want %v", e.EndTime, start)
	}

	later := start.Add(time.Minute)
	e.SetEndTime(later)
	if !e.EndTime.Equal(later) {
		t.Errorf("valid end time rejected: got %v", e.EndTime)
	}
}

func TestMergeOverwritesOnlyNonEmpty(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewFrom(&Entry{
		Command:     "nmap -sV target",
		Description: "service scan",
		Operator:    "alice",
		UUID:        "abc-123",
		OplogID:     7,
		StartTime:   start,
	})

	e.Merge(&Entry{Output: "22/tcp open", Operator: "bob"}, MergePolicy{})

	if e.Output != "22/tcp open" {
		t.Errorf("output not merged: %q", e.Output)
	}
	if e.Operator != "bob" {
		t.Errorf("operator not merged: %q", e.Operator)
	}
	if e.Description != "service scan" {
		t.Errorf("empty field clobbered description: %q", e.Description)
	}
	if e.Command != "nmap -sV target" {
		t.Errorf("empty field clobbered command: %q", e.Command)
	}
}

func TestMergeProtectsIdentityAndStart(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewFrom(&Entry{Command: "ls", UUID: "abc-123", OplogID: 7, StartTime: start})

	skewed := start.Add(-2 * time.Hour)
	e.Merge(&Entry{UUID: "other", OplogID: 99, StartTime: skewed, EndTime: skewed}, MergePolicy{})

	if e.UUID != "abc-123" {
		t.Errorf("uuid overwritten: %q", e.UUID)
	}
	if e.OplogID != 7 {
		t.Errorf("oplog id overwritten: %d", e.OplogID)
	}
	if !e.StartTime.Equal(start) {
		t.Errorf("start time overwritten: %v", e.StartTime)
	}
	// The skewed end time must be clamped up to the recorded start.
	if !e.EndTime.Equal(start) {
		t.Errorf("end time not clamped after merge: %v", e.EndTime)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	e := New("curl https://example.com")
	in := &Entry{Output: "200 OK", Comments: "checked manually", Tool: "curl"}

	e.Merge(in, MergePolicy{})
	snapshot := *e
	e.Merge(in, MergePolicy{})

	if *e != snapshot {
		t.Errorf("second merge changed the entry:\n got %+v\nwant %+v", *e, snapshot)
	}
}

func TestMergeProtectOutputPolicy(t *testing.T) {
	e := New("hashcat -m 1000 hashes.txt")
	e.Output = "cracked 3 of 10"
	e.Comments = "left running overnight"

	e.Merge(&Entry{Output: "exit 0", Comments: "done"}, MergePolicy{ProtectOutput: true})

	if e.Output != "cracked 3 of 10" {
		t.Errorf("protected output overwritten: %q", e.Output)
	}
	if e.Comments != "left running overnight" {
		t.Errorf("protected comments overwritten: %q", e.Comments)
	}

	// The default marker does not count as operator-entered detail.
	e2 := New("hashcat")
	e2.Merge(&Entry{Comments: "done"}, MergePolicy{ProtectOutput: true})
	if e2.Comments != "done" {
		t.Errorf("default comments not replaced: %q", e2.Comments)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	id := 42
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := NewFrom(&Entry{
		Command:         "impacket-secretsdump corp/admin@dc01",
		Description:     "dump hashes",
		StartTime:       start,
		EndTime:         start.Add(30 * time.Second),
		GwID:            &id,
		UUID:            "abc-123",
		SourceHost:      "ops-box (10.1.1.5)",
		DestinationHost: "dc01",
		Operator:        "alice",
		Tool:            "impacket",
		Output:          "ok",
		OplogID:         7,
	})

	data, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"start_time":"2024-03-01 12:00:00"`) {
		t.Errorf("start_time not in wire format: %s", data)
	}

	var got Entry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.Command != e.Command || got.UUID != e.UUID || got.OplogID != e.OplogID {
		t.Errorf("round trip lost fields: %+v", got)
	}
	if got.GwID == nil || *got.GwID != 42 {
		t.Errorf("round trip lost gw_id: %v", got.GwID)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("round trip changed start time: %v", got.StartTime)
	}
}

func TestUnmarshalRejectsBadTimestamp(t *testing.T) {
	var e Entry
	err := json.Unmarshal([]byte(`{"command":"ls","start_time":"not-a-time"}`), &e)
	if err == nil {
		t.Fatal("expected error for malformed start_time")
	}
}

func TestFilenameAndPattern(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{OplogID: 7, StartTime: start, UUID: "abc-123"}

	want := "7_2024-03-01_120000_abc-123.json"
	if got := e.Filename(); got != want {
		t.Errorf("filename: got %q, want %q", got, want)
	}
	if got := FilenamePattern(7, "abc-123"); got != "7_*_abc-123.json" {
		t.Errorf("pattern: got %q", got)
	}
}

func TestRestFieldsRenamesAndOmitsEmpty(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{
		Command:    "whoami",
		StartTime:  start,
		EndTime:    start,
		SourceHost: "ops-box",
		Operator:   "alice",
		OplogID:    7,
	}

	fields := e.RestFields()
	if fields["source_ip"] != "ops-box" {
		t.Errorf("source host not renamed to source_ip: %v", fields["source_ip"])
	}
	if fields["operator_name"] != "alice" {
		t.Errorf("operator not renamed to operator_name: %v", fields["operator_name"])
	}
	if fields["start_date"] != "2024-03-01 12:00:00" {
		t.Errorf("start_date wrong: %v", fields["start_date"])
	}
	for _, absent := range []string{"output", "description", "dest_ip", "tool"} {
		if _, ok := fields[absent]; ok {
			t.Errorf("empty field %q present in payload", absent)
		}
	}
}

func TestPayloadsOmitZeroTimes(t *testing.T) {
	// A manual update built from operator arguments alone carries no
	// timestamps; sending zero dates would overwrite the remote entry's
	// recorded ones.
	id := 42
	e := &Entry{Command: "manual note", Output: "ok", GwID: &id, OplogID: 7}

	fields := e.RestFields()
	for _, absent := range []string{"start_date", "end_date"} {
		if v, ok := fields[absent]; ok {
			t.Errorf("zero time serialized as %q = %v", absent, v)
		}
	}

	vars := e.GraphQLVars()
	for _, absent := range []string{"startDate", "endDate"} {
		if v, ok := vars[absent]; ok {
			t.Errorf("zero time serialized as %q = %v", absent, v)
		}
	}
}
