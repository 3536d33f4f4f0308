package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/termsync/termsync/entry"
	"github.com/termsync/termsync/index"
	"github.com/termsync/termsync/plugin"
)

// fakeClient records remote calls and hands out sequential ids.
type fakeClient struct {
	nextID    int
	createErr error
	updateErr error
	created   []*entry.Entry
	updated   []int
}

func (f *fakeClient) CreateLog(_ context.Context, e *entry.Entry) (int, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.created = append(f.created, e.Clone())
	return f.nextID, nil
}

func (f *fakeClient) UpdateLog(_ context.Context, gwID int, e *entry.Entry) (int, error) {
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	f.updated = append(f.updated, gwID)
	return gwID, nil
}

// fakeStore records archive activity.
type fakeStore struct {
	saveErr error
	saved   []*entry.Entry
	removed []string
}

func (f *fakeStore) Save(_ context.Context, e *entry.Entry) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, e.Clone())
	return nil
}

func (f *fakeStore) FindPending(context.Context, int, string) (*entry.Entry, error) {
	return nil, nil
}

func (f *fakeStore) Remove(_ context.Context, e *entry.Entry) error {
	f.removed = append(f.removed, e.Filename())
	return nil
}

func testChain(t *testing.T) *plugin.Chain {
	t.Helper()
	chain, err := plugin.BuildChain(plugin.DefaultOrder, "#desc", "#nolog")
	if err != nil {
		t.Fatalf("Failed to build chain: %v", err)
	}
	return chain
}

func testCoordinator(t *testing.T, opts Options) (*Coordinator, *fakeClient, *fakeStore, *index.Memory) {
	t.Helper()
	client := &fakeClient{nextID: 76}
	store := &fakeStore{}
	idx := index.NewMemory()
	if opts.Client == nil {
		opts.Client = client
	}
	opts.Archive = store
	opts.Index = idx
	if opts.Chain == nil {
		opts.Chain = testChain(t)
	}
	if opts.Triggers == nil {
		opts.Triggers = Triggers{"nmap", "#desc"}
	}
	opts.Defaults = Defaults{Operator: "alice", OplogID: 7}
	return New(opts), client, store, idx
}

func startEvent() Event {
	return Event{
		Command:   "nmap -sV 10.0.0.5",
		UUID:      "abc-123",
		StartTime: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStartCreatesAndTracks(t *testing.T) {
	c, client, store, idx := testCoordinator(t, Options{})

	out := c.HandleStart(context.Background(), startEvent())

	if out.Status != StatusCreated {
		t.Fatalf("status: %v", out.Status)
	}
	if out.Message != "[+] Logged to Ghostwriter with ID: 77" {
		t.Errorf("message: %q", out.Message)
	}
	if len(client.created) != 1 {
		t.Fatalf("creates: %d", len(client.created))
	}
	if client.created[0].Operator != "alice" || client.created[0].OplogID != 7 {
		t.Errorf("defaults not applied: %+v", client.created[0])
	}

	// The pending copy survives a successful create: a crash before the
	// completion event must not lose the entry.
	if len(store.saved) != 1 {
		t.Fatalf("pending copies: %d", len(store.saved))
	}

	tracked, ok, _ := idx.Get(context.Background(), "abc-123")
	if !ok {
		t.Fatal("entry not tracked")
	}
	if tracked.GwID == nil || *tracked.GwID != 77 {
		t.Errorf("tracked entry missing remote id: %v", tracked.GwID)
	}
}

func TestCompletionMergesAndUntracks(t *testing.T) {
	c, client, store, idx := testCoordinator(t, Options{})
	ctx := context.Background()

	start := startEvent()
	c.HandleStart(ctx, start)

	end := Event{
		Command: "nmap -sV 10.0.0.5",
		UUID:    "abc-123",
		Output:  "22/tcp open",
		// Clock skew on the completion side must not move the recorded
		// start.
		StartTime: start.StartTime.Add(-time.Hour),
		EndTime:   start.StartTime.Add(90 * time.Second),
	}
	out := c.HandleComplete(ctx, end)

	if out.Status != StatusUpdated {
		t.Fatalf("status: %v", out.Status)
	}
	if out.Message != "[+] Updated Ghostwriter log: 77" {
		t.Errorf("message: %q", out.Message)
	}
	if len(client.updated) != 1 || client.updated[0] != 77 {
		t.Fatalf("updates: %v", client.updated)
	}
	if !out.Entry.StartTime.Equal(start.StartTime) {
		t.Errorf("start time moved: %v", out.Entry.StartTime)
	}
	if out.Entry.Output != "22/tcp open" {
		t.Errorf("output not merged: %q", out.Entry.Output)
	}

	if _, ok, _ := idx.Get(ctx, "abc-123"); ok {
		t.Error("entry still tracked after completion")
	}
	// The remote copy is now authoritative; the pending local copy goes.
	if len(store.removed) != 1 {
		t.Errorf("pending copy not removed: %v", store.removed)
	}
}

func TestLocalOnlyMode(t *testing.T) {
	store := &fakeStore{}
	c := New(Options{
		Archive:  store,
		Index:    index.NewMemory(),
		Chain:    testChain(t),
		Triggers: Triggers{"nmap"},
		Defaults: Defaults{OplogID: 7},
	})

	out := c.HandleStart(context.Background(), startEvent())

	if out.Status != StatusSavedLocally {
		t.Fatalf("status: %v", out.Status)
	}
	if out.Message != "[+] Logged to JSON file with UUID: abc-123" {
		t.Errorf("message: %q", out.Message)
	}
	if len(store.saved) != 1 {
		t.Errorf("saves: %d", len(store.saved))
	}
}

func TestRemoteFailureFallsBackToArchive(t *testing.T) {
	c, client, store, _ := testCoordinator(t, Options{})
	client.createErr = errors.New("connection refused")

	out := c.HandleStart(context.Background(), startEvent())

	if out.Status != StatusSavedLocally {
		t.Fatalf("status: %v", out.Status)
	}
	if out.RemoteErr == nil {
		t.Error("remote error not reported")
	}
	if len(store.saved) != 1 {
		t.Errorf("fallback save missing: %d", len(store.saved))
	}
	if out.Entry.GwID != nil {
		t.Error("remote id set despite failed create")
	}
}

func TestKeywordFilter(t *testing.T) {
	c, client, store, _ := testCoordinator(t, Options{})

	out := c.HandleStart(context.Background(), Event{Command: "ls -la", UUID: "u1"})

	if out.Status != StatusFiltered {
		t.Fatalf("status: %v", out.Status)
	}
	if len(client.created) != 0 || len(store.saved) != 0 {
		t.Error("filtered command was delivered")
	}
}

func TestNologVeto(t *testing.T) {
	c, client, store, _ := testCoordinator(t, Options{})

	out := c.HandleStart(context.Background(), Event{
		Command: "nmap -sV secret-target #nolog",
		UUID:    "u1",
	})

	if out.Status != StatusVetoed {
		t.Fatalf("status: %v", out.Status)
	}
	if len(client.created) != 0 || len(store.saved) != 0 {
		t.Error("vetoed command was delivered")
	}
}

func TestVetoOnCompletionDropsTracking(t *testing.T) {
	c, _, _, idx := testCoordinator(t, Options{})
	ctx := context.Background()

	c.HandleStart(ctx, startEvent())

	end := startEvent()
	end.Command = "nmap -sV 10.0.0.5 #nolog"
	out := c.HandleComplete(ctx, end)

	if out.Status != StatusVetoed {
		t.Fatalf("status: %v", out.Status)
	}
	if _, ok, _ := idx.Get(ctx, "abc-123"); ok {
		t.Error("vetoed entry still tracked")
	}
}

func TestManualUpdateBypassesFilter(t *testing.T) {
	c, client, _, _ := testCoordinator(t, Options{})

	id := 42
	out := c.HandleComplete(context.Background(), Event{
		Command:  "added persistence via scheduled task",
		GwID:     &id,
		Comments: "manual note",
	})

	if out.Status != StatusUpdated {
		t.Fatalf("status: %v", out.Status)
	}
	if len(client.updated) != 1 || client.updated[0] != 42 {
		t.Errorf("updates: %v", client.updated)
	}
}

func TestRequireMatchDropsUnclaimed(t *testing.T) {
	c, client, store, _ := testCoordinator(t, Options{RequireMatch: true})

	// Triggered by keyword but no plugin claims it.
	out := c.HandleStart(context.Background(), startEvent())

	if out.Status != StatusNotMatched {
		t.Fatalf("status: %v", out.Status)
	}
	if len(client.created) != 0 || len(store.saved) != 0 {
		t.Error("unclaimed command was delivered")
	}

	// A description token is a claim.
	ev := startEvent()
	ev.Command = "nmap -sV 10.0.0.5 #desc service scan"
	out = c.HandleStart(context.Background(), ev)
	if out.Status != StatusCreated {
		t.Fatalf("status: %v", out.Status)
	}
	if out.Entry.Description != "service scan" {
		t.Errorf("description: %q", out.Entry.Description)
	}
}

func TestSaveAllLocalKeepsCopyOnSuccess(t *testing.T) {
	c, _, store, _ := testCoordinator(t, Options{SaveAllLocal: true})
	ctx := context.Background()

	c.HandleStart(ctx, startEvent())
	end := startEvent()
	end.Output = "done"
	c.HandleComplete(ctx, end)

	// Start and completion both archived, nothing removed.
	if len(store.saved) != 2 {
		t.Errorf("saves: %d", len(store.saved))
	}
	if len(store.removed) != 0 {
		t.Errorf("removed: %v", store.removed)
	}
}

func TestArchiveFailureSurfaces(t *testing.T) {
	c, client, store, _ := testCoordinator(t, Options{})
	client.createErr = errors.New("connection refused")
	store.saveErr = errors.New("disk full")

	out := c.HandleStart(context.Background(), startEvent())

	if out.Status != StatusFailed {
		t.Fatalf("status: %v", out.Status)
	}
	if out.Status.Logged() {
		t.Error("failed outcome must not count as logged")
	}
	if out.ArchiveErr == nil {
		t.Error("archive error not reported")
	}
	if out.RemoteErr == nil {
		t.Error("remote error not reported")
	}
}

func TestLocalOnlyArchiveFailureIsNotSaved(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	c := New(Options{
		Archive:  store,
		Index:    index.NewMemory(),
		Chain:    testChain(t),
		Triggers: Triggers{"nmap"},
		Defaults: Defaults{OplogID: 7},
	})

	out := c.HandleStart(context.Background(), startEvent())

	if out.Status != StatusFailed {
		t.Fatalf("status: %v", out.Status)
	}
	if out.Message != "[!] Failed to log entry with UUID: abc-123" {
		t.Errorf("message: %q", out.Message)
	}
	if out.ArchiveErr == nil {
		t.Error("archive error not reported")
	}
}

func TestTriggersMatch(t *testing.T) {
	tr := Triggers{"nmap", "#desc"}

	if !tr.Match("sudo nmap -sV target") {
		t.Error("substring trigger missed")
	}
	if !tr.Match("echo hi #desc greeting") {
		t.Error("token trigger missed")
	}
	if tr.Match("ls -la") {
		t.Error("untriggered command matched")
	}
	if (Triggers{}).Match("anything") {
		t.Error("empty trigger list should never match")
	}
}
