package index

import (
	"context"
	"testing"

	"github.com/termsync/termsync/entry"
)

func TestMemoryPutGetRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	e := entry.New("nmap -sV 10.0.0.5")
	e.UUID = "abc-123"
	if err := m.Put(ctx, e.UUID, e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := m.Get(ctx, "abc-123")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.Command != e.Command {
		t.Errorf("command: %q", got.Command)
	}
	if m.Len() != 1 {
		t.Errorf("len: %d", m.Len())
	}

	if err := m.Remove(ctx, "abc-123"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "abc-123"); ok {
		t.Error("entry still present after remove")
	}
}

func TestMemoryGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	e := entry.New("whoami")
	if err := m.Put(ctx, "u1", e); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Mutating what Put or Get handed out must not change the stored entry.
	e.Output = "mutated after put"
	got, _, _ := m.Get(ctx, "u1")
	if got.Output != "" {
		t.Errorf("stored entry shares memory with caller: %q", got.Output)
	}

	got.Output = "mutated after get"
	again, _, _ := m.Get(ctx, "u1")
	if again.Output != "" {
		t.Errorf("stored entry shares memory with reader: %q", again.Output)
	}
}

func TestMemoryGetMiss(t *testing.T) {
	m := NewMemory()
	if _, ok, err := m.Get(context.Background(), "nope"); ok || err != nil {
		t.Errorf("miss should be ok=false err=nil, got ok=%v err=%v", ok, err)
	}
}
