// Package engine reconciles command lifecycle events into log entries and
// delivers them: look up or create an entry, run the plugin chain, attempt
// remote delivery, and guarantee a durable local copy on any failure.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/termsync/termsync/archive"
	"github.com/termsync/termsync/entry"
	"github.com/termsync/termsync/ghostwriter"
	"github.com/termsync/termsync/index"
	"github.com/termsync/termsync/observability"
	"github.com/termsync/termsync/plugin"
)

// RemoteClient is the slice of the Ghostwriter client the coordinator
// needs. Implemented by *ghostwriter.Client; tests substitute mocks.
type RemoteClient interface {
	CreateLog(ctx context.Context, e *entry.Entry) (int, error)
	UpdateLog(ctx context.Context, gwID int, e *entry.Entry) (int, error)
}

// Options wires a Coordinator. Client may be nil: that is the documented
// local-only mode, not an error.
type Options struct {
	Client   RemoteClient
	Archive  archive.Store
	Index    index.Index
	Chain    *plugin.Chain
	Triggers Triggers
	Defaults Defaults

	// SaveAllLocal archives every entry regardless of remote success.
	SaveAllLocal bool

	// MergePolicy controls completion-event overwrites of output/comments.
	MergePolicy entry.MergePolicy

	// RequireMatch drops entries no plugin claimed. The hook CLI sets this
	// (its plugin chain is the gate); the server relies on the keyword
	// filter instead and logs every triggered command.
	RequireMatch bool
}

// Coordinator is the delivery engine. One instance serves all requests;
// access to a given correlation uuid is serialized internally.
type Coordinator struct {
	client       RemoteClient
	store        archive.Store
	idx          index.Index
	chain        *plugin.Chain
	triggers     Triggers
	defaults     Defaults
	saveAllLocal bool
	mergePolicy  entry.MergePolicy
	requireMatch bool
	locks        *keyedMutex
}

// New assembles a Coordinator from explicitly injected collaborators.
func New(opts Options) *Coordinator {
	return &Coordinator{
		client:       opts.Client,
		store:        opts.Archive,
		idx:          opts.Index,
		chain:        opts.Chain,
		triggers:     opts.Triggers,
		defaults:     opts.Defaults,
		saveAllLocal: opts.SaveAllLocal,
		mergePolicy:  opts.MergePolicy,
		requireMatch: opts.RequireMatch,
		locks:        newKeyedMutex(),
	}
}

// HandleStart processes a "command started" event: create an entry, track
// it for the matching completion, and deliver it.
func (c *Coordinator) HandleStart(ctx context.Context, ev Event) Outcome {
	return c.handle(ctx, ev, false)
}

// HandleComplete processes a "command finished" event: merge it into the
// tracked entry if one exists, deliver, and drop the tracking. A completion
// with no matching start is synthesized into a standalone entry; a
// duplicate is better than a lost log.
func (c *Coordinator) HandleComplete(ctx context.Context, ev Event) Outcome {
	return c.handle(ctx, ev, true)
}

func (c *Coordinator) handle(ctx context.Context, ev Event, completion bool) Outcome {
	// Manual updates carry an explicit remote id and bypass the keyword
	// filter; they must never be dropped silently.
	if ev.GwID == nil && !c.triggers.Match(ev.Command) {
		observability.CommandsFiltered.Inc()
		return Outcome{Status: StatusFiltered}
	}

	if ev.UUID != "" {
		unlock := c.locks.lock(ev.UUID)
		defer unlock()
	}

	e, tracked, err := c.lookup(ctx, ev)
	if err != nil {
		log.Printf("[engine] pending lookup for %q failed: %v", ev.UUID, err)
	}
	if tracked {
		src := mergeSource(ev)
		// A completion without an explicit end time ends now.
		if completion && src.EndTime.IsZero() {
			src.EndTime = time.Now().UTC()
		}
		e.Merge(src, c.mergePolicy)
	} else {
		e = newEntry(ev, c.defaults)
	}

	processed, matched, vetoed := c.chain.Process(e)
	if vetoed {
		observability.CommandsVetoed.Inc()
		c.untrack(ctx, ev, completion, tracked)
		return Outcome{Status: StatusVetoed}
	}
	if !matched && !tracked && c.requireMatch && ev.GwID == nil {
		return Outcome{Status: StatusNotMatched}
	}
	e = processed

	// isNew: this entry is being tracked for a later completion event, so a
	// successful remote create still keeps a local copy around (a restart
	// before the completion must not lose data).
	isNew := !tracked && ev.GwID == nil && !completion
	out := c.Deliver(ctx, e, isNew)

	c.track(ctx, ev, e, completion, tracked)
	return out
}

// lookup consults the pending index for an entry created by an earlier
// start event.
func (c *Coordinator) lookup(ctx context.Context, ev Event) (*entry.Entry, bool, error) {
	if ev.UUID == "" || c.idx == nil {
		return nil, false, nil
	}
	return c.idx.Get(ctx, ev.UUID)
}

// track records a start-event entry in the pending index, or removes a
// completed one. Index errors are logged and swallowed: tracking is an
// optimization for correlation, never worth failing a delivery over.
func (c *Coordinator) track(ctx context.Context, ev Event, e *entry.Entry, completion, tracked bool) {
	if ev.UUID == "" || c.idx == nil {
		return
	}
	if completion {
		c.untrack(ctx, ev, completion, tracked)
		return
	}
	if ev.GwID != nil {
		// Manual updates are one-shot; nothing to correlate later.
		return
	}
	if err := c.idx.Put(ctx, ev.UUID, e); err != nil {
		log.Printf("[engine] failed to track %q: %v", ev.UUID, err)
		return
	}
	if !tracked {
		observability.PendingEntries.Inc()
	}
}

func (c *Coordinator) untrack(ctx context.Context, ev Event, completion, tracked bool) {
	if !completion || ev.UUID == "" || c.idx == nil {
		return
	}
	if err := c.idx.Remove(ctx, ev.UUID); err != nil {
		log.Printf("[engine] failed to untrack %q: %v", ev.UUID, err)
		return
	}
	if tracked {
		observability.PendingEntries.Dec()
	}
}

// Deliver sends the entry to Ghostwriter (create when no remote id is
// known, update otherwise) and guarantees at least one durable copy:
// every remote failure, and every new tracked entry, lands in the local
// archive. One attempt, no retries; every remote error is absorbed here
// and reported through the Outcome, never propagated.
func (c *Coordinator) Deliver(ctx context.Context, e *entry.Entry, isNew bool) Outcome {
	start := time.Now()
	defer func() {
		observability.DeliveryDuration.Observe(time.Since(start).Seconds())
	}()

	out := Outcome{Entry: e}
	saved := false

	if c.client != nil {
		if e.GwID == nil {
			id, err := c.client.CreateLog(ctx, e)
			if err != nil {
				c.reportRemote(e, "create", err)
				out.RemoteErr = err
			} else {
				e.GwID = &id
				saved = true
				out.Status = StatusCreated
				out.Message = fmt.Sprintf("[+] Logged to Ghostwriter with ID: %d", id)
				observability.EntriesCreated.Inc()
			}
		} else {
			if _, err := c.client.UpdateLog(ctx, *e.GwID, e); err != nil {
				c.reportRemote(e, "update", err)
				out.RemoteErr = err
			} else {
				saved = true
				out.Status = StatusUpdated
				out.Message = fmt.Sprintf("[+] Updated Ghostwriter log: %d", *e.GwID)
				observability.EntriesUpdated.Inc()
			}
		}
	}

	switch {
	case !saved || c.saveAllLocal:
		if err := c.archiveSave(ctx, e); err != nil {
			out.ArchiveErr = err
		}
		if !saved {
			if out.ArchiveErr != nil {
				out.Status = StatusFailed
				out.Message = fmt.Sprintf("[!] Failed to log entry with UUID: %s", e.UUID)
			} else {
				out.Status = StatusSavedLocally
				out.Message = fmt.Sprintf("[+] Logged to JSON file with UUID: %s", e.UUID)
			}
		}
	case isNew:
		if err := c.archiveSave(ctx, e); err != nil {
			out.ArchiveErr = err
		}
	default:
		// The authoritative copy now lives in Ghostwriter; drop the
		// temporary pending copy.
		if err := c.store.Remove(ctx, e); err != nil {
			log.Printf("[engine] failed to remove archived copy of %s: %v", e.Filename(), err)
		}
	}

	return out
}

func (c *Coordinator) archiveSave(ctx context.Context, e *entry.Entry) error {
	err := c.store.Save(ctx, e)
	if err != nil {
		// Last line of defense failed; there is no further fallback and the
		// entry is lost if the remote did not take it either.
		observability.ArchiveFailures.Inc()
		log.Printf("[engine] CRITICAL: local archive write failed, entry may be lost: %v (entry: %q)", err, e.Command)
		return err
	}
	observability.LocalSaves.Inc()
	return nil
}

// reportRemote logs a failed delivery attempt with full context and counts
// it by failure class.
func (c *Coordinator) reportRemote(e *entry.Entry, op string, err error) {
	reason := "remote_error"
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		reason = "timeout"
	case errors.Is(err, ghostwriter.ErrNotFound):
		reason = "not_found"
		if e.GwID != nil {
			log.Printf("[engine] Ghostwriter entry ID %d not found", *e.GwID)
		}
	}
	observability.DeliveryFailures.WithLabelValues(reason).Inc()
	log.Printf("[engine] remote %s failed (%s), falling back to local archive: %v", op, reason, err)
}
