package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"github.com/termsync/termsync/engine"
	"github.com/termsync/termsync/observability"
)

// message is the JSON body clients POST/PUT to /commands/. Field names
// match the hook scripts shipped with terminal_sync.
type message struct {
	Command     string `json:"command"`
	Comments    string `json:"comments"`
	Description string `json:"description"`
	GwID        *int   `json:"gw_id"`
	Operator    string `json:"operator"`
	OplogID     int    `json:"oplog_id"`
	Output      string `json:"output"`
	SourceHost  string `json:"source_host"`
	DestHost    string `json:"destination_host"`
	UserContext string `json:"user_context"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	UUID        string `json:"uuid"`
}

// API exposes the delivery engine over HTTP.
type API struct {
	coordinator *engine.Coordinator
	feed        *ActivityHub

	// Storm protection: a runaway hook loop must not hammer Ghostwriter.
	limiter *rate.Limiter
}

func NewAPI(coordinator *engine.Coordinator, feed *ActivityHub, limit float64, burst int) *API {
	return &API{
		coordinator: coordinator,
		feed:        feed,
		limiter:     rate.NewLimiter(rate.Limit(limit), burst),
	}
}

// A bash pre-exec hook prepends the history timestamp to the command, e.g.
// "2023-04-11 19:18:24 ps". Strip it before processing.
var bashTimestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} (.*)`)

// handlePreExec creates a new log entry for a command that just started.
func (a *API) handlePreExec(w http.ResponseWriter, r *http.Request) {
	ev, ok := a.decode(w, r)
	if !ok {
		return
	}
	a.respond(w, a.coordinator.HandleStart(r.Context(), ev))
}

// handlePostExec completes an entry. If no matching start was seen (e.g.
// the server restarted mid-command), a fresh standalone entry is created;
// a duplicate is better than no log at all.
func (a *API) handlePostExec(w http.ResponseWriter, r *http.Request) {
	ev, ok := a.decode(w, r)
	if !ok {
		return
	}
	if m := bashTimestampRe.FindStringSubmatch(ev.Command); m != nil {
		ev.Command = m[1]
	}
	a.respond(w, a.coordinator.HandleComplete(r.Context(), ev))
}

func (a *API) decode(w http.ResponseWriter, r *http.Request) (engine.Event, bool) {
	if !a.limiter.Allow() {
		observability.RateLimited.Inc()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return engine.Event{}, false
	}

	var msg message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return engine.Event{}, false
	}

	ev := engine.Event{
		Command:         msg.Command,
		Comments:        msg.Comments,
		Description:     msg.Description,
		GwID:            msg.GwID,
		Operator:        msg.Operator,
		OplogID:         msg.OplogID,
		Output:          msg.Output,
		SourceHost:      msg.SourceHost,
		DestinationHost: msg.DestHost,
		UserContext:     msg.UserContext,
		UUID:            msg.UUID,
	}
	ev.StartTime = parseEventTime(msg.StartTime)
	ev.EndTime = parseEventTime(msg.EndTime)
	return ev, true
}

// parseEventTime accepts the Ghostwriter timestamp layout and RFC 3339;
// anything else is treated as unset and defaulted by the engine.
func parseEventTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	log.Printf("[api] unparseable timestamp %q ignored", s)
	return time.Time{}
}

func (a *API) respond(w http.ResponseWriter, out engine.Outcome) {
	switch out.Status {
	case engine.StatusFiltered, engine.StatusVetoed, engine.StatusNotMatched:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	a.feed.Publish(out)

	if out.Status == engine.StatusFailed {
		// No durable copy exists anywhere; the caller must not be told
		// the entry was saved.
		http.Error(w, out.Message, http.StatusInternalServerError)
		return
	}

	if out.RemoteErr != nil {
		status := http.StatusInternalServerError
		if errors.Is(out.RemoteErr, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		// The entry was still archived locally; the status code tells the
		// hook the remote leg failed.
		http.Error(w, out.RemoteErr.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(out.Message)); err != nil {
		log.Printf("[api] failed to write response: %v", err)
	}
}

func (a *API) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
