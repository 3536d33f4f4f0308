// Package plugin implements the entry processing chain: an ordered list of
// independent transformers that can enrich an entry, decline it, or veto
// logging it entirely.
package plugin

import (
	"log"

	"github.com/termsync/termsync/entry"
)

// Action is the kind of result a plugin produced for an entry.
type Action int

const (
	// Pass means the entry did not match the plugin's criteria; any
	// enrichment from earlier plugins is preserved.
	Pass Action = iota

	// Continue means the plugin matched and (possibly) modified the entry.
	Continue

	// Veto means the entry must not be logged at all. The chain aborts
	// immediately; this is control flow, not an error.
	Veto
)

// Result is the tagged outcome of one plugin run. Entry is meaningful only
// when Action is Continue.
type Result struct {
	Action Action
	Entry  *entry.Entry
}

// Matched wraps a modified entry in a Continue result.
func Matched(e *entry.Entry) Result { return Result{Action: Continue, Entry: e} }

// Declined reports that the plugin does not apply to the entry.
func Declined() Result { return Result{Action: Pass} }

// Vetoed aborts the chain: the entry is not logged.
func Vetoed() Result { return Result{Action: Veto} }

// Plugin is one unit of the processing chain.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string

	// Process inspects the entry and returns a tagged result. A plugin may
	// mutate the entry it is given; it must not retain it.
	Process(e *entry.Entry) Result
}

// Chain is an ordered, statically assembled list of plugins. Ordering is
// significant: a later plugin sees the output of earlier ones.
type Chain struct {
	plugins []Plugin
}

// NewChain builds a chain from the given plugins, in order.
func NewChain(plugins ...Plugin) *Chain {
	return &Chain{plugins: plugins}
}

// Process folds the entry through every plugin. Each plugin receives the
// accumulated output of earlier matching plugins, or the original entry if
// none has matched yet; a Pass result never erases a previous plugin's
// enrichment. The second return value reports whether any plugin matched.
// A Veto aborts immediately and returns vetoed=true.
func (c *Chain) Process(e *entry.Entry) (processed *entry.Entry, matched bool, vetoed bool) {
	var accumulated *entry.Entry

	for _, p := range c.plugins {
		current := e
		if accumulated != nil {
			current = accumulated
		}

		result := p.Process(current)
		switch result.Action {
		case Veto:
			log.Printf("[plugin] %s vetoed logging", p.Name())
			return nil, false, true
		case Continue:
			accumulated = result.Entry
		}
	}

	if accumulated == nil {
		return e, false, false
	}
	return accumulated, true, false
}
