package plugin

import (
	"fmt"
)

// Known plugin names, in the default chain order. The nolog guard runs
// first so a veto is decided before any enrichment work happens.
var DefaultOrder = []string{"nolog", "manual_update", "description", "proxychains"}

// BuildChain assembles a chain from configured plugin names. Registration
// is static: every available plugin is listed here, and an unknown name is
// a configuration error.
func BuildChain(names []string, descToken, nologToken string) (*Chain, error) {
	if len(names) == 0 {
		names = DefaultOrder
	}

	plugins := make([]Plugin, 0, len(names))
	for _, name := range names {
		switch name {
		case "nolog":
			plugins = append(plugins, NologGuard{Token: nologToken})
		case "manual_update":
			plugins = append(plugins, ManualUpdate{})
		case "description":
			plugins = append(plugins, DescriptionSplitter{Token: descToken})
		case "proxychains":
			plugins = append(plugins, Proxychains{})
		default:
			return nil, fmt.Errorf("unknown plugin %q", name)
		}
	}
	return NewChain(plugins...), nil
}
