package plugin

import (
	"fmt"
	"log"
	"strings"

	"github.com/termsync/termsync/entry"
)

// Trigger tokens end with a space on purpose: "vim /etc/proxychains.conf"
// must not match.
var proxychainsTriggers = []string{"proxychains ", "proxychains4 "}

// Proxychains recognizes commands wrapped in a proxychains launcher and
// records the wrapped tool's name. An invocation it cannot parse is
// declined, not logged; another plugin may still claim the entry.
type Proxychains struct{}

func (Proxychains) Name() string { return "proxychains" }

func (p Proxychains) Process(e *entry.Entry) Result {
	matched := false
	for _, trigger := range proxychainsTriggers {
		if strings.Contains(e.Command, trigger) {
			matched = true
			break
		}
	}
	if !matched {
		return Declined()
	}

	tool, err := toolFromProxychains(e.Command)
	if err != nil {
		log.Printf("[plugin] proxychains: %v", err)
		return Declined()
	}
	if tool == "" {
		return Declined()
	}

	e.Tool = tool
	return Matched(e)
}

// toolFromProxychains returns the first token after the proxychains
// launcher and its options. "-q" consumes only itself; "-f" also consumes
// the config-file argument that follows it. Any other option makes the
// invocation unparseable.
func toolFromProxychains(command string) (string, error) {
	tokens, err := splitShell(command)
	if err != nil {
		return "", err
	}

	i := 0
	for ; i < len(tokens); i++ {
		if strings.Contains(tokens[i], "proxychains") {
			i++
			break
		}
	}

	for i < len(tokens) && strings.HasPrefix(tokens[i], "-") {
		switch tokens[i] {
		case "-q":
			i++
		case "-f":
			i += 2
		default:
			return "", fmt.Errorf("invalid or unsupported proxychains argument: %s", tokens[i])
		}
	}

	if i < len(tokens) {
		return tokens[i], nil
	}
	return "", nil
}
