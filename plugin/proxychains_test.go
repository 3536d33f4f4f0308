package plugin

import (
	"testing"

	"github.com/termsync/termsync/entry"
)

func TestProxychainsToolExtraction(t *testing.T) {
	tests := []struct {
		name    string
		command string
		tool    string
	}{
		{"plain", "proxychains nmap -sV 10.0.0.5", "nmap"},
		{"quiet flag", "proxychains -q evil-winrm -i dc01", "evil-winrm"},
		{"config flag", "proxychains -f /tmp/chains.conf smbclient //dc01/c$", "smbclient"},
		{"both flags", "proxychains4 -q -f custom.conf crackmapexec smb 10.0.0.0/24", "crackmapexec"},
		{"wrapped in sudo", "sudo proxychains nmap target", "nmap"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry.New(tt.command)
			res := Proxychains{}.Process(e)
			if res.Action != Continue {
				t.Fatalf("expected match, got action %v", res.Action)
			}
			if e.Tool != tt.tool {
				t.Errorf("tool: got %q, want %q", e.Tool, tt.tool)
			}
		})
	}
}

func TestProxychainsDeclines(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"no trigger", "nmap -sV 10.0.0.5"},
		// No trailing space after the launcher name: editing the config
		// file is not a proxied command.
		{"trigger is whole command", "vim /etc/proxychains.conf"},
		{"unknown option", "proxychains -x nmap target"},
		{"nothing after launcher", "proxychains "},
		{"unterminated quote", `proxychains nmap "target`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := entry.New(tt.command)
			if res := (Proxychains{}).Process(e); res.Action != Pass {
				t.Errorf("expected decline, got action %v", res.Action)
			}
			if e.Tool != "" {
				t.Errorf("tool set on declined entry: %q", e.Tool)
			}
		})
	}
}
