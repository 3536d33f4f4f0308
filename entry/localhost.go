package entry

import (
	"fmt"
	"net"
	"os"
	"sync"
)

var (
	localHostOnce sync.Once
	localHost     string
)

// LocalHost returns the default source host, formatted as
// "<hostname> (<ip>)". The IP is the primary outbound address, discovered
// by opening a UDP socket toward a public address; no packet is sent.
// Detection is best effort: failures fall back to "unknown" and 127.0.0.1.
func LocalHost() string {
	localHostOnce.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}

		ip := "127.0.0.1"
		if conn, err := net.Dial("udp", "8.8.8.8:80"); err == nil {
			if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
				ip = addr.IP.String()
			}
			conn.Close()
		}

		localHost = fmt.Sprintf("%s (%s)", hostname, ip)
	})
	return localHost
}
