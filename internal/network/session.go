// Package network is the UDP transport: a host-side Server admitting and
// tracking client sessions, and a Client dialing one. Framing and field
// layout come from internal/wire; this package owns nothing about wire
// format, only addresses, timers, and admission.
package network

import (
	"net"
	"time"
)

// Session is one admitted client, tracked by the host.
type Session struct {
	Addr     *net.UDPAddr
	PlayerID uint16
	LastSeen time.Time
}

func (s *Session) touch() {
	s.LastSeen = time.Now()
}

func (s *Session) timedOut(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastSeen) > timeout
}

func addrKey(addr *net.UDPAddr) string {
	return addr.String()
}
