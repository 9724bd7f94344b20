// Package discovery finds chat peers on the local network.
//
// Discovery only ever yields candidate addresses. Nothing learned here is
// trusted: connecting still runs the full handshake.
package discovery

import (
	"errors"
	"net/netip"
	"time"
)

var ErrNotFound = errors.New("discovery: peer not found")

// AddrInfo is a peer address learned out of band.
type AddrInfo struct {
	// Addr is the announcing host and the port it accepts chats on.
	Addr     netip.AddrPort
	LastSeen time.Time
}

func (a AddrInfo) String() string { return a.Addr.String() }

// Resolver records and returns discovered peers.
type Resolver interface {
	Announce(info AddrInfo) error
	Lookup(addr netip.AddrPort) (AddrInfo, error)
	List() ([]AddrInfo, error)
}
