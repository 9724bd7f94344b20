package memory

import (
	"net/netip"
	"sync"

	"github.com/TheusHen/p2pchat/peerchat/discovery"
)

// Store is an in-memory discovery resolver. The discover command uses it to
// de-duplicate repeated announcements.
type Store struct {
	mu    sync.RWMutex
	peers map[netip.AddrPort]discovery.AddrInfo
	order []netip.AddrPort
}

var _ discovery.Resolver = (*Store)(nil)

func New() *Store {
	return &Store{peers: map[netip.AddrPort]discovery.AddrInfo{}}
}

// Announce records info. A repeated address keeps its place in List and only
// has its LastSeen refreshed.
func (s *Store) Announce(info discovery.AddrInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.peers[info.Addr]; !known {
		s.order = append(s.order, info.Addr)
	}
	s.peers[info.Addr] = info
	return nil
}

func (s *Store) Lookup(addr netip.AddrPort) (discovery.AddrInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.peers[addr]
	if !ok {
		return discovery.AddrInfo{}, discovery.ErrNotFound
	}
	return info, nil
}

// List returns peers in the order they were first seen.
func (s *Store) List() ([]discovery.AddrInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discovery.AddrInfo, 0, len(s.order))
	for _, addr := range s.order {
		out = append(out, s.peers[addr])
	}
	return out, nil
}
