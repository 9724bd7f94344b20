package memory

import (
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/discovery"
)

func TestStoreAnnounceLookup(t *testing.T) {
	s := New()
	info := discovery.AddrInfo{
		Addr:     netip.MustParseAddrPort("192.168.1.20:4000"),
		LastSeen: time.Unix(100, 0),
	}
	if err := s.Announce(info); err != nil {
		t.Fatalf("Announce: %v", err)
	}

	got, err := s.Lookup(info.Addr)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != info {
		t.Fatalf("unexpected addrinfo %+v", got)
	}
	if _, err := s.Lookup(netip.MustParseAddrPort("10.0.0.1:1")); !errors.Is(err, discovery.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeduplicates(t *testing.T) {
	s := New()
	a := netip.MustParseAddrPort("10.0.0.9:9000")
	b := netip.MustParseAddrPort("10.0.0.2:9000")

	for _, info := range []discovery.AddrInfo{
		{Addr: a, LastSeen: time.Unix(1, 0)},
		{Addr: b},
		{Addr: a, LastSeen: time.Unix(2, 0)},
	} {
		if err := s.Announce(info); err != nil {
			t.Fatalf("Announce: %v", err)
		}
	}

	list, _ := s.List()
	if len(list) != 2 {
		t.Fatalf("List = %v, want two peers", list)
	}
	if list[0].Addr != a || list[1].Addr != b {
		t.Fatalf("List not in first-seen order: %v", list)
	}
	if list[0].LastSeen != time.Unix(2, 0) {
		t.Fatalf("LastSeen not refreshed")
	}
}
