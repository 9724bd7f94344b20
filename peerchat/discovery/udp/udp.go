// Package udp announces and finds chat listeners with UDP broadcast.
//
// A listener broadcasts the text "p2p-chat-discovery:<port>" to the
// discovery port every few seconds. A scanner bound to that port turns each
// announcement into the sender's IP paired with the advertised port.
package udp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/TheusHen/p2pchat/peerchat/discovery"
	"github.com/TheusHen/p2pchat/peerchat/discovery/memory"
)

const (
	Magic           = "p2p-chat-discovery"
	DefaultPort     = 8888
	DefaultInterval = 5 * time.Second
	BroadcastAddr   = "255.255.255.255"

	maxDatagram = 1024
)

var ErrMalformed = errors.New("discovery: malformed announcement")

func FormatAnnouncement(port uint16) []byte {
	return []byte(Magic + ":" + strconv.Itoa(int(port)))
}

// ParseAnnouncement returns the chat port carried by an announcement.
func ParseAnnouncement(b []byte) (uint16, error) {
	rest, ok := strings.CutPrefix(string(b), Magic+":")
	if !ok {
		return 0, ErrMalformed
	}
	port, err := strconv.ParseUint(rest, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("%w: bad port %q", ErrMalformed, rest)
	}
	return uint16(port), nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// Announcer periodically broadcasts the local chat port.
type Announcer struct {
	// Port is the discovery port announcements are sent to.
	Port     int
	Interval time.Duration
	// Target defaults to the limited broadcast address.
	Target string
	Logger *slog.Logger
}

// Run announces listenPort immediately and then every Interval until ctx is
// done. It returns nil on cancellation and the first send error otherwise.
func (a *Announcer) Run(ctx context.Context, listenPort uint16) error {
	port, interval, target, log := a.Port, a.Interval, a.Target, a.Logger
	if port == 0 {
		port = DefaultPort
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if target == "" {
		target = BroadcastAddr
	}
	if log == nil {
		log = discard()
	}

	dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(target, strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("discovery: resolve target: %w", err)
	}
	lc := net.ListenConfig{Control: broadcastControl}
	pc, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("discovery: open socket: %w", err)
	}
	defer pc.Close()

	msg := FormatAnnouncement(listenPort)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := pc.WriteTo(msg, dst); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery: announce: %w", err)
		}
		log.Debug("announced presence", "port", listenPort, "to", dst)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Scanner listens for announcements on the discovery port.
type Scanner struct {
	Port   int
	Logger *slog.Logger
	Now    func() time.Time
}

// Scan calls found for every valid announcement until ctx is done.
// Malformed datagrams are skipped. It returns nil on cancellation.
func (s *Scanner) Scan(ctx context.Context, found func(discovery.AddrInfo)) error {
	port, log, now := s.Port, s.Logger, s.Now
	if port == 0 {
		port = DefaultPort
	}
	if log == nil {
		log = discard()
	}
	if now == nil {
		now = time.Now
	}

	lc := net.ListenConfig{Control: reuseControl}
	pc, err := lc.ListenPacket(ctx, "udp4", net.JoinHostPort("0.0.0.0", strconv.Itoa(port)))
	if err != nil {
		return fmt.Errorf("discovery: bind scanner: %w", err)
	}
	defer pc.Close()
	stop := context.AfterFunc(ctx, func() {
		_ = pc.SetReadDeadline(time.Now())
	})
	defer stop()

	buf := make([]byte, maxDatagram)
	for {
		n, src, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("discovery: scan: %w", err)
		}
		chatPort, err := ParseAnnouncement(buf[:n])
		if err != nil {
			log.Debug("ignoring datagram", "from", src, "err", err)
			continue
		}
		ua, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		found(discovery.AddrInfo{
			Addr:     netip.AddrPortFrom(ua.AddrPort().Addr().Unmap(), chatPort),
			LastSeen: now(),
		})
	}
}

// Collect scans in windows of the given length, recording every announcement
// in store (a fresh memory store when nil). Addresses store did not know are
// reported through onNew. While nothing has been found, each empty window
// calls onIdle and scanning continues; once at least one peer is known, the
// first window without a new peer ends the scan.
func (s *Scanner) Collect(ctx context.Context, window time.Duration, store discovery.Resolver, onNew func(discovery.AddrInfo), onIdle func()) ([]discovery.AddrInfo, error) {
	if window <= 0 {
		window = DefaultInterval
	}
	if store == nil {
		store = memory.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	seen := make(chan discovery.AddrInfo)
	errc := make(chan error, 1)
	go func() {
		errc <- s.Scan(ctx, func(info discovery.AddrInfo) {
			select {
			case seen <- info:
			case <-ctx.Done():
			}
		})
	}()

	timer := time.NewTimer(window)
	defer timer.Stop()
	for {
		select {
		case info := <-seen:
			_, err := store.Lookup(info.Addr)
			isNew := errors.Is(err, discovery.ErrNotFound)
			if err != nil && !isNew {
				return nil, err
			}
			if err := store.Announce(info); err != nil {
				return nil, err
			}
			if isNew {
				if onNew != nil {
					onNew(info)
				}
				timer.Reset(window)
			}
		case <-timer.C:
			known, err := store.List()
			if err != nil {
				return nil, err
			}
			if len(known) > 0 {
				cancel()
				<-errc
				return known, nil
			}
			if onIdle != nil {
				onIdle()
			}
			timer.Reset(window)
		case err := <-errc:
			if err != nil {
				return nil, err
			}
			return store.List()
		}
	}
}
