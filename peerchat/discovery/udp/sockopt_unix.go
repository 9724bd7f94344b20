//go:build unix

package udp

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func broadcastControl(_, _ string, c syscall.RawConn) error {
	return setsockopt(c, unix.SO_BROADCAST)
}

// reuseControl lets a scanner share the discovery port with another scanner
// on the same host.
func reuseControl(_, _ string, c syscall.RawConn) error {
	return setsockopt(c, unix.SO_REUSEADDR)
}

func setsockopt(c syscall.RawConn, opt int) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, opt, 1)
	}); err != nil {
		return err
	}
	return serr
}
