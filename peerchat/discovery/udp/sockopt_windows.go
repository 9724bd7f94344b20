//go:build windows

package udp

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func broadcastControl(_, _ string, c syscall.RawConn) error {
	return setsockopt(c, windows.SO_BROADCAST)
}

func reuseControl(_, _ string, c syscall.RawConn) error {
	return setsockopt(c, windows.SO_REUSEADDR)
}

func setsockopt(c syscall.RawConn, opt int) error {
	var serr error
	if err := c.Control(func(fd uintptr) {
		serr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, opt, 1)
	}); err != nil {
		return err
	}
	return serr
}
