//go:build !unix && !windows

package udp

import "syscall"

func broadcastControl(_, _ string, _ syscall.RawConn) error { return nil }

func reuseControl(_, _ string, _ syscall.RawConn) error { return nil }
