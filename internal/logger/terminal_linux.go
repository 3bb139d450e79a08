//go:build linux

package logger

import (
	"syscall"
	"unsafe"
)

// TCGETS is the Linux ioctl for reading terminal attributes.
const TCGETS = 0x5401

// isTerminal reports whether fd is attached to a terminal. Color output is
// only enabled when it is.
func isTerminal(fd uintptr) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		fd,
		TCGETS,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return err == 0
}
