//go:build unix

package errno

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func errnoName(e syscall.Errno) string {
	return unix.ErrnoName(e)
}

func errnoDescription(e syscall.Errno) string {
	if unix.ErrnoName(e) == "" {
		return ""
	}
	return e.Error()
}
