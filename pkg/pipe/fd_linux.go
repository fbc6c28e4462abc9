//go:build linux

package pipe

import (
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const pipeMaxSizePath = "/proc/sys/fs/pipe-max-size"

// MaxCapacity returns the system pipe size limit, or DefaultCapacity when
// it cannot be read
func MaxCapacity() int {
	raw, err := os.ReadFile(pipeMaxSizePath)
	if err != nil {
		return DefaultCapacity
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || n <= 0 {
		return DefaultCapacity
	}
	return n
}

// SetCapacity resizes the pipe behind f with F_SETPIPE_SZ
func SetCapacity(f *os.File, size int) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		_, opErr = unix.FcntlInt(fd, unix.F_SETPIPE_SZ, size)
	}); err != nil {
		return err
	}
	return opErr
}

// Capacity reports the current size of the pipe behind f
func Capacity(f *os.File) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return 0, err
	}
	var (
		size  int
		opErr error
	)
	if err := rc.Control(func(fd uintptr) {
		size, opErr = unix.FcntlInt(fd, unix.F_GETPIPE_SZ, 0)
	}); err != nil {
		return 0, err
	}
	return size, opErr
}

func unreadBytes(f *os.File) (int, error) {
	rc, err := f.SyscallConn()
	if err != nil {
		return -1, err
	}
	var (
		n     int
		opErr error
	)
	if err := rc.Control(func(fd uintptr) {
		n, opErr = unix.IoctlGetInt(int(fd), unix.TIOCINQ)
	}); err != nil {
		return -1, err
	}
	return n, opErr
}
