//go:build !linux

package pipe

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("pipe: not supported on this platform")

// MaxCapacity returns DefaultCapacity; only Linux exposes a pipe size limit
func MaxCapacity() int { return DefaultCapacity }

// SetCapacity is a no-op outside Linux
func SetCapacity(f *os.File, size int) error { return errUnsupported }

// Capacity is unknown outside Linux
func Capacity(f *os.File) (int, error) { return 0, errUnsupported }

// unreadBytes always fails, which the gate treats as ready
func unreadBytes(f *os.File) (int, error) { return -1, errUnsupported }
