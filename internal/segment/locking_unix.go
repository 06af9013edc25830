//go:build !windows

// Locking for a segment's log file, adapted from the teacher's
// internal/drivers/locking_unix.go (flock-based, non-blocking exclusive
// lock). Lock and Unlock are helpers only: the segment and partition
// create, load, flush and close paths do not call them.
package segment

import (
	"golang.org/x/sys/unix"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// Lock acquires a non-blocking exclusive flock on the segment's log file,
// preventing a second process from appending to the same partition.
func (s *Segment) Lock() error {
	const op = "segment.Segment.Lock"
	if s.logFile == nil {
		return flowerr.New(flowerr.KindFatalIO, op, "segment has no open log file")
	}
	if err := unix.Flock(int(s.logFile.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return flowerr.New(flowerr.KindResourceLimit, op, "partition log is locked by another process")
		}
		return flowerr.Wrap(flowerr.KindFatalIO, op, err)
	}
	return nil
}

// Unlock releases the flock acquired by Lock. Safe to call even if Lock was
// never called or the file has since been closed.
func (s *Segment) Unlock() error {
	if s.logFile == nil {
		return nil
	}
	return unix.Flock(int(s.logFile.Fd()), unix.LOCK_UN)
}
