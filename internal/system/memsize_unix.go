//go:build !windows

// Total system memory, needed to resolve a percentage-based cache.size
// quota (config.MemoryResourceQuota) into an absolute byte budget.
// Grounded on the teacher's reach for golang.org/x/sys/unix
// (internal/drivers/xattr_unix.go, internal/segment/locking_unix.go) for
// OS primitives the standard library has no portable equivalent for.
package system

import "golang.org/x/sys/unix"

func totalSystemMemoryBytes() uint64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0
	}
	return uint64(info.Totalram) * uint64(info.Unit)
}
