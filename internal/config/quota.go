package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ridgeline/flowvault/internal/flowerr"
)

// MemoryResourceQuota is either a fixed byte count or a percentage of system
// memory, matching the original cache.size / quota knob grammar: a plain
// number of bytes (with optional KB/MB/GB suffix) or "N%".
type MemoryResourceQuota struct {
	bytes       uint64
	percent     uint8
	isPercent   bool
}

// Bytes builds a fixed-size quota.
func Bytes(n uint64) MemoryResourceQuota { return MemoryResourceQuota{bytes: n} }

// Percentage builds a quota expressed as a percentage of system memory.
func Percentage(p uint8) MemoryResourceQuota {
	return MemoryResourceQuota{percent: p, isPercent: true}
}

// IsPercentage reports whether the quota is percentage-based.
func (q MemoryResourceQuota) IsPercentage() bool { return q.isPercent }

// ResolveBytes returns the absolute byte quota, resolving a percentage
// against totalSystemMemory.
func (q MemoryResourceQuota) ResolveBytes(totalSystemMemory uint64) uint64 {
	if !q.isPercent {
		return q.bytes
	}
	return totalSystemMemory / 100 * uint64(q.percent)
}

func (q MemoryResourceQuota) String() string {
	if q.isPercent {
		return fmt.Sprintf("%d%%", q.percent)
	}
	return fmt.Sprintf("%dB", q.bytes)
}

// ParseMemoryResourceQuota parses "N%" or a byte size like "512MB", "1GB",
// "1024" (bytes).
func ParseMemoryResourceQuota(s string) (MemoryResourceQuota, error) {
	const op = "config.ParseMemoryResourceQuota"
	s = strings.TrimSpace(s)
	if s == "" {
		return MemoryResourceQuota{}, flowerr.New(flowerr.KindInvalidInput, op, "empty quota string")
	}
	if strings.HasSuffix(s, "%") {
		digits := strings.TrimSuffix(s, "%")
		n, err := strconv.ParseUint(digits, 10, 8)
		if err != nil || n > 100 {
			return MemoryResourceQuota{}, flowerr.Newf(flowerr.KindInvalidInput, op, "invalid percentage %q", s)
		}
		return Percentage(uint8(n)), nil
	}
	n, err := parseByteSize(s)
	if err != nil {
		return MemoryResourceQuota{}, flowerr.Wrap(flowerr.KindInvalidInput, op, err)
	}
	return Bytes(n), nil
}

var byteSuffixes = []struct {
	suffix     string
	multiplier uint64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

func parseByteSize(s string) (uint64, error) {
	upper := strings.ToUpper(s)
	for _, suf := range byteSuffixes {
		if strings.HasSuffix(upper, suf.suffix) {
			digits := strings.TrimSpace(upper[:len(upper)-len(suf.suffix)])
			if digits == "" {
				continue
			}
			n, err := strconv.ParseUint(digits, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
			}
			return n * suf.multiplier, nil
		}
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n, nil
}

// UnmarshalYAML supports both quoted ("50%") and bare numeric forms in config files.
func (q *MemoryResourceQuota) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		var n uint64
		if err2 := unmarshal(&n); err2 != nil {
			return err
		}
		*q = Bytes(n)
		return nil
	}
	parsed, err := ParseMemoryResourceQuota(raw)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MarshalYAML renders the quota back to its string form for the
// current_config snapshot.
func (q MemoryResourceQuota) MarshalYAML() (interface{}, error) {
	return q.String(), nil
}
