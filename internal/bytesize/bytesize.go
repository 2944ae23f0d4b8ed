// Package bytesize parses human-readable byte sizes used in eradb
// configuration files, such as "64Mi" for the preallocated store size.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a size in bytes. It decodes from plain numbers ("1048576"),
// binary units (Ki, Mi, Gi, Ti with optional trailing B) and decimal units
// (K, M, G, T with optional trailing B).
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

var multipliers = map[string]ByteSize{
	"": B, "b": B,
	"k": KB, "kb": KB, "m": MB, "mb": MB, "g": GB, "gb": GB, "t": TB, "tb": TB,
	"ki": KiB, "kib": KiB, "mi": MiB, "mib": MiB, "gi": GiB, "gib": GiB, "ti": TiB, "tib": TiB,
}

// binary units are preferred when rendering a size back to text.
var renderUnits = []struct {
	size   ByteSize
	suffix string
}{
	{TiB, "Ti"},
	{GiB, "Gi"},
	{MiB, "Mi"},
	{KiB, "Ki"},
}

// ParseByteSize parses s into a ByteSize.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size string")
	}

	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}

	mult, ok := multipliers[strings.ToLower(m[2])]
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	if strings.Contains(m[1], ".") {
		f, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", m[1])
		}
		return ByteSize(f * float64(mult)), nil
	}

	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", m[1])
	}
	return ByteSize(n) * mult, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText renders the size with the largest binary unit that divides it
// exactly, so that saved configs round-trip without precision loss.
func (b ByteSize) MarshalText() ([]byte, error) {
	for _, u := range renderUnits {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String returns a human-readable representation with two decimals.
func (b ByteSize) String() string {
	for _, u := range renderUnits {
		if b >= u.size {
			return fmt.Sprintf("%.2f%siB", float64(b)/float64(u.size), u.suffix[:1])
		}
	}
	return fmt.Sprintf("%dB", uint64(b))
}

// Uint64 returns the size as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}
