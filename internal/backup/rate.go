package backup

import (
	"strconv"
	"strings"
)

// ParseRate parses a byte-rate string like "1M", "512K", "2G", "1T", or a
// bare number of bytes/sec, per spec.md §6's `--io-write-rate` flag.
func ParseRate(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	suffix := s[len(s)-1]
	multiplier := int64(1)
	numeric := s
	switch suffix {
	case 'k', 'K':
		multiplier = 1 << 10
		numeric = s[:len(s)-1]
	case 'm', 'M':
		multiplier = 1 << 20
		numeric = s[:len(s)-1]
	case 'g', 'G':
		multiplier = 1 << 30
		numeric = s[:len(s)-1]
	case 't', 'T':
		multiplier = 1 << 40
		numeric = s[:len(s)-1]
	}
	numeric = strings.TrimSpace(numeric)
	n, err := strconv.ParseInt(numeric, 10, 64)
	if err != nil || n <= 0 {
		return 0, InputError(err, "invalid rate %q: expected a positive integer with an optional K|M|G|T suffix", s)
	}
	return n * multiplier, nil
}
