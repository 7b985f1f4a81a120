// Package utils holds small helpers shared by configuration and reporting.
package utils

import (
	"fmt"
	"strconv"
	"strings"
)

var byteUnits = []struct {
	suffix string
	scale  int64
}{
	{"P", 1 << 50},
	{"T", 1 << 40},
	{"G", 1 << 30},
	{"M", 1 << 20},
	{"K", 1 << 10},
}

// FormatBytes renders n with a binary unit, e.g. "1.5 MB".
func FormatBytes(n int64) string {
	if n < 1024 && n > -1024 {
		return fmt.Sprintf("%d B", n)
	}
	abs := n
	if abs < 0 {
		abs = -abs
	}
	for _, u := range byteUnits {
		if abs >= u.scale {
			return fmt.Sprintf("%.1f %sB", float64(n)/float64(u.scale), u.suffix)
		}
	}
	return fmt.Sprintf("%d B", n)
}

// ParseBytes parses sizes such as "512", "64KB", "1.5G" or "2 GiB". Units
// are binary and case insensitive.
func ParseBytes(s string) (int64, error) {
	orig := s
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	s = strings.TrimSuffix(s, "B")
	s = strings.TrimSuffix(s, "I")

	scale := int64(1)
	for _, u := range byteUnits {
		if strings.HasSuffix(s, u.suffix) {
			scale = u.scale
			s = strings.TrimSuffix(s, u.suffix)
			break
		}
	}

	num, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid byte size %q", orig)
	}
	return int64(num * float64(scale)), nil
}
