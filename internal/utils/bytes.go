package utils

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizePattern = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*([kKmMgGtT]?[bB]?)?\s*$`)

// ParseBytes parses a byte size string like "8192", "8KB", "500K" or "2GB".
// Units are powers of 1024. An empty string parses as zero.
func ParseBytes(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size: %s", s)
	}

	val, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %s: %w", s, err)
	}

	multiplier := int64(1)
	switch strings.ToLower(matches[2]) {
	case "k", "kb":
		multiplier = 1024
	case "m", "mb":
		multiplier = 1024 * 1024
	case "g", "gb":
		multiplier = 1024 * 1024 * 1024
	case "t", "tb":
		multiplier = 1024 * 1024 * 1024 * 1024
	}

	n := val * float64(multiplier)
	if n >= math.MaxInt64 {
		return 0, fmt.Errorf("size out of range: %s", s)
	}
	return int64(n), nil
}
