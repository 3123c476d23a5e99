package agentbc

import (
	"fmt"
	"strconv"
	"time"
)

// ParseDuration parses an "{N}{unit}" string where unit is one of m|h|d
// (minutes, hours, days) and N is a positive integer — the format used by
// both patternWindow.duration and config.approvalTimeout, and exported so
// pkg/runtimeconfig can validate the same shorthand at load time.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("agentbc: invalid duration %q", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("agentbc: invalid duration %q", s)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("agentbc: invalid duration unit in %q", s)
	}
}
