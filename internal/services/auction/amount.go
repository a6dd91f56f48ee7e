package auction

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAmount accepts a whole, positive number of balance units.
// Fractions, exponents and anything non-numeric are rejected.
func ParseAmount(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: amount is required", ErrValidation)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q must be a whole number", ErrValidation, raw)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: amount must be at least 1", ErrValidation)
	}
	return n, nil
}
