package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Number is a lenient numeric field. It decodes JSON numbers and numeric
// strings; anything else (null, booleans, objects, garbage) becomes zero.
// Negative values are kept so callers can decide how to treat them.
type Number float64

// UnmarshalJSON implements json.Unmarshaler. It never fails.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = 0
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*n = ParseNumber(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		f, err := strconv.ParseFloat(string(data), 64)
		if err == nil && isFinite(f) {
			*n = Number(f)
		}
	}
	return nil
}

// Float returns the value as float64
func (n Number) Float() float64 {
	return float64(n)
}

// Int truncates the value toward zero
func (n Number) Int() int64 {
	return int64(n)
}

// ParseNumber parses a numeric string, falling back to zero
func ParseNumber(s string) Number {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !isFinite(f) {
		return 0
	}
	return Number(f)
}

// NonNegative clamps negative and non-finite values to zero
func NonNegative(f float64) float64 {
	if !isFinite(f) || f < 0 {
		return 0
	}
	return f
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
