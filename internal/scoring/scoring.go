// Package scoring derives lap count and score from a rider's wheel speed.
package scoring

import (
	"fmt"
	"math"
	"strings"
)

// TrackConstant converts metres per second into laps per second for the
// HumanWheel track.
const TrackConstant = 7.854

// Policy selects how the score is rounded
type Policy string

const (
	// PolicyFloored truncates laps*speed to a whole number. This is the default.
	PolicyFloored Policy = "floored"
	// PolicyUnfloored keeps the fractional part of laps*speed
	PolicyUnfloored Policy = "unfloored"
)

// DefaultPolicy is used when no policy is configured
const DefaultPolicy = PolicyFloored

// ParsePolicy maps a configuration string to a Policy
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyFloored:
		return PolicyFloored, nil
	case PolicyUnfloored:
		return PolicyUnfloored, nil
	default:
		return "", fmt.Errorf("unknown scoring policy %q", s)
	}
}

// Result holds the values derived from a speed reading
type Result struct {
	Laps  int64
	Score float64
}

// Laps returns the number of whole laps per minute at speed km/h.
// Invalid or non-positive speeds yield zero.
func Laps(speed float64) int64 {
	if !valid(speed) {
		return 0
	}
	metersPerSecond := speed * 1000 / 3600
	return int64(math.Floor(metersPerSecond / TrackConstant * 60))
}

// Compute derives laps and score from speed using the default policy
func Compute(speed float64) Result {
	return DefaultPolicy.Compute(speed)
}

// Compute derives laps and score from speed
func (p Policy) Compute(speed float64) Result {
	if !valid(speed) {
		return Result{}
	}
	laps := Laps(speed)
	score := float64(laps) * speed
	if p != PolicyUnfloored {
		score = math.Floor(score)
	}
	return Result{Laps: laps, Score: score}
}

func valid(speed float64) bool {
	return speed > 0 && !math.IsNaN(speed) && !math.IsInf(speed, 0)
}
