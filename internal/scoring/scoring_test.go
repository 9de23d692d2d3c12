package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompute_InvalidSpeed(t *testing.T) {
	for _, speed := range []float64{0, -1, -18.4, math.NaN(), math.Inf(1), math.Inf(-1)} {
		for _, p := range []Policy{PolicyFloored, PolicyUnfloored} {
			assert.Equal(t, Result{}, p.Compute(speed), "speed=%v policy=%s", speed, p)
		}
		assert.Zero(t, Laps(speed))
	}
}

func TestCompute_RegressionVector(t *testing.T) {
	floored := PolicyFloored.Compute(18.4)
	assert.Equal(t, int64(39), floored.Laps)
	assert.Equal(t, 717.0, floored.Score)

	unfloored := PolicyUnfloored.Compute(18.4)
	assert.Equal(t, int64(39), unfloored.Laps)
	assert.InDelta(t, 717.6, unfloored.Score, 1e-9)

	assert.Equal(t, floored, Compute(18.4))
}

func TestLaps_MonotonicInSpeed(t *testing.T) {
	prev := int64(0)
	for i := 1; i <= 5000; i++ {
		speed := float64(i) / 50
		laps := Laps(speed)
		require.GreaterOrEqual(t, laps, prev, "laps decreased at speed %v", speed)
		prev = laps
	}
}

func TestCompute_Deterministic(t *testing.T) {
	first := Compute(16.8)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Compute(16.8))
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{in: "", want: PolicyFloored},
		{in: "floored", want: PolicyFloored},
		{in: " Unfloored ", want: PolicyUnfloored},
		{in: "rounded", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}
