package ranking

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanwheel-leaderboard/internal/domain"
)

func TestRank_ScenarioWithMissingScore(t *testing.T) {
	in := []domain.PlayerRecord{
		{ID: "a", Name: "A", Score: 500},
		{ID: "b", Name: "B", Score: 900},
		{ID: "c", Name: "C"},
	}

	out := Rank(in)

	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, 1, out[0].Rank)
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, 2, out[1].Rank)
	assert.Equal(t, "c", out[2].ID)
	assert.Equal(t, 3, out[2].Rank)
	assert.Zero(t, out[2].Score)
}

func TestRank_DropsRecordsWithoutID(t *testing.T) {
	in := []domain.PlayerRecord{
		{ID: "", Score: 1000},
		{ID: "   ", Score: 800},
		{ID: "x", Score: 10},
	}

	out := Rank(in)

	require.Len(t, out, 1)
	assert.Equal(t, "x", out[0].ID)
	assert.Equal(t, 1, out[0].Rank)
}

func TestRank_SanitizesFields(t *testing.T) {
	out := Rank([]domain.PlayerRecord{{ID: "z", Speed: math.NaN(), Laps: -4, Score: -2}})

	require.Len(t, out, 1)
	assert.Equal(t, domain.UnknownPlayerName, out[0].Name)
	assert.Empty(t, out[0].Avatar)
	assert.Zero(t, out[0].Speed)
	assert.Zero(t, out[0].Laps)
	assert.Zero(t, out[0].Score)
}

func TestRank_StableForEqualScores(t *testing.T) {
	in := []domain.PlayerRecord{
		{ID: "first", Score: 100},
		{ID: "second", Score: 100},
		{ID: "third", Score: 100},
	}

	out := Rank(in)

	assert.Equal(t, []string{"first", "second", "third"}, ids(out))
}

func TestRank_ContiguousAndDescending(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		n := rng.Intn(40) + 1
		in := make([]domain.PlayerRecord, n)
		for i := range in {
			in[i] = domain.PlayerRecord{ID: string(rune('a' + i%26)), Score: float64(rng.Intn(20))}
		}

		out := Rank(in)

		require.Len(t, out, n)
		for i, p := range out {
			assert.Equal(t, i+1, p.Rank)
			if i > 0 {
				assert.GreaterOrEqual(t, out[i-1].Score, p.Score)
			}
		}
	}
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil))
}

func TestTop(t *testing.T) {
	players := Rank([]domain.PlayerRecord{{ID: "a", Score: 3}, {ID: "b", Score: 2}})

	assert.Len(t, Top(players, 3), 2)
	assert.Len(t, Top(players, 1), 1)
	assert.Empty(t, Top(players, -1))
}

func ids(players []domain.RankedPlayer) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.ID
	}
	return out
}
