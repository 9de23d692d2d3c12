package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/humanwheel-leaderboard/internal/client"
	"github.com/humanwheel-leaderboard/internal/domain"
)

func ranked(names ...string) []domain.RankedPlayer {
	out := make([]domain.RankedPlayer, len(names))
	for i, n := range names {
		out[i] = domain.RankedPlayer{PlayerRecord: domain.PlayerRecord{ID: n, Name: n}, Rank: i + 1}
	}
	return out
}

func names(players []domain.RankedPlayer) []string {
	out := make([]string, len(players))
	for i, p := range players {
		out[i] = p.Name
	}
	return out
}

func TestPodiumOrder(t *testing.T) {
	assert.Empty(t, podium(nil))
	assert.Equal(t, []string{"a"}, names(podium(ranked("a"))))
	assert.Equal(t, []string{"b", "a"}, names(podium(ranked("a", "b"))))
	assert.Equal(t, []string{"b", "a", "c"}, names(podium(ranked("a", "b", "c", "d"))))
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	render(&buf, client.Snapshot{Category: "team", Players: ranked("Jonathan", "Martin", "Amelia", "Emilia"), FetchedAt: time.Now()})

	out := buf.String()
	assert.Contains(t, out, "[1st] Jonathan")
	assert.Contains(t, out, "4. Emilia")
	assert.Contains(t, out, "Congratulations Jonathan!")

	buf.Reset()
	render(&buf, client.Snapshot{Category: "team", Players: []domain.RankedPlayer{}, Err: errors.New("dial tcp"), FetchedAt: time.Now()})
	assert.Contains(t, buf.String(), "service unreachable")
	assert.Contains(t, buf.String(), "no riders yet")
}
