// Package ranking orders the players of one category by score.
package ranking

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/humanwheel-leaderboard/internal/domain"
)

// Rank sanitizes records, drops the ones without an id and sorts the rest
// by score descending. Equal scores keep their input order. Ranks start at
// one and are contiguous.
func Rank(records []domain.PlayerRecord) []domain.RankedPlayer {
	valid := lo.FilterMap(records, func(r domain.PlayerRecord, _ int) (domain.PlayerRecord, bool) {
		if strings.TrimSpace(r.ID) == "" {
			return r, false
		}
		return Sanitize(r), true
	})

	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Score > valid[j].Score
	})

	return lo.Map(valid, func(r domain.PlayerRecord, i int) domain.RankedPlayer {
		return domain.RankedPlayer{PlayerRecord: r, Rank: i + 1}
	})
}

// Sanitize replaces missing or invalid fields with safe defaults
func Sanitize(r domain.PlayerRecord) domain.PlayerRecord {
	if strings.TrimSpace(r.Name) == "" {
		r.Name = domain.UnknownPlayerName
	}
	r.Speed = domain.NonNegative(r.Speed)
	r.Score = domain.NonNegative(r.Score)
	if r.Laps < 0 {
		r.Laps = 0
	}
	return r
}

// Top returns at most n leading players
func Top(players []domain.RankedPlayer, n int) []domain.RankedPlayer {
	if n < 0 {
		n = 0
	}
	if n > len(players) {
		n = len(players)
	}
	return players[:n]
}
