package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanwheel-leaderboard/internal/domain"
)

type fetchFunc func(ctx context.Context, category string) ([]domain.RankedPlayer, error)

func (f fetchFunc) GetLeaderboard(ctx context.Context, category string) ([]domain.RankedPlayer, error) {
	return f(ctx, category)
}

func receive(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed early")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot delivered")
		return Snapshot{}
	}
}

func TestPoller_DeliversSnapshots(t *testing.T) {
	var calls atomic.Int32
	fetch := fetchFunc(func(_ context.Context, category string) ([]domain.RankedPlayer, error) {
		n := calls.Add(1)
		if n == 2 {
			return nil, errors.New("offline")
		}
		return []domain.RankedPlayer{{PlayerRecord: domain.PlayerRecord{ID: "1", Category: category}, Rank: 1}}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snaps := NewPoller(fetch, "LOCAL", 10*time.Millisecond, discardLogger()).Start(ctx)

	first := receive(t, snaps)
	assert.NoError(t, first.Err)
	assert.Equal(t, "local", first.Category)
	require.Len(t, first.Players, 1)

	second := receive(t, snaps)
	assert.Error(t, second.Err)
	assert.NotNil(t, second.Players)
	assert.Empty(t, second.Players)

	cancel()
	for range snaps {
	}
}

func TestPoller_SkipsTicksWhileFetching(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := fetchFunc(func(ctx context.Context, _ string) ([]domain.RankedPlayer, error) {
		calls.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewPoller(fetch, "team", 5*time.Millisecond, discardLogger())
	snaps := p.Start(ctx)

	require.Eventually(t, func() bool { return p.Skipped() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())

	close(release)
	snap := receive(t, snaps)
	assert.NoError(t, snap.Err)

	cancel()
	for range snaps {
	}
}
