package client

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/humanwheel-leaderboard/internal/domain"
)

// DefaultPollInterval matches the board's refresh rate
const DefaultPollInterval = 2 * time.Second

// Fetcher loads a category's ranking
type Fetcher interface {
	GetLeaderboard(ctx context.Context, category string) ([]domain.RankedPlayer, error)
}

// Snapshot is the outcome of one poll. Players is empty, never nil, when
// Err is set.
type Snapshot struct {
	Category  string
	Players   []domain.RankedPlayer
	Err       error
	FetchedAt time.Time
}

// Poller fetches a category on a fixed interval. A tick that fires while
// the previous fetch is still running is skipped.
type Poller struct {
	fetcher  Fetcher
	category string
	interval time.Duration
	logger   *slog.Logger

	inFlight atomic.Bool
	skipped  atomic.Int64
}

// NewPoller creates a poller; interval <= 0 means DefaultPollInterval
func NewPoller(fetcher Fetcher, category string, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		fetcher:  fetcher,
		category: domain.NormalizeCategory(category),
		interval: interval,
		logger:   logger,
	}
}

// Start fetches immediately and then on every tick until ctx is done. The
// returned channel is closed after the last fetch has finished.
func (p *Poller) Start(ctx context.Context) <-chan Snapshot {
	out := make(chan Snapshot, 1)

	go func() {
		var wg sync.WaitGroup
		defer func() {
			wg.Wait()
			close(out)
		}()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick(ctx, &wg, out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx, &wg, out)
			}
		}
	}()

	return out
}

// Skipped returns how many ticks were dropped because a fetch was running
func (p *Poller) Skipped() int64 {
	return p.skipped.Load()
}

func (p *Poller) tick(ctx context.Context, wg *sync.WaitGroup, out chan<- Snapshot) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("previous fetch still running, skipping tick", "category", p.category)
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.inFlight.Store(false)

		players, err := p.fetcher.GetLeaderboard(ctx, p.category)
		if players == nil {
			players = []domain.RankedPlayer{}
		}
		snap := Snapshot{
			Category:  p.category,
			Players:   players,
			Err:       err,
			FetchedAt: time.Now(),
		}

		select {
		case out <- snap:
		case <-ctx.Done():
		}
	}()
}
