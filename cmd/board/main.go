package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/humanwheel-leaderboard/internal/client"
	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/ranking"
	"github.com/humanwheel-leaderboard/internal/retry"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Leaderboard service base URL")
	category := flag.String("category", domain.CategoryTeam, "Category to display")
	interval := flag.Duration("interval", client.DefaultPollInterval, "Refresh interval")
	attempts := flag.Int("attempts", retry.DefaultAttempts, "Attempts per fetch")
	delay := flag.Duration("retry-delay", retry.DefaultDelay, "Initial retry delay")
	verbose := flag.Bool("v", false, "Log fetch errors to stderr")
	flag.Parse()

	level := slog.LevelError
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	c := client.New(*baseURL,
		client.WithLogger(logger),
		client.WithRetryOptions(retry.WithAttempts(*attempts), retry.WithDelay(*delay)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	poller := client.NewPoller(c, *category, *interval, logger)
	for snap := range poller.Start(ctx) {
		render(os.Stdout, snap)
	}
}

// render clears the terminal and draws the podium, the rest of the list and
// the leader's congratulation line
func render(w io.Writer, snap client.Snapshot) {
	fmt.Fprint(w, "\033[H\033[2J")
	fmt.Fprintf(w, "HumanWheel leaderboard  [%s]  %s\n\n", snap.Category, snap.FetchedAt.Format(time.TimeOnly))

	if snap.Err != nil {
		fmt.Fprintf(w, "  service unreachable: %v\n\n", snap.Err)
	}
	if len(snap.Players) == 0 {
		fmt.Fprintln(w, "  no riders yet")
		return
	}

	fmt.Fprintln(w, "  PODIUM")
	for _, p := range podium(snap.Players) {
		fmt.Fprintf(w, "  %s %-16s %6.1f km/h %4d laps %8.1f pts\n", medal(p.Rank), p.Name, p.Speed, p.Laps, p.Score)
	}

	if len(snap.Players) > 3 {
		fmt.Fprintln(w, "\n  "+strings.Repeat("-", 50))
		for _, p := range snap.Players[3:] {
			fmt.Fprintf(w, "  %3d. %-16s %6.1f km/h %4d laps %8.1f pts\n", p.Rank, p.Name, p.Speed, p.Laps, p.Score)
		}
	}

	leader := snap.Players[0]
	fmt.Fprintf(w, "\n  Congratulations %s! %d laps at %.1f km/h puts you on top.\n", leader.Name, leader.Laps, leader.Speed)
}

// podium returns the top three players in display order: second, first, third
func podium(players []domain.RankedPlayer) []domain.RankedPlayer {
	top := ranking.Top(players, 3)
	switch len(top) {
	case 0:
		return nil
	case 1:
		return top
	case 2:
		return []domain.RankedPlayer{top[1], top[0]}
	default:
		return []domain.RankedPlayer{top[1], top[0], top[2]}
	}
}

func medal(rank int) string {
	switch rank {
	case 1:
		return "[1st]"
	case 2:
		return "[2nd]"
	case 3:
		return "[3rd]"
	default:
		return "     "
	}
}
