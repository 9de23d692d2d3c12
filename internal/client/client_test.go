package client

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/handler"
	"github.com/humanwheel-leaderboard/internal/photos"
	"github.com/humanwheel-leaderboard/internal/retry"
	"github.com/humanwheel-leaderboard/internal/scoring"
	"github.com/humanwheel-leaderboard/internal/service"
	"github.com/humanwheel-leaderboard/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noSleep() retry.Option {
	return retry.WithSleep(func(context.Context, time.Duration) error { return nil })
}

func newTestClient(url string) *Client {
	return New(url, WithLogger(discardLogger()), WithRetryOptions(noSleep()))
}

// scripted replies with the given statuses in order, then repeats the last
func scripted(t *testing.T, calls *atomic.Int32, statuses ...int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		status := statuses[len(statuses)-1]
		if n <= len(statuses) {
			status = statuses[n-1]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = io.WriteString(w, `{"success":true,"players":[{"id":"1","name":"Jonathan","speed":18.4,"laps":39,"score":717,"category":"team","rank":1}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"success":false,"error":"boom"}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGetLeaderboard_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, http.StatusInternalServerError, http.StatusBadGateway, http.StatusOK)

	players, err := newTestClient(srv.URL).GetLeaderboard(context.Background(), "Team")

	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, 1, players[0].Rank)
	assert.Equal(t, 717.0, players[0].Score)
	assert.EqualValues(t, 3, calls.Load())
}

func TestGetLeaderboard_DegradesToEmptyList(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, http.StatusServiceUnavailable)

	players, err := newTestClient(srv.URL).GetLeaderboard(context.Background(), "team")

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.NotNil(t, players)
	assert.Empty(t, players)
	assert.EqualValues(t, retry.DefaultAttempts, calls.Load())
}

func TestGetLeaderboard_ClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, http.StatusBadRequest)

	_, err := newTestClient(srv.URL).GetLeaderboard(context.Background(), "team")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Message)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGetLeaderboard_TransportErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var retries int
	c := New(url, WithLogger(discardLogger()), WithRetryOptions(noSleep(), retry.WithAttempts(2),
		retry.WithOnRetry(func(int, time.Duration, error) { retries++ })))

	players, err := c.GetLeaderboard(context.Background(), "team")

	require.Error(t, err)
	assert.Empty(t, players)
	assert.Equal(t, 1, retries)
}

func TestGetLeaderboard_SharedFetchOutlivesCancelledCaller(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"players":[{"id":"1","name":"Ava","category":"team","rank":1}]}`)
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() {
		select {
		case <-release:
		default:
			close(release)
		}
	})
	c := newTestClient(srv.URL)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.GetLeaderboard(firstCtx, "team")
		firstErr <- err
	}()
	<-entered

	type result struct {
		players []domain.RankedPlayer
		err     error
	}
	second := make(chan result, 1)
	go func() {
		players, err := c.GetLeaderboard(context.Background(), "team")
		second <- result{players, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		require.Len(t, res.players, 1)
		assert.Equal(t, "Ava", res.players[0].Name)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller got no result")
	}
}

func TestWritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := scripted(t, &calls, http.StatusInternalServerError)

	_, err := newTestClient(srv.URL).AddOrUpdatePlayer(context.Background(), domain.PlayerSubmission{ID: "1", Name: "x", Category: "team"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())
	assert.EqualValues(t, 1, calls.Load())
}

func TestAgainstService(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	players := store.NewPlayerStore(store.NewMemoryKV(), "", logger, noSleep())
	photoSvc := photos.NewService(photos.NewMemoryBlobStore(), photos.NewSigner("s", "http://x", time.Hour), 0, logger)
	svc := service.NewLeaderboardService(players, photoSvc, scoring.PolicyFloored, logger)
	srv := httptest.NewServer(handler.NewHandler(svc, nil, 0, logger).Router())
	t.Cleanup(srv.Close)

	c := newTestClient(srv.URL)

	msg, err := c.Seed(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, msg)

	rec, err := c.AddOrUpdatePlayer(ctx, domain.PlayerSubmission{ID: "8", Name: "Ava", Category: "team", Speed: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.Laps)
	assert.Equal(t, 840.0, rec.Score)

	board, err := c.GetLeaderboard(ctx, "team")
	require.NoError(t, err)
	require.Len(t, board, 8)
	assert.Equal(t, "Ava", board[0].Name)

	require.NoError(t, c.DeletePlayer(ctx, "team", "8"))

	_, err = c.AddOrUpdatePlayer(ctx, domain.PlayerSubmission{Name: "nobody"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	png := append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	photo, err := c.UploadPhoto(ctx, "me.png", "image/png", bytes.NewReader(png))
	require.NoError(t, err)
	assert.NotEmpty(t, photo.URL)

	all, err := c.AllPlayers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 21)

	result, err := c.ResetDatabase(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ResetResult{DeletedPlayers: 21, DeletedPhotos: 1}, result)
}
