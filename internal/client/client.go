// Package client talks to the leaderboard HTTP API. Reads are retried with
// backoff, writes are sent once.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/retry"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodySize    = 4 << 20
)

// APIError is a non-success reply from the service
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("leaderboard api: status %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether repeating the request may succeed
func (e *APIError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// Client calls the leaderboard service
type Client struct {
	baseURL    string
	httpClient *http.Client
	retryOpts  []retry.Option
	logger     *slog.Logger
	flight     singleflight.Group
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetryOptions sets the backoff policy for reads
func WithRetryOptions(opts ...retry.Option) Option {
	return func(c *Client) { c.retryOpts = append(c.retryOpts, opts...) }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New creates a client for the service at baseURL
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// reply is the union of every success envelope the service sends
type reply struct {
	Success        bool                  `json:"success"`
	Error          string                `json:"error"`
	Message        string                `json:"message"`
	Players        []domain.RankedPlayer `json:"players"`
	Player         domain.PlayerRecord   `json:"player"`
	URL            string                `json:"url"`
	FileName       string                `json:"fileName"`
	DeletedPlayers int                   `json:"deletedPlayers"`
	DeletedPhotos  int                   `json:"deletedPhotos"`
}

// GetLeaderboard fetches the ranked players of a category. On failure it
// returns an empty list together with the error, so callers that only
// render can ignore the error. Concurrent calls for one category share a
// single request.
func (c *Client) GetLeaderboard(ctx context.Context, category string) ([]domain.RankedPlayer, error) {
	category = domain.NormalizeCategory(category)

	// detached from the first caller; each caller waits on its own ctx
	shared := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(category, func() (any, error) {
		r, err := c.read(shared, "/leaderboard/"+url.PathEscape(category))
		if err != nil {
			return nil, err
		}
		return r.Players, nil
	})

	var v any
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		c.logger.Warn("failed to fetch leaderboard", "category", category, "error", err)
		return []domain.RankedPlayer{}, err
	}

	players, _ := v.([]domain.RankedPlayer)
	if players == nil {
		players = []domain.RankedPlayer{}
	}
	return players, nil
}

// AllPlayers fetches every stored record
func (c *Client) AllPlayers(ctx context.Context) ([]domain.PlayerRecord, error) {
	r, err := c.read(ctx, "/players/all")
	if err != nil {
		return nil, err
	}
	records := make([]domain.PlayerRecord, 0, len(r.Players))
	for _, p := range r.Players {
		records = append(records, p.PlayerRecord)
	}
	return records, nil
}

// AddOrUpdatePlayer stores a player and returns the record as saved,
// with laps and score computed by the service
func (c *Client) AddOrUpdatePlayer(ctx context.Context, submission domain.PlayerSubmission) (domain.PlayerRecord, error) {
	body, err := json.Marshal(submission)
	if err != nil {
		return domain.PlayerRecord{}, fmt.Errorf("encoding player: %w", err)
	}
	r, err := c.do(ctx, http.MethodPost, "/player", bytes.NewReader(body), "application/json")
	if err != nil {
		return domain.PlayerRecord{}, err
	}
	return r.Player, nil
}

// DeletePlayer removes a player from a category
func (c *Client) DeletePlayer(ctx context.Context, category, id string) error {
	path := "/player/" + url.PathEscape(domain.NormalizeCategory(category)) + "/" + url.PathEscape(id)
	_, err := c.do(ctx, http.MethodDelete, path, nil, "")
	return err
}

// Seed asks the service to write the demo riders
func (c *Client) Seed(ctx context.Context) (string, error) {
	r, err := c.do(ctx, http.MethodPost, "/seed", nil, "")
	if err != nil {
		return "", err
	}
	return r.Message, nil
}

// UploadPhoto sends a photo as the multipart "photo" field
func (c *Client) UploadPhoto(ctx context.Context, fileName, contentType string, photo io.Reader) (domain.UploadedPhoto, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, fileName))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return domain.UploadedPhoto{}, fmt.Errorf("creating form part: %w", err)
	}
	if _, err := io.Copy(part, photo); err != nil {
		return domain.UploadedPhoto{}, fmt.Errorf("reading photo: %w", err)
	}
	if err := mw.Close(); err != nil {
		return domain.UploadedPhoto{}, fmt.Errorf("closing form: %w", err)
	}

	r, err := c.do(ctx, http.MethodPost, "/upload-photo", &buf, mw.FormDataContentType())
	if err != nil {
		return domain.UploadedPhoto{}, err
	}
	return domain.UploadedPhoto{URL: r.URL, FileName: r.FileName}, nil
}

// ResetDatabase deletes every record and photo
func (c *Client) ResetDatabase(ctx context.Context) (domain.ResetResult, error) {
	r, err := c.do(ctx, http.MethodPost, "/reset-database", nil, "")
	if err != nil {
		return domain.ResetResult{}, err
	}
	return domain.ResetResult{DeletedPlayers: r.DeletedPlayers, DeletedPhotos: r.DeletedPhotos}, nil
}

// read issues a GET with retries. Client errors end the retry loop early.
func (c *Client) read(ctx context.Context, path string) (reply, error) {
	return retry.Do(ctx, func(ctx context.Context) (reply, error) {
		r, err := c.do(ctx, http.MethodGet, path, nil, "")
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Temporary() {
			return r, retry.Permanent(err)
		}
		return r, err
	}, c.retryOptions()...)
}

func (c *Client) retryOptions() []retry.Option {
	logHook := retry.WithOnRetry(func(attempt int, delay time.Duration, err error) {
		c.logger.Warn("request failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	})
	return append([]retry.Option{logHook}, c.retryOpts...)
}

// do sends a single request and decodes the envelope
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (reply, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return reply{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reply{}, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return reply{}, fmt.Errorf("reading response: %w", err)
	}

	var r reply
	decodeErr := json.Unmarshal(raw, &r)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := r.Error
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return reply{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return reply{}, fmt.Errorf("decoding response: %w", decodeErr)
	}
	if !r.Success {
		return reply{}, &APIError{StatusCode: resp.StatusCode, Message: r.Error}
	}
	return r, nil
}
