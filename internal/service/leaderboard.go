package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sourcegraph/conc"

	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/photos"
	"github.com/humanwheel-leaderboard/internal/ranking"
	"github.com/humanwheel-leaderboard/internal/scoring"
	"github.com/humanwheel-leaderboard/internal/store"
)

// Broadcaster pushes a category's fresh ranking to live subscribers
type Broadcaster interface {
	BroadcastLeaderboard(category string, players []domain.RankedPlayer)
}

// SnapshotStore is the durable copy of the records that must be cleared on reset
type SnapshotStore interface {
	DeleteAllSnapshots(ctx context.Context) (int64, error)
}

// LeaderboardService provides business logic for leaderboard operations
type LeaderboardService struct {
	players   *store.PlayerStore
	photos    *photos.Service
	policy    scoring.Policy
	validate  *validator.Validate
	hub       Broadcaster
	snapshots SnapshotStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(
	players *store.PlayerStore,
	photoService *photos.Service,
	policy scoring.Policy,
	logger *slog.Logger,
) *LeaderboardService {
	return &LeaderboardService{
		players:  players,
		photos:   photoService,
		policy:   policy,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
}

// SetHub sets the broadcaster notified after every write
func (s *LeaderboardService) SetHub(hub Broadcaster) {
	s.hub = hub
}

// SetSnapshotStore sets the durable snapshot store cleared on reset
func (s *LeaderboardService) SetSnapshotStore(snapshots SnapshotStore) {
	s.snapshots = snapshots
}

// GetLeaderboard returns the ranked players of a category
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, category string) ([]domain.RankedPlayer, error) {
	category = domain.NormalizeCategory(category)
	if category == "" {
		return nil, domain.ErrInvalidRequest
	}
	if !domain.ValidCategory(category) {
		return nil, domain.ErrInvalidCategory
	}

	records, err := s.players.List(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("getting leaderboard %s: %w", category, err)
	}

	ranked := ranking.Rank(records)
	s.logger.Debug("leaderboard fetched", "category", category, "players", len(ranked))
	return ranked, nil
}

// AddOrUpdatePlayer validates a submission and overwrites the stored record.
// Laps and score are always recomputed from speed.
func (s *LeaderboardService) AddOrUpdatePlayer(ctx context.Context, submission domain.PlayerSubmission) (domain.PlayerRecord, error) {
	submission.Normalize()
	if err := s.validate.StructCtx(ctx, submission); err != nil {
		s.logger.Debug("rejected player submission", "error", err)
		return domain.PlayerRecord{}, validationError(err)
	}

	speed := domain.NonNegative(submission.Speed.Float())
	derived := s.policy.Compute(speed)

	if submitted := submission.Score.Float(); submitted != 0 && submitted != derived.Score {
		s.logger.Debug("ignoring client supplied score",
			"player_id", submission.ID,
			"submitted", submitted,
			"derived", derived.Score,
		)
	}

	record := domain.PlayerRecord{
		ID:        submission.ID,
		Name:      submission.Name,
		Avatar:    submission.Avatar,
		Speed:     speed,
		Laps:      derived.Laps,
		Score:     derived.Score,
		Category:  submission.Category,
		Timestamp: domain.Timestamp(s.now()),
	}

	if err := s.players.Put(ctx, record); err != nil {
		return domain.PlayerRecord{}, fmt.Errorf("saving player %s: %w", record.ID, err)
	}

	s.logger.Info("player saved",
		"category", record.Category,
		"player_id", record.ID,
		"speed", record.Speed,
		"laps", record.Laps,
		"score", record.Score,
	)
	s.broadcast(ctx, record.Category)

	return record, nil
}

// validationError maps validator failures onto domain errors
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			if fe.Field() == "Category" && fe.Tag() == "excludes" {
				return domain.ErrInvalidCategory
			}
		}
	}
	return domain.ErrMissingFields
}

// DeletePlayer removes a record; deleting a missing record succeeds
func (s *LeaderboardService) DeletePlayer(ctx context.Context, category, id string) error {
	category = domain.NormalizeCategory(category)
	if category == "" || id == "" {
		return domain.ErrInvalidRequest
	}
	if !domain.ValidCategory(category) {
		return domain.ErrInvalidCategory
	}

	if err := s.players.Delete(ctx, category, id); err != nil {
		return fmt.Errorf("deleting player %s: %w", id, err)
	}

	s.logger.Info("player deleted", "category", category, "player_id", id)
	s.broadcast(ctx, category)
	return nil
}

// AllPlayers returns every stored record across categories, unranked
func (s *LeaderboardService) AllPlayers(ctx context.Context) ([]domain.PlayerRecord, error) {
	records, err := s.players.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting all players: %w", err)
	}
	return records, nil
}

// Seed writes the demo riders into every default category
func (s *LeaderboardService) Seed(ctx context.Context) error {
	for _, category := range SeedCategories {
		for _, p := range SeedPlayers {
			p.Category = category
			if _, err := s.AddOrUpdatePlayer(ctx, p); err != nil {
				return fmt.Errorf("seeding %s: %w", category, err)
			}
		}
	}
	s.logger.Info("demo data seeded", "categories", len(SeedCategories), "players", len(SeedPlayers))
	return nil
}

// UploadPhoto stores a player photo and returns its signed URL
func (s *LeaderboardService) UploadPhoto(ctx context.Context, fileName, contentType string, payload io.Reader) (domain.UploadedPhoto, error) {
	return s.photos.Upload(ctx, fileName, contentType, payload)
}

// OpenPhoto returns a stored photo if the signature checks out
func (s *LeaderboardService) OpenPhoto(ctx context.Context, name, expires, signature string) (photos.Blob, error) {
	return s.photos.Open(ctx, name, expires, signature)
}

// ResetDatabase deletes every record and every photo. The two deletions run
// concurrently and fail independently: a photo failure is logged and only
// lowers the reported count, a record failure fails the reset.
func (s *LeaderboardService) ResetDatabase(ctx context.Context) (domain.ResetResult, error) {
	var (
		result    domain.ResetResult
		playerErr error
		photoErr  error
	)

	var wg conc.WaitGroup
	wg.Go(func() {
		result.DeletedPlayers, playerErr = s.players.DeleteAll(ctx)
	})
	wg.Go(func() {
		result.DeletedPhotos, photoErr = s.photos.DeleteAll(ctx)
	})
	wg.Wait()

	if photoErr != nil {
		s.logger.Warn("photo cleanup incomplete", "deleted", result.DeletedPhotos, "error", photoErr)
	}
	if playerErr != nil {
		return result, fmt.Errorf("resetting players: %w", playerErr)
	}

	if s.snapshots != nil {
		if n, err := s.snapshots.DeleteAllSnapshots(ctx); err != nil {
			s.logger.Warn("failed to clear player snapshots", "error", err)
		} else {
			s.logger.Debug("player snapshots cleared", "count", n)
		}
	}

	s.logger.Info("database reset",
		"deleted_players", result.DeletedPlayers,
		"deleted_photos", result.DeletedPhotos,
	)
	for _, category := range SeedCategories {
		s.broadcast(ctx, category)
	}
	return result, nil
}

// Ready checks that the record store is reachable
func (s *LeaderboardService) Ready(ctx context.Context) error {
	return s.players.Ping(ctx)
}

// broadcast pushes the category's ranking to subscribers. Failures only
// affect live viewers, so they are logged.
func (s *LeaderboardService) broadcast(ctx context.Context, category string) {
	if s.hub == nil {
		return
	}
	players, err := s.GetLeaderboard(ctx, category)
	if err != nil {
		s.logger.Warn("failed to load leaderboard for broadcast", "category", category, "error", err)
		return
	}
	s.hub.BroadcastLeaderboard(category, players)
}
