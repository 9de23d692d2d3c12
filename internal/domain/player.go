package domain

import (
	"strings"
	"time"
)

// Default categories seeded by the demo dataset
const (
	CategoryTeam   = "team"
	CategoryLocal  = "local"
	CategoryGlobal = "global"
)

// UnknownPlayerName is shown for records stored without a name
const UnknownPlayerName = "Unknown"

// PlayerRecord represents a stored player entry
type PlayerRecord struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Avatar    string  `json:"avatar"`
	Speed     float64 `json:"speed"`
	Laps      int64   `json:"laps"`
	Score     float64 `json:"score"`
	Category  string  `json:"category"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// RankedPlayer is a PlayerRecord annotated with its position in a category.
// Rank is computed at read time and never stored.
type RankedPlayer struct {
	PlayerRecord
	Rank int `json:"rank"`
}

// PlayerSubmission is the loosely typed payload accepted on writes.
// Numeric fields accept JSON numbers or numeric strings.
type PlayerSubmission struct {
	ID       string `json:"id" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Avatar   string `json:"avatar"`
	Speed    Number `json:"speed"`
	Laps     Number `json:"laps"`
	Score    Number `json:"score"`
	Category string `json:"category" validate:"required,excludes=_"`
}

// Normalize trims string fields and lower-cases the category
func (s *PlayerSubmission) Normalize() {
	s.ID = strings.TrimSpace(s.ID)
	s.Name = strings.TrimSpace(s.Name)
	s.Avatar = strings.TrimSpace(s.Avatar)
	s.Category = NormalizeCategory(s.Category)
}

// StoredRecord is the lenient decoding of a value read back from the
// key-value store. Anything can be in there, so numbers are coerced.
type StoredRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Speed     Number `json:"speed"`
	Laps      Number `json:"laps"`
	Score     Number `json:"score"`
	Category  string `json:"category"`
	Timestamp string `json:"timestamp"`
}

// Record converts a stored value into a PlayerRecord
func (r StoredRecord) Record() PlayerRecord {
	return PlayerRecord{
		ID:        r.ID,
		Name:      r.Name,
		Avatar:    r.Avatar,
		Speed:     r.Speed.Float(),
		Laps:      r.Laps.Int(),
		Score:     r.Score.Float(),
		Category:  r.Category,
		Timestamp: r.Timestamp,
	}
}

// SpeedReading is a single measurement published by a wheel sensor
type SpeedReading struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Category string `json:"category"`
	Speed    Number `json:"speed"`
}

// Submission converts a sensor reading into a write request
func (r SpeedReading) Submission() PlayerSubmission {
	return PlayerSubmission{
		ID:       r.PlayerID,
		Name:     r.Name,
		Avatar:   r.Avatar,
		Speed:    r.Speed,
		Category: r.Category,
	}
}

// NormalizeCategory returns the storage form of a category
func NormalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}

// ValidCategory reports whether a normalized category can be used in a
// storage key. The key separator is '_', so a category containing it would
// share keys with another category.
func ValidCategory(category string) bool {
	return category != "" && !strings.Contains(category, "_")
}

// Timestamp formats t the way records are stamped on write
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ResetResult reports what a bulk reset removed
type ResetResult struct {
	DeletedPlayers int `json:"deletedPlayers"`
	DeletedPhotos  int `json:"deletedPhotos"`
}

// UploadedPhoto describes a stored photo
type UploadedPhoto struct {
	URL      string `json:"url"`
	FileName string `json:"fileName"`
}
