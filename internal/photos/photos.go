package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/humanwheel-leaderboard/internal/domain"
)

// MaxPhotoSize is the largest accepted upload
const MaxPhotoSize = 5 << 20

const defaultExt = "jpg"

// Service validates uploads and manages the photo bucket
type Service struct {
	store   BlobStore
	signer  *Signer
	maxSize int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a photo service. maxSize <= 0 means MaxPhotoSize.
func NewService(store BlobStore, signer *Signer, maxSize int64, logger *slog.Logger) *Service {
	if maxSize <= 0 {
		maxSize = MaxPhotoSize
	}
	return &Service{
		store:   store,
		signer:  signer,
		maxSize: maxSize,
		logger:  logger,
		now:     time.Now,
	}
}

// Upload validates and stores a photo, returning its signed URL.
// declaredType is the client-supplied MIME type; the content is sniffed as
// well and both must be images.
func (s *Service) Upload(ctx context.Context, fileName, declaredType string, payload io.Reader) (domain.UploadedPhoto, error) {
	if payload == nil {
		return domain.UploadedPhoto{}, domain.ErrNoPhoto
	}
	if declaredType != "" && !isImage(declaredType) {
		return domain.UploadedPhoto{}, domain.ErrNotAnImage
	}

	data, err := io.ReadAll(io.LimitReader(payload, s.maxSize+1))
	if err != nil {
		return domain.UploadedPhoto{}, fmt.Errorf("reading photo: %w", err)
	}
	if len(data) == 0 {
		return domain.UploadedPhoto{}, domain.ErrNoPhoto
	}
	if int64(len(data)) > s.maxSize {
		return domain.UploadedPhoto{}, domain.ErrPhotoTooLarge
	}

	detected := mimetype.Detect(data)
	if !isImage(detected.String()) {
		return domain.UploadedPhoto{}, domain.ErrNotAnImage
	}

	name := s.objectName(fileName)
	blob := Blob{
		Name:        name,
		ContentType: detected.String(),
		Data:        data,
		CreatedAt:   s.now(),
	}
	if err := s.store.Put(ctx, blob); err != nil {
		return domain.UploadedPhoto{}, fmt.Errorf("storing photo: %w", err)
	}

	s.logger.Info("photo uploaded", "file_name", name, "size", len(data), "content_type", blob.ContentType)

	return domain.UploadedPhoto{
		URL:      s.signer.URL(name),
		FileName: name,
	}, nil
}

// Open returns a photo after checking its URL signature
func (s *Service) Open(ctx context.Context, name, expires, signature string) (Blob, error) {
	if err := s.signer.Verify(name, expires, signature); err != nil {
		return Blob{}, err
	}
	blob, err := s.store.Get(ctx, name)
	if err != nil {
		return Blob{}, fmt.Errorf("loading photo: %w", err)
	}
	return blob, nil
}

// DeleteAll removes every photo. It keeps going past individual failures,
// returning the number deleted together with the joined errors.
func (s *Service) DeleteAll(ctx context.Context) (int, error) {
	names, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing photos: %w", err)
	}

	deleted := 0
	var errs []error
	for _, name := range names {
		if err := s.store.Delete(ctx, name); err != nil {
			s.logger.Warn("failed to delete photo", "file_name", name, "error", err)
			errs = append(errs, fmt.Errorf("deleting %s: %w", name, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}

// objectName builds {unixMillis}_{random}.{ext}
func (s *Service) objectName(fileName string) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("%d_%s.%s", s.now().UnixMilli(), random, extension(fileName))
}

func extension(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	if ext == "" || len(ext) > 8 || !isAlnum(ext) {
		return defaultExt
	}
	return ext
}

func isAlnum(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) < 0
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "image/")
}
