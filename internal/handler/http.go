package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/humanwheel-leaderboard/internal/domain"
	"github.com/humanwheel-leaderboard/internal/photos"
	"github.com/humanwheel-leaderboard/internal/service"
	"github.com/humanwheel-leaderboard/internal/websocket"
)

// multipart framing allowance on top of the photo size limit
const uploadOverhead = 1 << 20

// Handler provides HTTP handlers for the leaderboard API
type Handler struct {
	service   *service.LeaderboardService
	hub       *websocket.Hub
	maxUpload int64
	logger    *slog.Logger
}

// NewHandler creates a new HTTP handler. maxPhotoSize <= 0 means
// photos.MaxPhotoSize.
func NewHandler(service *service.LeaderboardService, hub *websocket.Hub, maxPhotoSize int64, logger *slog.Logger) *Handler {
	if maxPhotoSize <= 0 {
		maxPhotoSize = photos.MaxPhotoSize
	}
	return &Handler{
		service:   service,
		hub:       hub,
		maxUpload: maxPhotoSize + uploadOverhead,
		logger:    logger,
	}
}

// APIResponse is the failure envelope and the shape of status replies
type APIResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// envelope holds the fields of a successful reply next to "success"
type envelope map[string]any

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(corsMiddleware)

	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	if h.hub != nil {
		r.Get("/ws", h.HandleWebSocket)
	}

	r.Get("/leaderboard/{category}", h.GetLeaderboard)
	r.Post("/player", h.AddOrUpdatePlayer)
	r.Delete("/player/{category}/{id}", h.DeletePlayer)
	r.Get("/players/all", h.AllPlayers)
	r.Post("/seed", h.Seed)
	r.Post("/upload-photo", h.UploadPhoto)
	r.Post("/reset-database", h.ResetDatabase)
	r.Get("/photos/{name}", h.ServePhoto)

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", "error", err)
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, fields envelope) {
	body := envelope{"success": true}
	for k, v := range fields {
		body[k] = v
	}
	h.writeJSON(w, http.StatusOK, body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// fail maps a service error onto a status code. Unexpected errors are
// logged and returned as their message.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case domain.IsValidationError(err):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrInvalidSignature):
		h.writeError(w, http.StatusForbidden, domain.ErrInvalidSignature)
	case domain.IsNotFoundError(err):
		h.writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error("request failed",
			"op", op,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Status: "healthy"})
}

// ReadyCheck reports whether the record store is reachable
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ready(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, APIResponse{Success: false, Status: "unavailable", Error: "store unreachable"})
		return
	}
	h.writeJSON(w, http.StatusOK, APIResponse{Success: true, Status: "ready"})
}

// GetLeaderboard returns the ranked players of a category
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	players, err := h.service.GetLeaderboard(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.fail(w, r, "get leaderboard", err)
		return
	}
	if players == nil {
		players = []domain.RankedPlayer{}
	}
	h.writeSuccess(w, envelope{"players": players})
}

// AddOrUpdatePlayer stores a player submission
func (h *Handler) AddOrUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	var submission domain.PlayerSubmission
	if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	player, err := h.service.AddOrUpdatePlayer(r.Context(), submission)
	if err != nil {
		h.fail(w, r, "add player", err)
		return
	}
	h.writeSuccess(w, envelope{"player": player})
}

// DeletePlayer removes a player from a category
func (h *Handler) DeletePlayer(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeletePlayer(r.Context(), chi.URLParam(r, "category"), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "delete player", err)
		return
	}
	h.writeSuccess(w, nil)
}

// AllPlayers dumps every stored record
func (h *Handler) AllPlayers(w http.ResponseWriter, r *http.Request) {
	players, err := h.service.AllPlayers(r.Context())
	if err != nil {
		h.fail(w, r, "list players", err)
		return
	}
	if players == nil {
		players = []domain.PlayerRecord{}
	}
	h.writeSuccess(w, envelope{"players": players})
}

// Seed writes the demo dataset
func (h *Handler) Seed(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Seed(r.Context()); err != nil {
		h.fail(w, r, "seed", err)
		return
	}
	h.writeSuccess(w, envelope{"message": "Data seeded successfully"})
}

// UploadPhoto accepts a multipart upload in the "photo" field
func (h *Handler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	file, header, err := r.FormFile("photo")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusBadRequest, domain.ErrPhotoTooLarge)
			return
		}
		h.writeError(w, http.StatusBadRequest, domain.ErrNoPhoto)
		return
	}
	defer file.Close()

	photo, err := h.service.UploadPhoto(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		h.fail(w, r, "upload photo", err)
		return
	}
	h.writeSuccess(w, envelope{"url": photo.URL, "fileName": photo.FileName})
}

// ResetDatabase removes every record and photo
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ResetDatabase(r.Context())
	if err != nil {
		h.fail(w, r, "reset database", err)
		return
	}
	h.writeSuccess(w, envelope{
		"deletedPlayers": result.DeletedPlayers,
		"deletedPhotos":  result.DeletedPhotos,
	})
}

// ServePhoto streams a stored photo when its signed URL verifies
func (h *Handler) ServePhoto(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	blob, err := h.service.OpenPhoto(r.Context(), chi.URLParam(r, "name"), q.Get("expires"), q.Get("signature"))
	if err != nil {
		h.fail(w, r, "serve photo", err)
		return
	}

	w.Header().Set("Content-Type", blob.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if !blob.CreatedAt.IsZero() {
		w.Header().Set("Last-Modified", blob.CreatedAt.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(blob.Data); err != nil {
		h.logger.Debug("photo write interrupted", "name", blob.Name, "error", err)
	}
}
