// Package watchtime accepts periodic play-time reports from embedded players
// and folds them into a per-video running total.
package watchtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ytwatchtime/ytwatchtime/internal/classify"
	"github.com/ytwatchtime/ytwatchtime/internal/httputil"
	"github.com/ytwatchtime/ytwatchtime/internal/store"
	"github.com/ytwatchtime/ytwatchtime/internal/validate"
)

// ValidationError rejects a report before storage is touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ErrUnknownVideo means the report named a video that was never resolved.
var ErrUnknownVideo = errors.New("video not found")

// Store is the slice of storage the accumulation path needs.
type Store interface {
	UpsertWatchTime(ctx context.Context, videoID int64, deltaSeconds float64, now time.Time) (float64, error)
	GetWatchTime(ctx context.Context, videoID int64) (float64, error)
	FindLatestVideoIDByURL(ctx context.Context, canonicalURL string) (int64, error)
}

var (
	externalIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	surrogateIDPattern = regexp.MustCompile(`^[1-9][0-9]{0,18}$`)
)

type Handler struct {
	store  Store
	now    func() time.Time
	logger *slog.Logger
}

func NewHandler(s Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:  s,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

// RecordWatchTime adds rawWatchTime seconds to the total of the video named by
// videoRef and returns the surrogate id with the new total. videoRef is a
// surrogate id or an external video id; the latter maps to the most recently
// resolved row for that video.
func (h *Handler) RecordWatchTime(ctx context.Context, videoRef, rawWatchTime string) (int64, float64, error) {
	delta, err := parseWatchTime(rawWatchTime)
	if err != nil {
		return 0, 0, err
	}
	videoRef = strings.TrimSpace(videoRef)
	if err := checkVideoRef(videoRef); err != nil {
		return 0, 0, err
	}

	videoID, err := h.lookupVideo(ctx, videoRef)
	if err != nil {
		return 0, 0, err
	}

	total, err := h.store.UpsertWatchTime(ctx, videoID, delta, h.now())
	if err != nil {
		if errors.Is(err, store.ErrConstraint) {
			return videoID, 0, fmt.Errorf("%w: %d", ErrUnknownVideo, videoID)
		}
		return videoID, 0, err
	}
	return videoID, total, nil
}

// lookupVideo treats a canonical positive decimal as a surrogate id. Anything
// else, including signed or zero-padded digits, is an external video id.
func (h *Handler) lookupVideo(ctx context.Context, ref string) (int64, error) {
	if surrogateIDPattern.MatchString(ref) {
		if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
			return id, nil
		}
	}

	id, err := h.store.FindLatestVideoIDByURL(ctx, classify.WatchURL(ref))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrUnknownVideo, ref)
		}
		return 0, err
	}
	return id, nil
}

func checkVideoRef(ref string) error {
	if ref == "" {
		return &ValidationError{Field: "video_id", Message: "video_id is required"}
	}
	if msg := validate.VideoRef(ref); msg != "" {
		return &ValidationError{Field: "video_id", Message: msg}
	}
	if !externalIDPattern.MatchString(ref) {
		return &ValidationError{Field: "video_id", Message: "video_id is malformed"}
	}
	return nil
}

func parseWatchTime(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &ValidationError{Field: "watch_time", Message: "watch_time is required"}
	}
	if msg := validate.WatchTime(raw); msg != "" {
		return 0, &ValidationError{Field: "watch_time", Message: msg}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Field: "watch_time", Message: "watch_time must be a number"}
	}
	if v < 0 {
		return 0, &ValidationError{Field: "watch_time", Message: "watch_time must not be negative"}
	}
	return v, nil
}

// SaveWatchTime serves /save_watch_time. Parameters come from the query
// string or a form body.
func (h *Handler) SaveWatchTime(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httputil.WriteStatusError(w, http.StatusBadRequest, "malformed request")
		return
	}
	videoRef := r.Form.Get("video_id")

	videoID, total, err := h.RecordWatchTime(r.Context(), videoRef, r.Form.Get("watch_time"))
	if err != nil {
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			httputil.WriteStatusError(w, http.StatusBadRequest, vErr.Message)
		case errors.Is(err, ErrUnknownVideo):
			h.logger.Info("watchtime: unknown video", "video_id", videoRef)
			httputil.WriteStatusError(w, http.StatusNotFound, "video not found")
		default:
			h.logger.Error("watchtime: failed to record", "video_id", videoRef, "error", err)
			httputil.WriteStatusError(w, http.StatusInternalServerError, "failed to save watch time")
		}
		return
	}

	h.logger.Info("watchtime: recorded", "video_id", videoID, "total_watch_time", total)
	httputil.WriteSuccess(w, videoID, total)
}

type watchTimeResponse struct {
	VideoID        int64   `json:"videoId"`
	TotalWatchTime float64 `json:"totalWatchTime"`
}

// GetWatchTime serves the accumulated total for /api/videos/{id}/watch-time.
func (h *Handler) GetWatchTime(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
		return
	}

	total, err := h.store.GetWatchTime(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "no watch time recorded")
			return
		}
		h.logger.Error("watchtime: failed to read total", "video_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to read watch time")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, watchTimeResponse{VideoID: id, TotalWatchTime: total})
}
