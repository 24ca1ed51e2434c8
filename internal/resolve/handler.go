package resolve

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ytwatchtime/ytwatchtime/internal/catalog"
	"github.com/ytwatchtime/ytwatchtime/internal/classify"
	"github.com/ytwatchtime/ytwatchtime/internal/httputil"
	"github.com/ytwatchtime/ytwatchtime/internal/validate"
)

type resolveRequest struct {
	URL string `json:"url"`
}

type resolvedVideo struct {
	EmbedURL  string `json:"embedUrl"`
	PlayerURL string `json:"playerUrl"`
	VideoID   int64  `json:"videoId"`
	ReportURL string `json:"reportUrl"`
}

type resolveResponse struct {
	Kind   classify.Kind   `json:"kind"`
	Videos []resolvedVideo `json:"videos"`
}

type Handler struct {
	resolver      *Resolver
	reportBaseURL string
	logger        *slog.Logger
}

// NewHandler serves resolutions. reportBaseURL is where players send their
// watch-time reports, e.g. http://127.0.0.1:41234.
func NewHandler(resolver *Resolver, reportBaseURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		resolver:      resolver,
		reportBaseURL: strings.TrimRight(reportBaseURL, "/"),
		logger:        logger,
	}
}

func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16*1024)).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		httputil.WriteError(w, http.StatusBadRequest, "url is required")
		return
	}
	if msg := validate.URL(req.URL); msg != "" {
		httputil.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	kind, embeds, err := h.resolver.Resolve(r.Context(), req.URL)
	if err != nil {
		h.writeResolveError(w, req.URL, err)
		return
	}

	resp := resolveResponse{Kind: kind, Videos: make([]resolvedVideo, 0, len(embeds))}
	for _, embed := range embeds {
		id, err := h.resolver.FindVideoIDForEmbedURL(r.Context(), embed)
		if err != nil {
			h.logger.Error("resolve: lookup after insert failed", "embed_url", embed, "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "failed to resolve url")
			return
		}
		resp.Videos = append(resp.Videos, resolvedVideo{
			EmbedURL:  embed,
			PlayerURL: classify.PlayerURL(embed),
			VideoID:   id,
			ReportURL: h.reportURL(id),
		})
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) reportURL(videoID int64) string {
	if h.reportBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/save_watch_time?video_id=%d", h.reportBaseURL, videoID)
}

func (h *Handler) writeResolveError(w http.ResponseWriter, rawURL string, err error) {
	var resErr *ResolutionError
	switch {
	case errors.Is(err, classify.ErrInvalidURL):
		httputil.WriteError(w, http.StatusBadRequest, "not a YouTube channel or video URL")
	case errors.Is(err, ErrChannelNotFound):
		h.logger.Info("resolve: channel not found", "url", rawURL, "error", err)
		httputil.WriteError(w, http.StatusNotFound, "channel not found")
	case errors.Is(err, catalog.ErrNotFound):
		msg := "video not found"
		if errors.As(err, &resErr) && resErr.Op == opFetchChannel {
			msg = "channel not found"
		}
		h.logger.Info("resolve: "+msg, "url", rawURL, "error", err)
		httputil.WriteError(w, http.StatusNotFound, msg)
	case errors.As(err, &resErr):
		h.logger.Error("resolve: catalog request failed", "url", rawURL, "error", err)
		httputil.WriteError(w, http.StatusBadGateway, "video catalog unavailable")
	default:
		h.logger.Error("resolve: failed", "url", rawURL, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to resolve url")
	}
}
