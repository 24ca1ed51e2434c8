package httputil

import (
	"encoding/json"
	"net/http"
)

type ErrorBody struct {
	Error string `json:"error"`
}

// StatusBody is the envelope the player-facing endpoint always answers with.
type StatusBody struct {
	Status         string   `json:"status"`
	Message        string   `json:"message,omitempty"`
	VideoID        int64    `json:"video_id,omitempty"`
	TotalWatchTime *float64 `json:"total_watch_time,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

func WriteSuccess(w http.ResponseWriter, videoID int64, total float64) {
	WriteJSON(w, http.StatusOK, StatusBody{Status: "success", VideoID: videoID, TotalWatchTime: &total})
}

func WriteStatusError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, StatusBody{Status: "error", Message: message})
}
