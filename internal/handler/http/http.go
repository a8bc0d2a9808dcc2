package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jgivc/dbload/internal/common"
	"github.com/jgivc/dbload/internal/entity"
)

type LoadService interface {
	Submit(sourceURL, name string) *entity.JobSnapshot
	Status(id string) (*entity.JobSnapshot, error)
}

type loadRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewLoadHandler handles POST /-/load: it validates the submission and
// returns the initial job snapshot while the job itself keeps running
// after the response is sent.
func NewLoadHandler(srv LoadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "LoadHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req loadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("Invalid JSON: %s", err)})

			return
		}

		if req.URL == "" || req.Name == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Missing required parameters: url or name"})

			return
		}

		snapshot := srv.Submit(req.URL, req.Name)

		log.Info("Load submitted", slog.String("job_id", snapshot.ID), slog.String("name", req.Name))

		writeJSON(w, http.StatusOK, snapshot)
	}
}

// NewStatusHandler handles GET /-/load/status/{job_id}. It only reads the
// job table and never blocks on job progress.
func NewStatusHandler(srv LoadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StatusHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("job_id")

		snapshot, err := srv.Status(id)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrJobNotFoundError):
				writeJSON(w, http.StatusNotFound, errorResponse{Error: "Job not found"})
			default:
				log.Error("Cannot get job status", slog.String("job_id", id), slog.Any("error", err))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Cannot get job status"})
			}

			return
		}

		writeJSON(w, http.StatusOK, snapshot)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
