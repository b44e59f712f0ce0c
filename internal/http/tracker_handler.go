package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
)

type submissionTracker interface {
	Snapshot() application.TrackerSnapshot
	Refresh(ctx context.Context) application.TrackerSnapshot
}

// TrackerHandler serves the submission tracker panel.
type TrackerHandler struct {
	tracker   submissionTracker
	responder responder
	logger    *slog.Logger
}

func NewTrackerHandler(tracker submissionTracker, logger *slog.Logger) *TrackerHandler {
	base := defaultLogger(logger)
	return &TrackerHandler{tracker: tracker, responder: newResponder(base), logger: base}
}

type trackerResponse struct {
	Submissions    []application.DepartmentSubmission `json:"submissions"`
	Source         application.SourceTier             `json:"source"`
	SubmittedCount int                                `json:"submitted_count"`
	TotalCount     int                                `json:"total_count"`
	AllSubmitted   bool                               `json:"all_submitted"`
	UpdatedAt      time.Time                          `json:"updated_at"`
	Error          string                             `json:"error,omitempty"`
}

// GetSubmissions returns the tracker view, forcing a fresh read when the
// refresh query parameter is set.
func (h *TrackerHandler) GetSubmissions(w http.ResponseWriter, r *http.Request) {
	var snap application.TrackerSnapshot
	if r.URL.Query().Get("refresh") != "" {
		snap = h.tracker.Refresh(r.Context())
	} else {
		snap = h.tracker.Snapshot()
		if snap.UpdatedAt.IsZero() {
			snap = h.tracker.Refresh(r.Context())
		}
	}

	resp := trackerResponse{
		Submissions:    snap.Submissions,
		Source:         snap.Source,
		SubmittedCount: snap.SubmittedCount,
		TotalCount:     snap.TotalCount,
		AllSubmitted:   snap.AllSubmitted,
		UpdatedAt:      snap.UpdatedAt,
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}
