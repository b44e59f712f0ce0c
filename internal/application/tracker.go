package application

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SubmissionSource provides the current day's per-department state.
type SubmissionSource interface {
	DepartmentSubmissions(ctx context.Context) (SubmissionsResult, error)
}

// TrackerSnapshot is the tracker's view of the day. When a refresh fails Err
// is set and the last successfully read submissions are retained, so the
// panel keeps showing data with a retry affordance.
type TrackerSnapshot struct {
	Submissions    []DepartmentSubmission `json:"submissions"`
	Source         SourceTier             `json:"source"`
	SubmittedCount int                    `json:"submitted_count"`
	TotalCount     int                    `json:"total_count"`
	AllSubmitted   bool                   `json:"all_submitted"`
	UpdatedAt      time.Time              `json:"updated_at"`
	Err            error                  `json:"-"`
}

// SubmissionTracker aggregates per-department submitted state, refreshing on
// an interval and on demand. Reads are idempotent; when a manual refresh and
// a poll overlap, the last completed read replaces the view.
type SubmissionTracker struct {
	source   SubmissionSource
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu   sync.RWMutex
	snap TrackerSnapshot
}

// NewSubmissionTracker constructs a tracker polling at the given interval
// (default one minute).
func NewSubmissionTracker(source SubmissionSource, interval time.Duration, now func() time.Time, logger *slog.Logger) *SubmissionTracker {
	if interval <= 0 {
		interval = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &SubmissionTracker{
		source:   source,
		interval: interval,
		now:      now,
		logger:   defaultLogger(logger),
	}
}

// Refresh reads the submission state once and updates the snapshot. Errors
// are retained on the snapshot rather than clearing existing data.
func (t *SubmissionTracker) Refresh(ctx context.Context) TrackerSnapshot {
	logger := serviceLogger(ctx, t.logger, "SubmissionTracker", "Refresh")

	result, err := t.source.DepartmentSubmissions(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.snap.Err = err
		t.snap.UpdatedAt = t.now()
		logger.ErrorContext(ctx, "submission refresh failed, retaining last view", "error", err, "error_kind", ErrorKind(err))
		return t.snap
	}

	submitted, total, all := Aggregate(result.Submissions)
	t.snap = TrackerSnapshot{
		Submissions:    result.Submissions,
		Source:         result.Source,
		SubmittedCount: submitted,
		TotalCount:     total,
		AllSubmitted:   all,
		UpdatedAt:      t.now(),
	}
	logger.DebugContext(ctx, "submission view refreshed",
		"submitted", submitted, "total", total, "all_submitted", all, "source", result.Source)
	return t.snap
}

// Snapshot returns the most recent view without refreshing.
func (t *SubmissionTracker) Snapshot() TrackerSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Run refreshes immediately and then on every tick until the context ends.
func (t *SubmissionTracker) Run(ctx context.Context) {
	t.Refresh(ctx)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Refresh(ctx)
		}
	}
}
