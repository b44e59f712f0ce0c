package persistence

import "context"

// RosterStore persists the flattened employee list for a department and day.
type RosterStore interface {
	SaveRoster(ctx context.Context, department, day string, employees []EmployeeRecord) error
	GetRoster(ctx context.Context, department, day string) ([]EmployeeRecord, error)
}

// SubmissionStore persists the per-day department submission markers.
type SubmissionStore interface {
	SaveSubmissions(ctx context.Context, day string, submissions []SubmissionRecord) error
	GetSubmissions(ctx context.Context, day string) ([]SubmissionRecord, error)
}

// ArtifactStore is a durable key/value store for identity and session
// artifacts. Identity-library keys are opaque and only ever bulk-cleared by
// prefix at sign-out.
type ArtifactStore interface {
	PutArtifact(ctx context.Context, key, value string) error
	GetArtifact(ctx context.Context, key string) (string, error)
	DeleteArtifact(ctx context.Context, key string) error
	DeleteArtifactsByPrefix(ctx context.Context, prefix string) error
}

// LocalStore aggregates the durable local persistence surface used as the
// fallback mirror for the remote spreadsheet API.
type LocalStore interface {
	RosterStore
	SubmissionStore
	ArtifactStore
}
