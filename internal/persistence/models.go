package persistence

import "time"

// EmployeeRecord is a flattened roster entry mirrored into the local store
// after every submission, keyed by department and calendar day.
type EmployeeRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SubmissionRecord captures one department's submitted marker for a day.
type SubmissionRecord struct {
	Department  string     `json:"department"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}
