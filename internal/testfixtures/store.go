package testfixtures

import (
	"context"
	"strings"
	"sync"

	"github.com/StepsArtworks/rollcall/internal/persistence"
)

type rosterKey struct {
	department string
	day        string
}

// Store is an in-memory persistence.LocalStore for tests.
type Store struct {
	mu          sync.RWMutex
	rosters     map[rosterKey][]persistence.EmployeeRecord
	submissions map[string][]persistence.SubmissionRecord
	artifacts   map[string]string
}

// NewStore returns an empty in-memory local store.
func NewStore() *Store {
	return &Store{
		rosters:     make(map[rosterKey][]persistence.EmployeeRecord),
		submissions: make(map[string][]persistence.SubmissionRecord),
		artifacts:   make(map[string]string),
	}
}

// SaveRoster stores the employee list for a department and day.
func (s *Store) SaveRoster(ctx context.Context, department, day string, employees []persistence.EmployeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rosters[rosterKey{department, day}] = cloneEmployees(employees)
	return nil
}

// GetRoster retrieves the stored employee list for a department and day.
func (s *Store) GetRoster(ctx context.Context, department, day string) ([]persistence.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	employees, ok := s.rosters[rosterKey{department, day}]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return cloneEmployees(employees), nil
}

// SaveSubmissions stores the submission list for a day.
func (s *Store) SaveSubmissions(ctx context.Context, day string, submissions []persistence.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[day] = cloneSubmissions(submissions)
	return nil
}

// GetSubmissions retrieves the submission list stored for a day.
func (s *Store) GetSubmissions(ctx context.Context, day string) ([]persistence.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submissions, ok := s.submissions[day]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return cloneSubmissions(submissions), nil
}

// PutArtifact stores or replaces a key/value artifact.
func (s *Store) PutArtifact(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[key] = value
	return nil
}

// GetArtifact retrieves an artifact value by key.
func (s *Store) GetArtifact(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.artifacts[key]
	if !ok {
		return "", persistence.ErrNotFound
	}
	return value, nil
}

// DeleteArtifact removes a single artifact.
func (s *Store) DeleteArtifact(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, key)
	return nil
}

// DeleteArtifactsByPrefix removes every artifact whose key starts with the
// prefix.
func (s *Store) DeleteArtifactsByPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.artifacts {
		if strings.HasPrefix(key, prefix) {
			delete(s.artifacts, key)
		}
	}
	return nil
}

// ArtifactKeys returns the stored artifact keys, for assertions.
func (s *Store) ArtifactKeys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.artifacts))
	for key := range s.artifacts {
		keys = append(keys, key)
	}
	return keys
}

func cloneEmployees(in []persistence.EmployeeRecord) []persistence.EmployeeRecord {
	out := make([]persistence.EmployeeRecord, len(in))
	copy(out, in)
	return out
}

func cloneSubmissions(in []persistence.SubmissionRecord) []persistence.SubmissionRecord {
	out := make([]persistence.SubmissionRecord, len(in))
	copy(out, in)
	return out
}
