package application

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionState is the attendance session's position in its linear flow.
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateLoading    SessionState = "loading"
	StateReady      SessionState = "ready"
	StateSubmitting SessionState = "submitting"
	StateDone       SessionState = "done"
	StateError      SessionState = "error"
)

// InvalidStateError reports an operation attempted outside the state that
// permits it.
type InvalidStateError struct {
	State SessionState
	Op    string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("operation %s not allowed in state %s", e.Op, e.State)
}

// RosterSource provides a department's employee list.
type RosterSource interface {
	ListEmployees(ctx context.Context, dept Department) (RosterResult, error)
}

// AttendanceSubmitter writes a department's statuses for the current day.
type AttendanceSubmitter interface {
	SubmitAttendance(ctx context.Context, dept Department, employees []Employee) (SubmissionOutcome, error)
}

// AttendanceGateway is the data surface an attendance session needs.
type AttendanceGateway interface {
	RosterSource
	AttendanceSubmitter
}

// AttendanceSession drives one department's fetch → edit → submit flow. It is
// single-use: Done is terminal and a new department gets a new session.
type AttendanceSession struct {
	dept    Department
	gateway AttendanceGateway
	logger  *slog.Logger

	state     SessionState
	employees []Employee
	source    SourceTier
	lastErr   error
	failedOp  SessionState
}

// NewAttendanceSession constructs an idle session for the department.
func NewAttendanceSession(dept Department, gateway AttendanceGateway, logger *slog.Logger) *AttendanceSession {
	return &AttendanceSession{
		dept:    dept,
		gateway: gateway,
		logger:  defaultLogger(logger),
		state:   StateIdle,
	}
}

// Department returns the department this session edits.
func (s *AttendanceSession) Department() Department {
	return s.dept
}

// State returns the current machine state.
func (s *AttendanceSession) State() SessionState {
	return s.state
}

// Err returns the failure recorded by the last transition into StateError.
func (s *AttendanceSession) Err() error {
	return s.lastErr
}

// Source reports which tier served the loaded roster.
func (s *AttendanceSession) Source() SourceTier {
	return s.source
}

// Employees returns a copy of the in-memory roster.
func (s *AttendanceSession) Employees() []Employee {
	out := make([]Employee, len(s.employees))
	copy(out, s.employees)
	return out
}

// Load fetches the roster, moving Idle → Loading → Ready, or to Error when
// the fetch fails.
func (s *AttendanceSession) Load(ctx context.Context) error {
	if s.state != StateIdle {
		return &InvalidStateError{State: s.state, Op: "Load"}
	}
	return s.load(ctx)
}

func (s *AttendanceSession) load(ctx context.Context) error {
	s.state = StateLoading
	logger := serviceLogger(ctx, s.logger, "AttendanceSession", "Load", "department", s.dept)

	result, err := s.gateway.ListEmployees(ctx, s.dept)
	if err != nil {
		s.state = StateError
		s.lastErr = err
		s.failedOp = StateLoading
		logger.ErrorContext(ctx, "roster fetch failed", "error", err, "error_kind", ErrorKind(err))
		return err
	}

	s.employees = result.Employees
	s.source = result.Source
	s.state = StateReady
	s.lastErr = nil
	logger.InfoContext(ctx, "roster loaded", "count", len(result.Employees), "source", result.Source)
	return nil
}

// SetStatus records a status for one employee. Allowed only in Ready, which
// tolerates arbitrarily many edits.
func (s *AttendanceSession) SetStatus(employeeID string, status AttendanceStatus) error {
	if s.state != StateReady {
		return &InvalidStateError{State: s.state, Op: "SetStatus"}
	}
	if !status.Valid() {
		vErr := &ValidationError{}
		vErr.add("status", fmt.Sprintf("unknown status %q", status))
		return vErr
	}
	for i := range s.employees {
		if s.employees[i].ID == employeeID {
			s.employees[i].Status = status
			return nil
		}
	}
	return fmt.Errorf("%w: employee %s", ErrNotFound, employeeID)
}

// Submit writes the day's statuses, moving Ready → Submitting → Done, or to
// Error when the write fails.
func (s *AttendanceSession) Submit(ctx context.Context) (SubmissionOutcome, error) {
	if s.state != StateReady {
		return SubmissionOutcome{}, &InvalidStateError{State: s.state, Op: "Submit"}
	}
	return s.submit(ctx)
}

func (s *AttendanceSession) submit(ctx context.Context) (SubmissionOutcome, error) {
	s.state = StateSubmitting
	logger := serviceLogger(ctx, s.logger, "AttendanceSession", "Submit", "department", s.dept)

	outcome, err := s.gateway.SubmitAttendance(ctx, s.dept, s.employees)
	if err != nil {
		s.state = StateError
		s.lastErr = err
		s.failedOp = StateSubmitting
		logger.ErrorContext(ctx, "submission failed", "error", err, "error_kind", ErrorKind(err))
		return SubmissionOutcome{}, err
	}

	s.state = StateDone
	s.lastErr = nil
	logger.InfoContext(ctx, "attendance submitted", "source", outcome.Source)
	return outcome, nil
}

// Retry re-runs the operation that moved the session into Error: a failed
// fetch loads again, a failed submission submits again.
func (s *AttendanceSession) Retry(ctx context.Context) (SubmissionOutcome, error) {
	if s.state != StateError {
		return SubmissionOutcome{}, &InvalidStateError{State: s.state, Op: "Retry"}
	}
	switch s.failedOp {
	case StateSubmitting:
		return s.submit(ctx)
	default:
		return SubmissionOutcome{}, s.load(ctx)
	}
}
