package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
	"github.com/StepsArtworks/rollcall/internal/persistence"
)

var employeeCounter uint64

var referenceTime = time.Date(2024, time.January, 2, 15, 4, 5, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// EmployeeFixture represents a deterministic employee record for tests.
type EmployeeFixture struct {
	ID         string
	Name       string
	Department application.Department
	Status     application.AttendanceStatus
}

// EmployeeOption configures the generated employee fixture.
type EmployeeOption func(*EmployeeFixture)

// NewEmployeeFixture returns a deterministic employee fixture with optional
// overrides.
func NewEmployeeFixture(opts ...EmployeeOption) EmployeeFixture {
	idx := atomic.AddUint64(&employeeCounter, 1)
	fixture := EmployeeFixture{
		ID:         fmt.Sprintf("emp-%03d", idx),
		Name:       fmt.Sprintf("Employee %03d", idx),
		Department: application.DeptProduction,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEmployeeID overrides the generated employee ID.
func WithEmployeeID(id string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.ID = id
	}
}

// WithEmployeeName overrides the generated name.
func WithEmployeeName(name string) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Name = name
	}
}

// WithEmployeeDepartment assigns the fixture to a department.
func WithEmployeeDepartment(dept application.Department) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Department = dept
	}
}

// WithEmployeeStatus sets the attendance status.
func WithEmployeeStatus(status application.AttendanceStatus) EmployeeOption {
	return func(f *EmployeeFixture) {
		f.Status = status
	}
}

// Application returns the fixture as an application.Employee value.
func (f EmployeeFixture) Application() application.Employee {
	return application.Employee{
		ID:         f.ID,
		Name:       f.Name,
		Department: f.Department,
		Status:     f.Status,
	}
}

// Persistence returns the fixture as a persistence.EmployeeRecord value.
func (f EmployeeFixture) Persistence() persistence.EmployeeRecord {
	return persistence.EmployeeRecord{
		ID:     f.ID,
		Name:   f.Name,
		Status: string(f.Status),
	}
}

// SubmittedDepartments builds a submission list with the listed departments
// marked submitted at the reference time and every other department pending.
func SubmittedDepartments(depts ...application.Department) []application.DepartmentSubmission {
	marked := make(map[application.Department]bool, len(depts))
	for _, dept := range depts {
		marked[dept] = true
	}
	stamp := ReferenceTime()

	submissions := make([]application.DepartmentSubmission, 0, len(application.Departments()))
	for _, dept := range application.Departments() {
		submission := application.DepartmentSubmission{Department: dept}
		if marked[dept] {
			submission.Submitted = true
			submission.SubmittedAt = &stamp
		}
		submissions = append(submissions, submission)
	}
	return submissions
}
