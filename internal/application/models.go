package application

import "time"

// Department identifies one of the studio's five fixed departments. The set
// is closed; worksheet names in the backing spreadsheet equal these values.
type Department string

const (
	DeptProduction     Department = "Production"
	DeptAnimation      Department = "Animation"
	DeptEditorial      Department = "Editorial"
	DeptPipeline       Department = "Pipeline"
	DeptAdministration Department = "Administration"
)

var departments = []Department{
	DeptProduction,
	DeptAnimation,
	DeptEditorial,
	DeptPipeline,
	DeptAdministration,
}

// Departments returns the fixed department set in display order.
func Departments() []Department {
	out := make([]Department, len(departments))
	copy(out, departments)
	return out
}

// ParseDepartment resolves a department by its exact name.
func ParseDepartment(name string) (Department, bool) {
	for _, dept := range departments {
		if string(dept) == name {
			return dept, true
		}
	}
	return "", false
}

// AttendanceStatus is one of the fixed attendance values an employee can be
// marked with. The empty string means "not yet chosen".
type AttendanceStatus string

const (
	StatusUnset   AttendanceStatus = ""
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
	StatusOnsite  AttendanceStatus = "onsite"
	StatusLeave   AttendanceStatus = "leave"
	StatusSick    AttendanceStatus = "sick"
)

var statuses = []AttendanceStatus{
	StatusPresent,
	StatusLate,
	StatusAbsent,
	StatusOnsite,
	StatusLeave,
	StatusSick,
}

// Statuses returns the selectable attendance statuses in display order.
func Statuses() []AttendanceStatus {
	out := make([]AttendanceStatus, len(statuses))
	copy(out, statuses)
	return out
}

// Valid reports whether the status is a member of the closed set. The unset
// value is not valid for submission; it resolves to absent instead.
func (s AttendanceStatus) Valid() bool {
	for _, status := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

// StatusInfo carries the display metadata attached to each status.
type StatusInfo struct {
	Label      string `json:"label"`
	Glyph      string `json:"glyph"`
	ColorClass string `json:"color_class"`
}

var statusInfo = map[AttendanceStatus]StatusInfo{
	StatusPresent: {Label: "Present", Glyph: "✔", ColorClass: "status-green"},
	StatusLate:    {Label: "Late", Glyph: "🕤", ColorClass: "status-amber"},
	StatusAbsent:  {Label: "Absent", Glyph: "✖", ColorClass: "status-red"},
	StatusOnsite:  {Label: "On Site", Glyph: "📍", ColorClass: "status-blue"},
	StatusLeave:   {Label: "On Leave", Glyph: "🌴", ColorClass: "status-purple"},
	StatusSick:    {Label: "Sick", Glyph: "🤒", ColorClass: "status-orange"},
}

// Info returns the display metadata for the status.
func (s AttendanceStatus) Info() StatusInfo {
	return statusInfo[s]
}

// Employee is one roster entry for a department's editing session. Status is
// mutated locally until the session submits.
type Employee struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Department Department       `json:"department"`
	Status     AttendanceStatus `json:"status,omitempty"`
}

// ResolvedStatus returns the status recorded at submission time: an employee
// without an explicitly chosen status is recorded as absent.
func (e Employee) ResolvedStatus() AttendanceStatus {
	if e.Status.Valid() {
		return e.Status
	}
	return StatusAbsent
}

// DepartmentSubmission is the per-day submitted marker for one department.
type DepartmentSubmission struct {
	Department  Department `json:"department"`
	Submitted   bool       `json:"submitted"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

// Account is the signed-in principal: either provider-issued or fabricated by
// the local fallback sign-in, in which case Mock is true and no bearer token
// will ever be available.
type Account struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Mock     bool   `json:"mock,omitempty"`
}

// SourceTier identifies which tier of the remote-then-local data source
// served a response.
type SourceTier string

const (
	// FromRemote means the remote spreadsheet API answered.
	FromRemote SourceTier = "remote"
	// FromLocal means the durable local mirror answered.
	FromLocal SourceTier = "local"
	// Synthesized means neither tier had data and built-in defaults were used.
	Synthesized SourceTier = "synthesized"
)

// RosterResult is a department roster together with the tier that served it.
type RosterResult struct {
	Employees []Employee `json:"employees"`
	Source    SourceTier `json:"source"`
}

// SubmissionsResult is the current day's submission state per department
// together with the tier that served it.
type SubmissionsResult struct {
	Submissions []DepartmentSubmission `json:"submissions"`
	Source      SourceTier             `json:"source"`
}

// SubmissionOutcome reports the result of submitting one department's
// attendance.
type SubmissionOutcome struct {
	Submission DepartmentSubmission `json:"submission"`
	Source     SourceTier           `json:"source"`
}

// Aggregate computes the tracker counters over a submission list. The total
// is always the size of the fixed department set: AllSubmitted holds only
// when every one of the five departments is submitted.
func Aggregate(submissions []DepartmentSubmission) (submittedCount, totalCount int, allSubmitted bool) {
	totalCount = len(departments)
	seen := make(map[Department]bool, len(submissions))
	for _, submission := range submissions {
		if submission.Submitted {
			seen[submission.Department] = true
		}
	}
	for _, dept := range departments {
		if seen[dept] {
			submittedCount++
		}
	}
	return submittedCount, totalCount, submittedCount == totalCount
}

// DayKey formats a timestamp as the calendar-day key used throughout the
// local store and the spreadsheet date headers.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
