package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
	"github.com/StepsArtworks/rollcall/internal/logging"
	"github.com/StepsArtworks/rollcall/internal/persistence"
)

// markerLabel tags the worksheet row carrying the per-day submission
// timestamps. It can never collide with an employee id.
const markerLabel = "_submitted"

// summarySentKey is the artifact recording which day's completion summary has
// already been posted.
const summarySentKey = "summary.sent"

// Workbook is the consumed surface of the spreadsheet-backed API: worksheets
// are named after departments and addressed by cell ranges.
type Workbook interface {
	ListWorksheets(ctx context.Context) ([]string, error)
	UsedRange(ctx context.Context, worksheet string) ([][]string, error)
	WriteRange(ctx context.Context, worksheet, address string, values [][]string) error
}

// NamedRef is a team or channel reference in the messaging API.
type NamedRef struct {
	ID   string
	Name string
}

// Messenger is the consumed surface of the messaging API used for the
// day-completion summary.
type Messenger interface {
	ListTeams(ctx context.Context) ([]NamedRef, error)
	ListChannels(ctx context.Context, teamID string) ([]NamedRef, error)
	PostMessage(ctx context.Context, teamID, channelID, content string) error
}

// TokenSource yields a bearer token for remote calls. Token absence is the
// signal to degrade to the local tier.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Gateway performs reads and writes against the remote spreadsheet API with
// the local store as guaranteed fallback mirror. The remote side is never the
// source of truth for availability: every operation has a defined degraded
// continuation.
type Gateway struct {
	workbook  Workbook
	messenger Messenger
	tokens    TokenSource
	local     persistence.LocalStore
	team      string
	channel   string
	now       func() time.Time
	logger    *slog.Logger
	summary   summaryGate

	// mirrorMu serializes read-modify-write updates of the day's submission
	// list. Without it two concurrent submissions can read the same stale
	// list and the last save drops the other department's marker.
	mirrorMu sync.Mutex
}

// NewGateway constructs a Gateway. tokens may be nil when the workbook needs
// no authentication (the offline file backend); messenger may be nil when no
// notification channel is configured.
func NewGateway(workbook Workbook, messenger Messenger, tokens TokenSource, local persistence.LocalStore, team, channel string, now func() time.Time, logger *slog.Logger) *Gateway {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		workbook:  workbook,
		messenger: messenger,
		tokens:    tokens,
		local:     local,
		team:      team,
		channel:   channel,
		now:       now,
		logger:    logger,
	}
}

func (g *Gateway) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = g.logger
	}
	pairs := append([]any{"service", "Gateway", "operation", operation}, attrs...)
	return logger.With(pairs...)
}

// bearerReady reports whether remote calls can be attempted: either the
// backend needs no token, or one is obtainable for the current account.
func (g *Gateway) bearerReady(ctx context.Context) bool {
	if g.tokens == nil {
		return true
	}
	_, err := g.tokens.AccessToken(ctx)
	return err == nil
}

// ListEmployees fetches the department's roster: remote worksheet first, then
// today's local mirror, then the deterministic built-in roster. It never
// returns an empty list for a known department.
func (g *Gateway) ListEmployees(ctx context.Context, dept application.Department) (application.RosterResult, error) {
	logger := g.loggerWith(ctx, "ListEmployees", "department", dept)

	if g.workbook != nil && g.bearerReady(ctx) {
		grid, err := g.workbook.UsedRange(ctx, string(dept))
		if err == nil {
			if employees := parseRosterGrid(grid, dept); len(employees) > 0 {
				return application.RosterResult{Employees: employees, Source: application.FromRemote}, nil
			}
			logger.WarnContext(ctx, "worksheet has no employee rows, falling back")
		} else {
			logger.WarnContext(ctx, "remote roster fetch failed, falling back", "error", err)
		}
	}

	day := application.DayKey(g.now())
	if records, err := g.local.GetRoster(ctx, string(dept), day); err == nil && len(records) > 0 {
		employees := make([]application.Employee, 0, len(records))
		for _, record := range records {
			employees = append(employees, application.Employee{
				ID:         record.ID,
				Name:       record.Name,
				Department: dept,
				Status:     application.AttendanceStatus(record.Status),
			})
		}
		return application.RosterResult{Employees: employees, Source: application.FromLocal}, nil
	}

	logger.InfoContext(ctx, "serving built-in roster")
	return application.RosterResult{Employees: MockRoster(dept), Source: application.Synthesized}, nil
}

// SubmitAttendance writes one status cell per employee for the current day
// plus the submission marker, then mirrors the same data into the local store
// regardless of the remote outcome. After a successful write it re-checks the
// day and posts the completion summary exactly once when all departments are
// in.
func (g *Gateway) SubmitAttendance(ctx context.Context, dept application.Department, employees []application.Employee) (application.SubmissionOutcome, error) {
	logger := g.loggerWith(ctx, "SubmitAttendance", "department", dept)

	submittedAt := g.now()
	day := application.DayKey(submittedAt)

	resolved := make([]application.Employee, len(employees))
	for i, employee := range employees {
		employee.Department = dept
		employee.Status = employee.ResolvedStatus()
		resolved[i] = employee
	}

	source := application.FromLocal
	if g.workbook != nil && g.bearerReady(ctx) {
		if err := g.writeRemote(ctx, dept, resolved, day, submittedAt); err != nil {
			logger.WarnContext(ctx, "remote submission failed, local mirror only", "error", err)
		} else {
			source = application.FromRemote
		}
	}

	records := make([]persistence.EmployeeRecord, len(resolved))
	for i, employee := range resolved {
		records[i] = persistence.EmployeeRecord{ID: employee.ID, Name: employee.Name, Status: string(employee.Status)}
	}
	if err := g.local.SaveRoster(ctx, string(dept), day, records); err != nil {
		return application.SubmissionOutcome{}, fmt.Errorf("mirror roster: %w", err)
	}
	if err := g.markSubmittedLocally(ctx, dept, day, submittedAt); err != nil {
		return application.SubmissionOutcome{}, fmt.Errorf("mirror submission: %w", err)
	}

	logger.InfoContext(ctx, "attendance recorded", "day", day, "employees", len(resolved), "source", source)

	result, err := g.DepartmentSubmissions(ctx)
	if err == nil {
		if _, _, all := application.Aggregate(result.Submissions); all {
			g.maybeSendSummary(ctx, day, result.Submissions)
		}
	}

	return application.SubmissionOutcome{
		Submission: application.DepartmentSubmission{Department: dept, Submitted: true, SubmittedAt: &submittedAt},
		Source:     source,
	}, nil
}

// DepartmentSubmissions returns the current day's submitted state for every
// department: the local mirror when it has entries for today, else the remote
// markers, else synthesized all-pending defaults. The result always covers
// all five departments in display order.
func (g *Gateway) DepartmentSubmissions(ctx context.Context) (application.SubmissionsResult, error) {
	logger := g.loggerWith(ctx, "DepartmentSubmissions")
	day := application.DayKey(g.now())

	if records, err := g.local.GetSubmissions(ctx, day); err == nil && len(records) > 0 {
		return application.SubmissionsResult{
			Submissions: normalizeSubmissions(recordsToSubmissions(records)),
			Source:      application.FromLocal,
		}, nil
	}

	if g.workbook != nil && g.bearerReady(ctx) {
		submissions, err := g.readRemoteSubmissions(ctx, day)
		if err == nil {
			return application.SubmissionsResult{
				Submissions: normalizeSubmissions(submissions),
				Source:      application.FromRemote,
			}, nil
		}
		logger.WarnContext(ctx, "remote submission read failed, synthesizing defaults", "error", err)
	}

	return application.SubmissionsResult{
		Submissions: normalizeSubmissions(nil),
		Source:      application.Synthesized,
	}, nil
}

// VerifyWorkbook checks that the workbook carries a worksheet for every
// department. A missing sheet means that department's attendance writes would
// land nowhere, so callers surface this at startup rather than at the first
// submission. No-token or no-workbook states are not verification failures.
func (g *Gateway) VerifyWorkbook(ctx context.Context) error {
	if g.workbook == nil || !g.bearerReady(ctx) {
		return nil
	}

	sheets, err := g.workbook.ListWorksheets(ctx)
	if err != nil {
		return fmt.Errorf("%w: list worksheets: %v", application.ErrRemoteUnavailable, err)
	}

	present := make(map[string]bool, len(sheets))
	for _, sheet := range sheets {
		present[sheet] = true
	}
	var missing []string
	for _, dept := range application.Departments() {
		if !present[string(dept)] {
			missing = append(missing, string(dept))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("workbook is missing worksheets: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SendSummary composes the per-department breakdown grouped by status and
// posts it to the configured channel. Failures are logged and swallowed: the
// attendance record is already durably stored, so the notification must never
// block or roll back a submission.
func (g *Gateway) SendSummary(ctx context.Context, submissions []application.DepartmentSubmission) {
	if err := g.sendSummary(ctx, submissions); err != nil {
		g.loggerWith(ctx, "SendSummary").ErrorContext(ctx, "summary notification failed", "error", err)
	}
}

func (g *Gateway) writeRemote(ctx context.Context, dept application.Department, employees []application.Employee, day string, submittedAt time.Time) error {
	grid, err := g.workbook.UsedRange(ctx, string(dept))
	if err != nil {
		return fmt.Errorf("%w: read worksheet %s: %v", application.ErrRemoteUnavailable, dept, err)
	}

	header := []string{}
	if len(grid) > 0 {
		header = grid[0]
	}

	dateColumn := -1
	for i, cell := range header {
		if strings.TrimSpace(cell) == day {
			dateColumn = i
			break
		}
	}
	if dateColumn < 0 {
		dateColumn = len(header)
		if dateColumn < 2 {
			dateColumn = 2
		}
		if err := g.workbook.WriteRange(ctx, string(dept), CellAddress(dateColumn, 1), [][]string{{day}}); err != nil {
			return fmt.Errorf("write date header: %w", err)
		}
	}

	rowByID := make(map[string]int, len(grid))
	markerRow := -1
	for i, row := range grid {
		if i == 0 || len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(row[0])
		switch id {
		case "":
		case markerLabel:
			markerRow = i + 1
		default:
			rowByID[id] = i + 1
		}
	}

	for _, employee := range employees {
		row, ok := rowByID[employee.ID]
		if !ok {
			g.loggerWith(ctx, "SubmitAttendance").WarnContext(ctx, "employee missing from worksheet, skipping cell",
				"department", dept, "employee_id", employee.ID)
			continue
		}
		if err := g.workbook.WriteRange(ctx, string(dept), CellAddress(dateColumn, row), [][]string{{string(employee.Status)}}); err != nil {
			return fmt.Errorf("write status cell: %w", err)
		}
	}

	if markerRow < 0 {
		markerRow = len(grid) + 1
		if err := g.workbook.WriteRange(ctx, string(dept), CellAddress(0, markerRow), [][]string{{markerLabel}}); err != nil {
			return fmt.Errorf("write submission marker label: %w", err)
		}
	}
	if err := g.workbook.WriteRange(ctx, string(dept), CellAddress(dateColumn, markerRow), [][]string{{submittedAt.UTC().Format(time.RFC3339)}}); err != nil {
		return fmt.Errorf("write submission marker: %w", err)
	}
	return nil
}

func (g *Gateway) readRemoteSubmissions(ctx context.Context, day string) ([]application.DepartmentSubmission, error) {
	submissions := make([]application.DepartmentSubmission, 0, len(application.Departments()))
	for _, dept := range application.Departments() {
		grid, err := g.workbook.UsedRange(ctx, string(dept))
		if err != nil {
			return nil, fmt.Errorf("%w: read worksheet %s: %v", application.ErrRemoteUnavailable, dept, err)
		}
		submissions = append(submissions, submissionFromGrid(grid, dept, day))
	}
	return submissions, nil
}

func (g *Gateway) markSubmittedLocally(ctx context.Context, dept application.Department, day string, submittedAt time.Time) error {
	g.mirrorMu.Lock()
	defer g.mirrorMu.Unlock()

	records, err := g.local.GetSubmissions(ctx, day)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return err
	}

	submissions := normalizeSubmissions(recordsToSubmissions(records))
	for i := range submissions {
		if submissions[i].Department == dept {
			stamp := submittedAt
			submissions[i].Submitted = true
			submissions[i].SubmittedAt = &stamp
		}
	}

	updated := make([]persistence.SubmissionRecord, len(submissions))
	for i, submission := range submissions {
		updated[i] = persistence.SubmissionRecord{
			Department:  string(submission.Department),
			Submitted:   submission.Submitted,
			SubmittedAt: submission.SubmittedAt,
		}
	}
	return g.local.SaveSubmissions(ctx, day, updated)
}

// maybeSendSummary posts the completion summary at most once per day. The
// durable artifact survives restarts; the in-process gate closes the window
// between check and send.
func (g *Gateway) maybeSendSummary(ctx context.Context, day string, submissions []application.DepartmentSubmission) {
	if sent, err := g.local.GetArtifact(ctx, summarySentKey); err == nil && sent == day {
		return
	}
	if !g.summary.tryAcquire(day) {
		return
	}

	if err := g.sendSummary(ctx, submissions); err != nil {
		g.loggerWith(ctx, "SendSummary").ErrorContext(ctx, "summary notification failed", "error", err)
		g.summary.revoke(day)
		return
	}
	if err := g.local.PutArtifact(ctx, summarySentKey, day); err != nil {
		g.loggerWith(ctx, "SendSummary").WarnContext(ctx, "failed to persist summary marker", "error", err)
	}
}

func (g *Gateway) sendSummary(ctx context.Context, submissions []application.DepartmentSubmission) error {
	if g.messenger == nil {
		return errors.New("no messenger configured")
	}
	if g.tokens != nil {
		if _, err := g.tokens.AccessToken(ctx); err != nil {
			return fmt.Errorf("no bearer token for summary: %w", err)
		}
	}

	teamID, channelID, err := g.resolveChannel(ctx)
	if err != nil {
		return err
	}

	day := application.DayKey(g.now())
	content := g.composeSummary(ctx, day, submissions)

	if err := g.messenger.PostMessage(ctx, teamID, channelID, content); err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	g.loggerWith(ctx, "SendSummary").InfoContext(ctx, "summary posted", "day", day)
	return nil
}

func (g *Gateway) resolveChannel(ctx context.Context) (string, string, error) {
	teams, err := g.messenger.ListTeams(ctx)
	if err != nil {
		return "", "", fmt.Errorf("list teams: %w", err)
	}
	team, ok := matchRef(teams, g.team)
	if !ok {
		return "", "", fmt.Errorf("team %q not found", g.team)
	}

	channels, err := g.messenger.ListChannels(ctx, team.ID)
	if err != nil {
		return "", "", fmt.Errorf("list channels: %w", err)
	}
	channel, ok := matchRef(channels, g.channel)
	if !ok {
		return "", "", fmt.Errorf("channel %q not found", g.channel)
	}
	return team.ID, channel.ID, nil
}

// composeSummary builds the per-department breakdown. Rosters come from the
// local mirror, which SubmitAttendance populates on every submission.
func (g *Gateway) composeSummary(ctx context.Context, day string, submissions []application.DepartmentSubmission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attendance summary for %s: all departments submitted.\n", day)

	for _, submission := range submissions {
		if !submission.Submitted {
			continue
		}
		fmt.Fprintf(&b, "\n%s", submission.Department)
		if submission.SubmittedAt != nil {
			fmt.Fprintf(&b, " (submitted %s)", submission.SubmittedAt.UTC().Format("15:04"))
		}
		b.WriteString(":")

		records, err := g.local.GetRoster(ctx, string(submission.Department), day)
		if err != nil || len(records) == 0 {
			b.WriteString(" no roster detail available\n")
			continue
		}
		b.WriteString("\n")

		byStatus := make(map[application.AttendanceStatus][]string)
		for _, record := range records {
			status := application.AttendanceStatus(record.Status)
			byStatus[status] = append(byStatus[status], record.Name)
		}
		for _, status := range application.Statuses() {
			names := byStatus[status]
			if len(names) == 0 {
				continue
			}
			fmt.Fprintf(&b, "  %s %s (%d): %s\n", status.Info().Glyph, status.Info().Label, len(names), strings.Join(names, ", "))
		}
	}
	return b.String()
}

func matchRef(refs []NamedRef, name string) (NamedRef, bool) {
	if name == "" && len(refs) > 0 {
		return refs[0], true
	}
	for _, ref := range refs {
		if strings.EqualFold(ref.Name, name) {
			return ref, true
		}
	}
	return NamedRef{}, false
}

func parseRosterGrid(grid [][]string, dept application.Department) []application.Employee {
	employees := make([]application.Employee, 0, len(grid))
	for i, row := range grid {
		if i == 0 || len(row) == 0 {
			continue
		}
		id := strings.TrimSpace(row[0])
		if id == "" || id == markerLabel {
			continue
		}
		name := id
		if len(row) > 1 && strings.TrimSpace(row[1]) != "" {
			name = strings.TrimSpace(row[1])
		}
		employees = append(employees, application.Employee{
			ID:         id,
			Name:       name,
			Department: dept,
			Status:     application.StatusAbsent,
		})
	}
	return employees
}

func submissionFromGrid(grid [][]string, dept application.Department, day string) application.DepartmentSubmission {
	submission := application.DepartmentSubmission{Department: dept}
	if len(grid) == 0 {
		return submission
	}

	dateColumn := -1
	for i, cell := range grid[0] {
		if strings.TrimSpace(cell) == day {
			dateColumn = i
			break
		}
	}
	if dateColumn < 0 {
		return submission
	}

	for i, row := range grid {
		if i == 0 || len(row) == 0 || strings.TrimSpace(row[0]) != markerLabel {
			continue
		}
		if dateColumn >= len(row) {
			break
		}
		stamp := strings.TrimSpace(row[dateColumn])
		if stamp == "" {
			break
		}
		submission.Submitted = true
		if parsed, err := time.Parse(time.RFC3339, stamp); err == nil {
			submission.SubmittedAt = &parsed
		}
		break
	}
	return submission
}

func recordsToSubmissions(records []persistence.SubmissionRecord) []application.DepartmentSubmission {
	submissions := make([]application.DepartmentSubmission, 0, len(records))
	for _, record := range records {
		submissions = append(submissions, application.DepartmentSubmission{
			Department:  application.Department(record.Department),
			Submitted:   record.Submitted,
			SubmittedAt: record.SubmittedAt,
		})
	}
	return submissions
}

// normalizeSubmissions folds arbitrary submission entries into exactly one
// entry per fixed department, in display order. Duplicate entries for a
// department collapse to the submitted one with the latest timestamp.
func normalizeSubmissions(submissions []application.DepartmentSubmission) []application.DepartmentSubmission {
	byDept := make(map[application.Department]application.DepartmentSubmission, len(submissions))
	for _, submission := range submissions {
		existing, ok := byDept[submission.Department]
		if !ok {
			byDept[submission.Department] = submission
			continue
		}
		if submission.Submitted && (!existing.Submitted || laterTime(submission.SubmittedAt, existing.SubmittedAt)) {
			byDept[submission.Department] = submission
		}
	}

	out := make([]application.DepartmentSubmission, 0, len(application.Departments()))
	for _, dept := range application.Departments() {
		if submission, ok := byDept[dept]; ok {
			out = append(out, submission)
			continue
		}
		out = append(out, application.DepartmentSubmission{Department: dept})
	}
	return out
}

func laterTime(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}
