package gateway

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/StepsArtworks/rollcall/internal/application"
	"github.com/StepsArtworks/rollcall/internal/persistence"
	"github.com/StepsArtworks/rollcall/internal/testfixtures"
)

type writeCall struct {
	Worksheet string
	Address   string
	Values    [][]string
}

type workbookStub struct {
	mu       sync.Mutex
	grids    map[string][][]string
	readErr  error
	writeErr error
	writes   []writeCall
}

func (w *workbookStub) ListWorksheets(context.Context) ([]string, error) {
	if w.readErr != nil {
		return nil, w.readErr
	}
	names := make([]string, 0, len(w.grids))
	for name := range w.grids {
		names = append(names, name)
	}
	return names, nil
}

func (w *workbookStub) UsedRange(_ context.Context, worksheet string) ([][]string, error) {
	if w.readErr != nil {
		return nil, w.readErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.grids[worksheet], nil
}

func (w *workbookStub) WriteRange(_ context.Context, worksheet, address string, values [][]string) error {
	if w.writeErr != nil {
		return w.writeErr
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes = append(w.writes, writeCall{Worksheet: worksheet, Address: address, Values: values})
	return nil
}

func (w *workbookStub) writesTo(worksheet string) []writeCall {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]writeCall, 0, len(w.writes))
	for _, call := range w.writes {
		if call.Worksheet == worksheet {
			out = append(out, call)
		}
	}
	return out
}

type messengerStub struct {
	mu      sync.Mutex
	teams   []NamedRef
	chans   map[string][]NamedRef
	posts   []string
	postErr error
}

func (m *messengerStub) ListTeams(context.Context) ([]NamedRef, error) {
	return m.teams, nil
}

func (m *messengerStub) ListChannels(_ context.Context, teamID string) ([]NamedRef, error) {
	return m.chans[teamID], nil
}

func (m *messengerStub) PostMessage(_ context.Context, _, _, content string) error {
	if m.postErr != nil {
		return m.postErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts = append(m.posts, content)
	return nil
}

func (m *messengerStub) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.posts...)
}

type tokenSourceStub struct {
	token string
	err   error
}

func (t *tokenSourceStub) AccessToken(context.Context) (string, error) {
	return t.token, t.err
}

var testNow = time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func productionGrid() [][]string {
	return [][]string{
		{"ID", "Name"},
		{"e1", "Thandi Maseko"},
		{"e2", "Pieter van der Merwe"},
	}
}

func TestGateway_ListEmployees(t *testing.T) {
	t.Parallel()

	t.Run("serves the remote worksheet when reachable", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{grids: map[string][][]string{"Production": productionGrid()}}
		gw := NewGateway(workbook, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		result, err := gw.ListEmployees(context.Background(), application.DeptProduction)
		if err != nil {
			t.Fatalf("ListEmployees failed: %v", err)
		}
		if result.Source != application.FromRemote {
			t.Fatalf("expected remote tier, got %s", result.Source)
		}
		if len(result.Employees) != 2 || result.Employees[0].ID != "e1" {
			t.Fatalf("unexpected roster: %+v", result.Employees)
		}
	})

	t.Run("skips the marker row in the worksheet", func(t *testing.T) {
		t.Parallel()

		grid := append(productionGrid(), []string{"_submitted", "", "2024-03-03T17:00:00Z"})
		workbook := &workbookStub{grids: map[string][][]string{"Production": grid}}
		gw := NewGateway(workbook, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		result, err := gw.ListEmployees(context.Background(), application.DeptProduction)
		if err != nil {
			t.Fatalf("ListEmployees failed: %v", err)
		}
		for _, employee := range result.Employees {
			if employee.ID == "_submitted" {
				t.Fatal("marker row leaked into the roster")
			}
		}
	})

	t.Run("falls back to the local mirror with stored statuses", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewStore()
		submitted := testfixtures.NewEmployeeFixture(
			testfixtures.WithEmployeeDepartment(application.DeptEditorial),
			testfixtures.WithEmployeeStatus(application.StatusLate),
		)
		if err := store.SaveRoster(context.Background(), "Editorial", "2024-03-04", []persistence.EmployeeRecord{submitted.Persistence()}); err != nil {
			t.Fatalf("seed roster: %v", err)
		}

		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, nil, nil, store, "", "", fixedNow, nil)

		result, err := gw.ListEmployees(context.Background(), application.DeptEditorial)
		if err != nil {
			t.Fatalf("ListEmployees failed: %v", err)
		}
		if result.Source != application.FromLocal {
			t.Fatalf("expected local tier, got %s", result.Source)
		}
		if len(result.Employees) != 1 || result.Employees[0].Status != application.StatusLate {
			t.Fatalf("expected stored status preserved, got %+v", result.Employees)
		}
	})

	t.Run("synthesizes a roster when both tiers are empty", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		for _, dept := range application.Departments() {
			result, err := gw.ListEmployees(context.Background(), dept)
			if err != nil {
				t.Fatalf("ListEmployees(%s) failed: %v", dept, err)
			}
			if result.Source != application.Synthesized {
				t.Fatalf("expected synthesized tier for %s, got %s", dept, result.Source)
			}
			if len(result.Employees) == 0 {
				t.Fatalf("synthesized roster for %s is empty", dept)
			}
		}
	})

	t.Run("skips the remote tier without a bearer token", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{grids: map[string][][]string{"Production": productionGrid()}}
		tokens := &tokenSourceStub{err: application.ErrTokenUnavailable}
		gw := NewGateway(workbook, nil, tokens, testfixtures.NewStore(), "", "", fixedNow, nil)

		result, err := gw.ListEmployees(context.Background(), application.DeptProduction)
		if err != nil {
			t.Fatalf("ListEmployees failed: %v", err)
		}
		if result.Source != application.Synthesized {
			t.Fatalf("expected fallback without token, got %s", result.Source)
		}
	})
}

func TestGateway_SubmitAttendance(t *testing.T) {
	t.Parallel()

	t.Run("writes cells, marker and mirror on the remote path", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{grids: map[string][][]string{"Production": productionGrid()}}
		store := testfixtures.NewStore()
		gw := NewGateway(workbook, nil, nil, store, "", "", fixedNow, nil)

		employees := []application.Employee{
			{ID: "e1", Name: "Thandi Maseko", Status: application.StatusPresent},
			{ID: "e2", Name: "Pieter van der Merwe", Status: application.StatusLate},
		}
		outcome, err := gw.SubmitAttendance(context.Background(), application.DeptProduction, employees)
		if err != nil {
			t.Fatalf("SubmitAttendance failed: %v", err)
		}
		if outcome.Source != application.FromRemote {
			t.Fatalf("expected remote outcome, got %s", outcome.Source)
		}
		if !outcome.Submission.Submitted || outcome.Submission.SubmittedAt == nil {
			t.Fatalf("unexpected submission: %+v", outcome.Submission)
		}

		writes := workbook.writesTo("Production")
		byAddress := make(map[string]string, len(writes))
		for _, call := range writes {
			byAddress[call.Address] = call.Values[0][0]
		}
		if byAddress["C1"] != "2024-03-04" {
			t.Fatalf("expected date header at C1, got %v", byAddress)
		}
		if byAddress["C2"] != "present" || byAddress["C3"] != "late" {
			t.Fatalf("unexpected status cells: %v", byAddress)
		}
		if byAddress["A4"] != "_submitted" {
			t.Fatalf("expected marker label at A4, got %v", byAddress)
		}
		if _, err := time.Parse(time.RFC3339, byAddress["C4"]); err != nil {
			t.Fatalf("expected RFC3339 marker timestamp at C4, got %q", byAddress["C4"])
		}

		records, err := store.GetRoster(context.Background(), "Production", "2024-03-04")
		if err != nil || len(records) != 2 {
			t.Fatalf("expected mirrored roster, got %v (%v)", records, err)
		}
	})

	t.Run("reuses an existing date column", func(t *testing.T) {
		t.Parallel()

		grid := [][]string{
			{"ID", "Name", "2024-03-04"},
			{"e1", "Thandi Maseko", ""},
		}
		workbook := &workbookStub{grids: map[string][][]string{"Production": grid}}
		gw := NewGateway(workbook, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		employees := []application.Employee{{ID: "e1", Name: "Thandi Maseko", Status: application.StatusPresent}}
		if _, err := gw.SubmitAttendance(context.Background(), application.DeptProduction, employees); err != nil {
			t.Fatalf("SubmitAttendance failed: %v", err)
		}

		for _, call := range workbook.writesTo("Production") {
			if call.Address == "C1" || call.Address == "D1" {
				t.Fatalf("must not write a new header when the column exists: %+v", call)
			}
		}
	})

	t.Run("degrades to the local mirror when the remote write fails", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{readErr: errors.New("remote down")}
		store := testfixtures.NewStore()
		gw := NewGateway(workbook, nil, nil, store, "", "", fixedNow, nil)

		employees := []application.Employee{{ID: "e1", Name: "Thandi Maseko", Status: application.StatusPresent}}
		outcome, err := gw.SubmitAttendance(context.Background(), application.DeptProduction, employees)
		if err != nil {
			t.Fatalf("a failed remote write must not fail the submission: %v", err)
		}
		if outcome.Source != application.FromLocal {
			t.Fatalf("expected local outcome, got %s", outcome.Source)
		}
		if !outcome.Submission.Submitted {
			t.Fatalf("submission must still register: %+v", outcome.Submission)
		}

		submissions, err := store.GetSubmissions(context.Background(), "2024-03-04")
		if err != nil {
			t.Fatalf("expected mirrored submissions: %v", err)
		}
		var found bool
		for _, record := range submissions {
			if record.Department == "Production" && record.Submitted {
				found = true
			}
		}
		if !found {
			t.Fatalf("department not marked submitted locally: %+v", submissions)
		}
	})

	t.Run("records unset statuses as absent", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{grids: map[string][][]string{"Production": productionGrid()}}
		store := testfixtures.NewStore()
		gw := NewGateway(workbook, nil, nil, store, "", "", fixedNow, nil)

		employees := []application.Employee{
			{ID: "e1", Name: "Thandi Maseko", Status: application.StatusPresent},
			{ID: "e2", Name: "Pieter van der Merwe"},
		}
		if _, err := gw.SubmitAttendance(context.Background(), application.DeptProduction, employees); err != nil {
			t.Fatalf("SubmitAttendance failed: %v", err)
		}

		records, err := store.GetRoster(context.Background(), "Production", "2024-03-04")
		if err != nil {
			t.Fatalf("expected mirrored roster: %v", err)
		}
		for _, record := range records {
			if record.ID == "e2" && record.Status != "absent" {
				t.Fatalf("unset status must mirror as absent, got %q", record.Status)
			}
		}
		for _, call := range workbook.writesTo("Production") {
			if call.Address == "C3" && call.Values[0][0] != "absent" {
				t.Fatalf("unset status must write as absent, got %q", call.Values[0][0])
			}
		}
	})

	t.Run("resubmission updates the timestamp without duplicating entries", func(t *testing.T) {
		t.Parallel()

		current := testNow
		store := testfixtures.NewStore()
		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, nil, nil, store, "", "", func() time.Time { return current }, nil)

		employees := []application.Employee{{ID: "e1", Name: "Thandi Maseko", Status: application.StatusPresent}}
		first, err := gw.SubmitAttendance(context.Background(), application.DeptProduction, employees)
		if err != nil {
			t.Fatalf("first SubmitAttendance failed: %v", err)
		}

		current = current.Add(45 * time.Minute)
		second, err := gw.SubmitAttendance(context.Background(), application.DeptProduction, employees)
		if err != nil {
			t.Fatalf("second SubmitAttendance failed: %v", err)
		}
		if !second.Submission.SubmittedAt.After(*first.Submission.SubmittedAt) {
			t.Fatalf("expected a later timestamp, got %v then %v", first.Submission.SubmittedAt, second.Submission.SubmittedAt)
		}

		records, err := store.GetSubmissions(context.Background(), "2024-03-04")
		if err != nil {
			t.Fatalf("expected mirrored submissions: %v", err)
		}
		if len(records) != len(application.Departments()) {
			t.Fatalf("expected one record per department, got %d", len(records))
		}
		for _, record := range records {
			if record.Department == "Production" && !record.SubmittedAt.Equal(current) {
				t.Fatalf("expected updated timestamp %v, got %v", current, record.SubmittedAt)
			}
		}
	})
}

func TestGateway_DepartmentSubmissions(t *testing.T) {
	t.Parallel()

	t.Run("serves the local mirror normalized to all departments", func(t *testing.T) {
		t.Parallel()

		store := testfixtures.NewStore()
		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, nil, nil, store, "", "", fixedNow, nil)

		employees := []application.Employee{{ID: "e1", Name: "Thandi Maseko", Status: application.StatusPresent}}
		if _, err := gw.SubmitAttendance(context.Background(), application.DeptAnimation, employees); err != nil {
			t.Fatalf("SubmitAttendance failed: %v", err)
		}

		result, err := gw.DepartmentSubmissions(context.Background())
		if err != nil {
			t.Fatalf("DepartmentSubmissions failed: %v", err)
		}
		if result.Source != application.FromLocal {
			t.Fatalf("expected local tier, got %s", result.Source)
		}
		if len(result.Submissions) != 5 {
			t.Fatalf("expected all five departments, got %d", len(result.Submissions))
		}
		submitted, _, all := application.Aggregate(result.Submissions)
		if submitted != 1 || all {
			t.Fatalf("expected exactly one submitted, got %d all=%v", submitted, all)
		}
	})

	t.Run("reads remote markers when the mirror has no entries", func(t *testing.T) {
		t.Parallel()

		grids := make(map[string][][]string, 5)
		for _, dept := range application.Departments() {
			grids[string(dept)] = [][]string{
				{"ID", "Name", "2024-03-04"},
				{"e1", "Someone", "present"},
			}
		}
		grids["Pipeline"] = append(grids["Pipeline"], []string{"_submitted", "", "2024-03-04T08:15:00Z"})

		workbook := &workbookStub{grids: grids}
		gw := NewGateway(workbook, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		result, err := gw.DepartmentSubmissions(context.Background())
		if err != nil {
			t.Fatalf("DepartmentSubmissions failed: %v", err)
		}
		if result.Source != application.FromRemote {
			t.Fatalf("expected remote tier, got %s", result.Source)
		}
		for _, submission := range result.Submissions {
			submitted := submission.Department == application.DeptPipeline
			if submission.Submitted != submitted {
				t.Fatalf("unexpected state for %s: %+v", submission.Department, submission)
			}
			if submitted && submission.SubmittedAt == nil {
				t.Fatal("expected parsed marker timestamp")
			}
		}
	})

	t.Run("synthesizes all-pending defaults when both tiers fail", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		result, err := gw.DepartmentSubmissions(context.Background())
		if err != nil {
			t.Fatalf("DepartmentSubmissions failed: %v", err)
		}
		if result.Source != application.Synthesized {
			t.Fatalf("expected synthesized tier, got %s", result.Source)
		}
		if len(result.Submissions) != 5 {
			t.Fatalf("expected all five departments, got %d", len(result.Submissions))
		}
		for _, submission := range result.Submissions {
			if submission.Submitted {
				t.Fatalf("synthesized defaults must be pending: %+v", submission)
			}
		}
	})
}

func TestGateway_Summary(t *testing.T) {
	t.Parallel()

	submitAll := func(t *testing.T, gw *Gateway, depts []application.Department) {
		t.Helper()
		for _, dept := range depts {
			employees := []application.Employee{{ID: "e1", Name: "Someone", Status: application.StatusPresent}}
			if _, err := gw.SubmitAttendance(context.Background(), dept, employees); err != nil {
				t.Fatalf("SubmitAttendance(%s) failed: %v", dept, err)
			}
		}
	}

	newMessenger := func() *messengerStub {
		return &messengerStub{
			teams: []NamedRef{{ID: "team-1", Name: "Studio"}},
			chans: map[string][]NamedRef{"team-1": {{ID: "chan-1", Name: "General"}}},
		}
	}

	t.Run("does not post at four of five", func(t *testing.T) {
		t.Parallel()

		messenger := newMessenger()
		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, messenger, nil, testfixtures.NewStore(), "Studio", "General", fixedNow, nil)

		submitAll(t, gw, application.Departments()[:4])
		if posts := messenger.sent(); len(posts) != 0 {
			t.Fatalf("expected no summary at 4/5, got %d posts", len(posts))
		}
	})

	t.Run("posts exactly once when the fifth department lands", func(t *testing.T) {
		t.Parallel()

		messenger := newMessenger()
		workbook := &workbookStub{readErr: errors.New("remote down")}
		store := testfixtures.NewStore()
		gw := NewGateway(workbook, messenger, nil, store, "Studio", "General", fixedNow, nil)

		submitAll(t, gw, application.Departments())
		if posts := messenger.sent(); len(posts) != 1 {
			t.Fatalf("expected exactly one summary, got %d", len(posts))
		}
		if sent, err := store.GetArtifact(context.Background(), "summary.sent"); err != nil || sent != "2024-03-04" {
			t.Fatalf("expected durable summary marker, got %q (%v)", sent, err)
		}

		// A correction after completion must not post again.
		submitAll(t, gw, application.Departments()[:1])
		if posts := messenger.sent(); len(posts) != 1 {
			t.Fatalf("resubmission after completion must not repost, got %d", len(posts))
		}
	})

	t.Run("summary includes the per-status breakdown", func(t *testing.T) {
		t.Parallel()

		messenger := newMessenger()
		workbook := &workbookStub{readErr: errors.New("remote down")}
		gw := NewGateway(workbook, messenger, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		submitAll(t, gw, application.Departments())
		posts := messenger.sent()
		if len(posts) != 1 {
			t.Fatalf("expected one summary, got %d", len(posts))
		}
		if !strings.Contains(posts[0], "2024-03-04") || !strings.Contains(posts[0], "Present") {
			t.Fatalf("unexpected summary content:\n%s", posts[0])
		}
	})

	t.Run("a failed post retries on the next completion check", func(t *testing.T) {
		t.Parallel()

		messenger := newMessenger()
		messenger.postErr = errors.New("channel gone")
		workbook := &workbookStub{readErr: errors.New("remote down")}
		store := testfixtures.NewStore()
		gw := NewGateway(workbook, messenger, nil, store, "Studio", "General", fixedNow, nil)

		submitAll(t, gw, application.Departments())
		if posts := messenger.sent(); len(posts) != 0 {
			t.Fatalf("expected failed post recorded nothing, got %d", len(posts))
		}
		if _, err := store.GetArtifact(context.Background(), "summary.sent"); err == nil {
			t.Fatal("failed post must not set the durable marker")
		}

		messenger.postErr = nil
		submitAll(t, gw, application.Departments()[:1])
		if posts := messenger.sent(); len(posts) != 1 {
			t.Fatalf("expected retry to post once, got %d", len(posts))
		}
	})
}

// pausingStore widens the window between reading and saving the day's
// submission list so overlapping submitters collide reliably.
type pausingStore struct {
	*testfixtures.Store
	pause time.Duration
}

func (s *pausingStore) GetSubmissions(ctx context.Context, day string) ([]persistence.SubmissionRecord, error) {
	records, err := s.Store.GetSubmissions(ctx, day)
	time.Sleep(s.pause)
	return records, err
}

func TestGateway_SubmitAttendance_ConcurrentDepartments(t *testing.T) {
	t.Parallel()

	store := &pausingStore{Store: testfixtures.NewStore(), pause: 2 * time.Millisecond}
	gw := NewGateway(nil, nil, nil, store, "", "", fixedNow, nil)

	depts := []application.Department{application.DeptProduction, application.DeptAnimation}
	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, dept := range depts {
		wg.Add(1)
		go func(dept application.Department) {
			defer wg.Done()
			<-start
			employees := []application.Employee{{ID: "e1", Name: "Someone", Status: application.StatusPresent}}
			if _, err := gw.SubmitAttendance(context.Background(), dept, employees); err != nil {
				t.Errorf("SubmitAttendance(%s) failed: %v", dept, err)
			}
		}(dept)
	}
	close(start)
	wg.Wait()

	result, err := gw.DepartmentSubmissions(context.Background())
	if err != nil {
		t.Fatalf("DepartmentSubmissions failed: %v", err)
	}
	if len(result.Submissions) != 5 {
		t.Fatalf("expected all departments covered, got %d", len(result.Submissions))
	}
	for _, dept := range depts {
		found := false
		for _, submission := range result.Submissions {
			if submission.Department == dept {
				found = true
				if !submission.Submitted {
					t.Errorf("department %s lost its submitted marker", dept)
				}
			}
		}
		if !found {
			t.Errorf("department %s missing from submissions", dept)
		}
	}
}

func TestGateway_VerifyWorkbook(t *testing.T) {
	t.Parallel()

	t.Run("passes when every department has a worksheet", func(t *testing.T) {
		t.Parallel()

		grids := make(map[string][][]string)
		for _, dept := range application.Departments() {
			grids[string(dept)] = productionGrid()
		}
		gw := NewGateway(&workbookStub{grids: grids}, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		if err := gw.VerifyWorkbook(context.Background()); err != nil {
			t.Fatalf("VerifyWorkbook failed: %v", err)
		}
	})

	t.Run("names the missing worksheets", func(t *testing.T) {
		t.Parallel()

		grids := map[string][][]string{"Production": productionGrid()}
		gw := NewGateway(&workbookStub{grids: grids}, nil, nil, testfixtures.NewStore(), "", "", fixedNow, nil)

		err := gw.VerifyWorkbook(context.Background())
		if err == nil {
			t.Fatal("expected an error for missing worksheets")
		}
		if !strings.Contains(err.Error(), "Animation") || !strings.Contains(err.Error(), "Editorial") {
			t.Fatalf("expected missing departments named, got %v", err)
		}
	})

	t.Run("skips when no token is obtainable", func(t *testing.T) {
		t.Parallel()

		workbook := &workbookStub{readErr: errors.New("remote down")}
		tokens := &tokenSourceStub{err: errors.New("no session")}
		gw := NewGateway(workbook, nil, tokens, testfixtures.NewStore(), "", "", fixedNow, nil)

		if err := gw.VerifyWorkbook(context.Background()); err != nil {
			t.Fatalf("expected tokenless verification to be a no-op, got %v", err)
		}
	})
}
