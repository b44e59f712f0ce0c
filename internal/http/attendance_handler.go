package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/StepsArtworks/rollcall/internal/application"
)

// AttendanceHandler serves the roster and submission endpoints for one
// department at a time.
type AttendanceHandler struct {
	gateway   application.AttendanceGateway
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(gateway application.AttendanceGateway, logger *slog.Logger) *AttendanceHandler {
	base := defaultLogger(logger)
	return &AttendanceHandler{gateway: gateway, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

type statusCatalogEntry struct {
	Value application.AttendanceStatus `json:"value"`
	application.StatusInfo
}

type departmentsResponse struct {
	Departments []application.Department `json:"departments"`
	Statuses    []statusCatalogEntry     `json:"statuses"`
}

// ListDepartments returns the fixed department set and the status catalog the
// form renders.
func (h *AttendanceHandler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	statuses := make([]statusCatalogEntry, 0, len(application.Statuses()))
	for _, status := range application.Statuses() {
		statuses = append(statuses, statusCatalogEntry{Value: status, StatusInfo: status.Info()})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, departmentsResponse{
		Departments: application.Departments(),
		Statuses:    statuses,
	})
}

// GetRoster returns the department's employee list together with the tier
// that served it.
func (h *AttendanceHandler) GetRoster(w http.ResponseWriter, r *http.Request) {
	dept, ok := DepartmentFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDepartment)
		return
	}

	result, err := h.gateway.ListEmployees(r.Context(), dept)
	if err != nil {
		h.log(r.Context(), "GetRoster", "department", dept).ErrorContext(r.Context(), "roster fetch failed", "error", err)
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, result)
}

type attendanceEntry struct {
	ID     string                       `json:"id"`
	Status application.AttendanceStatus `json:"status"`
}

type submitAttendanceRequest struct {
	Entries []attendanceEntry `json:"entries"`
}

// SubmitAttendance drives a full attendance session for the department: load
// the roster, apply the submitted statuses, write the day.
func (h *AttendanceHandler) SubmitAttendance(w http.ResponseWriter, r *http.Request) {
	dept, ok := DepartmentFromContext(r.Context())
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDepartment)
		return
	}

	var req submitAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "SubmitAttendance", "error_kind", "bad_request").ErrorContext(r.Context(), "failed to decode submission", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "SubmitAttendance", "department", dept, "entries", len(req.Entries))

	session := application.NewAttendanceSession(dept, h.gateway, h.logger)
	if err := session.Load(r.Context()); err != nil {
		logger.ErrorContext(r.Context(), "session load failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	vErr := &application.ValidationError{FieldErrors: map[string]string{}}
	for _, entry := range req.Entries {
		if err := session.SetStatus(entry.ID, entry.Status); err != nil {
			vErr.FieldErrors[entry.ID] = fmt.Sprintf("cannot record status %q: %v", entry.Status, err)
		}
	}
	if vErr.HasErrors() {
		logger.ErrorContext(r.Context(), "submission rejected", "error_kind", "validation", "fields", len(vErr.FieldErrors))
		h.responder.handleServiceError(r.Context(), w, vErr)
		return
	}

	outcome, err := session.Submit(r.Context())
	if err != nil {
		logger.ErrorContext(r.Context(), "submission failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attendance submitted", "source", outcome.Source)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, outcome)
}
