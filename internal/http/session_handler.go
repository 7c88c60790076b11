package http

import (
	"context"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

type attendanceService interface {
	ConfirmAttendance(ctx context.Context, sessionID string, caller application.Identity) (application.ConfirmationResult, error)
	ListSessions(ctx context.Context, filter application.SessionFilter) iter.Seq2[application.SessionCount, error]
	RemoveConfirmation(ctx context.Context, caller application.Identity, confirmationID string) error
	MyAttendance(ctx context.Context, caller application.Identity, filter application.SessionFilter) ([]application.AttendanceEntry, error)
	Roster(ctx context.Context, caller application.Identity, sessionID string) (application.Roster, error)
}

type sessionService interface {
	CreateSession(ctx context.Context, caller application.Identity, input application.SessionInput) (application.Session, error)
	UpdateSession(ctx context.Context, caller application.Identity, sessionID string, input application.SessionInput) (application.Session, error)
	DeleteSession(ctx context.Context, caller application.Identity, sessionID string) error
}

// SessionHandler serves session listing, administration and attendance.
type SessionHandler struct {
	attendance attendanceService
	sessions   sessionService
	responder  responder
	logger     *slog.Logger
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(attendance attendanceService, sessions sessionService, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{
		attendance: attendance,
		sessions:   sessions,
		responder:  newResponder(base),
		logger:     base,
	}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

// List answers GET /sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.attendance == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	filter := filterFromQuery(r)
	logger := h.log(r.Context(), "List", "window", string(filter.Window))

	items, err := application.Collect(h.attendance.ListSessions(r.Context(), filter))
	if err != nil {
		logger.ErrorContext(r.Context(), "session list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]sessionDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toSessionDTO(item.Session, item.Confirmed))
	}
	logger.With("result_count", len(out)).DebugContext(r.Context(), "sessions listed")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listSessionsResponse{Sessions: out})
}

// Confirm answers POST /sessions/{id}/confirmations.
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.attendance == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := h.pathID(w, r, "Confirm")
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	result, err := h.attendance.ConfirmAttendance(r.Context(), sessionID, identity)
	if err != nil {
		h.log(r.Context(), "Confirm", "session_id", sessionID).ErrorContext(r.Context(), "confirmation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	status := http.StatusOK
	if result == application.ResultConfirmed {
		status = http.StatusCreated
	}
	h.responder.writeJSON(r.Context(), w, status, confirmResponse{Result: string(result)})
}

// Create answers POST /sessions.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req sessionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	logger := h.log(r.Context(), "Create", "identity", identity.Email)

	session, err := h.sessions.CreateSession(r.Context(), identity, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "session creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("session_id", session.ID).InfoContext(r.Context(), "session created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, sessionResponse{Session: toSessionDTO(session, 0)})
}

// Update answers PUT /sessions/{id}.
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := h.pathID(w, r, "Update")
	if !ok {
		return
	}
	var req sessionRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	logger := h.log(r.Context(), "Update", "identity", identity.Email, "session_id", sessionID)

	session, err := h.sessions.UpdateSession(r.Context(), identity, sessionID, req.toInput())
	if err != nil {
		logger.ErrorContext(r.Context(), "session update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "session updated")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, sessionResponse{Session: toSessionDTO(session, -1)})
}

// Delete answers DELETE /sessions/{id}.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.sessions == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := h.pathID(w, r, "Delete")
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	if err := h.sessions.DeleteSession(r.Context(), identity, sessionID); err != nil {
		h.log(r.Context(), "Delete", "session_id", sessionID).ErrorContext(r.Context(), "session delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Roster answers GET /sessions/{id}/roster.
func (h *SessionHandler) Roster(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.attendance == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	sessionID, ok := h.pathID(w, r, "Roster")
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())

	roster, err := h.attendance.Roster(r.Context(), identity, sessionID)
	if err != nil {
		h.log(r.Context(), "Roster", "session_id", sessionID).ErrorContext(r.Context(), "roster failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRosterResponse(roster))
}

// RemoveConfirmation answers DELETE /confirmations/{id}.
func (h *SessionHandler) RemoveConfirmation(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.attendance == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	confirmationID, ok := h.pathID(w, r, "RemoveConfirmation")
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	if err := h.attendance.RemoveConfirmation(r.Context(), identity, confirmationID); err != nil {
		h.log(r.Context(), "RemoveConfirmation", "confirmation_id", confirmationID).ErrorContext(r.Context(), "confirmation removal failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// MyAttendance answers GET /me/attendance.
func (h *SessionHandler) MyAttendance(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.attendance == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	identity, _ := IdentityFromContext(r.Context())
	entries, err := h.attendance.MyAttendance(r.Context(), identity, filterFromQuery(r))
	if err != nil {
		h.log(r.Context(), "MyAttendance").ErrorContext(r.Context(), "attendance listing failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]attendanceDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, attendanceDTO{
			Session:   toSessionDTO(e.Session, e.Confirmed),
			Attending: e.Attending,
			Past:      e.Past,
		})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, myAttendanceResponse{Attendance: out})
}

func (h *SessionHandler) pathID(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.log(r.Context(), operation, "error_kind", "bad_request").ErrorContext(r.Context(), "missing id in path")
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return "", false
	}
	return id, true
}

// filterFromQuery maps ?when=&from=&to= to a session filter. A bare from or
// to implies a range.
func filterFromQuery(r *http.Request) application.SessionFilter {
	q := r.URL.Query()
	filter := application.SessionFilter{
		Window: application.SessionWindow(strings.ToLower(strings.TrimSpace(q.Get("when")))),
		From:   strings.TrimSpace(q.Get("from")),
		To:     strings.TrimSpace(q.Get("to")),
	}
	if filter.Window == "" && (filter.From != "" || filter.To != "") {
		filter.Window = application.WindowRange
	}
	return filter
}

type sessionRequest struct {
	Date        string `json:"date" validate:"required,notblank"`
	Time        string `json:"time" validate:"required,notblank"`
	Capacity    int    `json:"capacity" validate:"gte=1,lte=500"`
	Methodology string `json:"methodology" validate:"max=120"`
}

func (r sessionRequest) toInput() application.SessionInput {
	return application.SessionInput{
		Date:        strings.TrimSpace(r.Date),
		Time:        strings.TrimSpace(r.Time),
		Capacity:    r.Capacity,
		Methodology: strings.TrimSpace(r.Methodology),
	}
}

type sessionDTO struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Capacity    int    `json:"capacity"`
	Methodology string `json:"methodology,omitempty"`
	Confirmed   *int   `json:"confirmed,omitempty"`
	Available   *int   `json:"available,omitempty"`
}

// toSessionDTO includes seat counts when confirmed is not negative.
func toSessionDTO(session application.Session, confirmed int) sessionDTO {
	dto := sessionDTO{
		ID:          session.ID,
		Date:        session.Date,
		Time:        session.Time,
		Capacity:    session.Capacity,
		Methodology: session.Methodology,
	}
	if confirmed >= 0 {
		count := application.SessionCount{Session: session, Confirmed: confirmed}
		available := count.Available()
		dto.Confirmed = &confirmed
		dto.Available = &available
	}
	return dto
}

type sessionResponse struct {
	Session sessionDTO `json:"session"`
}

type listSessionsResponse struct {
	Sessions []sessionDTO `json:"sessions"`
}

type confirmResponse struct {
	Result string `json:"result"`
}

type attendanceDTO struct {
	Session   sessionDTO `json:"session"`
	Attending bool       `json:"attending"`
	Past      bool       `json:"past"`
}

type myAttendanceResponse struct {
	Attendance []attendanceDTO `json:"attendance"`
}

type confirmationDTO struct {
	ID          string `json:"id"`
	Identity    string `json:"identity"`
	DisplayName string `json:"display_name,omitempty"`
	ConfirmedAt string `json:"confirmed_at"`
}

type rosterResponse struct {
	Session       sessionDTO        `json:"session"`
	Confirmations []confirmationDTO `json:"confirmations"`
	Missing       []rosterMemberDTO `json:"missing"`
}

type rosterMemberDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func toRosterResponse(roster application.Roster) rosterResponse {
	resp := rosterResponse{
		Session:       toSessionDTO(roster.Session, len(roster.Confirmations)),
		Confirmations: make([]confirmationDTO, 0, len(roster.Confirmations)),
		Missing:       make([]rosterMemberDTO, 0, len(roster.Missing)),
	}
	for _, c := range roster.Confirmations {
		resp.Confirmations = append(resp.Confirmations, confirmationDTO{
			ID:          c.ID,
			Identity:    c.Identity,
			DisplayName: c.DisplayName,
			ConfirmedAt: c.ConfirmedAt.UTC().Format(time.RFC3339),
		})
	}
	for _, s := range roster.Missing {
		resp.Missing = append(resp.Missing, rosterMemberDTO{ID: s.ID, Name: s.Name, Email: s.Email})
	}
	return resp
}
