package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

type studentService interface {
	CreateStudent(ctx context.Context, caller application.Identity, input application.StudentInput) (application.StudentProfile, error)
	UpdateStudent(ctx context.Context, caller application.Identity, studentID string, input application.StudentInput) (application.StudentProfile, error)
	DeleteStudent(ctx context.Context, caller application.Identity, studentID string) error
	ListStudents(ctx context.Context, caller application.Identity) ([]application.StudentProfile, error)
	SetPaymentStatus(ctx context.Context, caller application.Identity, studentID string, status application.PaymentStatus) (application.StudentProfile, error)
	UpdatePaymentTerms(ctx context.Context, caller application.Identity, studentID string, terms application.PaymentTerms) (application.StudentProfile, error)
	MyProfile(ctx context.Context, caller application.Identity) (application.StudentProfile, error)
	SubmitPaymentProof(ctx context.Context, caller application.Identity, reference string) (application.StudentProfile, error)
	ConfirmPayment(ctx context.Context, caller application.Identity) (application.StudentProfile, error)
	Ranking(ctx context.Context, caller application.Identity) ([]application.StudentProfile, error)
	PaymentStanding(student application.StudentProfile) application.PaymentStanding
}

// StudentHandler serves student administration and self-service.
type StudentHandler struct {
	service   studentService
	responder responder
	logger    *slog.Logger
}

// NewStudentHandler constructs a StudentHandler.
func NewStudentHandler(service studentService, logger *slog.Logger) *StudentHandler {
	base := defaultLogger(logger)
	return &StudentHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *StudentHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	if h == nil {
		return slog.Default()
	}
	return handlerLogger(ctx, h.logger, "StudentHandler", operation, attrs...)
}

func (h *StudentHandler) ready(w http.ResponseWriter) bool {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return false
	}
	return true
}

// List answers GET /students.
func (h *StudentHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	students, err := h.service.ListStudents(r.Context(), identity)
	if err != nil {
		h.fail(w, r, "List", err)
		return
	}
	out := make([]studentDTO, 0, len(students))
	for _, s := range students {
		out = append(out, h.toStudentDTO(s))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, listStudentsResponse{Students: out})
}

// Create answers POST /students.
func (h *StudentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req studentRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.CreateStudent(r.Context(), identity, req.toInput())
	if err != nil {
		h.fail(w, r, "Create", err)
		return
	}
	h.log(r.Context(), "Create", "student_id", student.ID).InfoContext(r.Context(), "student created")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, studentResponse{Student: h.toStudentDTO(student)})
}

// Update answers PUT /students/{id}.
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	studentID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req studentRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.UpdateStudent(r.Context(), identity, studentID, req.toInput())
	if err != nil {
		h.fail(w, r, "Update", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: h.toStudentDTO(student)})
}

// Delete answers DELETE /students/{id}.
func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	studentID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	if err := h.service.DeleteStudent(r.Context(), identity, studentID); err != nil {
		h.fail(w, r, "Delete", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// SetPaymentStatus answers PUT /students/{id}/payment-status.
func (h *StudentHandler) SetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	studentID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentStatusRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.SetPaymentStatus(r.Context(), identity, studentID, application.PaymentStatus(req.Status))
	if err != nil {
		h.fail(w, r, "SetPaymentStatus", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: h.toStudentDTO(student)})
}

// UpdatePaymentTerms answers PUT /students/{id}/payment-terms.
func (h *StudentHandler) UpdatePaymentTerms(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	studentID, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentTermsRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.UpdatePaymentTerms(r.Context(), identity, studentID, application.PaymentTerms{
		PaymentDueDate:  req.PaymentDueDate,
		Amount:          req.Amount,
		ClassesPerMonth: req.ClassesPerMonth,
		PixKey:          req.PixKey,
	})
	if err != nil {
		h.fail(w, r, "UpdatePaymentTerms", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: h.toStudentDTO(student)})
}

// MyProfile answers GET /me/profile.
func (h *StudentHandler) MyProfile(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.MyProfile(r.Context(), identity)
	if err != nil {
		h.fail(w, r, "MyProfile", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: h.toStudentDTO(student)})
}

// SubmitPaymentProof answers POST /me/payment/proof.
func (h *StudentHandler) SubmitPaymentProof(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req paymentProofRequest
	if err := decodeRequest(r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.SubmitPaymentProof(r.Context(), identity, req.Reference)
	if err != nil {
		h.fail(w, r, "SubmitPaymentProof", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: h.toStudentDTO(student)})
}

// ConfirmPayment answers POST /me/payment/confirm.
func (h *StudentHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	student, err := h.service.ConfirmPayment(r.Context(), identity)
	if err != nil {
		h.fail(w, r, "ConfirmPayment", err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, studentResponse{Student: h.toStudentDTO(student)})
}

// Ranking answers GET /ranking. Only names and scores are exposed.
func (h *StudentHandler) Ranking(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	identity, _ := IdentityFromContext(r.Context())
	students, err := h.service.Ranking(r.Context(), identity)
	if err != nil {
		h.fail(w, r, "Ranking", err)
		return
	}
	out := make([]rankingEntryDTO, 0, len(students))
	for i, s := range students {
		out = append(out, rankingEntryDTO{Position: i + 1, Name: s.Name, Score: s.Score})
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, rankingResponse{Ranking: out})
}

func (h *StudentHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	h.log(r.Context(), operation).ErrorContext(r.Context(), "student request failed", "error", err, "error_kind", application.ErrorKind(err))
	h.responder.handleServiceError(r.Context(), w, err)
}

func (h *StudentHandler) pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errMissingID)
		return "", false
	}
	return id, true
}

type studentRequest struct {
	Name            string `json:"name" validate:"required,notblank,max=120"`
	Email           string `json:"email" validate:"required,email"`
	Phone           string `json:"phone" validate:"max=40"`
	PaymentDueDate  string `json:"payment_due_date"`
	Amount          string `json:"amount" validate:"max=20"`
	ClassesPerMonth string `json:"classes_per_month" validate:"max=20"`
	PixKey          string `json:"pix_key" validate:"max=120"`
	Score           int    `json:"score" validate:"gte=0"`
}

func (r studentRequest) toInput() application.StudentInput {
	return application.StudentInput{
		Name:            r.Name,
		Email:           r.Email,
		Phone:           r.Phone,
		PaymentDueDate:  r.PaymentDueDate,
		Amount:          r.Amount,
		ClassesPerMonth: r.ClassesPerMonth,
		PixKey:          r.PixKey,
		Score:           r.Score,
	}
}

type paymentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending awaiting_confirmation paid"`
}

type paymentTermsRequest struct {
	PaymentDueDate  string `json:"payment_due_date"`
	Amount          string `json:"amount" validate:"max=20"`
	ClassesPerMonth string `json:"classes_per_month" validate:"max=20"`
	PixKey          string `json:"pix_key" validate:"max=120"`
}

type paymentProofRequest struct {
	Reference string `json:"reference" validate:"required,notblank,max=255"`
}

type studentDTO struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	PaymentDueDate  string `json:"payment_due_date,omitempty"`
	Amount          string `json:"amount"`
	ClassesPerMonth string `json:"classes_per_month"`
	PixKey          string `json:"pix_key,omitempty"`
	PaymentStatus   string `json:"payment_status"`
	PaymentStanding string `json:"payment_standing"`
	ProofOfPayment  string `json:"proof_of_payment,omitempty"`
	Score           int    `json:"score"`
}

func (h *StudentHandler) toStudentDTO(s application.StudentProfile) studentDTO {
	return studentDTO{
		ID:              s.ID,
		Name:            s.Name,
		Email:           s.Email,
		Phone:           s.Phone,
		PaymentDueDate:  s.PaymentDueDate,
		Amount:          s.Amount,
		ClassesPerMonth: s.ClassesPerMonth,
		PixKey:          s.PixKey,
		PaymentStatus:   string(s.PaymentStatus),
		PaymentStanding: string(h.service.PaymentStanding(s)),
		ProofOfPayment:  s.ProofOfPayment,
		Score:           s.Score,
	}
}

type studentResponse struct {
	Student studentDTO `json:"student"`
}

type listStudentsResponse struct {
	Students []studentDTO `json:"students"`
}

type rankingEntryDTO struct {
	Position int    `json:"position"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

type rankingResponse struct {
	Ranking []rankingEntryDTO `json:"ranking"`
}
