package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

const (
	defaultAmount          = "80,00"
	defaultClassesPerMonth = "1x"
)

// StudentService manages student records, payments and the score ranking.
type StudentService struct {
	store    persistence.Store
	policy   AuthorizationPolicy
	now      func() time.Time
	location *time.Location
	retry    *persistence.RetryHelper
	logger   *slog.Logger
}

// NewStudentService constructs a student service with the provided dependencies.
func NewStudentService(store persistence.Store, policy AuthorizationPolicy, now func() time.Time, opts ...Option) *StudentService {
	return NewStudentServiceWithLogger(store, policy, now, nil, opts...)
}

// NewStudentServiceWithLogger constructs a student service with a specified logger.
func NewStudentServiceWithLogger(store persistence.Store, policy AuthorizationPolicy, now func() time.Time, logger *slog.Logger, opts ...Option) *StudentService {
	if now == nil {
		now = time.Now
	}
	o := buildOptions(opts)
	return &StudentService{
		store:    store,
		policy:   policy,
		now:      now,
		location: o.location,
		retry:    persistence.NewRetryHelper(o.retry, nil),
		logger:   defaultLogger(logger),
	}
}

func (s *StudentService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "StudentService", operation, attrs...)
}

// CreateStudent stores a new student. Emails are unique regardless of case.
func (s *StudentService) CreateStudent(ctx context.Context, caller Identity, input StudentInput) (student StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateStudent", "identity", normalizeEmail(caller.Email))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create student", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("student_id", student.ID).InfoContext(ctx, "student created")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	input = normalizeStudentInput(input)
	if vErr := validateStudentInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	fields := studentFields(input)
	fields[fieldPaymentStatus] = string(PaymentPending)

	err = s.retry.WithRetry(ctx, func() error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			if err := ensureEmailFree(ctx, tx, input.Email, ""); err != nil {
				return err
			}
			rec, err := tx.Create(ctx, CollectionStudents, fields)
			if err != nil {
				return err
			}
			student = studentFromRecord(rec)
			return nil
		})
	})
	err = mapStoreError(err)
	return
}

// UpdateStudent replaces the profile fields of a student. Payment status and
// proof of payment are kept.
func (s *StudentService) UpdateStudent(ctx context.Context, caller Identity, studentID string, input StudentInput) (student StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdateStudent",
		"identity", normalizeEmail(caller.Email),
		"student_id", studentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update student", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "student updated")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	input = normalizeStudentInput(input)
	if vErr := validateStudentInput(input); vErr.HasErrors() {
		err = vErr
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	err = s.retry.WithRetry(ctx, func() error {
		return s.store.RunInTransaction(ctx, func(ctx context.Context, tx persistence.Operations) error {
			if _, err := tx.Get(ctx, CollectionStudents, studentID); err != nil {
				return err
			}
			if err := ensureEmailFree(ctx, tx, input.Email, studentID); err != nil {
				return err
			}
			if err := tx.Update(ctx, CollectionStudents, studentID, studentFields(input)); err != nil {
				return err
			}
			rec, err := tx.Get(ctx, CollectionStudents, studentID)
			if err != nil {
				return err
			}
			student = studentFromRecord(rec)
			return nil
		})
	})
	err = mapStoreError(err)
	return
}

// DeleteStudent removes a student record. Confirmations made with the same
// email are attendance history and are kept.
func (s *StudentService) DeleteStudent(ctx context.Context, caller Identity, studentID string) (err error) {
	if s == nil {
		return fmt.Errorf("StudentService is nil")
	}

	logger := s.loggerWith(ctx, "DeleteStudent",
		"identity", normalizeEmail(caller.Email),
		"student_id", studentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete student", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "student deleted")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	if s.store == nil {
		err = fmt.Errorf("record store not configured")
		return
	}

	if _, getErr := s.store.Get(ctx, CollectionStudents, studentID); getErr != nil {
		err = mapStoreError(getErr)
		return
	}
	err = mapStoreError(s.store.Delete(ctx, CollectionStudents, studentID))
	return
}

// ListStudents returns every student ordered by name.
func (s *StudentService) ListStudents(ctx context.Context, caller Identity) (students []StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListStudents", "identity", normalizeEmail(caller.Email))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list students", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("result_count", len(students)).DebugContext(ctx, "students listed")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	return s.ordered(ctx, fieldName, persistence.Ascending)
}

// SetPaymentStatus records the administrator's decision on a payment.
func (s *StudentService) SetPaymentStatus(ctx context.Context, caller Identity, studentID string, status PaymentStatus) (student StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SetPaymentStatus",
		"identity", normalizeEmail(caller.Email),
		"student_id", studentID,
		"status", string(status),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to set payment status", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "payment status changed")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}
	if !status.Valid() {
		vErr := &ValidationError{}
		vErr.add("payment_status", "payment status is invalid")
		err = vErr
		return
	}
	return s.patch(ctx, studentID, persistence.Fields{fieldPaymentStatus: string(status)})
}

// UpdatePaymentTerms edits the billing fields of a student.
func (s *StudentService) UpdatePaymentTerms(ctx context.Context, caller Identity, studentID string, terms PaymentTerms) (student StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "UpdatePaymentTerms",
		"identity", normalizeEmail(caller.Email),
		"student_id", studentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update payment terms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "payment terms updated")
	}()

	if err = requireAdmin(s.policy, caller); err != nil {
		return
	}

	terms.PaymentDueDate = strings.TrimSpace(terms.PaymentDueDate)
	if terms.PaymentDueDate != "" && !validDate(terms.PaymentDueDate) {
		vErr := &ValidationError{}
		vErr.add("payment_due_date", "date must be YYYY-MM-DD")
		err = vErr
		return
	}
	return s.patch(ctx, studentID, persistence.Fields{
		fieldPaymentDueDate:  terms.PaymentDueDate,
		fieldAmount:          defaultString(terms.Amount, defaultAmount),
		fieldClassesPerMonth: defaultString(terms.ClassesPerMonth, defaultClassesPerMonth),
		fieldPixKey:          strings.TrimSpace(terms.PixKey),
	})
}

// MyProfile returns the student record whose email matches the caller.
func (s *StudentService) MyProfile(ctx context.Context, caller Identity) (StudentProfile, error) {
	if s == nil {
		return StudentProfile{}, fmt.Errorf("StudentService is nil")
	}
	if err := requireIdentity(caller); err != nil {
		return StudentProfile{}, err
	}
	if s.store == nil {
		return StudentProfile{}, fmt.Errorf("record store not configured")
	}
	rec, err := findByEmail(ctx, s.store, CollectionStudents, caller.Email)
	if err != nil {
		return StudentProfile{}, err
	}
	return studentFromRecord(rec), nil
}

// SubmitPaymentProof stores a reference to the caller's proof of payment and
// marks the payment as awaiting confirmation.
func (s *StudentService) SubmitPaymentProof(ctx context.Context, caller Identity, reference string) (student StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "SubmitPaymentProof", "identity", normalizeEmail(caller.Email))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to submit payment proof", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("student_id", student.ID).InfoContext(ctx, "payment proof submitted")
	}()

	reference = strings.TrimSpace(reference)
	if reference == "" {
		vErr := &ValidationError{}
		vErr.add("reference", "proof of payment is required")
		err = vErr
		return
	}

	var profile StudentProfile
	if profile, err = s.MyProfile(ctx, caller); err != nil {
		return
	}
	return s.patch(ctx, profile.ID, persistence.Fields{
		fieldProofOfPayment: reference,
		fieldPaymentStatus:  string(PaymentAwaitingConfirmation),
	})
}

// ConfirmPayment sets the caller's payment due date to today.
func (s *StudentService) ConfirmPayment(ctx context.Context, caller Identity) (student StudentProfile, err error) {
	if s == nil {
		err = fmt.Errorf("StudentService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ConfirmPayment", "identity", normalizeEmail(caller.Email))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to confirm payment", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("student_id", student.ID, "due_date", student.PaymentDueDate).InfoContext(ctx, "payment confirmed")
	}()

	var profile StudentProfile
	if profile, err = s.MyProfile(ctx, caller); err != nil {
		return
	}
	return s.patch(ctx, profile.ID, persistence.Fields{
		fieldPaymentDueDate: localDate(s.now(), s.location),
	})
}

// Ranking returns every student ordered by score, highest first.
func (s *StudentService) Ranking(ctx context.Context, caller Identity) ([]StudentProfile, error) {
	if s == nil {
		return nil, fmt.Errorf("StudentService is nil")
	}
	if err := requireIdentity(caller); err != nil {
		return nil, err
	}
	return s.ordered(ctx, fieldScore, persistence.Descending)
}

// PaymentStanding classifies the student's due date against today.
func (s *StudentService) PaymentStanding(student StudentProfile) PaymentStanding {
	return StandingOn(student, localDate(s.now(), s.location))
}

// StandingOn classifies the student's due date against today (YYYY-MM-DD).
// A payment due today is still up to date.
func StandingOn(student StudentProfile, today string) PaymentStanding {
	due := strings.TrimSpace(student.PaymentDueDate)
	switch {
	case due == "":
		return StandingNotInformed
	case due >= today:
		return StandingUpToDate
	default:
		return StandingOverdue
	}
}

func (s *StudentService) ordered(ctx context.Context, field string, dir persistence.Direction) ([]StudentProfile, error) {
	if s.store == nil {
		return nil, fmt.Errorf("record store not configured")
	}
	records, err := s.store.OrderBy(ctx, CollectionStudents, field, dir)
	if err != nil {
		return nil, mapStoreError(err)
	}
	out := make([]StudentProfile, 0, len(records))
	for _, rec := range records {
		out = append(out, studentFromRecord(rec))
	}
	return out, nil
}

func (s *StudentService) patch(ctx context.Context, studentID string, fields persistence.Fields) (StudentProfile, error) {
	if s.store == nil {
		return StudentProfile{}, fmt.Errorf("record store not configured")
	}
	if err := s.store.Update(ctx, CollectionStudents, studentID, fields); err != nil {
		return StudentProfile{}, mapStoreError(err)
	}
	rec, err := s.store.Get(ctx, CollectionStudents, studentID)
	if err != nil {
		return StudentProfile{}, mapStoreError(err)
	}
	return studentFromRecord(rec), nil
}

func findByEmail(ctx context.Context, ops persistence.Operations, collection, email string) (persistence.Record, error) {
	records, err := ops.QueryEquals(ctx, collection, fieldEmail, normalizeEmail(email))
	if err != nil {
		return persistence.Record{}, mapStoreError(err)
	}
	if len(records) == 0 {
		return persistence.Record{}, ErrNotFound
	}
	return records[0], nil
}

func ensureEmailFree(ctx context.Context, ops persistence.Operations, email, ownerID string) error {
	records, err := ops.QueryEquals(ctx, CollectionStudents, fieldEmail, email)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if rec.ID != ownerID {
			return ErrAlreadyExists
		}
	}
	return nil
}

func studentFields(input StudentInput) persistence.Fields {
	return persistence.Fields{
		fieldName:            input.Name,
		fieldEmail:           input.Email,
		fieldPhone:           input.Phone,
		fieldPaymentDueDate:  input.PaymentDueDate,
		fieldAmount:          input.Amount,
		fieldClassesPerMonth: input.ClassesPerMonth,
		fieldPixKey:          input.PixKey,
		fieldScore:           input.Score,
	}
}

func normalizeStudentInput(input StudentInput) StudentInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	input.Phone = strings.TrimSpace(input.Phone)
	input.PaymentDueDate = strings.TrimSpace(input.PaymentDueDate)
	input.Amount = defaultString(input.Amount, defaultAmount)
	input.ClassesPerMonth = defaultString(input.ClassesPerMonth, defaultClassesPerMonth)
	input.PixKey = strings.TrimSpace(input.PixKey)
	return input
}

func validateStudentInput(input StudentInput) *ValidationError {
	vErr := &ValidationError{}

	if input.Name == "" {
		vErr.add("name", "name is required")
	}
	switch {
	case input.Email == "":
		vErr.add("email", "email is required")
	case !validEmail(input.Email):
		vErr.add("email", "email is invalid")
	}
	if input.PaymentDueDate != "" && !validDate(input.PaymentDueDate) {
		vErr.add("payment_due_date", "date must be YYYY-MM-DD")
	}
	if input.Score < 0 {
		vErr.add("score", "score must not be negative")
	}

	return vErr
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func defaultString(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}
