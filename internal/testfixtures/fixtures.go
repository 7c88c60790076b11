package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

var (
	sessionCounter uint64
	studentCounter uint64
)

// gymZone is a fixed UTC-3 zone, the gym's local time without DST lookups.
var gymZone = time.FixedZone("BRT", -3*60*60)

var referenceTime = time.Date(2024, time.June, 15, 12, 0, 0, 0, gymZone)

// ReferenceTime returns the canonical "now" used by fixtures: noon on
// 2024-06-15 in the gym's zone.
func ReferenceTime() time.Time {
	return referenceTime
}

// Location returns the gym's time zone used by fixtures.
func Location() *time.Location {
	return gymZone
}

// Identities used across tests. Coach is the administrator granted by
// NewServiceFactory.
var (
	Coach = application.Identity{Email: "coach@example.com", DisplayName: "Coach"}
	Ana   = application.Identity{Email: "ana@example.com", DisplayName: "Ana"}
	Bia   = application.Identity{Email: "bia@example.com", DisplayName: "Bia"}
)

// ----------------------------- Session fixtures -----------------------------

// SessionOption configures a generated session input.
type SessionOption func(*application.SessionInput)

// NewSessionInput returns a valid session input dated relative to
// ReferenceTime: each call lands one day later than the previous one.
func NewSessionInput(opts ...SessionOption) application.SessionInput {
	idx := atomic.AddUint64(&sessionCounter, 1)
	input := application.SessionInput{
		Date:        referenceTime.AddDate(0, 0, int(idx)).Format(time.DateOnly),
		Time:        "07:00",
		Capacity:    6,
		Methodology: fmt.Sprintf("Treino %03d", idx),
	}
	for _, opt := range opts {
		opt(&input)
	}
	return input
}

// WithSessionDate sets the session date (YYYY-MM-DD).
func WithSessionDate(date string) SessionOption {
	return func(input *application.SessionInput) {
		input.Date = date
	}
}

// WithDaysFromReference dates the session days after ReferenceTime; negative
// values give past sessions.
func WithDaysFromReference(days int) SessionOption {
	return func(input *application.SessionInput) {
		input.Date = referenceTime.AddDate(0, 0, days).Format(time.DateOnly)
	}
}

// WithSessionTime sets the start time (HH:MM).
func WithSessionTime(clock string) SessionOption {
	return func(input *application.SessionInput) {
		input.Time = clock
	}
}

// WithCapacity sets the number of seats.
func WithCapacity(capacity int) SessionOption {
	return func(input *application.SessionInput) {
		input.Capacity = capacity
	}
}

// ----------------------------- Student fixtures -----------------------------

// StudentOption configures a generated student input.
type StudentOption func(*application.StudentInput)

// NewStudentInput returns a valid student input with a unique email.
func NewStudentInput(opts ...StudentOption) application.StudentInput {
	idx := atomic.AddUint64(&studentCounter, 1)
	input := application.StudentInput{
		Name:  fmt.Sprintf("Aluno %03d", idx),
		Email: fmt.Sprintf("aluno-%03d@example.com", idx),
		Phone: fmt.Sprintf("+55 11 9%04d-0000", idx),
	}
	for _, opt := range opts {
		opt(&input)
	}
	return input
}

// ForIdentity binds the student record to an identity's email and name.
func ForIdentity(who application.Identity) StudentOption {
	return func(input *application.StudentInput) {
		input.Email = who.Email
		input.Name = who.DisplayName
	}
}

// WithDueDate sets the payment due date (YYYY-MM-DD).
func WithDueDate(date string) StudentOption {
	return func(input *application.StudentInput) {
		input.PaymentDueDate = date
	}
}

// WithScore sets the ranking score.
func WithScore(score int) StudentOption {
	return func(input *application.StudentInput) {
		input.Score = score
	}
}
