package application

import (
	"strings"
	"time"
)

// Identity is the verified caller as reported by the identity provider.
type Identity struct {
	Email       string
	DisplayName string
}

// Present reports whether the identity carries an email.
func (i Identity) Present() bool {
	return strings.TrimSpace(i.Email) != ""
}

// Session is a scheduled class.
type Session struct {
	ID          string
	Date        string
	Time        string
	Capacity    int
	Methodology string
}

// SessionInput captures administrator provided session fields.
type SessionInput struct {
	Date        string
	Time        string
	Capacity    int
	Methodology string
}

// Confirmation records that one identity reserved one seat in one session.
type Confirmation struct {
	ID          string
	SessionID   string
	Identity    string
	DisplayName string
	ConfirmedAt time.Time
}

// ConfirmationResult is the outcome of a confirmation attempt.
type ConfirmationResult string

const (
	// ResultConfirmed means a new confirmation was written.
	ResultConfirmed ConfirmationResult = "confirmed"
	// ResultAlreadyConfirmed means the caller already held a seat; nothing was written.
	ResultAlreadyConfirmed ConfirmationResult = "already_confirmed"
	// ResultFull means the session had no free seat; nothing was written.
	ResultFull ConfirmationResult = "full"
)

// SessionWindow selects which sessions a listing returns relative to today.
type SessionWindow string

const (
	// WindowAll returns every session.
	WindowAll SessionWindow = "all"
	// WindowUpcoming returns sessions dated today or later.
	WindowUpcoming SessionWindow = "future"
	// WindowPast returns sessions dated before today.
	WindowPast SessionWindow = "past"
	// WindowRange returns sessions between From and To, both inclusive.
	WindowRange SessionWindow = "range"
)

// SessionFilter narrows a session listing. From and To are YYYY-MM-DD dates
// and are only read for WindowRange; either may be empty for an open bound.
type SessionFilter struct {
	Window SessionWindow
	From   string
	To     string
}

// SessionCount pairs a session with its confirmed seat count.
type SessionCount struct {
	Session   Session
	Confirmed int
}

// Available returns the number of free seats.
func (c SessionCount) Available() int {
	if free := c.Session.Capacity - c.Confirmed; free > 0 {
		return free
	}
	return 0
}

// AttendanceEntry is one row of a student's attendance history.
type AttendanceEntry struct {
	Session   Session
	Confirmed int
	Attending bool
	Past      bool
}

// Roster lists who confirmed a session and which known students did not.
type Roster struct {
	Session       Session
	Confirmations []Confirmation
	Missing       []StudentProfile
}

// SeatUpdate is published whenever the confirmed count of a session changes.
type SeatUpdate struct {
	SessionID string
	Confirmed int
	Capacity  int
	Removed   bool // the session was deleted; Confirmed and Capacity are zero
}

// PaymentStatus tracks the approval state of a student's monthly payment.
type PaymentStatus string

const (
	PaymentPending              PaymentStatus = "pending"
	PaymentAwaitingConfirmation PaymentStatus = "awaiting_confirmation"
	PaymentPaid                 PaymentStatus = "paid"
)

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentAwaitingConfirmation, PaymentPaid:
		return true
	}
	return false
}

// PaymentStanding classifies a payment due date against today.
type PaymentStanding string

const (
	StandingNotInformed PaymentStanding = "not_informed"
	StandingUpToDate    PaymentStanding = "up_to_date"
	StandingOverdue     PaymentStanding = "overdue"
)

// StudentProfile is the administrative record kept for each student.
type StudentProfile struct {
	ID              string
	Name            string
	Email           string
	Phone           string
	PaymentDueDate  string
	Amount          string
	ClassesPerMonth string
	PixKey          string
	PaymentStatus   PaymentStatus
	ProofOfPayment  string
	Score           int
}

// StudentInput captures administrator provided student fields.
type StudentInput struct {
	Name            string
	Email           string
	Phone           string
	PaymentDueDate  string
	Amount          string
	ClassesPerMonth string
	PixKey          string
	Score           int
}

// PaymentTerms are the billing fields an administrator can adjust on their own.
type PaymentTerms struct {
	PaymentDueDate  string
	Amount          string
	ClassesPerMonth string
	PixKey          string
}

// Account is a local login for the built-in identity provider.
type Account struct {
	ID           string
	Email        string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// AccountInput captures the fields needed to create an account.
type AccountInput struct {
	Email       string
	DisplayName string
	Password    string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Identity  Identity
}
