package application

import (
	"time"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// Record store collections.
const (
	CollectionSessions      = "sessions"
	CollectionConfirmations = "confirmations"
	CollectionStudents      = "students"
	CollectionAccounts      = "accounts"
)

const (
	fieldDate        = "date"
	fieldTime        = "time"
	fieldCapacity    = "capacity"
	fieldMethodology = "methodology"

	fieldSessionID   = "sessionId"
	fieldIdentity    = "identity"
	fieldDisplayName = "displayName"
	fieldConfirmedAt = "confirmedAt"

	fieldName            = "name"
	fieldEmail           = "email"
	fieldPhone           = "phone"
	fieldPaymentDueDate  = "paymentDueDate"
	fieldAmount          = "amount"
	fieldClassesPerMonth = "classesPerMonth"
	fieldPixKey          = "pixKey"
	fieldPaymentStatus   = "paymentStatus"
	fieldProofOfPayment  = "proofOfPayment"
	fieldScore           = "score"

	fieldPasswordHash = "passwordHash"
	fieldCreatedAt    = "createdAt"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

func sessionFromRecord(rec persistence.Record) Session {
	return Session{
		ID:          rec.ID,
		Date:        rec.Fields.String(fieldDate),
		Time:        rec.Fields.String(fieldTime),
		Capacity:    rec.Fields.Int(fieldCapacity),
		Methodology: rec.Fields.String(fieldMethodology),
	}
}

func sessionFields(input SessionInput) persistence.Fields {
	return persistence.Fields{
		fieldDate:        input.Date,
		fieldTime:        input.Time,
		fieldCapacity:    input.Capacity,
		fieldMethodology: input.Methodology,
	}
}

func confirmationFromRecord(rec persistence.Record) Confirmation {
	return Confirmation{
		ID:          rec.ID,
		SessionID:   rec.Fields.String(fieldSessionID),
		Identity:    rec.Fields.String(fieldIdentity),
		DisplayName: rec.Fields.String(fieldDisplayName),
		ConfirmedAt: rec.Fields.Time(fieldConfirmedAt),
	}
}

func studentFromRecord(rec persistence.Record) StudentProfile {
	status := PaymentStatus(rec.Fields.String(fieldPaymentStatus))
	if !status.Valid() {
		status = PaymentPending
	}
	return StudentProfile{
		ID:              rec.ID,
		Name:            rec.Fields.String(fieldName),
		Email:           rec.Fields.String(fieldEmail),
		Phone:           rec.Fields.String(fieldPhone),
		PaymentDueDate:  rec.Fields.String(fieldPaymentDueDate),
		Amount:          rec.Fields.String(fieldAmount),
		ClassesPerMonth: rec.Fields.String(fieldClassesPerMonth),
		PixKey:          rec.Fields.String(fieldPixKey),
		PaymentStatus:   status,
		ProofOfPayment:  rec.Fields.String(fieldProofOfPayment),
		Score:           rec.Fields.Int(fieldScore),
	}
}

func accountFromRecord(rec persistence.Record) Account {
	return Account{
		ID:           rec.ID,
		Email:        rec.Fields.String(fieldEmail),
		DisplayName:  rec.Fields.String(fieldDisplayName),
		PasswordHash: rec.Fields.String(fieldPasswordHash),
		CreatedAt:    rec.Fields.Time(fieldCreatedAt),
	}
}

// localDate returns the calendar date of now in loc as YYYY-MM-DD.
func localDate(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return now.In(loc).Format(dateLayout)
}

func validDate(value string) bool {
	_, err := time.Parse(dateLayout, value)
	return err == nil
}

func validTime(value string) bool {
	_, err := time.Parse(timeLayout, value)
	return err == nil
}
