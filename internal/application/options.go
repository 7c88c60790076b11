package application

import (
	"time"

	"github.com/ghmassaro/presenca-treino/internal/persistence"
)

// ConfirmationObserver receives confirmation outcomes and contention retries.
type ConfirmationObserver interface {
	ConfirmationRecorded(result ConfirmationResult)
	ConfirmationRetried()
}

// SeatNotifier is told whenever the confirmed count of a session changes.
// PublishSeats must not block.
type SeatNotifier interface {
	PublishSeats(update SeatUpdate)
}

// Option customises a service.
type Option func(*serviceOptions)

type serviceOptions struct {
	location *time.Location
	retry    persistence.RetryConfig
	observer ConfirmationObserver
	notifier SeatNotifier
}

// WithLocation sets the time zone used to compute "today".
func WithLocation(loc *time.Location) Option {
	return func(o *serviceOptions) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithRetryConfig sets the retry budget for contended transactions.
func WithRetryConfig(config persistence.RetryConfig) Option {
	return func(o *serviceOptions) {
		o.retry = config
	}
}

// WithConfirmationObserver registers an observer for confirmation outcomes.
func WithConfirmationObserver(observer ConfirmationObserver) Option {
	return func(o *serviceOptions) {
		o.observer = observer
	}
}

// WithSeatNotifier registers a notifier for seat count changes.
func WithSeatNotifier(notifier SeatNotifier) Option {
	return func(o *serviceOptions) {
		o.notifier = notifier
	}
}

func buildOptions(opts []Option) serviceOptions {
	o := serviceOptions{
		location: time.Local,
		retry:    persistence.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
