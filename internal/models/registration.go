package models

import (
	"time"

	"github.com/uptrace/bun"
)

type RegistrationStatus string

const (
	RegistrationSubmitted      RegistrationStatus = "SUBMITTED"
	RegistrationSelected       RegistrationStatus = "SELECTED"
	RegistrationWaitlist       RegistrationStatus = "WAITLIST"
	RegistrationDeclined       RegistrationStatus = "DECLINED"
	RegistrationPaymentPending RegistrationStatus = "PAYMENT_PENDING"
	RegistrationRegistered     RegistrationStatus = "REGISTERED"
	RegistrationWithdrawn      RegistrationStatus = "WITHDRAWN"
	RegistrationCancelled      RegistrationStatus = "CANCELLED"
)

// InactiveRegistrationStatuses is the single definition of "not active". The
// count query and the partial unique index are both built from it; the
// migrations test checks the SQL index still matches.
var InactiveRegistrationStatuses = []RegistrationStatus{
	RegistrationCancelled,
	RegistrationWithdrawn,
	RegistrationDeclined,
}

var registrationTransitions = map[RegistrationStatus][]RegistrationStatus{
	RegistrationSubmitted: {
		RegistrationSelected, RegistrationWaitlist, RegistrationDeclined,
		RegistrationPaymentPending, RegistrationWithdrawn, RegistrationCancelled,
	},
	RegistrationSelected: {
		RegistrationWaitlist, RegistrationDeclined,
		RegistrationPaymentPending, RegistrationWithdrawn, RegistrationCancelled,
	},
	RegistrationWaitlist: {
		RegistrationSelected, RegistrationDeclined,
		RegistrationPaymentPending, RegistrationWithdrawn, RegistrationCancelled,
	},
	RegistrationPaymentPending: {
		RegistrationPaymentPending, RegistrationRegistered,
		RegistrationWithdrawn, RegistrationCancelled,
	},
	RegistrationRegistered: {RegistrationWithdrawn, RegistrationCancelled},
}

func ParseRegistrationStatus(s string) (RegistrationStatus, error) {
	status := RegistrationStatus(s)
	switch status {
	case RegistrationSubmitted, RegistrationSelected, RegistrationWaitlist, RegistrationDeclined,
		RegistrationPaymentPending, RegistrationRegistered, RegistrationWithdrawn, RegistrationCancelled:
		return status, nil
	}
	return "", NewValidationError("status", "unknown registration status %q", s)
}

func (s RegistrationStatus) Active() bool {
	for _, inactive := range InactiveRegistrationStatuses {
		if s == inactive {
			return false
		}
	}
	return true
}

// IsTerminal reports whether s may never return to a pre-payment state.
// REGISTERED is terminal but still active and can be withdrawn or cancelled.
func (s RegistrationStatus) IsTerminal() bool {
	return s == RegistrationRegistered || !s.Active()
}

func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	for _, allowed := range registrationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Registration struct {
	bun.BaseModel `bun:"table:registrations"`

	ID        int64              `bun:"id,pk,autoincrement" json:"id"`
	EventID   int64              `bun:"event_id,notnull" json:"event_id"`
	UserID    int64              `bun:"user_id,notnull" json:"user_id"`
	OptionID  int64              `bun:"option_id,notnull" json:"option_id"`
	PaymentID *int64             `bun:"payment_id" json:"payment_id,omitempty"`
	Status    RegistrationStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time          `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time          `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Event  *Event              `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
	User   *User               `bun:"rel:belongs-to,join:user_id=id" json:"-"`
	Option *RegistrationOption `bun:"rel:belongs-to,join:option_id=id" json:"option,omitempty"`
}

// TransitionTo moves the registration to next or returns a TransitionError.
func (r *Registration) TransitionTo(next RegistrationStatus) error {
	if !r.Status.CanTransitionTo(next) {
		return &TransitionError{Entity: "registration", From: string(r.Status), To: string(next)}
	}
	r.Status = next
	return nil
}

func (r *Registration) Active() bool {
	return r.Status.Active()
}
