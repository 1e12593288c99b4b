package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const DefaultRefundWindowDays = 14

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID                int64      `bun:"id,pk,autoincrement" json:"id"`
	Code              string     `bun:"code,unique,notnull" json:"code"`
	Title             string     `bun:"title,unique,notnull" json:"title"`
	Description       string     `bun:"description,notnull" json:"description"`
	SuccessEmail      string     `bun:"success_email,notnull" json:"success_email"`
	Public            bool       `bun:"public,notnull" json:"public"`
	RegistrationOpen  time.Time  `bun:"registration_open,notnull" json:"registration_open"`
	RegistrationClose time.Time  `bun:"registration_close,notnull" json:"registration_close"`
	StartsAt          *time.Time `bun:"starts_at" json:"starts_at,omitempty"`
	RefundWindowDays  int        `bun:"refund_window_days,notnull" json:"refund_window_days"`
	MaxParticipants   int        `bun:"max_participants,notnull" json:"max_participants"`
	CreatedAt         time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`

	Options []*RegistrationOption `bun:"rel:has-many,join:id=event_id" json:"options,omitempty"`
}

// Validate checks the fields an administrator controls.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return NewValidationError("title", "is required")
	}
	if strings.TrimSpace(e.Description) == "" {
		return NewValidationError("description", "is required")
	}
	if strings.TrimSpace(e.SuccessEmail) == "" {
		return NewValidationError("success_email", "is required")
	}
	if e.RegistrationOpen.IsZero() || e.RegistrationClose.IsZero() {
		return NewValidationError("registration_close", "registration window dates are required")
	}
	if DateOf(e.RegistrationClose).Before(DateOf(e.RegistrationOpen)) {
		return NewValidationError("registration_close", "must not be before registration_open")
	}
	if e.MaxParticipants < 0 {
		return NewValidationError("max_participants", "must not be negative")
	}
	if e.RefundWindowDays < 0 {
		return NewValidationError("refund_window_days", "must not be negative")
	}
	return nil
}

// CanRegister is the eligibility predicate: today inside the inclusive window and
// capacity left (MaxParticipants == 0 means unlimited).
func (e *Event) CanRegister(today time.Time, activeRegistrations int) bool {
	return e.WindowOpen(today) && e.HasCapacity(activeRegistrations)
}

func (e *Event) WindowOpen(today time.Time) bool {
	d := DateOf(today)
	return !d.Before(DateOf(e.RegistrationOpen)) && !d.After(DateOf(e.RegistrationClose))
}

func (e *Event) HasCapacity(activeRegistrations int) bool {
	return e.MaxParticipants == 0 || activeRegistrations < e.MaxParticipants
}

// RefundApplies reports whether a paid registration cancelled today is still refundable.
func (e *Event) RefundApplies(today time.Time) bool {
	if e.StartsAt == nil {
		return false
	}
	deadline := DateOf(*e.StartsAt).AddDate(0, 0, -e.RefundWindowDays)
	return !DateOf(today).After(deadline)
}

func (e *Event) String() string {
	if e.Code == "" {
		return e.Title
	}
	return fmt.Sprintf("%s (%s)", e.Title, e.Code)
}

type RegistrationOption struct {
	bun.BaseModel `bun:"table:registration_options"`

	ID       int64   `bun:"id,pk,autoincrement" json:"id"`
	EventID  int64   `bun:"event_id,notnull" json:"event_id"`
	Item     string  `bun:"item,notnull" json:"item"`
	Price    float64 `bun:"price,notnull" json:"price"`
	Currency string  `bun:"currency,notnull" json:"currency"`
}

func (o *RegistrationOption) Validate() error {
	if strings.TrimSpace(o.Item) == "" {
		return NewValidationError("item", "is required")
	}
	if o.Price < 0 {
		return NewValidationError("price", "must not be negative")
	}
	currency, err := NormalizeCurrency(o.Currency)
	if err != nil {
		return err
	}
	o.Currency = currency
	return nil
}

func (o *RegistrationOption) String() string {
	if o.Price == 0 {
		return o.Item
	}
	return fmt.Sprintf("%s (%s %g)", o.Item, o.Currency, o.Price)
}

// EventMessage is an announcement broadcast to everyone actively registered for an event.
type EventMessage struct {
	bun.BaseModel `bun:"table:event_messages"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID   int64     `bun:"event_id,notnull" json:"event_id"`
	Message   string    `bun:"message,notnull" json:"message"`
	Emailed   bool      `bun:"emailed,notnull" json:"emailed"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// DateOf drops the clock part, keeping the UTC calendar date of t.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
