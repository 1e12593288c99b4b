package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentCreated  PaymentStatus = "CREATED"
	PaymentIssued   PaymentStatus = "ISSUED"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
	PaymentObsolete PaymentStatus = "OBSOLETE"
)

// UnpaidPaymentStatuses are the states mark_paid accepts.
var UnpaidPaymentStatuses = []PaymentStatus{PaymentCreated, PaymentIssued}

func (s PaymentStatus) Unpaid() bool {
	return s == PaymentCreated || s == PaymentIssued
}

type PaymentMethod string

const (
	MethodStripe  PaymentMethod = "STRIPE"
	MethodInvoice PaymentMethod = "INVOICE"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodStripe, MethodInvoice:
		return m, nil
	}
	return "", NewValidationError("payment_method", "unknown payment method %q", s)
}

type PaymentKind string

const (
	KindEvent      PaymentKind = "event"
	KindMembership PaymentKind = "membership"
)

type PaymentUser struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
}

type PaymentEventRef struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	RegistrationID int64  `json:"registration_id"`
	Option         string `json:"option,omitempty"`
}

type PaymentMembershipRef struct {
	Type MembershipType `json:"type"`
	Year int            `json:"year"`
}

// PaymentData is the snapshot taken at issue time. Later price changes of the
// option or membership type never touch it.
type PaymentData struct {
	User       PaymentUser           `json:"user"`
	Kind       PaymentKind           `json:"kind"`
	Event      *PaymentEventRef      `json:"event,omitempty"`
	Membership *PaymentMembershipRef `json:"membership,omitempty"`
	Price      float64               `json:"price"`
	Currency   string                `json:"currency"`
	Method     PaymentMethod         `json:"method"`

	ExtraInvoiceText       string   `json:"extra_invoice_text,omitempty"`
	StripeChargeInProgress *float64 `json:"stripe_charge_in_progress,omitempty"`
}

// Title is what the payment is for: the event title or "membership".
func (d PaymentData) Title() string {
	if d.Kind == KindEvent && d.Event != nil {
		return d.Event.Title
	}
	return string(KindMembership)
}

func (d PaymentData) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *PaymentData) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = PaymentData{}
		return nil
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("payment data: unsupported type %T", src)
	}
}

type Payment struct {
	bun.BaseModel `bun:"table:payments"`

	ID                    int64         `bun:"id,pk,autoincrement" json:"id"`
	Status                PaymentStatus `bun:"status,notnull" json:"status"`
	Data                  PaymentData   `bun:"data,type:jsonb,notnull" json:"data"`
	StripePaymentIntentID string        `bun:"stripe_payment_intent_id,nullzero" json:"-"`
	CreatedAt             time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt             time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// InvoiceNo is "#" + two-digit year + zero padded id.
func (p *Payment) InvoiceNo() string {
	if p.ID == 0 {
		return "NOT-CREATED-YET"
	}
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return fmt.Sprintf("#%02d%04d", created.Year()%100, p.ID)
}

// PayableStatuses are the states the payment can still be confirmed from. A
// retired payment stays payable once a card charge was started for it: the
// processor may capture the money after the payment was superseded.
func (p *Payment) PayableStatuses() []PaymentStatus {
	if p.Status == PaymentObsolete && p.StripePaymentIntentID != "" {
		return []PaymentStatus{PaymentCreated, PaymentIssued, PaymentObsolete}
	}
	return UnpaidPaymentStatuses
}

func (p *Payment) HasUnpaidInvoice() bool {
	return p.Data.Method == MethodInvoice && p.Status != PaymentPaid
}

func (p *Payment) IsPaid() bool {
	return p.Status == PaymentPaid
}

// PaymentEvent is the payload published on the payment status topic.
type PaymentEvent struct {
	Type      string        `json:"type"`
	PaymentID int64         `json:"payment_id"`
	InvoiceNo string        `json:"invoice_no"`
	Status    PaymentStatus `json:"status"`
	Kind      PaymentKind   `json:"kind"`
	Price     float64       `json:"price"`
	Currency  string        `json:"currency"`
	Timestamp time.Time     `json:"timestamp"`
}

// RegistrationEvent is the payload published on the registration status topic.
type RegistrationEvent struct {
	Type           string             `json:"type"`
	RegistrationID int64              `json:"registration_id"`
	EventID        int64              `json:"event_id"`
	UserID         int64              `json:"user_id"`
	Status         RegistrationStatus `json:"status"`
	Timestamp      time.Time          `json:"timestamp"`
}

// MembershipEvent is the payload published on the membership status topic.
type MembershipEvent struct {
	Type           string         `json:"type"`
	UserID         int64          `json:"user_id"`
	MembershipType MembershipType `json:"membership_type"`
	Until          int            `json:"until"`
	Timestamp      time.Time      `json:"timestamp"`
}
