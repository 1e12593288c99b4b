package models

import (
	"time"

	"github.com/uptrace/bun"
)

type MembershipType string

const (
	MembershipAcademic MembershipType = "ACADEMIC"
	MembershipNormal   MembershipType = "NORMAL"
	MembershipHonorary MembershipType = "HONORARY"

	DefaultMembershipType = MembershipNormal
)

type MembershipPlan struct {
	Type     MembershipType `json:"type"`
	Label    string         `json:"label"`
	Price    float64        `json:"price"`
	Currency string         `json:"currency"`
	Public   bool           `json:"public"`
}

var membershipPlans = []MembershipPlan{
	{Type: MembershipAcademic, Label: "Academic Membership", Price: 25, Currency: "EUR", Public: true},
	{Type: MembershipNormal, Label: "Normal Membership", Price: 50, Currency: "EUR", Public: true},
	{Type: MembershipHonorary, Label: "Honorary Membership", Price: 0, Currency: "EUR", Public: false},
}

// MembershipPlans returns every membership type, purchasable or not.
func MembershipPlans() []MembershipPlan {
	out := make([]MembershipPlan, len(membershipPlans))
	copy(out, membershipPlans)
	return out
}

// PublicMembershipPlans returns the types a member can buy themselves.
func PublicMembershipPlans() []MembershipPlan {
	var out []MembershipPlan
	for _, p := range membershipPlans {
		if p.Public {
			out = append(out, p)
		}
	}
	return out
}

func LookupMembershipPlan(t MembershipType) (MembershipPlan, bool) {
	for _, p := range membershipPlans {
		if p.Type == t {
			return p, true
		}
	}
	return MembershipPlan{}, false
}

type Membership struct {
	bun.BaseModel `bun:"table:memberships"`

	ID             int64          `bun:"id,pk,autoincrement" json:"id"`
	UserID         int64          `bun:"user_id,unique,notnull" json:"user_id"`
	MembershipType MembershipType `bun:"membership_type,notnull" json:"membership_type"`
	Started        int            `bun:"started,notnull" json:"started"`
	Until          int            `bun:"until,notnull" json:"until"`
	PaymentID      *int64         `bun:"payment_id" json:"payment_id,omitempty"`
	CreatedAt      time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// NewMembership starts an unpaid membership: until is last year, so it is
// inactive until the first payment is confirmed.
func NewMembership(userID int64, t MembershipType, thisYear int) *Membership {
	return &Membership{
		UserID:         userID,
		MembershipType: t,
		Started:        thisYear,
		Until:          thisYear - 1,
	}
}

func (m *Membership) Active(year int) bool {
	return year <= m.Until
}

// RenewalYear is the year the next payment pays for.
func (m *Membership) RenewalYear(thisYear int) int {
	if m.Active(thisYear) {
		return m.Until + 1
	}
	return thisYear
}

// Extend applies a confirmed payment for year. A zero year extends by one.
func (m *Membership) Extend(year int) {
	if year == 0 {
		m.Until++
		return
	}
	if year > m.Until {
		m.Until = year
	}
}

func (m *Membership) Plan() MembershipPlan {
	p, _ := LookupMembershipPlan(m.MembershipType)
	return p
}
