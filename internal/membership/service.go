// Package membership sells and renews yearly memberships.
package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dds-registration/internal/database"
	"dds-registration/internal/logger"
	"dds-registration/internal/metrics"
	"dds-registration/internal/models"
	"dds-registration/internal/payment"
)

type Service struct {
	Repo     database.Repository
	Payments *payment.Service
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (s *Service) thisYear() int {
	if s.Now != nil {
		return s.Now().Year()
	}
	return time.Now().Year()
}

// Status is a member's view of their membership.
type Status struct {
	Membership  *models.Membership      `json:"membership,omitempty"`
	Active      bool                    `json:"active"`
	RenewalYear int                     `json:"renewal_year"`
	Plans       []models.MembershipPlan `json:"plans"`
}

func (s *Service) Get(ctx context.Context, user *models.User) (*Status, error) {
	year := s.thisYear()
	st := &Status{RenewalYear: year, Plans: models.PublicMembershipPlans()}

	m, err := s.Repo.GetMembershipByUser(ctx, user.ID)
	if errors.Is(err, models.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return nil, err
	}
	st.Membership = m
	st.Active = m.Active(year)
	st.RenewalYear = m.RenewalYear(year)
	return st, nil
}

// StartRenewal issues the payment for the next membership year. The
// membership row is created on first use and stays inactive until paid. A
// previous unpaid renewal payment is retired.
func (s *Service) StartRenewal(ctx context.Context, user *models.User, membershipType models.MembershipType, method models.PaymentMethod) (*models.Membership, *models.Payment, error) {
	if membershipType == "" {
		membershipType = models.DefaultMembershipType
	}
	plan, ok := models.LookupMembershipPlan(membershipType)
	if !ok || !plan.Public {
		return nil, nil, models.NewValidationError("membership_type", "%q cannot be purchased", membershipType)
	}
	if _, err := models.ParsePaymentMethod(string(method)); err != nil {
		return nil, nil, err
	}

	year := s.thisYear()
	var (
		m *models.Membership
		p *models.Payment
	)
	err := s.Repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		var err error
		m, err = tx.GetMembershipByUser(ctx, user.ID)
		switch {
		case errors.Is(err, models.ErrNotFound):
			m = models.NewMembership(user.ID, membershipType, year)
			if err := tx.CreateMembership(ctx, m); err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if m.PaymentID != nil {
			if _, err := s.Payments.Obsolete(ctx, tx, *m.PaymentID); err != nil {
				return err
			}
		}

		p, err = s.Payments.Issue(ctx, tx, payment.IssueRequest{
			Payer:      user,
			Method:     method,
			Price:      plan.Price,
			Currency:   plan.Currency,
			Membership: &models.PaymentMembershipRef{Type: membershipType, Year: m.RenewalYear(year)},
		})
		if err != nil {
			return err
		}
		m.PaymentID = &p.ID
		return tx.UpdateMembership(ctx, m)
	})
	if err != nil {
		s.Logger.Error("MEMBERSHIP", fmt.Sprintf("Failed to start renewal for user %d: %v", user.ID, err))
		return nil, nil, err
	}

	s.Metrics.MembershipRenewal(string(membershipType))
	s.Logger.Info("MEMBERSHIP", fmt.Sprintf("Renewal of %s for user %d started, payment %d for %d",
		membershipType, user.ID, p.ID, p.Data.Membership.Year))

	if method == models.MethodInvoice {
		s.Payments.SendInvoice(ctx, p)
	}
	return m, p, nil
}
