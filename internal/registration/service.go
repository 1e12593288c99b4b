// Package registration drives a user's registration for an event from
// submission through billing to completion or cancellation.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dds-registration/internal/config"
	"dds-registration/internal/database"
	"dds-registration/internal/kafka"
	"dds-registration/internal/logger"
	"dds-registration/internal/metrics"
	"dds-registration/internal/models"
	"dds-registration/internal/notify"
	"dds-registration/internal/payment"
)

type Service struct {
	Repo     database.Repository
	Payments *payment.Service
	Notify   *notify.Dispatcher
	Events   kafka.Publisher
	Topics   config.TopicConfig
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Register creates a SUBMITTED registration of user for the event with the
// given code. Eligibility is evaluated while the event row is locked so
// concurrent calls cannot exceed capacity.
func (s *Service) Register(ctx context.Context, user *models.User, eventCode string, optionID int64) (*models.Registration, error) {
	start := time.Now()
	defer s.Metrics.ObserveRegister(start)

	event, err := s.Repo.GetEventByCode(ctx, eventCode)
	if err != nil {
		return nil, err
	}
	option, err := s.Repo.GetOption(ctx, optionID)
	if err != nil {
		return nil, err
	}
	if option.EventID != event.ID {
		return nil, fmt.Errorf("option %d of event %s: %w", optionID, eventCode, models.ErrNotFound)
	}

	var reg *models.Registration
	err = s.Repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		locked, err := tx.LockEvent(ctx, event.ID)
		if err != nil {
			return err
		}
		if !locked.WindowOpen(s.now()) {
			return fmt.Errorf("event %s: %w", locked.Code, models.ErrRegistrationClosed)
		}
		count, err := tx.CountActiveRegistrations(ctx, locked.ID)
		if err != nil {
			return err
		}
		if !locked.HasCapacity(count) {
			return fmt.Errorf("event %s has %d of %d places taken: %w", locked.Code, count, locked.MaxParticipants, models.ErrCapacityExceeded)
		}
		_, err = tx.FindActiveRegistration(ctx, locked.ID, user.ID)
		switch {
		case err == nil:
			return fmt.Errorf("event %s user %d: %w", locked.Code, user.ID, models.ErrDuplicateActiveRegistration)
		case !errors.Is(err, models.ErrNotFound):
			return err
		}

		now := s.now()
		reg = &models.Registration{
			EventID:   locked.ID,
			UserID:    user.ID,
			OptionID:  option.ID,
			Status:    models.RegistrationSubmitted,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.CreateRegistration(ctx, reg)
	})
	if err != nil {
		s.rejected(err)
		return nil, err
	}

	reg.Event, reg.Option, reg.User = event, option, user
	s.Logger.LogRegistration("SUBMITTED", reg.ID, fmt.Sprintf("user %d for %s (%s)", user.ID, event.Code, option.Item))
	s.changed(ctx, reg)
	return reg, nil
}

func (s *Service) rejected(err error) {
	var reason string
	switch {
	case errors.Is(err, models.ErrRegistrationClosed):
		reason = "closed"
	case errors.Is(err, models.ErrCapacityExceeded):
		reason = "capacity"
	case errors.Is(err, models.ErrDuplicateActiveRegistration):
		reason = "duplicate"
	default:
		s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to register: %v", err))
		return
	}
	s.Metrics.RegistrationRejected(reason)
	s.Logger.Info("REGISTRATION", fmt.Sprintf("Registration rejected: %v", err))
}

// owned loads a registration that belongs to user. Other users' registrations
// are reported as missing.
func owned(ctx context.Context, repo database.Repository, user *models.User, id int64) (*models.Registration, error) {
	reg, err := repo.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.UserID != user.ID {
		return nil, fmt.Errorf("registration %d: %w", id, models.ErrNotFound)
	}
	return reg, nil
}

// SubmitBilling issues a payment for the registration's option and moves it
// to PAYMENT_PENDING. A free option completes the registration instead.
func (s *Service) SubmitBilling(ctx context.Context, user *models.User, registrationID int64, method models.PaymentMethod, extraText string) (*models.Registration, *models.Payment, error) {
	if _, err := models.ParsePaymentMethod(string(method)); err != nil {
		return nil, nil, err
	}

	var (
		reg *models.Registration
		p   *models.Payment
	)
	err := s.Repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		var err error
		reg, err = owned(ctx, tx, user, registrationID)
		if err != nil {
			return err
		}
		if !reg.Status.CanTransitionTo(models.RegistrationPaymentPending) {
			return &models.TransitionError{Entity: "registration", From: string(reg.Status), To: string(models.RegistrationPaymentPending)}
		}
		option, err := tx.GetOption(ctx, reg.OptionID)
		if err != nil {
			return err
		}

		if reg.PaymentID != nil {
			if _, err := s.Payments.Obsolete(ctx, tx, *reg.PaymentID); err != nil {
				return err
			}
			reg.PaymentID = nil
		}

		if err := reg.TransitionTo(models.RegistrationPaymentPending); err != nil {
			return err
		}
		if option.Price == 0 {
			if err := reg.TransitionTo(models.RegistrationRegistered); err != nil {
				return err
			}
			return tx.UpdateRegistration(ctx, reg)
		}

		p, err = s.Payments.Issue(ctx, tx, payment.IssueRequest{
			Payer:    user,
			Method:   method,
			Price:    option.Price,
			Currency: option.Currency,
			Event: &models.PaymentEventRef{
				ID:             reg.EventID,
				Title:          reg.Event.Title,
				RegistrationID: reg.ID,
				Option:         option.Item,
			},
			ExtraText: extraText,
		})
		if err != nil {
			return err
		}
		reg.PaymentID = &p.ID
		return tx.UpdateRegistration(ctx, reg)
	})
	if err != nil {
		if !isExpected(err) {
			s.Logger.Error("REGISTRATION", fmt.Sprintf("Failed to submit billing for registration %d: %v", registrationID, err))
		}
		return nil, nil, err
	}

	if p == nil {
		s.Logger.LogRegistration("REGISTERED", reg.ID, "free option, no payment needed")
		s.Notify.Mail(ctx, notify.SuccessMail(user, reg.Event))
		s.changed(ctx, reg)
		return reg, nil, nil
	}

	s.Logger.LogRegistration("PAYMENT_PENDING", reg.ID, fmt.Sprintf("payment %d by %s", p.ID, method))
	s.changed(ctx, reg)
	if method == models.MethodInvoice {
		s.Payments.SendInvoice(ctx, p)
	}
	return reg, p, nil
}

// Review lets staff triage a submitted registration.
func (s *Service) Review(ctx context.Context, staff *models.User, registrationID int64, status models.RegistrationStatus) (*models.Registration, error) {
	if !staff.IsStaff {
		return nil, fmt.Errorf("registration %d: %w", registrationID, models.ErrNotFound)
	}
	switch status {
	case models.RegistrationSelected, models.RegistrationWaitlist, models.RegistrationDeclined:
	default:
		return nil, models.NewValidationError("status", "review can only select, waitlist or decline")
	}

	var (
		reg   *models.Registration
		moved bool
	)
	err := s.Repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		var err error
		reg, err = tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		switch reg.Status {
		case models.RegistrationSubmitted, models.RegistrationWaitlist, models.RegistrationSelected:
		default:
			return &models.TransitionError{Entity: "registration", From: string(reg.Status), To: string(status)}
		}
		if reg.Status == status {
			return nil
		}
		if err := reg.TransitionTo(status); err != nil {
			return err
		}
		moved = true
		return tx.UpdateRegistration(ctx, reg)
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return reg, nil
	}

	s.Logger.LogRegistration(string(status), reg.ID, fmt.Sprintf("reviewed by %s", staff.Email))
	s.changed(ctx, reg)
	return reg, nil
}

// Cancel withdraws (owner) or cancels (staff) a registration. An unpaid
// payment is retired; a paid one is refunded while the event's refund window
// is open. Refund failures are reported but do not undo the cancellation.
func (s *Service) Cancel(ctx context.Context, actor *models.User, registrationID int64) (*models.Registration, error) {
	var (
		reg    *models.Registration
		refund *models.Payment
	)
	err := s.Repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		var err error
		reg, err = tx.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}

		next := models.RegistrationWithdrawn
		switch {
		case reg.UserID == actor.ID:
		case actor.IsStaff:
			next = models.RegistrationCancelled
		default:
			return fmt.Errorf("registration %d: %w", registrationID, models.ErrNotFound)
		}
		if err := reg.TransitionTo(next); err != nil {
			return err
		}
		if err := tx.UpdateRegistration(ctx, reg); err != nil {
			return err
		}

		if reg.PaymentID == nil {
			return nil
		}
		p, err := tx.GetPayment(ctx, *reg.PaymentID)
		if err != nil {
			return err
		}
		switch {
		case p.Status.Unpaid():
			_, err = s.Payments.Obsolete(ctx, tx, p.ID)
			return err
		case p.Status == models.PaymentPaid && reg.Event.RefundApplies(s.now()):
			refund = p
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.LogRegistration(string(reg.Status), reg.ID, fmt.Sprintf("by %s", actor.Email))
	s.changed(ctx, reg)

	if refund != nil {
		if err := s.Payments.Refund(ctx, refund); err != nil {
			s.Logger.Error("REGISTRATION", fmt.Sprintf("Refund of %s for registration %d failed: %v", refund.InvoiceNo(), reg.ID, err))
			s.Notify.Operator(ctx, notify.FailureText("refund "+refund.InvoiceNo()+" for cancelled registration", err))
		}
	}
	return reg, nil
}

// Get returns a registration visible to viewer.
func (s *Service) Get(ctx context.Context, viewer *models.User, registrationID int64) (*models.Registration, error) {
	if viewer.IsStaff {
		return s.Repo.GetRegistration(ctx, registrationID)
	}
	return owned(ctx, s.Repo, viewer, registrationID)
}

func (s *Service) ListForUser(ctx context.Context, user *models.User) ([]models.Registration, error) {
	return s.Repo.ListRegistrationsByUser(ctx, user.ID)
}

func (s *Service) changed(ctx context.Context, reg *models.Registration) {
	s.Metrics.RegistrationTransition(string(reg.Status))
	if s.Events == nil || s.Topics.RegistrationStatus == "" {
		return
	}
	err := s.Events.Publish(ctx, s.Topics.RegistrationStatus, strconv.FormatInt(reg.ID, 10), models.RegistrationEvent{
		Type:           "registration.status_changed",
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Status:         reg.Status,
		Timestamp:      s.now(),
	})
	if err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish registration %d status: %v", reg.ID, err))
		s.Metrics.NotificationFailed("kafka")
	}
}

func isExpected(err error) bool {
	for _, target := range []error{models.ErrNotFound, models.ErrValidation, models.ErrInvalidTransition} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
