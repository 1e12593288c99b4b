package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"dds-registration/internal/config"
	"dds-registration/internal/database"
	"dds-registration/internal/documents"
	"dds-registration/internal/kafka"
	"dds-registration/internal/logger"
	"dds-registration/internal/metrics"
	"dds-registration/internal/models"
	"dds-registration/internal/notify"
)

var ErrChargeInProgress = errors.New("a card payment for this invoice is already being prepared")

// Locker serialises card charge preparation per payment.
type Locker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	Repo    database.Repository
	Docs    documents.Renderer
	Notify  *notify.Dispatcher
	Events  kafka.Publisher
	Topics  config.TopicConfig
	Charges ChargeClient // nil disables card payments
	Locker  Locker
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
	Stripe  config.StripeConfig
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IssueRequest describes what is being paid for. Exactly one of Event and
// Membership is set.
type IssueRequest struct {
	Payer      *models.User
	Method     models.PaymentMethod
	Price      float64
	Currency   string
	Event      *models.PaymentEventRef
	Membership *models.PaymentMembershipRef
	ExtraText  string
}

// Issue snapshots the request into a new CREATED payment. repo may be a
// transaction owned by the caller.
func (s *Service) Issue(ctx context.Context, repo database.Repository, req IssueRequest) (*models.Payment, error) {
	if _, err := models.ParsePaymentMethod(string(req.Method)); err != nil {
		return nil, err
	}
	currency, err := models.NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}
	if req.Price < 0 {
		return nil, models.NewValidationError("price", "must not be negative")
	}
	if (req.Event == nil) == (req.Membership == nil) {
		return nil, fmt.Errorf("payment must be for exactly one event or membership: %w", models.ErrValidation)
	}

	kind := models.KindEvent
	if req.Membership != nil {
		kind = models.KindMembership
	}
	now := s.now()
	p := &models.Payment{
		Status: models.PaymentCreated,
		Data: models.PaymentData{
			User: models.PaymentUser{
				ID:      req.Payer.ID,
				Name:    req.Payer.FullName(),
				Email:   req.Payer.Email,
				Address: req.Payer.Address,
			},
			Kind:             kind,
			Event:            req.Event,
			Membership:       req.Membership,
			Price:            req.Price,
			Currency:         currency,
			Method:           req.Method,
			ExtraInvoiceText: req.ExtraText,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Data.User.Name == "" {
		p.Data.User.Name = req.Payer.Email
	}
	if err := repo.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.Metrics.PaymentIssued(string(kind), string(req.Method))
	s.Logger.LogPayment("ISSUE", p.ID, fmt.Sprintf("%s %s %.2f %s by user %d", kind, req.Method, req.Price, currency, req.Payer.ID))
	return p, nil
}

// Obsolete retires an unpaid payment that has been superseded. Paid or
// already retired payments are left alone.
func (s *Service) Obsolete(ctx context.Context, repo database.Repository, paymentID int64) (bool, error) {
	changed, err := repo.TransitionPayment(ctx, paymentID, models.UnpaidPaymentStatuses, models.PaymentObsolete, s.now())
	if err != nil {
		return false, fmt.Errorf("obsolete payment %d: %w", paymentID, err)
	}
	if changed {
		s.Logger.LogPayment("OBSOLETE", paymentID, "superseded before payment")
	}
	return changed, nil
}

// SendInvoice emails the invoice PDF and marks the payment ISSUED. It runs
// after the issuing transaction committed; failures are reported, not returned.
func (s *Service) SendInvoice(ctx context.Context, p *models.Payment) bool {
	pdf, err := s.Docs.Invoice(p)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to render invoice %s: %v", p.InvoiceNo(), err))
		s.Metrics.NotificationFailed("document")
		s.Notify.Operator(ctx, notify.FailureText("render invoice "+p.InvoiceNo(), err))
		return false
	}
	if !s.Notify.Mail(ctx, notify.InvoiceMail(s.Notify.Site, p, pdf)) {
		return false
	}

	changed, err := s.Repo.TransitionPayment(ctx, p.ID, []models.PaymentStatus{models.PaymentCreated}, models.PaymentIssued, s.now())
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to mark payment %d issued: %v", p.ID, err))
		return false
	}
	if changed {
		p.Status = models.PaymentIssued
		s.Logger.LogPayment("ISSUED", p.ID, "invoice "+p.InvoiceNo()+" emailed")
	}
	return true
}

// confirmation carries what ConfirmPayment learned inside the transaction to
// the notifications sent after commit.
type confirmation struct {
	payment      *models.Payment
	changed      bool
	registration *models.Registration
	registered   bool
	orphaned     bool
	membership   *models.Membership
}

// ConfirmPayment marks the payment PAID and completes whatever it pays for,
// in one transaction. Repeated calls are no-ops; notifications fire only on
// the call that changed the status.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID int64) (*models.Payment, bool, error) {
	var c confirmation
	err := s.Repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		c = confirmation{}
		before, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		p, changed, err := tx.MarkPaymentPaid(ctx, paymentID, s.now())
		if err != nil {
			return err
		}
		c.payment, c.changed = p, changed
		if !changed {
			return nil
		}
		if before.Status == models.PaymentObsolete {
			// superseded while its card charge was running; nothing to complete
			c.orphaned = true
			if reg, err := tx.GetRegistrationByPayment(ctx, p.ID); err == nil {
				c.registration = reg
			}
			return nil
		}

		switch p.Data.Kind {
		case models.KindEvent:
			return s.completeRegistration(ctx, tx, &c)
		case models.KindMembership:
			return s.extendMembership(ctx, tx, &c)
		}
		return nil
	})
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to confirm payment %d: %v", paymentID, err))
		return nil, false, err
	}

	if !c.changed {
		s.Logger.LogPayment("CONFIRM", paymentID, "already paid, nothing to do")
		return c.payment, false, nil
	}

	s.afterPaid(ctx, &c)
	return c.payment, true, nil
}

func (s *Service) completeRegistration(ctx context.Context, tx database.Repository, c *confirmation) error {
	reg, err := tx.GetRegistrationByPayment(ctx, c.payment.ID)
	if errors.Is(err, models.ErrNotFound) {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Paid payment %d is not linked to any registration", c.payment.ID))
		return nil
	}
	if err != nil {
		return err
	}
	c.registration = reg

	if reg.Status == models.RegistrationRegistered {
		return nil
	}
	if err := reg.TransitionTo(models.RegistrationRegistered); err != nil {
		// money arrived for a registration that was withdrawn meanwhile
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Payment %d paid but registration %d is %s", c.payment.ID, reg.ID, reg.Status))
		c.orphaned = true
		return nil
	}
	if err := tx.UpdateRegistration(ctx, reg); err != nil {
		return err
	}
	c.registered = true
	return nil
}

func (s *Service) extendMembership(ctx context.Context, tx database.Repository, c *confirmation) error {
	m, err := tx.GetMembershipByPayment(ctx, c.payment.ID)
	if errors.Is(err, models.ErrNotFound) {
		m, err = tx.GetMembershipByUser(ctx, c.payment.Data.User.ID)
	}
	if errors.Is(err, models.ErrNotFound) {
		s.Logger.Warn("MEMBERSHIP", fmt.Sprintf("Paid payment %d has no membership", c.payment.ID))
		return nil
	}
	if err != nil {
		return err
	}

	year := 0
	if c.payment.Data.Membership != nil {
		year = c.payment.Data.Membership.Year
		if t := c.payment.Data.Membership.Type; t != "" {
			m.MembershipType = t
		}
	}
	m.Extend(year)
	m.PaymentID = &c.payment.ID
	if err := tx.UpdateMembership(ctx, m); err != nil {
		return err
	}
	c.membership = m
	return nil
}

func (s *Service) afterPaid(ctx context.Context, c *confirmation) {
	p := c.payment
	s.Metrics.PaymentPaid(string(p.Data.Kind), string(p.Data.Method))
	s.Logger.LogPayment("PAID", p.ID, fmt.Sprintf("%s %.2f %s", p.InvoiceNo(), p.Data.Price, p.Data.Currency))

	s.Notify.Operator(ctx, notify.PaymentText(p))
	if c.orphaned {
		s.Notify.Operator(ctx, orphanedText(c))
	}

	if c.registered {
		s.Metrics.RegistrationTransition(string(models.RegistrationRegistered))
		s.Logger.LogRegistration("REGISTERED", c.registration.ID, "payment "+p.InvoiceNo()+" received")
		if c.registration.User != nil && c.registration.Event != nil {
			s.Notify.Mail(ctx, notify.SuccessMail(c.registration.User, c.registration.Event))
		}
		s.publish(ctx, s.Topics.RegistrationStatus, strconv.FormatInt(c.registration.ID, 10), models.RegistrationEvent{
			Type:           "registration.status_changed",
			RegistrationID: c.registration.ID,
			EventID:        c.registration.EventID,
			UserID:         c.registration.UserID,
			Status:         c.registration.Status,
			Timestamp:      s.now(),
		})
	}
	if c.membership != nil {
		s.Logger.Info("MEMBERSHIP", fmt.Sprintf("Membership of user %d valid until %d", c.membership.UserID, c.membership.Until))
		s.publish(ctx, s.Topics.MembershipStatus, strconv.FormatInt(c.membership.UserID, 10), models.MembershipEvent{
			Type:           "membership.extended",
			UserID:         c.membership.UserID,
			MembershipType: c.membership.MembershipType,
			Until:          c.membership.Until,
			Timestamp:      s.now(),
		})
	}

	s.sendReceipt(ctx, p)
	s.publishPayment(ctx, p, "payment.paid")
}

func orphanedText(c *confirmation) string {
	p := c.payment
	if c.registration == nil {
		return fmt.Sprintf("Payment %s arrived after it was superseded; refund it manually.", p.InvoiceNo())
	}
	return fmt.Sprintf("Payment %s arrived for registration %d which is %s; refund it manually.",
		p.InvoiceNo(), c.registration.ID, c.registration.Status)
}

func (s *Service) sendReceipt(ctx context.Context, p *models.Payment) {
	if p.Data.User.Email == "" {
		return
	}
	pdf, err := s.Docs.Receipt(p)
	if err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to render receipt %s: %v", p.InvoiceNo(), err))
		s.Metrics.NotificationFailed("document")
		return
	}
	s.Notify.Mail(ctx, notify.ReceiptMail(s.Notify.Site, p, pdf))
}

// Refund returns the money of a PAID payment. Card payments are refunded
// through the processor; bank transfers are handed to the operator.
func (s *Service) Refund(ctx context.Context, p *models.Payment) error {
	if p.Status != models.PaymentPaid {
		return &models.TransitionError{Entity: "payment", From: string(p.Status), To: string(models.PaymentRefunded)}
	}

	automatic := p.Data.Method == models.MethodStripe && p.StripePaymentIntentID != ""
	if automatic {
		if s.Charges == nil {
			return &models.ExternalServiceError{Service: "stripe", Err: ErrStripeClientInitFailed}
		}
		if err := s.Charges.Refund(ctx, p.StripePaymentIntentID); err != nil {
			return &models.ExternalServiceError{Service: "stripe", Err: err}
		}
	}

	changed, err := s.Repo.TransitionPayment(ctx, p.ID, []models.PaymentStatus{models.PaymentPaid}, models.PaymentRefunded, s.now())
	if err != nil {
		return fmt.Errorf("mark payment %d refunded: %w", p.ID, err)
	}
	if !changed {
		return nil
	}
	p.Status = models.PaymentRefunded

	s.Metrics.PaymentRefunded()
	s.Logger.LogPayment("REFUND", p.ID, fmt.Sprintf("%s automatic=%t", p.InvoiceNo(), automatic))
	s.Notify.Operator(ctx, notify.RefundText(p, automatic))
	s.publishPayment(ctx, p, "payment.refunded")
	return nil
}

// CardPayment is what the browser needs to confirm a card charge.
type CardPayment struct {
	PaymentID      int64   `json:"payment_id"`
	ClientSecret   string  `json:"client_secret"`
	PublishableKey string  `json:"publishable_key"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
}

// StartCardPayment prepares a processor charge for an unpaid payment owned by payer.
func (s *Service) StartCardPayment(ctx context.Context, paymentID int64, payer *models.User) (*CardPayment, error) {
	if s.Charges == nil {
		return nil, &models.ExternalServiceError{Service: "stripe", Err: ErrStripeClientInitFailed}
	}

	p, err := s.Repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Data.User.ID != payer.ID {
		return nil, fmt.Errorf("payment %d: %w", paymentID, models.ErrNotFound)
	}
	if !p.Status.Unpaid() {
		return nil, &models.TransitionError{Entity: "payment", From: string(p.Status), To: string(models.PaymentPaid)}
	}

	key := strconv.FormatInt(paymentID, 10)
	ok, err := s.Locker.Acquire(ctx, key)
	if err != nil {
		return nil, &models.ExternalServiceError{Service: "redis", Err: err}
	}
	if !ok {
		return nil, ErrChargeInProgress
	}
	defer s.Locker.Release(ctx, key)

	minor := ToMinorUnits(p.Data.Currency, p.Data.Price)
	settled := FromMinorUnits(p.Data.Currency, minor)

	intentID, secret, err := s.Charges.CreateChargeIntent(ctx, p.Data.Currency, minor, payer.Email, map[string]string{
		"payment_id": key,
		"invoice_no": p.InvoiceNo(),
	})
	if err != nil {
		return nil, &models.ExternalServiceError{Service: "stripe", Err: err}
	}

	if err := s.Repo.SetPaymentCharge(ctx, paymentID, settled, intentID, s.now()); err != nil {
		return nil, err
	}

	s.Logger.LogPayment("CHARGE", paymentID, fmt.Sprintf("intent %s for %.2f %s", intentID, settled, p.Data.Currency))
	return &CardPayment{
		PaymentID:      paymentID,
		ClientSecret:   secret,
		PublishableKey: s.Stripe.PublishableKey,
		Amount:         settled,
		Currency:       p.Data.Currency,
	}, nil
}

// Document renders the invoice or receipt of a payment for its owner or staff.
func (s *Service) Document(ctx context.Context, paymentID int64, viewer *models.User, receipt bool) (*models.Payment, []byte, error) {
	p, err := s.Repo.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, nil, err
	}
	if p.Data.User.ID != viewer.ID && !viewer.IsStaff {
		return nil, nil, fmt.Errorf("payment %d: %w", paymentID, models.ErrNotFound)
	}

	var pdf []byte
	if receipt {
		pdf, err = s.Docs.Receipt(p)
	} else {
		pdf, err = s.Docs.Invoice(p)
	}
	if err != nil {
		return nil, nil, err
	}
	return p, pdf, nil
}

func (s *Service) publishPayment(ctx context.Context, p *models.Payment, eventType string) {
	s.publish(ctx, s.Topics.PaymentStatus, strconv.FormatInt(p.ID, 10), models.PaymentEvent{
		Type:      eventType,
		PaymentID: p.ID,
		InvoiceNo: p.InvoiceNo(),
		Status:    p.Status,
		Kind:      p.Data.Kind,
		Price:     p.Data.Price,
		Currency:  p.Data.Currency,
		Timestamp: s.now(),
	})
}

func (s *Service) publish(ctx context.Context, topic, key string, payload any) {
	if s.Events == nil || topic == "" {
		return
	}
	if err := s.Events.Publish(ctx, topic, key, payload); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish to %s: %v", topic, err))
		s.Metrics.NotificationFailed("kafka")
	}
}
