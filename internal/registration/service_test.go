package registration_test

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"dds-registration/internal/config"
	"dds-registration/internal/database"
	"dds-registration/internal/database/dbtest"
	"dds-registration/internal/logger"
	"dds-registration/internal/mocks"
	"dds-registration/internal/models"
	"dds-registration/internal/notify"
	"dds-registration/internal/payment"
	"dds-registration/internal/registration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

var today = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

const webhookSecret = "whsec_test"

type harness struct {
	svc      *registration.Service
	payments *payment.Service
	repo     *database.DB
	fx       *dbtest.Fixtures
	mailer   *mocks.MockMailer
	hook     *mocks.MockHook
	pub      *mocks.MockPublisher
}

func newHarness(t *testing.T) *harness {
	repo, _ := dbtest.New(t)
	mailer, hook, pub := mocks.Permissive()

	docs := &mocks.MockRenderer{}
	docs.On("Invoice", mock.Anything).Return([]byte("%PDF-invoice"), nil)
	docs.On("Receipt", mock.Anything).Return([]byte("%PDF-receipt"), nil)

	log := logger.NewNopLogger()
	clock := func() time.Time { return today }
	dispatcher := &notify.Dispatcher{Mailer: mailer, Hook: hook, Logger: log, Site: notify.Site{Name: "DdS"}}
	topics := config.TopicConfig{RegistrationStatus: "registration.status", PaymentStatus: "payment.status"}

	payments := &payment.Service{
		Repo:   repo,
		Docs:   docs,
		Notify: dispatcher,
		Events: pub,
		Topics: topics,
		Logger: log,
		Now:    clock,
		Stripe: config.StripeConfig{WebhookSecret: webhookSecret},
	}
	return &harness{
		svc: &registration.Service{
			Repo:     repo,
			Payments: payments,
			Notify:   dispatcher,
			Events:   pub,
			Topics:   topics,
			Logger:   log,
			Now:      clock,
		},
		payments: payments,
		repo:     repo,
		fx:       &dbtest.Fixtures{T: t, Repo: repo},
		mailer:   mailer,
		hook:     hook,
		pub:      pub,
	}
}

func TestSingleSeatEventScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	event := h.fx.Event(today, func(e *models.Event) {
		e.MaxParticipants = 1
		e.SuccessEmail = "Welcome aboard, see you in June."
	})
	option := h.fx.Option(event, 80, "EUR")
	alice, bob := h.fx.User(), h.fx.User()

	reg, err := h.svc.Register(ctx, alice, event.Code, option.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationSubmitted, reg.Status)

	_, err = h.svc.Register(ctx, bob, event.Code, option.ID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	reg, p, err := h.svc.SubmitBilling(ctx, alice, reg.ID, models.MethodInvoice, "PO 1234")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPaymentPending, reg.Status)
	assert.Equal(t, models.PaymentIssued, p.Status)
	assert.Equal(t, "PO 1234", p.Data.ExtraInvoiceText)
	require.Len(t, h.mailer.Sent(), 1)

	paid, changed, err := h.payments.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.PaymentPaid, paid.Status)

	got, err := h.repo.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationRegistered, got.Status)

	sent := h.mailer.Sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{alice.Email}, sent[1].To)
	assert.Equal(t, "Welcome aboard, see you in June.", sent[1].Body)
}

func TestDuplicateRegistrationThenWithdraw(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	event := h.fx.Event(today)
	option := h.fx.Option(event, 10, "EUR")
	user := h.fx.User()

	first, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)

	_, err = h.svc.Register(ctx, user, event.Code, option.ID)
	assert.ErrorIs(t, err, models.ErrDuplicateActiveRegistration)

	withdrawn, err := h.svc.Cancel(ctx, user, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationWithdrawn, withdrawn.Status)

	second, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	regs, err := h.svc.ListForUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}

func TestConcurrentRegistrationsRespectCapacity(t *testing.T) {
	h := newHarness(t)
	event := h.fx.Event(today, func(e *models.Event) { e.MaxParticipants = 3 })
	option := h.fx.Option(event, 10, "EUR")

	users := make([]*models.User, 10)
	for i := range users {
		users[i] = h.fx.User()
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for _, u := range users {
		wg.Add(1)
		go func(u *models.User) {
			defer wg.Done()
			_, err := h.svc.Register(context.Background(), u, event.Code, option.ID)
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, models.ErrCapacityExceeded)
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	n, err := h.repo.CountActiveRegistrations(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestConcurrentDuplicateRegistrations(t *testing.T) {
	h := newHarness(t)
	event := h.fx.Event(today)
	option := h.fx.Option(event, 10, "EUR")
	user := h.fx.User()

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.svc.Register(context.Background(), user, event.Code, option.ID); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
}

func TestRegisterRejections(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := h.fx.User()

	closed := h.fx.Event(today, func(e *models.Event) {
		e.RegistrationOpen = today.AddDate(0, 0, -20)
		e.RegistrationClose = today.AddDate(0, 0, -1)
	})
	closedOption := h.fx.Option(closed, 10, "EUR")
	_, err := h.svc.Register(ctx, user, closed.Code, closedOption.ID)
	assert.ErrorIs(t, err, models.ErrRegistrationClosed)

	other := h.fx.Event(today)
	_, err = h.svc.Register(ctx, user, other.Code, closedOption.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.svc.Register(ctx, user, "nope", closedOption.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSnapshotSurvivesPriceChange(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 100, "CHF")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodStripe, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCreated, p.Status)

	option.Price = 150
	option.Item = "Renamed"
	require.NoError(t, h.repo.UpdateOption(ctx, option))

	stored, err := h.repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stored.Data.Price)
	assert.Equal(t, "CHF", stored.Data.Currency)
	assert.NotEqual(t, "Renamed", stored.Data.Event.Option)
}

func TestRebillingObsoletesPreviousPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 40, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, first, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)
	reg, second, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodStripe, "")
	require.NoError(t, err)

	assert.Equal(t, second.ID, *reg.PaymentID)
	old, err := h.repo.GetPayment(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentObsolete, old.Status)

	_, _, err = h.payments.ConfirmPayment(ctx, first.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestSubmitBillingChecksOwnerAndState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 40, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)

	_, _, err = h.svc.SubmitBilling(ctx, h.fx.User(), reg.ID, models.MethodInvoice, "")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, _, err = h.svc.SubmitBilling(ctx, user, reg.ID, "CASH", "")
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = h.svc.Cancel(ctx, user, reg.ID)
	require.NoError(t, err)
	_, _, err = h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestFreeOptionCompletesWithoutPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 0, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	reg, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, reg.PaymentID)
	assert.Equal(t, models.RegistrationRegistered, reg.Status)

	sent := h.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, event.SuccessEmail, sent[0].Body)
}

func TestCancelRefundsPaidRegistrationInsideWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	starts := today.AddDate(0, 1, 0)
	event := h.fx.Event(today, func(e *models.Event) { e.StartsAt = &starts })
	option := h.fx.Option(event, 60, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)
	_, _, err = h.payments.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, h.fx.User(), reg.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	cancelled, err := h.svc.Cancel(ctx, h.fx.Staff(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationCancelled, cancelled.Status)

	refunded, err := h.repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refunded.Status)

	texts := h.hook.Texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[1], "bank transfer")
}

func TestCancelOutsideRefundWindowKeepsPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	starts := today.AddDate(0, 0, 3)
	event := h.fx.Event(today, func(e *models.Event) { e.StartsAt = &starts })
	option := h.fx.Option(event, 60, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)
	_, _, err = h.payments.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, user, reg.ID)
	require.NoError(t, err)

	stored, err := h.repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, stored.Status)
}

func TestCancelObsoletesUnpaidPayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 60, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, user, reg.ID)
	require.NoError(t, err)

	stored, err := h.repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentObsolete, stored.Status)

	_, err = h.svc.Cancel(ctx, user, reg.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}

func TestReview(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 60, "EUR")
	user := h.fx.User()
	staff := h.fx.Staff()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)

	_, err = h.svc.Review(ctx, user, reg.ID, models.RegistrationSelected)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.svc.Review(ctx, staff, reg.ID, models.RegistrationRegistered)
	assert.ErrorIs(t, err, models.ErrValidation)

	reviewed, err := h.svc.Review(ctx, staff, reg.ID, models.RegistrationWaitlist)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationWaitlist, reviewed.Status)

	published := statusEvents(h.pub)
	again, err := h.svc.Review(ctx, staff, reg.ID, models.RegistrationWaitlist)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationWaitlist, again.Status)
	assert.Equal(t, published, statusEvents(h.pub), "an unchanged review publishes nothing")

	declined, err := h.svc.Review(ctx, staff, reg.ID, models.RegistrationDeclined)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationDeclined, declined.Status)

	_, err = h.svc.Review(ctx, staff, reg.ID, models.RegistrationSelected)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	h.pub.AssertCalled(t, "Publish", mock.Anything, "registration.status", mock.Anything, mock.Anything)
}

func statusEvents(pub *mocks.MockPublisher) int {
	n := 0
	for _, c := range pub.Calls {
		if c.Method == "Publish" && c.Arguments.String(1) == "registration.status" {
			n++
		}
	}
	return n
}

// cardSucceeded delivers a signed payment_intent.succeeded webhook for p.
func (h *harness) cardSucceeded(t *testing.T, p *models.Payment, intentID string) {
	body := `{"id":"evt_` + intentID + `","object":"event","type":"payment_intent.succeeded",` +
		`"data":{"object":{"id":"` + intentID + `","object":"payment_intent","metadata":{"payment_id":"` +
		strconv.FormatInt(p.ID, 10) + `"}}}}`
	signed, err := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(body), Secret: webhookSecret})
	require.NoError(t, err)
	require.NoError(t, h.payments.HandleWebhook(context.Background(), signed.Payload, signed.Header))
}

func manualRefundAlerts(texts []string) int {
	n := 0
	for _, text := range texts {
		if strings.Contains(text, "refund it manually") {
			n++
		}
	}
	return n
}

func TestCardPaymentSucceedingAfterWithdrawalIsRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 120, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodStripe, "")
	require.NoError(t, err)
	require.NoError(t, h.repo.SetPaymentCharge(ctx, p.ID, 120, "pi_late", today))

	_, err = h.svc.Cancel(ctx, user, reg.ID)
	require.NoError(t, err)
	retired, err := h.repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, models.PaymentObsolete, retired.Status)

	h.cardSucceeded(t, p, "pi_late")
	// redelivery is a no-op
	h.cardSucceeded(t, p, "pi_late")

	paid, err := h.repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Status)

	got, err := h.repo.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationWithdrawn, got.Status)
	assert.Equal(t, 1, manualRefundAlerts(h.hook.Texts()))
}

func TestCardPaymentSucceedingAfterRebillingIsRecorded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 120, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, card, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodStripe, "")
	require.NoError(t, err)
	require.NoError(t, h.repo.SetPaymentCharge(ctx, card.ID, 120, "pi_first", today))

	_, invoice, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)

	h.cardSucceeded(t, card, "pi_first")

	paid, err := h.repo.GetPayment(ctx, card.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPaid, paid.Status)

	got, err := h.repo.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationPaymentPending, got.Status)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, invoice.ID, *got.PaymentID)
	assert.Equal(t, 1, manualRefundAlerts(h.hook.Texts()))
}

func TestRetiredInvoiceCannotBeConfirmed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	event := h.fx.Event(today)
	option := h.fx.Option(event, 120, "EUR")
	user := h.fx.User()

	reg, err := h.svc.Register(ctx, user, event.Code, option.ID)
	require.NoError(t, err)
	_, p, err := h.svc.SubmitBilling(ctx, user, reg.ID, models.MethodInvoice, "")
	require.NoError(t, err)
	_, err = h.svc.Cancel(ctx, user, reg.ID)
	require.NoError(t, err)

	_, _, err = h.payments.ConfirmPayment(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
}
