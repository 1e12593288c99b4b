package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"dds-registration/internal/database"
	"dds-registration/internal/database/dbtest"
	"dds-registration/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*database.DB, *dbtest.Fixtures) {
	repo, _ := dbtest.New(t)
	return repo, &dbtest.Fixtures{T: t, Repo: repo}
}

func TestActiveRegistrationIndexSQL(t *testing.T) {
	sql := database.ActiveRegistrationIndexSQL()
	assert.Contains(t, sql, "registrations (event_id, user_id)")
	for _, s := range models.InactiveRegistrationStatuses {
		assert.Contains(t, sql, "'"+string(s)+"'")
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	repo, fx := setup(t)
	ctx := context.Background()

	u := fx.User()
	err := repo.CreateUser(ctx, &models.User{Email: u.Email})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)

	other := fx.User()
	other.Email = u.Email
	assert.ErrorIs(t, repo.UpdateUser(ctx, other), models.ErrDuplicateEmail)

	got, err := repo.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEventWithOptions(t *testing.T) {
	repo, fx := setup(t)
	ctx := context.Background()

	event := fx.Event(today)
	fx.Option(event, 10, "EUR")
	fx.Option(event, 0, "EUR")

	got, err := repo.GetEventByCode(ctx, event.Code)
	require.NoError(t, err)
	assert.Equal(t, event.Title, got.Title)
	assert.Len(t, got.Options, 2)

	_, err = repo.GetEventByCode(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)

	hidden := fx.Event(today, func(e *models.Event) { e.Public = false })
	events, err := repo.ListEvents(ctx, true)
	require.NoError(t, err)
	for _, e := range events {
		assert.NotEqual(t, hidden.ID, e.ID)
	}
}

func TestUniqueActiveRegistrationIndex(t *testing.T) {
	repo, fx := setup(t)
	ctx := context.Background()

	user := fx.User()
	event := fx.Event(today)
	option := fx.Option(event, 10, "EUR")

	first := &models.Registration{EventID: event.ID, UserID: user.ID, OptionID: option.ID, Status: models.RegistrationSubmitted}
	require.NoError(t, repo.CreateRegistration(ctx, first))

	second := &models.Registration{EventID: event.ID, UserID: user.ID, OptionID: option.ID, Status: models.RegistrationSubmitted}
	assert.ErrorIs(t, repo.CreateRegistration(ctx, second), models.ErrDuplicateActiveRegistration)

	first.Status = models.RegistrationWithdrawn
	require.NoError(t, repo.UpdateRegistration(ctx, first))

	third := &models.Registration{EventID: event.ID, UserID: user.ID, OptionID: option.ID, Status: models.RegistrationSubmitted}
	require.NoError(t, repo.CreateRegistration(ctx, third))

	n, err := repo.CountActiveRegistrations(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	active, err := repo.FindActiveRegistration(ctx, event.ID, user.ID)
	require.NoError(t, err)
	assert.Equal(t, third.ID, active.ID)
}

func TestDeleteOptionInUse(t *testing.T) {
	repo, fx := setup(t)
	ctx := context.Background()

	event := fx.Event(today)
	used := fx.Option(event, 10, "EUR")
	unused := fx.Option(event, 20, "EUR")
	require.NoError(t, repo.CreateRegistration(ctx, &models.Registration{
		EventID: event.ID, UserID: fx.User().ID, OptionID: used.ID, Status: models.RegistrationWithdrawn,
	}))

	assert.ErrorIs(t, repo.DeleteOption(ctx, used.ID), models.ErrOptionInUse)
	assert.NoError(t, repo.DeleteOption(ctx, unused.ID))
	assert.ErrorIs(t, repo.DeleteOption(ctx, unused.ID), models.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteEvent(ctx, event.ID), models.ErrEventInUse)
}

func newPayment(t *testing.T, repo *database.DB, charge *float64) *models.Payment {
	p := &models.Payment{
		Status: models.PaymentCreated,
		Data: models.PaymentData{
			User:     models.PaymentUser{ID: 1, Name: "Ada Lovelace"},
			Kind:     models.KindEvent,
			Event:    &models.PaymentEventRef{ID: 1, Title: "Conference"},
			Price:    100,
			Currency: "EUR",
			Method:   models.MethodStripe,

			StripeChargeInProgress: charge,
		},
	}
	require.NoError(t, repo.CreatePayment(context.Background(), p))
	return p
}

func TestPaymentDataRoundTrip(t *testing.T) {
	repo, _ := setup(t)
	p := newPayment(t, repo, nil)

	got, err := repo.GetPayment(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Data, got.Data)
	assert.Equal(t, "Conference", got.Data.Title())
}

func TestMarkPaymentPaidIsIdempotent(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()
	charge := 101.5
	p := newPayment(t, repo, &charge)

	paid, changed, err := repo.MarkPaymentPaid(ctx, p.ID, today)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, models.PaymentPaid, paid.Status)
	assert.Equal(t, 101.5, paid.Data.Price)
	assert.Nil(t, paid.Data.StripeChargeInProgress)

	again, changed, err := repo.MarkPaymentPaid(ctx, p.ID, today)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 101.5, again.Data.Price)

	stored, err := repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 101.5, stored.Data.Price)
	assert.Nil(t, stored.Data.StripeChargeInProgress)
}

func TestMarkPaymentPaidConcurrent(t *testing.T) {
	repo, _ := setup(t)
	p := newPayment(t, repo, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := repo.MarkPaymentPaid(context.Background(), p.ID, today)
			assert.NoError(t, err)
			if changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, changes)
}

func TestMarkPaymentPaidRejectsObsolete(t *testing.T) {
	repo, _ := setup(t)
	ctx := context.Background()
	p := newPayment(t, repo, nil)

	ok, err := repo.TransitionPayment(ctx, p.ID, models.UnpaidPaymentStatuses, models.PaymentObsolete, today)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _, err = repo.MarkPaymentPaid(ctx, p.ID, today)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	assert.Error(t, repo.SetPaymentCharge(ctx, p.ID, 10, "pi_1", today))
}

func TestRunInTxRollsBack(t *testing.T) {
	repo, fx := setup(t)
	ctx := context.Background()
	user := fx.User()

	err := repo.RunInTx(ctx, func(ctx context.Context, tx database.Repository) error {
		user.FirstName = "Changed"
		require.NoError(t, tx.UpdateUser(ctx, user))
		return models.ErrValidation
	})
	assert.ErrorIs(t, err, models.ErrValidation)

	got, err := repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "User", got.FirstName)
}

func TestMembershipLookup(t *testing.T) {
	repo, fx := setup(t)
	ctx := context.Background()
	user := fx.User()
	p := newPayment(t, repo, nil)

	m := models.NewMembership(user.ID, models.MembershipNormal, 2024)
	require.NoError(t, repo.CreateMembership(ctx, m))
	m.PaymentID = &p.ID
	require.NoError(t, repo.UpdateMembership(ctx, m))

	byPayment, err := repo.GetMembershipByPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, m.ID, byPayment.ID)
	assert.Equal(t, 2023, byPayment.Until)

	assert.Error(t, repo.CreateMembership(ctx, models.NewMembership(user.ID, models.MembershipAcademic, 2024)))
}
