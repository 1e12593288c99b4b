package analytics_test

import (
	"context"
	"testing"
	"time"

	"dds-registration/internal/analytics"
	"dds-registration/internal/database/dbtest"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func TestEventReport(t *testing.T) {
	repo, bunDB := dbtest.New(t)
	fx := &dbtest.Fixtures{T: t, Repo: repo}
	svc := &analytics.Service{Repo: repo, DB: analytics.NewDB(bunDB), Logger: logger.NewNopLogger()}
	ctx := context.Background()

	event := fx.Event(today, func(e *models.Event) { e.MaxParticipants = 10 })
	full := fx.Option(event, 100, "EUR")
	student := fx.Option(event, 40, "EUR")
	unused := fx.Option(event, 0, "EUR")
	staff := fx.Staff()

	register := func(option *models.RegistrationOption, status models.RegistrationStatus, payment *models.Payment) *models.Registration {
		reg := &models.Registration{EventID: event.ID, UserID: fx.User().ID, OptionID: option.ID, Status: status}
		if payment != nil {
			require.NoError(t, repo.CreatePayment(ctx, payment))
			reg.PaymentID = &payment.ID
		}
		require.NoError(t, repo.CreateRegistration(ctx, reg))
		return reg
	}
	pay := func(status models.PaymentStatus, price float64) *models.Payment {
		return &models.Payment{Status: status, Data: models.PaymentData{
			Kind: models.KindEvent, Price: price, Currency: "EUR", Method: models.MethodInvoice,
		}}
	}

	register(full, models.RegistrationRegistered, pay(models.PaymentPaid, 100))
	register(full, models.RegistrationPaymentPending, pay(models.PaymentIssued, 100))
	register(student, models.RegistrationSubmitted, nil)
	register(student, models.RegistrationWithdrawn, pay(models.PaymentRefunded, 40))

	report, err := svc.GetEventReport(ctx, staff, event.Code)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Active)
	require.NotNil(t, report.SeatsLeft)
	assert.Equal(t, 7, *report.SeatsLeft)

	counts := map[models.RegistrationStatus]int{}
	for _, c := range report.ByStatus {
		counts[c.Status] = c.Count
	}
	assert.Equal(t, map[models.RegistrationStatus]int{
		models.RegistrationRegistered:     1,
		models.RegistrationPaymentPending: 1,
		models.RegistrationSubmitted:      1,
		models.RegistrationWithdrawn:      1,
	}, counts)

	require.Len(t, report.ByOption, 3)
	assert.Equal(t, full.ID, report.ByOption[0].OptionID)
	assert.Equal(t, 2, report.ByOption[0].Active)
	assert.Equal(t, 1, report.ByOption[1].Active, "withdrawn registrations are not counted")
	assert.Equal(t, unused.ID, report.ByOption[2].OptionID)
	assert.Equal(t, 0, report.ByOption[2].Active)

	require.Len(t, report.Revenue, 1)
	assert.Equal(t, analytics.Revenue{Currency: "EUR", Paid: 100, Pending: 100, Refunded: 40}, report.Revenue[0])

	_, err = svc.GetEventReport(ctx, fx.User(), event.Code)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEventRegistrationsListing(t *testing.T) {
	repo, bunDB := dbtest.New(t)
	fx := &dbtest.Fixtures{T: t, Repo: repo}
	svc := &analytics.Service{Repo: repo, DB: analytics.NewDB(bunDB), Logger: logger.NewNopLogger()}
	ctx := context.Background()

	event := fx.Event(today)
	option := fx.Option(event, 0, "EUR")
	staff := fx.Staff()

	var ids []int64
	for _, status := range []models.RegistrationStatus{models.RegistrationSubmitted, models.RegistrationSelected, models.RegistrationSubmitted} {
		user := fx.User()
		reg := &models.Registration{EventID: event.ID, UserID: user.ID, OptionID: option.ID, Status: status}
		require.NoError(t, repo.CreateRegistration(ctx, reg))
		ids = append(ids, reg.ID)
	}

	rows, err := svc.GetEventRegistrations(ctx, staff, event.Code, analytics.EventRegistrationOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.NotEmpty(t, rows[0].Email)
	assert.Equal(t, option.Item, rows[0].Option)

	rows, err = svc.GetEventRegistrations(ctx, staff, event.Code, analytics.EventRegistrationOptions{Status: models.RegistrationSubmitted})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, models.RegistrationSubmitted, r.Status)
	}

	rows, err = svc.GetEventRegistrations(ctx, staff, event.Code, analytics.EventRegistrationOptions{SortBy: "status", SortDesc: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.RegistrationSubmitted, rows[0].Status)

	rows, err = svc.GetEventRegistrations(ctx, staff, event.Code, analytics.EventRegistrationOptions{Offset: 2})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[2], rows[0].ID)

	_, err = svc.GetEventRegistrations(ctx, staff, "missing", analytics.EventRegistrationOptions{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}
