package catalog_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"dds-registration/internal/catalog"
	"dds-registration/internal/database/dbtest"
	"dds-registration/internal/logger"
	"dds-registration/internal/mocks"
	"dds-registration/internal/models"
	"dds-registration/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*catalog.Service, *dbtest.Fixtures, *mocks.MockMailer) {
	repo, _ := dbtest.New(t)
	mailer, hook, _ := mocks.Permissive()
	log := logger.NewNopLogger()
	svc := &catalog.Service{
		Repo:   repo,
		Notify: &notify.Dispatcher{Mailer: mailer, Hook: hook, Logger: log},
		Logger: log,
	}
	return svc, &dbtest.Fixtures{T: t, Repo: repo}, mailer
}

func newEvent() *models.Event {
	return &models.Event{
		Title:             "Summer School",
		Description:       "Two weeks of lectures",
		SuccessEmail:      "You are in.",
		Public:            true,
		RegistrationOpen:  today,
		RegistrationClose: today.AddDate(0, 1, 0),
		RefundWindowDays:  models.DefaultRefundWindowDays,
	}
}

func TestCreateEventGeneratesCode(t *testing.T) {
	svc, fx, _ := newService(t)
	ctx := context.Background()
	staff := fx.Staff()

	event := newEvent()
	require.NoError(t, svc.CreateEvent(ctx, staff, event))
	assert.Regexp(t, regexp.MustCompile(`^[a-z0-9]{8}$`), event.Code)

	got, err := svc.GetByCode(ctx, event.Code)
	require.NoError(t, err)
	assert.Equal(t, event.ID, got.ID)

	dup := newEvent()
	assert.ErrorIs(t, svc.CreateEvent(ctx, staff, dup), models.ErrValidation)
}

func TestCatalogRequiresStaff(t *testing.T) {
	svc, fx, _ := newService(t)
	ctx := context.Background()
	user := fx.User()

	assert.ErrorIs(t, svc.CreateEvent(ctx, user, newEvent()), models.ErrNotFound)
	_, err := svc.ListAll(ctx, user)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, _, err = svc.PostMessage(ctx, user, "x", "hello")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateEventValidates(t *testing.T) {
	svc, fx, _ := newService(t)
	event := newEvent()
	event.RegistrationClose = today.AddDate(0, 0, -1)
	assert.ErrorIs(t, svc.CreateEvent(context.Background(), fx.Staff(), event), models.ErrValidation)
}

func TestOptionsLifecycle(t *testing.T) {
	svc, fx, _ := newService(t)
	ctx := context.Background()
	staff := fx.Staff()
	event := fx.Event(today)

	option := &models.RegistrationOption{Item: "Full week", Price: 300, Currency: "chf"}
	require.NoError(t, svc.AddOption(ctx, staff, event.Code, option))
	assert.Equal(t, "CHF", option.Currency)

	option.Price = 320
	require.NoError(t, svc.UpdateOption(ctx, staff, option))

	got, err := svc.GetByCode(ctx, event.Code)
	require.NoError(t, err)
	require.Len(t, got.Options, 1)
	assert.Equal(t, 320.0, got.Options[0].Price)

	bad := &models.RegistrationOption{Item: "Yen", Price: 1, Currency: "JPY"}
	assert.ErrorIs(t, svc.AddOption(ctx, staff, event.Code, bad), models.ErrValidation)

	require.NoError(t, svc.DeleteOption(ctx, staff, option.ID))
	assert.ErrorIs(t, svc.DeleteOption(ctx, staff, option.ID), models.ErrNotFound)
}

func TestUpdateEventKeepsCode(t *testing.T) {
	svc, fx, _ := newService(t)
	ctx := context.Background()
	event := fx.Event(today)

	updated, err := svc.UpdateEvent(ctx, fx.Staff(), event.Code, func(e *models.Event) {
		e.Code = "changed"
		e.MaxParticipants = 40
	})
	require.NoError(t, err)
	assert.Equal(t, event.Code, updated.Code)
	assert.Equal(t, 40, updated.MaxParticipants)
}

func TestListPublicHidesUnlisted(t *testing.T) {
	svc, fx, _ := newService(t)
	ctx := context.Background()
	listed := fx.Event(today)
	hidden := fx.Event(today, func(e *models.Event) { e.Public = false })

	events, err := svc.ListPublic(ctx)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, listed.ID, events[0].ID)

	all, err := svc.ListAll(ctx, fx.Staff())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.GetByCode(ctx, hidden.Code)
	assert.NoError(t, err)
}

func TestPostMessageReachesActiveRegistrants(t *testing.T) {
	svc, fx, mailer := newService(t)
	ctx := context.Background()
	event := fx.Event(today)
	option := fx.Option(event, 0, "EUR")

	active, gone := fx.User(), fx.User()
	require.NoError(t, fx.Repo.CreateRegistration(ctx, &models.Registration{
		EventID: event.ID, UserID: active.ID, OptionID: option.ID, Status: models.RegistrationRegistered,
	}))
	require.NoError(t, fx.Repo.CreateRegistration(ctx, &models.Registration{
		EventID: event.ID, UserID: gone.ID, OptionID: option.ID, Status: models.RegistrationWithdrawn,
	}))

	msg, sent, err := svc.PostMessage(ctx, fx.Staff(), event.Code, "Room changed to B12")
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, msg.Emailed)

	mails := mailer.Sent()
	require.Len(t, mails, 1)
	assert.Equal(t, []string{active.Email}, mails[0].To)
	assert.Equal(t, "Room changed to B12", mails[0].Body)
}

func TestPostMessagePartialFailure(t *testing.T) {
	svc, fx, _ := newService(t)
	ctx := context.Background()
	event := fx.Event(today)
	option := fx.Option(event, 0, "EUR")
	require.NoError(t, fx.Repo.CreateRegistration(ctx, &models.Registration{
		EventID: event.ID, UserID: fx.User().ID, OptionID: option.ID, Status: models.RegistrationSubmitted,
	}))

	failing := &mocks.MockMailer{}
	failing.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	svc.Notify.Mailer = failing

	msg, sent, err := svc.PostMessage(ctx, fx.Staff(), event.Code, "Reminder")
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.False(t, msg.Emailed)
}
