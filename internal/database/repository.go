package database

import (
	"context"
	"time"

	"dds-registration/internal/models"
)

// Repository is everything the services need from storage.
type Repository interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error

	// users
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// events, options, messages
	CreateEvent(ctx context.Context, event *models.Event) error
	UpdateEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id int64) error
	GetEventByID(ctx context.Context, id int64) (*models.Event, error)
	GetEventByCode(ctx context.Context, code string) (*models.Event, error)
	LockEvent(ctx context.Context, id int64) (*models.Event, error)
	ListEvents(ctx context.Context, publicOnly bool) ([]models.Event, error)
	CreateOption(ctx context.Context, option *models.RegistrationOption) error
	UpdateOption(ctx context.Context, option *models.RegistrationOption) error
	DeleteOption(ctx context.Context, id int64) error
	GetOption(ctx context.Context, id int64) (*models.RegistrationOption, error)
	ListOptions(ctx context.Context, eventID int64) ([]models.RegistrationOption, error)
	CreateMessage(ctx context.Context, msg *models.EventMessage) error
	MarkMessageEmailed(ctx context.Context, id int64) error

	// registrations
	CreateRegistration(ctx context.Context, reg *models.Registration) error
	UpdateRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistration(ctx context.Context, id int64) (*models.Registration, error)
	GetRegistrationByPayment(ctx context.Context, paymentID int64) (*models.Registration, error)
	FindActiveRegistration(ctx context.Context, eventID, userID int64) (*models.Registration, error)
	CountActiveRegistrations(ctx context.Context, eventID int64) (int, error)
	ListRegistrationsByUser(ctx context.Context, userID int64) ([]models.Registration, error)
	ListActiveRegistrationsByEvent(ctx context.Context, eventID int64) ([]models.Registration, error)

	// payments
	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPayment(ctx context.Context, id int64) (*models.Payment, error)
	MarkPaymentPaid(ctx context.Context, id int64, now time.Time) (*models.Payment, bool, error)
	TransitionPayment(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus, now time.Time) (bool, error)
	SetPaymentCharge(ctx context.Context, id int64, amount float64, intentID string, now time.Time) error

	// memberships
	CreateMembership(ctx context.Context, m *models.Membership) error
	UpdateMembership(ctx context.Context, m *models.Membership) error
	GetMembershipByUser(ctx context.Context, userID int64) (*models.Membership, error)
	GetMembershipByPayment(ctx context.Context, paymentID int64) (*models.Membership, error)
}

var _ Repository = (*DB)(nil)
