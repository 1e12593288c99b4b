// Package mocks holds testify mocks for the outbound collaborators of the services.
package mocks

import (
	"context"

	"dds-registration/internal/models"
	"dds-registration/internal/notify"

	"github.com/stretchr/testify/mock"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, mail notify.Mail) error {
	args := m.Called(ctx, mail)
	return args.Error(0)
}

// Sent returns the mails passed to Send, in order.
func (m *MockMailer) Sent() []notify.Mail {
	var out []notify.Mail
	for _, c := range m.Calls {
		if c.Method == "Send" {
			out = append(out, c.Arguments.Get(1).(notify.Mail))
		}
	}
	return out
}

type MockHook struct {
	mock.Mock
}

func (m *MockHook) Notify(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

// Texts returns every text passed to Notify, in order.
func (m *MockHook) Texts() []string {
	var out []string
	for _, c := range m.Calls {
		if c.Method == "Notify" {
			out = append(out, c.Arguments.String(1))
		}
	}
	return out
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, topic, key string, payload any) error {
	args := m.Called(ctx, topic, key, payload)
	return args.Error(0)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) Invoice(p *models.Payment) ([]byte, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRenderer) Receipt(p *models.Payment) ([]byte, error) {
	args := m.Called(p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

type MockChargeClient struct {
	mock.Mock
}

func (m *MockChargeClient) CreateChargeIntent(ctx context.Context, currency string, amountMinor int64, email string, metadata map[string]string) (string, string, error) {
	args := m.Called(ctx, currency, amountMinor, email, metadata)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockChargeClient) Refund(ctx context.Context, intentID string) error {
	args := m.Called(ctx, intentID)
	return args.Error(0)
}

// MockLocker grants every lock unless told otherwise.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockLocker) Release(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// Permissive returns mocks that accept any call and succeed.
func Permissive() (*MockMailer, *MockHook, *MockPublisher) {
	mailer := &MockMailer{}
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	hook := &MockHook{}
	hook.On("Notify", mock.Anything, mock.Anything).Return(nil)
	pub := &MockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return mailer, hook, pub
}
