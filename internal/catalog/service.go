// Package catalog manages events, their registration options and the
// announcements sent to registrants.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dds-registration/internal/database"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"
	"dds-registration/internal/notify"
	"dds-registration/internal/utils"
)

const codeAttempts = 5

type Service struct {
	Repo   database.Repository
	Notify *notify.Dispatcher
	Logger *logger.Logger
}

func requireStaff(user *models.User) error {
	if user == nil || !user.IsStaff {
		return fmt.Errorf("staff only: %w", models.ErrNotFound)
	}
	return nil
}

func (s *Service) ListPublic(ctx context.Context) ([]models.Event, error) {
	return s.Repo.ListEvents(ctx, true)
}

func (s *Service) ListAll(ctx context.Context, staff *models.User) ([]models.Event, error) {
	if err := requireStaff(staff); err != nil {
		return nil, err
	}
	return s.Repo.ListEvents(ctx, false)
}

// GetByCode returns an event and its options. Unlisted events are reachable
// by anyone who knows the code.
func (s *Service) GetByCode(ctx context.Context, code string) (*models.Event, error) {
	return s.Repo.GetEventByCode(ctx, strings.TrimSpace(code))
}

// CreateEvent stores a new event, generating a random public code when none is given.
func (s *Service) CreateEvent(ctx context.Context, staff *models.User, event *models.Event) error {
	if err := requireStaff(staff); err != nil {
		return err
	}
	if err := event.Validate(); err != nil {
		return err
	}

	if event.Code != "" {
		if err := s.Repo.CreateEvent(ctx, event); err != nil {
			return err
		}
		s.Logger.Info("CATALOG", fmt.Sprintf("Event %s created by %s", event, staff.Email))
		return nil
	}

	for i := 0; i < codeAttempts; i++ {
		code, err := utils.GenerateEventCode()
		if err != nil {
			return err
		}
		if _, err := s.Repo.GetEventByCode(ctx, code); !errors.Is(err, models.ErrNotFound) {
			if err != nil {
				return err
			}
			continue
		}
		event.Code = code
		if err := s.Repo.CreateEvent(ctx, event); err != nil {
			return err
		}
		s.Logger.Info("CATALOG", fmt.Sprintf("Event %s created by %s", event, staff.Email))
		return nil
	}
	return fmt.Errorf("no free event code after %d attempts", codeAttempts)
}

// UpdateEvent applies fn to the stored event and saves it. The code never changes.
func (s *Service) UpdateEvent(ctx context.Context, staff *models.User, code string, fn func(*models.Event)) (*models.Event, error) {
	if err := requireStaff(staff); err != nil {
		return nil, err
	}
	event, err := s.Repo.GetEventByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	fn(event)
	event.Code = code
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := s.Repo.UpdateEvent(ctx, event); err != nil {
		return nil, err
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Event %s updated by %s", event, staff.Email))
	return event, nil
}

func (s *Service) DeleteEvent(ctx context.Context, staff *models.User, code string) error {
	if err := requireStaff(staff); err != nil {
		return err
	}
	event, err := s.Repo.GetEventByCode(ctx, code)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteEvent(ctx, event.ID); err != nil {
		return err
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Event %s deleted by %s", event, staff.Email))
	return nil
}

// AddOption attaches a priced option to the event.
func (s *Service) AddOption(ctx context.Context, staff *models.User, code string, option *models.RegistrationOption) error {
	if err := requireStaff(staff); err != nil {
		return err
	}
	event, err := s.Repo.GetEventByCode(ctx, code)
	if err != nil {
		return err
	}
	option.EventID = event.ID
	if err := option.Validate(); err != nil {
		return err
	}
	if err := s.Repo.CreateOption(ctx, option); err != nil {
		return err
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Option %s added to %s", option, event))
	return nil
}

// UpdateOption changes an option. Payments already issued keep their snapshot.
func (s *Service) UpdateOption(ctx context.Context, staff *models.User, option *models.RegistrationOption) error {
	if err := requireStaff(staff); err != nil {
		return err
	}
	stored, err := s.Repo.GetOption(ctx, option.ID)
	if err != nil {
		return err
	}
	option.EventID = stored.EventID
	if err := option.Validate(); err != nil {
		return err
	}
	return s.Repo.UpdateOption(ctx, option)
}

func (s *Service) DeleteOption(ctx context.Context, staff *models.User, optionID int64) error {
	if err := requireStaff(staff); err != nil {
		return err
	}
	if err := s.Repo.DeleteOption(ctx, optionID); err != nil {
		return err
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Option %d deleted by %s", optionID, staff.Email))
	return nil
}

// PostMessage stores an announcement and mails it to every active
// registrant. The message is flagged as emailed once all mails went out.
func (s *Service) PostMessage(ctx context.Context, staff *models.User, code, text string) (*models.EventMessage, int, error) {
	if err := requireStaff(staff); err != nil {
		return nil, 0, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, 0, models.NewValidationError("message", "is required")
	}
	event, err := s.Repo.GetEventByCode(ctx, code)
	if err != nil {
		return nil, 0, err
	}

	msg := &models.EventMessage{EventID: event.ID, Message: text}
	if err := s.Repo.CreateMessage(ctx, msg); err != nil {
		return nil, 0, err
	}

	regs, err := s.Repo.ListActiveRegistrationsByEvent(ctx, event.ID)
	if err != nil {
		return msg, 0, err
	}
	sent := 0
	for _, reg := range regs {
		if reg.User == nil {
			continue
		}
		if s.Notify.Mail(ctx, notify.EventMessageMail(event, msg, reg.User.Email)) {
			sent++
		}
	}

	if sent == len(regs) {
		if err := s.Repo.MarkMessageEmailed(ctx, msg.ID); err != nil {
			return msg, sent, err
		}
		msg.Emailed = true
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Message %d for %s sent to %d of %d registrants", msg.ID, event.Code, sent, len(regs)))
	return msg, sent, nil
}
