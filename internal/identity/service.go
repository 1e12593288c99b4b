// Package identity maps authenticated principals to user records.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dds-registration/internal/database"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"
)

type Service struct {
	Repo        database.Repository
	Logger      *logger.Logger
	StaffEmails []string
}

// Claims is what the token verifier knows about the caller.
type Claims struct {
	Email     string
	FirstName string
	LastName  string
}

func (s *Service) isStaffEmail(email string) bool {
	for _, e := range s.StaffEmails {
		if strings.EqualFold(strings.TrimSpace(e), email) {
			return true
		}
	}
	return false
}

// EnsureUser returns the user with the claimed email, creating it on first
// login. Addresses configured as staff are promoted.
func (s *Service) EnsureUser(ctx context.Context, claims Claims) (*models.User, error) {
	email, err := models.NormalizeEmail(claims.Email)
	if err != nil {
		return nil, err
	}

	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err == nil {
		if !user.IsStaff && s.isStaffEmail(email) {
			user.IsStaff = true
			if err := s.Repo.UpdateUser(ctx, user); err != nil {
				return nil, err
			}
			s.Logger.LogSecurity("STAFF_PROMOTED", fmt.Sprintf("user %d (%s)", user.ID, email))
		}
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	user = &models.User{
		Email:     email,
		FirstName: strings.TrimSpace(claims.FirstName),
		LastName:  strings.TrimSpace(claims.LastName),
		IsStaff:   s.isStaffEmail(email),
	}
	err = s.Repo.CreateUser(ctx, user)
	if errors.Is(err, models.ErrDuplicateEmail) {
		// created by a concurrent first request
		return s.Repo.GetUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	s.Logger.Info("IDENTITY", fmt.Sprintf("User %d created for %s", user.ID, email))
	return user, nil
}

func (s *Service) GetProfile(ctx context.Context, id int64) (*models.User, error) {
	return s.Repo.GetUserByID(ctx, id)
}

// ProfileUpdate carries the fields a user may change. Nil fields are left alone.
type ProfileUpdate struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Address   *string `json:"address"`
}

// UpdateProfile changes name, address or email. The username follows the email.
func (s *Service) UpdateProfile(ctx context.Context, user *models.User, upd ProfileUpdate) (*models.User, error) {
	changed := *user
	if upd.Email != nil {
		email, err := models.NormalizeEmail(*upd.Email)
		if err != nil {
			return nil, err
		}
		changed.Email = email
	}
	if upd.FirstName != nil {
		changed.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		changed.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Address != nil {
		changed.Address = strings.TrimSpace(*upd.Address)
	}

	if err := s.Repo.UpdateUser(ctx, &changed); err != nil {
		return nil, err
	}
	if changed.Email != user.Email {
		s.Logger.LogSecurity("EMAIL_CHANGED", fmt.Sprintf("user %d: %s -> %s", user.ID, user.Email, changed.Email))
	}
	return &changed, nil
}
