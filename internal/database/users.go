package database

import (
	"context"
	"fmt"

	"dds-registration/internal/models"
)

// ---------------- USERS ----------------

// CreateUser → insert a user; a taken email maps to ErrDuplicateEmail
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	_, err := d.Bun.NewInsert().Model(user).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", user.Email, models.ErrDuplicateEmail)
	}
	return err
}

// UpdateUser → update profile fields and email
func (d *DB) UpdateUser(ctx context.Context, user *models.User) error {
	res, err := d.Bun.NewUpdate().
		Model(user).
		Column("email", "first_name", "last_name", "address", "is_staff").
		WherePK().
		Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w", user.Email, models.ErrDuplicateEmail)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %d: %w", user.ID, models.ErrNotFound)
	}
	return nil
}

func (d *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("user %d", id))
	}
	return &user, nil
}

// GetUserByEmail → lookup by the canonical (lower-cased) email
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().Model(&user).Where("email = ?", email).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "user "+email)
	}
	return &user, nil
}
