package database

import (
	"context"
	"fmt"

	"dds-registration/internal/models"
)

// ---------------- MEMBERSHIPS ----------------

func (d *DB) CreateMembership(ctx context.Context, m *models.Membership) error {
	_, err := d.Bun.NewInsert().Model(m).Exec(ctx)
	if isUniqueViolation(err) {
		return models.NewValidationError("user_id", "user %d already has a membership", m.UserID)
	}
	return err
}

// UpdateMembership → type, validity and current payment reference
func (d *DB) UpdateMembership(ctx context.Context, m *models.Membership) error {
	res, err := d.Bun.NewUpdate().
		Model(m).
		Column("membership_type", "until", "payment_id").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("membership %d: %w", m.ID, models.ErrNotFound)
	}
	return nil
}

func (d *DB) GetMembershipByUser(ctx context.Context, userID int64) (*models.Membership, error) {
	var m models.Membership
	err := d.Bun.NewSelect().Model(&m).Where("user_id = ?", userID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("membership for user %d", userID))
	}
	return &m, nil
}

func (d *DB) GetMembershipByPayment(ctx context.Context, paymentID int64) (*models.Membership, error) {
	var m models.Membership
	err := d.Bun.NewSelect().Model(&m).Where("payment_id = ?", paymentID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("membership for payment %d", paymentID))
	}
	return &m, nil
}
