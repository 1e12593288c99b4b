package database

import (
	"context"
	"fmt"
	"time"

	"dds-registration/internal/models"

	"github.com/uptrace/bun"
)

// ---------------- REGISTRATIONS ----------------

func activeOnly(q *bun.SelectQuery) *bun.SelectQuery {
	return q.Where("registration.status NOT IN (?)", bun.In(models.InactiveRegistrationStatuses))
}

// CreateRegistration → insert; the partial unique index turns a racing second
// active registration into ErrDuplicateActiveRegistration
func (d *DB) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	_, err := d.Bun.NewInsert().Model(reg).Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("event %d user %d: %w", reg.EventID, reg.UserID, models.ErrDuplicateActiveRegistration)
	}
	return err
}

// UpdateRegistration → status and payment link change together
func (d *DB) UpdateRegistration(ctx context.Context, reg *models.Registration) error {
	reg.UpdatedAt = time.Now().UTC()
	res, err := d.Bun.NewUpdate().
		Model(reg).
		Column("status", "payment_id", "option_id", "updated_at").
		WherePK().
		Exec(ctx)
	if isUniqueViolation(err) {
		return fmt.Errorf("registration %d: %w", reg.ID, models.ErrDuplicateActiveRegistration)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("registration %d: %w", reg.ID, models.ErrNotFound)
	}
	return nil
}

func (d *DB) selectRegistration(reg *models.Registration) *bun.SelectQuery {
	return d.Bun.NewSelect().
		Model(reg).
		Relation("Event").
		Relation("Option").
		Relation("User")
}

// GetRegistration → registration with its event, option and user
func (d *DB) GetRegistration(ctx context.Context, id int64) (*models.Registration, error) {
	var reg models.Registration
	err := d.selectRegistration(&reg).Where("registration.id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("registration %d", id))
	}
	return &reg, nil
}

func (d *DB) GetRegistrationByPayment(ctx context.Context, paymentID int64) (*models.Registration, error) {
	var reg models.Registration
	err := d.selectRegistration(&reg).Where("registration.payment_id = ?", paymentID).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("registration for payment %d", paymentID))
	}
	return &reg, nil
}

func (d *DB) FindActiveRegistration(ctx context.Context, eventID, userID int64) (*models.Registration, error) {
	var reg models.Registration
	q := d.Bun.NewSelect().
		Model(&reg).
		Where("registration.event_id = ?", eventID).
		Where("registration.user_id = ?", userID)
	err := activeOnly(q).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("active registration for event %d user %d", eventID, userID))
	}
	return &reg, nil
}

// CountActiveRegistrations → number of registrations holding a place
func (d *DB) CountActiveRegistrations(ctx context.Context, eventID int64) (int, error) {
	q := d.Bun.NewSelect().
		Model((*models.Registration)(nil)).
		Where("registration.event_id = ?", eventID)
	return activeOnly(q).Count(ctx)
}

func (d *DB) ListRegistrationsByUser(ctx context.Context, userID int64) ([]models.Registration, error) {
	var regs []models.Registration
	err := d.Bun.NewSelect().
		Model(&regs).
		Relation("Event").
		Relation("Option").
		Where("registration.user_id = ?", userID).
		Order("registration.created_at DESC", "registration.id DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return regs, nil
}

// ListActiveRegistrationsByEvent → registrants that should get event messages
func (d *DB) ListActiveRegistrationsByEvent(ctx context.Context, eventID int64) ([]models.Registration, error) {
	var regs []models.Registration
	q := d.Bun.NewSelect().
		Model(&regs).
		Relation("User").
		Where("registration.event_id = ?", eventID)
	if err := activeOnly(q).Order("registration.id").Scan(ctx); err != nil {
		return nil, err
	}
	return regs, nil
}
