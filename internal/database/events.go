package database

import (
	"context"
	"fmt"

	"dds-registration/internal/models"

	"github.com/uptrace/bun"
)

// ---------------- EVENTS ----------------

// CreateEvent → insert; duplicate code or title is a validation error
func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().Model(event).Exec(ctx)
	if isUniqueViolation(err) {
		return models.NewValidationError("code", "event code or title %q is already taken", event.Title)
	}
	return err
}

func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		ExcludeColumn("id", "created_at").
		WherePK().
		Exec(ctx)
	if isUniqueViolation(err) {
		return models.NewValidationError("title", "event title %q is already taken", event.Title)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", event.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteEvent → only events nobody ever registered for can be removed
func (d *DB) DeleteEvent(ctx context.Context, id int64) error {
	n, err := d.Bun.NewSelect().Model((*models.Registration)(nil)).Where("event_id = ?", id).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("event %d has %d registrations: %w", id, n, models.ErrEventInUse)
	}
	if _, err := d.Bun.NewDelete().Model((*models.RegistrationOption)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	if _, err := d.Bun.NewDelete().Model((*models.EventMessage)(nil)).Where("event_id = ?", id).Exec(ctx); err != nil {
		return err
	}
	res, err := d.Bun.NewDelete().Model((*models.Event)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("event %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *DB) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order("id") }).
		Where("event.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("event %d", id))
	}
	return &event, nil
}

func (d *DB) GetEventByCode(ctx context.Context, code string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order("id") }).
		Where("event.code = ?", code).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "event "+code)
	}
	return &event, nil
}

// LockEvent → read the event row and hold it until the transaction ends.
// sqlite has no row locks; its single writer serialises registrations instead.
func (d *DB) LockEvent(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	q := d.Bun.NewSelect().Model(&event).Where("id = ?", id).Limit(1)
	if d.isPostgres() {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, notFound(err, fmt.Sprintf("event %d", id))
	}
	return &event, nil
}

func (d *DB) ListEvents(ctx context.Context, publicOnly bool) ([]models.Event, error) {
	var events []models.Event
	q := d.Bun.NewSelect().
		Model(&events).
		Relation("Options", func(q *bun.SelectQuery) *bun.SelectQuery { return q.Order("id") }).
		Order("event.registration_open DESC", "event.id DESC")
	if publicOnly {
		q = q.Where("event.public = ?", true)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

// ---------------- OPTIONS ----------------

func (d *DB) CreateOption(ctx context.Context, option *models.RegistrationOption) error {
	_, err := d.Bun.NewInsert().Model(option).Exec(ctx)
	return err
}

// UpdateOption → price changes never touch payments already issued
func (d *DB) UpdateOption(ctx context.Context, option *models.RegistrationOption) error {
	res, err := d.Bun.NewUpdate().
		Model(option).
		Column("item", "price", "currency").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("option %d: %w", option.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteOption → refused while any registration references the option
func (d *DB) DeleteOption(ctx context.Context, id int64) error {
	n, err := d.Bun.NewSelect().Model((*models.Registration)(nil)).Where("option_id = ?", id).Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("option %d has %d registrations: %w", id, n, models.ErrOptionInUse)
	}
	res, err := d.Bun.NewDelete().Model((*models.RegistrationOption)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("option %d: %w", id, models.ErrNotFound)
	}
	return nil
}

func (d *DB) GetOption(ctx context.Context, id int64) (*models.RegistrationOption, error) {
	var option models.RegistrationOption
	err := d.Bun.NewSelect().Model(&option).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("option %d", id))
	}
	return &option, nil
}

func (d *DB) ListOptions(ctx context.Context, eventID int64) ([]models.RegistrationOption, error) {
	var options []models.RegistrationOption
	err := d.Bun.NewSelect().Model(&options).Where("event_id = ?", eventID).Order("id").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return options, nil
}

// ---------------- MESSAGES ----------------

func (d *DB) CreateMessage(ctx context.Context, msg *models.EventMessage) error {
	_, err := d.Bun.NewInsert().Model(msg).Exec(ctx)
	return err
}

func (d *DB) MarkMessageEmailed(ctx context.Context, id int64) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.EventMessage)(nil)).
		Set("emailed = ?", true).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
