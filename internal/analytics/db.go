package analytics

import (
	"context"

	"dds-registration/internal/models"

	"github.com/uptrace/bun"
)

// DB handles reporting queries. They only read and never lock.
type DB struct {
	Bun bun.IDB
}

func NewDB(db bun.IDB) *DB {
	return &DB{Bun: db}
}

// StatusCount is the number of registrations in one status.
type StatusCount struct {
	Status models.RegistrationStatus `bun:"status" json:"status"`
	Count  int                       `bun:"count" json:"count"`
}

// GetStatusCounts groups an event's registrations by status
func (db *DB) GetStatusCounts(ctx context.Context, eventID int64) ([]StatusCount, error) {
	var counts []StatusCount
	err := db.Bun.NewSelect().
		TableExpr("registrations").
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		GroupExpr("status").
		OrderExpr("status").
		Scan(ctx, &counts)
	return counts, err
}

// OptionCount is the number of active registrations on one option.
type OptionCount struct {
	OptionID int64   `bun:"option_id" json:"option_id"`
	Item     string  `bun:"item" json:"item"`
	Price    float64 `bun:"price" json:"price"`
	Currency string  `bun:"currency" json:"currency"`
	Active   int     `bun:"active" json:"active"`
}

// GetOptionCounts counts active registrations per option, including options nobody picked.
func (db *DB) GetOptionCounts(ctx context.Context, eventID int64) ([]OptionCount, error) {
	var counts []OptionCount
	err := db.Bun.NewSelect().
		TableExpr("registration_options AS o").
		ColumnExpr("o.id AS option_id, o.item, o.price, o.currency").
		ColumnExpr("COUNT(r.id) AS active").
		Join("LEFT JOIN registrations AS r ON r.option_id = o.id AND r.status NOT IN (?)", bun.In(models.InactiveRegistrationStatuses)).
		Where("o.event_id = ?", eventID).
		GroupExpr("o.id, o.item, o.price, o.currency").
		OrderExpr("o.id").
		Scan(ctx, &counts)
	return counts, err
}

// GetEventPayments returns the payments currently linked to the event's registrations.
func (db *DB) GetEventPayments(ctx context.Context, eventID int64) ([]models.Payment, error) {
	var payments []models.Payment
	sub := db.Bun.NewSelect().
		TableExpr("registrations").
		Column("payment_id").
		Where("event_id = ?", eventID).
		Where("payment_id IS NOT NULL")
	err := db.Bun.NewSelect().
		Model(&payments).
		Where("id IN (?)", sub).
		Order("id").
		Scan(ctx)
	return payments, err
}
