package analytics

import (
	"context"
	"strings"

	"dds-registration/internal/models"
)

// RegistrationSortField defines the valid fields for sorting registrations
type RegistrationSortField string

const (
	RegistrationSortByCreatedAt RegistrationSortField = "created_at"
	RegistrationSortByUpdatedAt RegistrationSortField = "updated_at"
	RegistrationSortByStatus    RegistrationSortField = "status"
)

// EventRegistrationOptions contains options for filtering and sorting registrations
type EventRegistrationOptions struct {
	Status   models.RegistrationStatus
	SortBy   string
	SortDesc bool
	Limit    int
	Offset   int
}

// RegistrationRow is a registration as staff see it, with the registrant's contact.
type RegistrationRow struct {
	ID        int64                     `json:"id"`
	Status    models.RegistrationStatus `json:"status"`
	Email     string                    `json:"email"`
	Name      string                    `json:"name"`
	Option    string                    `json:"option"`
	PaymentID *int64                    `json:"payment_id,omitempty"`
	CreatedAt string                    `json:"created_at"`
}

const maxRegistrationRows = 500

// GetEventRegistrations lists an event's registrations with optional filters
func (db *DB) GetEventRegistrations(ctx context.Context, eventID int64, options EventRegistrationOptions) ([]RegistrationRow, error) {
	var regs []models.Registration
	q := db.Bun.NewSelect().
		Model(&regs).
		Relation("User").
		Relation("Option").
		Where("registration.event_id = ?", eventID)

	if options.Status != "" {
		q = q.Where("registration.status = ?", options.Status)
	}

	direction := "ASC"
	if options.SortDesc {
		direction = "DESC"
	}
	switch RegistrationSortField(strings.ToLower(options.SortBy)) {
	case RegistrationSortByUpdatedAt:
		q = q.Order("registration.updated_at " + direction)
	case RegistrationSortByStatus:
		q = q.Order("registration.status " + direction)
	default:
		q = q.Order("registration.created_at " + direction)
	}
	q = q.Order("registration.id")

	limit := options.Limit
	if limit <= 0 || limit > maxRegistrationRows {
		limit = maxRegistrationRows
	}
	q = q.Limit(limit)
	if options.Offset > 0 {
		q = q.Offset(options.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	rows := make([]RegistrationRow, len(regs))
	for i, reg := range regs {
		row := RegistrationRow{
			ID:        reg.ID,
			Status:    reg.Status,
			PaymentID: reg.PaymentID,
			CreatedAt: reg.CreatedAt.UTC().Format("2006-01-02 15:04"),
		}
		if reg.User != nil {
			row.Email = reg.User.Email
			row.Name = reg.User.FullName()
		}
		if reg.Option != nil {
			row.Option = reg.Option.String()
		}
		rows[i] = row
	}
	return rows, nil
}
