// Package analytics builds staff reports over an event's registrations and payments.
package analytics

import (
	"context"
	"fmt"
	"sort"

	"dds-registration/internal/database"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"
)

type Service struct {
	Repo   database.Repository
	DB     *DB
	Logger *logger.Logger
}

// Revenue sums payments of one currency.
type Revenue struct {
	Currency string  `json:"currency"`
	Paid     float64 `json:"paid"`
	Pending  float64 `json:"pending"`
	Refunded float64 `json:"refunded"`
}

// EventReport represents aggregated registration data for an event
type EventReport struct {
	EventCode       string        `json:"event_code"`
	Title           string        `json:"title"`
	MaxParticipants int           `json:"max_participants"`
	Active          int           `json:"active"`
	SeatsLeft       *int          `json:"seats_left,omitempty"`
	ByStatus        []StatusCount `json:"by_status"`
	ByOption        []OptionCount `json:"by_option"`
	Revenue         []Revenue     `json:"revenue"`
}

func (s *Service) event(ctx context.Context, staff *models.User, code string) (*models.Event, error) {
	if staff == nil || !staff.IsStaff {
		return nil, fmt.Errorf("staff only: %w", models.ErrNotFound)
	}
	return s.Repo.GetEventByCode(ctx, code)
}

// GetEventReport aggregates status and option counts and revenue per currency.
func (s *Service) GetEventReport(ctx context.Context, staff *models.User, code string) (*EventReport, error) {
	event, err := s.event(ctx, staff, code)
	if err != nil {
		return nil, err
	}

	byStatus, err := s.DB.GetStatusCounts(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	byOption, err := s.DB.GetOptionCounts(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("option counts: %w", err)
	}
	payments, err := s.DB.GetEventPayments(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("event payments: %w", err)
	}

	report := &EventReport{
		EventCode:       event.Code,
		Title:           event.Title,
		MaxParticipants: event.MaxParticipants,
		ByStatus:        byStatus,
		ByOption:        byOption,
		Revenue:         summarizeRevenue(payments),
	}
	for _, c := range byStatus {
		if c.Status.Active() {
			report.Active += c.Count
		}
	}
	if event.MaxParticipants > 0 {
		left := event.MaxParticipants - report.Active
		if left < 0 {
			left = 0
		}
		report.SeatsLeft = &left
	}

	s.Logger.Debug("ANALYTICS", fmt.Sprintf("Report for %s: %d active, %d payments", event, report.Active, len(payments)))
	return report, nil
}

func summarizeRevenue(payments []models.Payment) []Revenue {
	byCurrency := make(map[string]*Revenue)
	for _, p := range payments {
		r, ok := byCurrency[p.Data.Currency]
		if !ok {
			r = &Revenue{Currency: p.Data.Currency}
			byCurrency[p.Data.Currency] = r
		}
		switch {
		case p.Status == models.PaymentPaid:
			r.Paid += p.Data.Price
		case p.Status == models.PaymentRefunded:
			r.Refunded += p.Data.Price
		case p.Status.Unpaid():
			r.Pending += p.Data.Price
		}
	}

	out := make([]Revenue, 0, len(byCurrency))
	for _, r := range byCurrency {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}

// GetEventRegistrations lists registrations of an event for staff.
func (s *Service) GetEventRegistrations(ctx context.Context, staff *models.User, code string, options EventRegistrationOptions) ([]RegistrationRow, error) {
	event, err := s.event(ctx, staff, code)
	if err != nil {
		return nil, err
	}
	return s.DB.GetEventRegistrations(ctx, event.ID, options)
}
