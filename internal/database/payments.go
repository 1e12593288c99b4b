package database

import (
	"context"
	"fmt"
	"slices"
	"time"

	"dds-registration/internal/models"

	"github.com/uptrace/bun"
)

// ---------------- PAYMENTS ----------------

func (d *DB) CreatePayment(ctx context.Context, payment *models.Payment) error {
	_, err := d.Bun.NewInsert().Model(payment).Exec(ctx)
	return err
}

func (d *DB) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().Model(&payment).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("payment %d", id))
	}
	return &payment, nil
}

// MarkPaymentPaid → the only place a payment becomes PAID. The update is
// conditional on the payment still being payable, so concurrent or repeated
// confirmations change the row once. changed is false when it was already PAID.
func (d *DB) MarkPaymentPaid(ctx context.Context, id int64, now time.Time) (*models.Payment, bool, error) {
	payment, err := d.GetPayment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if payment.Status == models.PaymentPaid {
		return payment, false, nil
	}
	payable := payment.PayableStatuses()
	if !slices.Contains(payable, payment.Status) {
		return nil, false, &models.TransitionError{Entity: "payment", From: string(payment.Status), To: string(models.PaymentPaid)}
	}

	data := payment.Data
	if data.StripeChargeInProgress != nil {
		data.Price = *data.StripeChargeInProgress
		data.StripeChargeInProgress = nil
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", models.PaymentPaid).
		Set("data = ?", data).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(payable)).
		Exec(ctx)
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// lost the race; report whatever state the winner left
		current, err := d.GetPayment(ctx, id)
		if err != nil {
			return nil, false, err
		}
		if current.Status == models.PaymentPaid {
			return current, false, nil
		}
		return nil, false, &models.TransitionError{Entity: "payment", From: string(current.Status), To: string(models.PaymentPaid)}
	}

	payment.Status = models.PaymentPaid
	payment.Data = data
	payment.UpdatedAt = now
	return payment, true, nil
}

// TransitionPayment → status-only change guarded by the allowed source states.
// Returns false when the payment was not in any of them.
func (d *DB) TransitionPayment(ctx context.Context, id int64, from []models.PaymentStatus, to models.PaymentStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetPaymentCharge → remember the amount a card charge was created for.
// Paid payments are never rewritten.
func (d *DB) SetPaymentCharge(ctx context.Context, id int64, amount float64, intentID string, now time.Time) error {
	payment, err := d.GetPayment(ctx, id)
	if err != nil {
		return err
	}
	data := payment.Data
	data.StripeChargeInProgress = &amount

	res, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("data = ?", data).
		Set("stripe_payment_intent_id = ?", intentID).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(models.UnpaidPaymentStatuses)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.TransitionError{Entity: "payment", From: string(payment.Status), To: "charging"}
	}
	return nil
}
