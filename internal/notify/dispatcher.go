package notify

import (
	"context"
	"fmt"

	"dds-registration/internal/logger"
	"dds-registration/internal/metrics"
)

// Dispatcher sends mail and operator notices after state changes are
// committed. Failures are logged, counted and reported to the operator; they
// are never returned to the caller.
type Dispatcher struct {
	Mailer  Mailer
	Hook    OperatorHook
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	Site    Site
}

// Mail sends m and reports whether it was delivered.
func (d *Dispatcher) Mail(ctx context.Context, m Mail) bool {
	if err := d.Mailer.Send(ctx, m); err != nil {
		d.Logger.Error("NOTIFY", fmt.Sprintf("Failed to send %q to %v: %v", m.Subject, m.To, err))
		d.Metrics.NotificationFailed("email")
		d.Operator(ctx, FailureText(fmt.Sprintf("send %q to %v", m.Subject, m.To), err))
		return false
	}
	d.Logger.Info("NOTIFY", fmt.Sprintf("Sent %q to %v", m.Subject, m.To))
	return true
}

// Operator posts text to the operator channel.
func (d *Dispatcher) Operator(ctx context.Context, text string) bool {
	if err := d.Hook.Notify(ctx, text); err != nil {
		d.Logger.Error("NOTIFY", fmt.Sprintf("Operator webhook failed (%q): %v", text, err))
		d.Metrics.NotificationFailed("webhook")
		return false
	}
	return true
}
