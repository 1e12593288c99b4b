package database

import (
	"context"
	"fmt"
	"strings"

	"dds-registration/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const activeRegistrationIndex = "registrations_single_active_idx"

// tables in creation order.
var tables = []any{
	(*models.User)(nil),
	(*models.Event)(nil),
	(*models.RegistrationOption)(nil),
	(*models.EventMessage)(nil),
	(*models.Payment)(nil),
	(*models.Registration)(nil),
	(*models.Membership)(nil),
}

// ActiveRegistrationIndexSQL builds the partial unique index that allows at
// most one active registration per user and event.
func ActiveRegistrationIndexSQL() string {
	quoted := make([]string, len(models.InactiveRegistrationStatuses))
	for i, s := range models.InactiveRegistrationStatuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON registrations (event_id, user_id) WHERE status NOT IN (%s)",
		activeRegistrationIndex, strings.Join(quoted, ", "),
	)
}

// CreateSchema creates tables, indexes and constraints. It is idempotent.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, model := range tables {
		q := db.NewCreateTable().Model(model).IfNotExists()
		if _, ok := model.(*models.Registration); ok {
			q = q.WithForeignKeys()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("create table %T: %w", model, err)
		}
	}

	stmts := []string{
		ActiveRegistrationIndexSQL(),
		"CREATE INDEX IF NOT EXISTS registrations_event_idx ON registrations (event_id)",
		"CREATE INDEX IF NOT EXISTS registrations_payment_idx ON registrations (payment_id)",
		"CREATE INDEX IF NOT EXISTS registration_options_event_idx ON registration_options (event_id)",
	}
	if db.Dialect().Name() == dialect.PG {
		stmts = append(stmts,
			"ALTER TABLE events DROP CONSTRAINT IF EXISTS registration_close_after_open",
			"ALTER TABLE events ADD CONSTRAINT registration_close_after_open CHECK (registration_close >= registration_open)",
		)
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// DropSchema removes every table. Used by the migrate tool with -drop.
func DropSchema(ctx context.Context, db *bun.DB) error {
	for i := len(tables) - 1; i >= 0; i-- {
		q := db.NewDropTable().Model(tables[i]).IfExists()
		if db.Dialect().Name() == dialect.PG {
			q = q.Cascade()
		}
		if _, err := q.Exec(ctx); err != nil {
			return fmt.Errorf("drop table %T: %w", tables[i], err)
		}
	}
	return nil
}
