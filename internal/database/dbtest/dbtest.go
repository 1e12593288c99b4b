// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	"dds-registration/internal/database"
	"dds-registration/internal/models"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// New returns a repository backed by a fresh in-memory sqlite database with
// the full schema. The database is closed when the test ends.
func New(t testing.TB) (*database.DB, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	// one connection: every query sees the same in-memory database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, database.CreateSchema(context.Background(), bunDB))

	t.Cleanup(func() { bunDB.Close() })
	return database.New(bunDB), bunDB
}

// Fixtures creates rows with sensible defaults.
type Fixtures struct {
	T    testing.TB
	Repo database.Repository
	seq  int
}

func (f *Fixtures) next() int {
	f.seq++
	return f.seq
}

func (f *Fixtures) User(mods ...func(*models.User)) *models.User {
	f.T.Helper()
	n := f.next()
	u := &models.User{
		Email:     "user" + strconv.Itoa(n) + "@example.org",
		FirstName: "User",
		LastName:  strconv.Itoa(n),
		Address:   "Street " + strconv.Itoa(n),
	}
	for _, m := range mods {
		m(u)
	}
	require.NoError(f.T, f.Repo.CreateUser(context.Background(), u))
	return u
}

func (f *Fixtures) Staff() *models.User {
	return f.User(func(u *models.User) { u.IsStaff = true })
}

// Event creates an event whose registration window contains today.
func (f *Fixtures) Event(today time.Time, mods ...func(*models.Event)) *models.Event {
	f.T.Helper()
	n := f.next()
	e := &models.Event{
		Code:              "event" + strconv.Itoa(n),
		Title:             "Event " + strconv.Itoa(n),
		Description:       "Description",
		SuccessEmail:      "See you there!",
		Public:            true,
		RegistrationOpen:  models.DateOf(today).AddDate(0, 0, -7),
		RegistrationClose: models.DateOf(today).AddDate(0, 0, 7),
		RefundWindowDays:  models.DefaultRefundWindowDays,
	}
	for _, m := range mods {
		m(e)
	}
	require.NoError(f.T, f.Repo.CreateEvent(context.Background(), e))
	return e
}

func (f *Fixtures) Option(event *models.Event, price float64, currency string) *models.RegistrationOption {
	f.T.Helper()
	o := &models.RegistrationOption{EventID: event.ID, Item: "Option " + strconv.Itoa(f.next()), Price: price, Currency: currency}
	require.NoError(f.T, f.Repo.CreateOption(context.Background(), o))
	return o
}
