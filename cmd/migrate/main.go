// Command migrate applies or rolls back the postgres schema and can seed a
// demo event for local setups.
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"dds-registration/internal/catalog"
	"dds-registration/internal/config"
	"dds-registration/internal/database"
	"dds-registration/internal/database/migrations"
	"dds-registration/internal/identity"
	"dds-registration/internal/logger"
	"dds-registration/internal/models"
	"dds-registration/internal/notify"

	"github.com/joho/godotenv"
)

func main() {
	down := flag.Bool("down", false, "roll back every migration")
	seed := flag.Bool("seed", false, "create staff users and a demo event")
	flag.Parse()

	logger := logger.NewLogger()
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()
	ctx := context.Background()

	runner, err := migrations.NewRunner(ctx, cfg.Database.DSN, logger)
	if err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}
	defer runner.Close()

	if *down {
		logger.Info("MIGRATE", "Rolling back schema...")
		if err := runner.MigrateDown(); err != nil {
			logger.Fatal("MIGRATE", err.Error())
		}
		return
	}

	logger.Info("MIGRATE", "Applying schema...")
	if err := runner.MigrateUp(); err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}

	if *seed {
		if err := seedData(ctx, cfg, logger); err != nil {
			logger.Fatal("SEED", err.Error())
		}
	}
	logger.Info("MIGRATE", "✅ Done.")
}

// seedData promotes the configured staff and creates a public demo event
// open for registration over the next month.
func seedData(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	bunDB, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer bunDB.Close()
	repo := database.New(bunDB)

	users := &identity.Service{Repo: repo, Logger: log, StaffEmails: cfg.Auth.StaffEmails}
	var staff *models.User
	for _, email := range cfg.Auth.StaffEmails {
		u, err := users.EnsureUser(ctx, identity.Claims{Email: email})
		if err != nil {
			return fmt.Errorf("seed staff %s: %w", email, err)
		}
		staff = u
		log.Info("SEED", fmt.Sprintf("Staff user %s ready", u.Email))
	}
	if staff == nil {
		log.Warn("SEED", "STAFF_EMAILS is empty, skipping the demo event")
		return nil
	}

	events := &catalog.Service{Repo: repo, Notify: &notify.Dispatcher{
		Mailer: notify.LogMailer{Logger: log},
		Hook:   notify.LogHook{Logger: log},
		Logger: log,
	}, Logger: log}

	today := models.DateOf(time.Now())
	starts := today.AddDate(0, 2, 0)
	event := &models.Event{
		Title:             fmt.Sprintf("Summer Meeting %d", starts.Year()),
		Description:       "Annual members meeting with talks and workshops.",
		SuccessEmail:      "Your registration is complete. We look forward to seeing you.",
		Public:            true,
		RegistrationOpen:  today,
		RegistrationClose: today.AddDate(0, 1, 0),
		StartsAt:          &starts,
		RefundWindowDays:  models.DefaultRefundWindowDays,
		MaxParticipants:   50,
	}
	if err := events.CreateEvent(ctx, staff, event); err != nil {
		return fmt.Errorf("seed event: %w", err)
	}

	options := []*models.RegistrationOption{
		{Item: "Full conference", Price: 120, Currency: "EUR"},
		{Item: "Student", Price: 40, Currency: "EUR"},
		{Item: "Speaker", Price: 0, Currency: "EUR"},
	}
	for _, o := range options {
		if err := events.AddOption(ctx, staff, event.Code, o); err != nil {
			return fmt.Errorf("seed option %s: %w", o.Item, err)
		}
	}
	log.Info("SEED", fmt.Sprintf("Demo event %s created with %d options", event, len(options)))
	return nil
}
