package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("SMTP_PORT", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()

	assert.Equal(t, ":8084", cfg.Server.Port)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "registration.status", cfg.Kafka.Topics.RegistrationStatus)
	assert.Equal(t, 30*time.Second, cfg.Redis.LockTTL)
	assert.Empty(t, cfg.Server.AllowedOrigins)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("SITE_NAME", "Demo")
	t.Setenv("CORS_ORIGINS", "https://dds.example.org")

	cfg := Load()

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, 2525, cfg.Email.SMTPPort)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "Demo", cfg.Site.Name)
	assert.Equal(t, []string{"https://dds.example.org"}, cfg.Server.AllowedOrigins)
}
