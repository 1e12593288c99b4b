package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dds-registration/internal/logger"
	"dds-registration/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	env, err := NewEnvelope("payment.status", models.PaymentEvent{Type: "PAID", PaymentID: 3, Price: 10})
	require.NoError(t, err)

	_, err = uuid.Parse(env.ID)
	assert.NoError(t, err)
	assert.Equal(t, "payment.status", env.Type)

	var payload models.PaymentEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, int64(3), payload.PaymentID)
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := LogPublisher{Logger: logger.NewWriterLogger(&buf)}

	err := p.Publish(context.Background(), "registration.status", "12", models.RegistrationEvent{RegistrationID: 12})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "registration.status")
	assert.Contains(t, buf.String(), `"registration_id":12`)

	err = p.Publish(context.Background(), "registration.status", "12", make(chan int))
	assert.Error(t, err)
}

type recordingPublisher struct {
	topics []string
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, topic, _ string, _ any) error {
	r.topics = append(r.topics, topic)
	return r.err
}

func TestFanoutPublishesToAll(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("broker down")}
	ok := &recordingPublisher{}

	err := Fanout{failing, ok}.Publish(context.Background(), "registration.status", "1", struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []string{"registration.status"}, ok.topics)
	assert.Equal(t, []string{"registration.status"}, failing.topics)
}
