package sse

import (
	"context"
	"sync"

	"dds-registration/internal/models"
)

const clientBuffer = 10

// RegistrationFeed fans registration status changes out to the clients
// watching an event. It satisfies kafka.Publisher so it can sit next to the
// Kafka producer.
type RegistrationFeed struct {
	mu      sync.RWMutex
	clients map[int64][]chan models.RegistrationEvent
}

func NewRegistrationFeed() *RegistrationFeed {
	return &RegistrationFeed{clients: make(map[int64][]chan models.RegistrationEvent)}
}

// Subscribe returns a channel of status changes for eventID. The channel is
// closed once ctx is done.
func (f *RegistrationFeed) Subscribe(ctx context.Context, eventID int64) <-chan models.RegistrationEvent {
	ch := make(chan models.RegistrationEvent, clientBuffer)

	f.mu.Lock()
	f.clients[eventID] = append(f.clients[eventID], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.remove(eventID, ch)
	}()
	return ch
}

// Publish forwards registration events and ignores every other payload.
func (f *RegistrationFeed) Publish(_ context.Context, _, _ string, payload any) error {
	var event models.RegistrationEvent
	switch p := payload.(type) {
	case models.RegistrationEvent:
		event = p
	case *models.RegistrationEvent:
		event = *p
	default:
		return nil
	}

	// The read lock is held while sending so remove cannot close a channel
	// under us. Sends never block: a slow client misses events.
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.clients[event.EventID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (f *RegistrationFeed) remove(eventID int64, ch chan models.RegistrationEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clients := f.clients[eventID]
	for i, c := range clients {
		if c == ch {
			f.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(ch)
			break
		}
	}
	if len(f.clients[eventID]) == 0 {
		delete(f.clients, eventID)
	}
}

// ClientCount returns the number of clients watching eventID.
func (f *RegistrationFeed) ClientCount(eventID int64) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.clients[eventID])
}
