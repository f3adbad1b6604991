package roomevents

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// recordingPublisher keeps the order events arrive in.
type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func mustEvent(t *testing.T, eventType EventType) Event {
	t.Helper()
	e, err := NewEvent(eventType, "r1", map[string]string{"room_id": "r1"}, time.Now())
	require.NoError(t, err)
	return e
}

func TestWorker_PublishesInOrder(t *testing.T) {
	req := require.New(t)
	pub := &recordingPublisher{}
	w := NewWorker(pub, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	req.NoError(w.Start(ctx))
	req.Error(w.Start(ctx), "second start must fail")

	req.True(w.Enqueue(mustEvent(t, EventRoomCreated)))
	req.True(w.Enqueue(mustEvent(t, EventVotesRevealed)))
	req.True(w.Enqueue(mustEvent(t, EventRoomDeleted)))

	req.Eventually(func() bool { return len(pub.types()) == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	w.Wait()

	req.Equal([]EventType{EventRoomCreated, EventVotesRevealed, EventRoomDeleted}, pub.types())
}

func TestWorker_RetriesThenGivesUp(t *testing.T) {
	req := require.New(t)
	pub := new(MockPublisher)
	cfg := Config{BufferSize: 4, MaxRetries: 2, RetryDelay: time.Millisecond, PublishTimeout: time.Second}
	w := NewWorker(pub, cfg)

	event := mustEvent(t, EventHostChanged)
	pub.On("Publish", mock.Anything, event).Return(errors.New("nats unavailable"))

	err := w.publishWithRetry(context.Background(), event)

	req.ErrorContains(err, "max retries exceeded")
	pub.AssertNumberOfCalls(t, "Publish", cfg.MaxRetries+1)
}

func TestWorker_RetrySucceeds(t *testing.T) {
	pub := new(MockPublisher)
	w := NewWorker(pub, Config{BufferSize: 4, MaxRetries: 3, RetryDelay: time.Millisecond})

	event := mustEvent(t, EventRoomCreated)
	pub.On("Publish", mock.Anything, event).Return(errors.New("timeout")).Once()
	pub.On("Publish", mock.Anything, event).Return(nil).Once()

	require.NoError(t, w.publishWithRetry(context.Background(), event))
	pub.AssertExpectations(t)
}

func TestWorker_EnqueueDropsWhenFull(t *testing.T) {
	w := NewWorker(NopPublisher{}, Config{BufferSize: 1})

	require.True(t, w.Enqueue(mustEvent(t, EventRoomCreated)))
	require.False(t, w.Enqueue(mustEvent(t, EventRoomDeleted)))
}
