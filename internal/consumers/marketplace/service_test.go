package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
)

type handlerFunc func(ctx context.Context, ev Event) error

func (fn handlerFunc) Handle(ctx context.Context, ev Event) error { return fn(ctx, ev) }

type fakeManager struct {
	seen    map[uuid.UUID]bool
	deleted []uuid.UUID
	err     error
}

func (f *fakeManager) CheckAndMarkProcessed(_ context.Context, _ string, eventID uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeManager) Delete(_ context.Context, _ string, eventID uuid.UUID) error {
	delete(f.seen, eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *gcppubsub.Message)) error {
	return nil
}

func newTestService(t *testing.T, h handler, m *fakeManager) *Service {
	t.Helper()
	svc, err := NewService(noopReceiver{}, h, m, logger.New(logger.Options{ServiceName: "marketplace-test", Output: &bytes.Buffer{}}))
	require.NoError(t, err)
	return svc
}

func message(t *testing.T, eventID uuid.UUID, typ string, data any) *gcppubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return &gcppubsub.Message{
		ID:         "msg-" + eventID.String(),
		Data:       body,
		Attributes: map[string]string{"event_type": typ},
	}
}

func TestProcessHandlesEventOnce(t *testing.T) {
	var handled []Event
	m := &fakeManager{seen: map[uuid.UUID]bool{}}
	svc := newTestService(t, handlerFunc(func(_ context.Context, ev Event) error {
		handled = append(handled, ev)
		return nil
	}), m)
	eventID := uuid.New()
	msg := message(t, eventID, "complaint_opened", ComplaintPayload{ComplaintID: uuid.New(), OrderID: uuid.New()})

	assert.True(t, svc.process(context.Background(), msg))
	assert.True(t, svc.process(context.Background(), msg))

	require.Len(t, handled, 1)
	assert.Equal(t, eventID, handled[0].ID)
	assert.Equal(t, enums.MarketplaceComplaintOpened, handled[0].Type)
}

func TestProcessNacksAndReleasesOnFailure(t *testing.T) {
	calls := 0
	m := &fakeManager{seen: map[uuid.UUID]bool{}}
	svc := newTestService(t, handlerFunc(func(context.Context, Event) error {
		calls++
		if calls == 1 {
			return errors.New("wallet locked")
		}
		return nil
	}), m)
	eventID := uuid.New()
	msg := message(t, eventID, "order_cancelled", OrderRef{OrderID: uuid.New()})

	assert.False(t, svc.process(context.Background(), msg))
	assert.Equal(t, []uuid.UUID{eventID}, m.deleted)
	assert.True(t, svc.process(context.Background(), msg))
	assert.Equal(t, 2, calls)
}

func TestProcessAcksMalformedEvents(t *testing.T) {
	m := &fakeManager{seen: map[uuid.UUID]bool{}}
	svc := newTestService(t, handlerFunc(func(context.Context, Event) error {
		return ErrMalformed
	}), m)

	assert.True(t, svc.process(context.Background(), message(t, uuid.New(), "order_refunded", map[string]any{})))
	assert.Empty(t, m.deleted)

	assert.True(t, svc.process(context.Background(), message(t, uuid.New(), "order_paid", map[string]any{})))
	assert.True(t, svc.process(context.Background(), &gcppubsub.Message{ID: "garbage", Data: []byte("not json")}))
}

func TestProcessNacksWhenIdempotencyUnavailable(t *testing.T) {
	called := false
	m := &fakeManager{seen: map[uuid.UUID]bool{}, err: errors.New("redis down")}
	svc := newTestService(t, handlerFunc(func(context.Context, Event) error {
		called = true
		return nil
	}), m)

	assert.False(t, svc.process(context.Background(), message(t, uuid.New(), "complaint_closed", ComplaintPayload{ComplaintID: uuid.New(), OrderID: uuid.New()})))
	assert.False(t, called)
}
