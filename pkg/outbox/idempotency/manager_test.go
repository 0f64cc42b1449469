package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	keys map[string]time.Duration
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ttl
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(consumer, eventID string) string {
	return "kp:idempotency:" + consumer + ":" + eventID
}

func TestCheckAndMarkProcessed(t *testing.T) {
	store := &memoryStore{keys: map[string]time.Duration{}}
	manager, err := NewManager(store, 24*time.Hour)
	require.NoError(t, err)
	ctx := context.Background()
	eventID := uuid.New()

	already, err := manager.CheckAndMarkProcessed(ctx, "marketplace", eventID)
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, 24*time.Hour, store.keys["kp:idempotency:marketplace:"+eventID.String()])

	already, err = manager.CheckAndMarkProcessed(ctx, "marketplace", eventID)
	require.NoError(t, err)
	assert.True(t, already)

	already, err = manager.CheckAndMarkProcessed(ctx, "other-consumer", eventID)
	require.NoError(t, err)
	assert.False(t, already)

	require.NoError(t, manager.Delete(ctx, "marketplace", eventID))
	already, err = manager.CheckAndMarkProcessed(ctx, "marketplace", eventID)
	require.NoError(t, err)
	assert.False(t, already)
}

func TestManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(&memoryStore{}, -time.Second)
	assert.Error(t, err)

	manager, err := NewManager(&memoryStore{keys: map[string]time.Duration{}}, 0)
	require.NoError(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "", uuid.New())
	assert.Error(t, err)
	_, err = manager.CheckAndMarkProcessed(context.Background(), "marketplace", uuid.Nil)
	assert.Error(t, err)
}
