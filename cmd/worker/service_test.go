package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
)

type pingFunc func(ctx context.Context) error

func (fn pingFunc) Ping(ctx context.Context) error { return fn(ctx) }

type runFunc func(ctx context.Context) error

func (fn runFunc) Run(ctx context.Context) error { return fn(ctx) }

func okPing(context.Context) error { return nil }

func newTestService(t *testing.T, redisPing pingFunc, consumer runFunc) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "worker-test", Output: &bytes.Buffer{}}),
		DB:       pingFunc(okPing),
		Redis:    redisPing,
		PubSub:   pingFunc(okPing),
		Consumer: consumer,
	})
	require.NoError(t, err)
	return svc
}

func TestRunFailsWhenDependencyIsDown(t *testing.T) {
	started := false
	svc := newTestService(t, func(context.Context) error { return errors.New("connection refused") }, func(context.Context) error {
		started = true
		return nil
	})

	err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
	assert.False(t, started)
}

func TestRunReturnsConsumerError(t *testing.T) {
	boom := errors.New("subscription deleted")
	svc := newTestService(t, okPing, func(context.Context) error { return boom })

	assert.ErrorIs(t, svc.Run(context.Background()), boom)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := newTestService(t, okPing, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return nil
	})

	assert.ErrorIs(t, svc.Run(ctx), context.Canceled)
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
