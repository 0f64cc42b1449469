package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kitchenpay-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
	"github.com/angelmondragon/kitchenpay-backend/pkg/logger"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenpay-backend/pkg/outbox/payloads"
)

func TestRecordLogsAndEnqueues(t *testing.T) {
	client := dbtest.Open(t)
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "audit-test", Output: &buf})
	recorder, err := NewRecorder(client, outbox.NewService(outbox.NewRepository(client.DB()), logg), logg)
	require.NoError(t, err)

	walletID, orderID := uuid.New(), uuid.New()
	require.NoError(t, recorder.Record(context.Background(), Record{
		Event:    EventCommissionCharged,
		WalletID: walletID,
		TenantID: uuid.New(),
		SellerID: uuid.New(),
		OrderID:  &orderID,
		Properties: map[string]any{
			"commission_rate":   "7.5",
			"commission_amount": int64(249),
		},
	}))

	assert.Contains(t, buf.String(), EventCommissionCharged)
	assert.Contains(t, buf.String(), orderID.String())

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventWalletAuditRecorded, events[0].EventType)
	assert.Equal(t, walletID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var data payloads.WalletAuditRecordedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, EventCommissionCharged, data.Event)
	require.NotNil(t, data.OrderID)
	assert.Equal(t, orderID, *data.OrderID)
	assert.Equal(t, "7.5", data.Properties["commission_rate"])
}

func TestRecordRequiresEventName(t *testing.T) {
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "audit-test", Output: &bytes.Buffer{}})
	recorder, err := NewRecorder(client, outbox.NewService(outbox.NewRepository(client.DB()), logg), logg)
	require.NoError(t, err)

	require.Error(t, recorder.Record(context.Background(), Record{}))
}

type sinkFunc func(ctx context.Context, rec Record) error

func (f sinkFunc) Record(ctx context.Context, rec Record) error { return f(ctx, rec) }

func TestRecordQuietlyLogsFailure(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "audit-test", Output: &buf})

	RecordQuietly(context.Background(), sinkFunc(func(context.Context, Record) error {
		return errors.New("pubsub backlog")
	}), logg, Record{Event: EventFundsCleared})

	out := buf.String()
	if !strings.Contains(out, "audit record failed") || !strings.Contains(out, "pubsub backlog") {
		t.Fatalf("expected failure to be logged, got %s", out)
	}

	RecordQuietly(context.Background(), nil, logg, Record{Event: EventFundsCleared})
}
