package complaints

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenpay-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kitchenpay-backend/pkg/enums"
)

func TestRepositorySaveUpsertsStatus(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	orderID := uuid.New()
	first := Complaint{ID: uuid.New(), OrderID: orderID, Status: enums.ComplaintStatusOpen}
	second := Complaint{ID: uuid.New(), OrderID: orderID, Status: enums.ComplaintStatusEscalated}

	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, Complaint{ID: uuid.New(), OrderID: uuid.New(), Status: enums.ComplaintStatusOpen}))

	list, err := repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, HasActive(list))

	first.Status = enums.ComplaintStatusResolved
	second.Status = enums.ComplaintStatusDismissed
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	list, err = repo.ListByOrder(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.False(t, HasActive(list))
}

func TestRepositorySaveRejectsIncompleteRows(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()

	require.Error(t, repo.Save(ctx, Complaint{ID: uuid.New(), Status: enums.ComplaintStatusOpen}))
	require.Error(t, repo.Save(ctx, Complaint{ID: uuid.New(), OrderID: uuid.New(), Status: "pending"}))
}

func TestRepositorySaveNeverReopensClosedComplaint(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	c := Complaint{ID: uuid.New(), OrderID: uuid.New(), Status: enums.ComplaintStatusResolved}
	require.NoError(t, repo.Save(ctx, c))

	for _, status := range []enums.ComplaintStatus{enums.ComplaintStatusOpen, enums.ComplaintStatusEscalated} {
		c.Status = status
		assert.ErrorIs(t, repo.Save(ctx, c), ErrAlreadyClosed)
	}

	c.Status = enums.ComplaintStatusDismissed
	require.NoError(t, repo.Save(ctx, c))

	list, err := repo.ListByOrder(ctx, c.OrderID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, enums.ComplaintStatusDismissed, list[0].Status)
	assert.False(t, HasActive(list))
}

func TestRepositorySaveAcceptsRepeatedActiveStatus(t *testing.T) {
	repo := NewRepository(dbtest.Open(t).DB())
	ctx := context.Background()
	c := Complaint{ID: uuid.New(), OrderID: uuid.New(), Status: enums.ComplaintStatusOpen}

	require.NoError(t, repo.Save(ctx, c))
	require.NoError(t, repo.Save(ctx, c))
	c.Status = enums.ComplaintStatusEscalated
	require.NoError(t, repo.Save(ctx, c))
}
