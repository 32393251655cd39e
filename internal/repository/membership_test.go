package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-payments/internal/model"
	"storefront-payments/internal/testutil"
)

func TestMembershipUpsert(t *testing.T) {
	ctx := context.Background()
	repo := NewMembershipRepository(testutil.NewDB(t))

	periodEnd := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, nil, &model.Membership{
		SubscriptionID:   "sub_1",
		CustomerID:       "cus_1",
		CustomerEmail:    "m@b.com",
		Status:           "active",
		CurrentPeriodEnd: &periodEnd,
	}))

	canceled := time.Now().Truncate(time.Second)
	require.NoError(t, repo.Upsert(ctx, nil, &model.Membership{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		CustomerEmail:  "m@b.com",
		Status:         "canceled",
		CanceledAt:     &canceled,
	}))

	got, err := repo.GetBySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "canceled", got.Status)
	require.NotNil(t, got.CanceledAt)
	assert.True(t, canceled.Equal(*got.CanceledAt))

	all, err := repo.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	active, err := repo.List(ctx, "active", 10)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = repo.GetBySubscriptionID(ctx, "sub_missing")
	assert.ErrorIs(t, err, ErrMembershipNotFound)
}
