package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront-payments/internal/testutil"
)

func TestWebhookEventClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewWebhookEventRepository(testutil.NewDB(t))

	first, err := repo.Claim(ctx, nil, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.True(t, first)

	second, err := repo.Claim(ctx, nil, "evt_1", "payment_intent.succeeded")
	require.NoError(t, err)
	assert.False(t, second)

	exists, err := repo.Exists(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestWebhookEventClaimRolledBack(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	repo := NewWebhookEventRepository(db)

	boom := errors.New("ledger down")
	err := db.Transaction(func(tx *gorm.DB) error {
		claimed, err := repo.Claim(ctx, tx, "evt_2", "payment_intent.succeeded")
		require.NoError(t, err)
		require.True(t, claimed)
		return boom
	})
	require.ErrorIs(t, err, boom)

	exists, err := repo.Exists(ctx, "evt_2")
	require.NoError(t, err)
	assert.False(t, exists)
}
