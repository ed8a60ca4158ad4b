package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

func TestResync_RestoresCorruptedGate(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	require.Equal(t, domain.OutcomeSuccess, env.svc.Purchase(ctx, productID).Outcome)
	env.cache.set(productID, 99)

	res := env.svc.Resync(ctx, productID)

	assert.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(4), res.Stock)

	gate, ok := env.cache.value(productID)
	assert.True(t, ok)
	assert.Equal(t, env.db.stock(productID), gate)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.ResyncOutcomes.WithLabelValues("success")))
}

func TestResync_ProductNotFound(t *testing.T) {
	env := newTestEnv(t, 5)
	env.cache.set(404, 7)

	res := env.svc.Resync(context.Background(), 404)

	assert.Equal(t, domain.OutcomeProductNotFound, res.Outcome)
	_, ok := env.cache.value(404)
	assert.False(t, ok)
	assert.Equal(t, int64(5), env.db.stock(productID))
}

func TestResync_CacheUnavailable(t *testing.T) {
	env := newTestEnv(t, 5)
	env.cache.fail("del", fmt.Errorf("%w: del", domain.ErrCacheUnavailable))

	res := env.svc.Resync(context.Background(), productID)

	assert.Equal(t, domain.OutcomeSystemError, res.Outcome)
	assert.Contains(t, res.ErrorDetail, domain.ErrCacheUnavailable.Error())
	assert.Equal(t, 0, env.db.loadCount())
}

func TestResync_ThenPurchaseAgrees(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	env.db.setStock(productID, 2)
	env.cache.set(productID, 40)

	require.Equal(t, domain.OutcomeSuccess, env.svc.Resync(ctx, productID).Outcome)

	res := env.svc.Purchase(ctx, productID)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(1), res.GateRemaining)
	assert.Equal(t, int64(1), res.DurableRemaining)
}

func TestGetStock(t *testing.T) {
	env := newTestEnv(t, 5)
	ctx := context.Background()

	status, err := env.svc.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.False(t, status.GatePresent)
	assert.Equal(t, int64(5), status.Durable)

	require.Equal(t, domain.OutcomeSuccess, env.svc.Purchase(ctx, productID).Outcome)

	status, err = env.svc.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.True(t, status.GatePresent)
	assert.Equal(t, int64(4), status.Gate)
	assert.Equal(t, int64(4), status.Durable)

	_, err = env.svc.GetStock(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestPing(t *testing.T) {
	env := newTestEnv(t, 5)
	assert.NoError(t, env.svc.Ping(context.Background()))

	env.cache.fail("ping", domain.ErrCacheUnavailable)
	assert.ErrorIs(t, env.svc.Ping(context.Background()), domain.ErrCacheUnavailable)
}
