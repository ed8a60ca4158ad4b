package service_test

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/flash-sale-gate/internal/adapter/storage"
	"github.com/rl1809/flash-sale-gate/internal/core/domain"
	"github.com/rl1809/flash-sale-gate/internal/core/service"
)

type integrationEnv struct {
	redis *redis.Client
	mysql *sql.DB
	cache *storage.RedisAdapter
	db    *storage.MySQLAdapter
}

// setupIntegrationEnv connects to the Redis and MySQL named by REDIS_ADDR and
// MYSQL_DSN and skips the test when either is unreachable.
func setupIntegrationEnv(t *testing.T) *integrationEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/flashsale?parseTime=true"
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, storage.MigrateDatabase(db))

	return &integrationEnv{
		redis: rdb,
		mysql: db,
		cache: storage.NewRedisAdapter(rdb, storage.DefaultStockKeyPrefix),
		db:    storage.NewMySQLAdapter(db),
	}
}

func (e *integrationEnv) seed(t *testing.T, productID, stock int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.db.SeedProduct(ctx, domain.Product{
		ID:         productID,
		Name:       "integration-item",
		UnitPrice:  decimal.RequireFromString("10.00"),
		StockCount: stock,
	}))
	require.NoError(t, e.cache.DeleteStock(ctx, productID))
	t.Cleanup(func() {
		_ = e.cache.DeleteStock(context.Background(), productID)
		_, _ = e.mysql.ExecContext(context.Background(), `DELETE FROM products WHERE id = ?`, productID)
	})
}

func TestIntegration_FullFlashSaleFlow(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()

	const productID, initialStock, totalRequests = 810001, 10, 30
	env.seed(t, productID, initialStock)

	svc := service.NewPurchaseService(env.cache, env.db)

	var successCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Purchase(ctx, productID).Outcome == domain.OutcomeSuccess {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(initialStock), successCount.Load())

	status, err := svc.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.True(t, status.GatePresent)
	assert.Zero(t, status.Gate)
	assert.Zero(t, status.Durable)
}

func TestIntegration_StaleGateNeverOversells(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()

	const productID, durableStock = 810002, 3
	env.seed(t, productID, durableStock)
	require.NoError(t, env.cache.SetStock(ctx, productID, 8))

	svc := service.NewPurchaseService(env.cache, env.db)

	var successCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if svc.Purchase(ctx, productID).Outcome == domain.OutcomeSuccess {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(durableStock), successCount.Load())

	status, err := svc.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.Zero(t, status.Durable)
	// Five admitted attempts found no durable stock and gave their unit back.
	assert.Equal(t, int64(5), status.Gate)
}

func TestIntegration_ResyncRealignsGate(t *testing.T) {
	env := setupIntegrationEnv(t)
	ctx := context.Background()

	const productID = 810003
	env.seed(t, productID, 4)
	require.NoError(t, env.cache.SetStock(ctx, productID, 100))

	svc := service.NewPurchaseService(env.cache, env.db)

	res := svc.Resync(ctx, productID)
	require.Equal(t, domain.OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(4), res.Stock)

	gate, found, err := env.cache.GetStock(ctx, productID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), gate)
}
