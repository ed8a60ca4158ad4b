package service

import (
	"context"
	"sync"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
	"github.com/rl1809/flash-sale-gate/internal/port"
)

// Mock CacheRepository
type mockCacheRepo struct {
	mu       sync.Mutex
	counters map[int64]int64
	failOn   map[string]error
	calls    map[string]int

	// context error observed by the last IncrementStock call
	incrementCtxErr error
	// drainOnSet makes SetStock store zero, as if concurrent buyers took
	// every unit between the overwrite and the next decrement
	drainOnSet bool
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		counters: make(map[int64]int64),
		failOn:   make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (m *mockCacheRepo) record(op string) error {
	m.calls[op]++
	return m.failOn[op]
}

func (m *mockCacheRepo) fail(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOn[op] = err
}

func (m *mockCacheRepo) set(productID, v int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[productID] = v
}

func (m *mockCacheRepo) value(productID int64) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.counters[productID]
	return v, ok
}

func (m *mockCacheRepo) callCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockCacheRepo) GetStock(ctx context.Context, productID int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get"); err != nil {
		return 0, false, err
	}
	v, ok := m.counters[productID]
	return v, ok, nil
}

func (m *mockCacheRepo) SetStockIfAbsent(ctx context.Context, productID int64, quantity int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("setnx"); err != nil {
		return false, err
	}
	if _, ok := m.counters[productID]; ok {
		return false, nil
	}
	m.counters[productID] = quantity
	return true, nil
}

func (m *mockCacheRepo) DecrementStock(ctx context.Context, productID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("decr"); err != nil {
		return 0, err
	}
	m.counters[productID]--
	return m.counters[productID], nil
}

func (m *mockCacheRepo) IncrementStock(ctx context.Context, productID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incrementCtxErr = ctx.Err()
	if err := m.record("incr"); err != nil {
		return 0, err
	}
	m.counters[productID]++
	return m.counters[productID], nil
}

func (m *mockCacheRepo) SetStock(ctx context.Context, productID int64, quantity int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("set"); err != nil {
		return err
	}
	if m.drainOnSet {
		quantity = 0
	}
	m.counters[productID] = quantity
	return nil
}

func (m *mockCacheRepo) DeleteStock(ctx context.Context, productID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("del"); err != nil {
		return err
	}
	delete(m.counters, productID)
	return nil
}

func (m *mockCacheRepo) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record("ping")
}

// Mock DatabaseRepository. Transactions hold txMu for their whole duration,
// standing in for the row lock.
type mockDatabaseRepo struct {
	mu       sync.Mutex
	txMu     sync.Mutex
	products map[int64]domain.Product

	loads   int
	commits int

	loadErr error
	// loadHook runs before every load, outside the mock's lock
	loadHook func(ctx context.Context) error
	// txHook runs inside every transaction before the body
	txHook func(ctx context.Context) error
}

func newMockDatabaseRepo(products ...domain.Product) *mockDatabaseRepo {
	m := &mockDatabaseRepo{products: make(map[int64]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockDatabaseRepo) stock(productID int64) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[productID].StockCount
}

func (m *mockDatabaseRepo) setStock(productID, stock int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.products[productID]
	p.StockCount = stock
	m.products[productID] = p
}

func (m *mockDatabaseRepo) commitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits
}

func (m *mockDatabaseRepo) loadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}

func (m *mockDatabaseRepo) LoadProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.loadHook != nil {
		if err := m.loadHook(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	p, ok := m.products[productID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *mockDatabaseRepo) RunTransaction(ctx context.Context, productID int64, fn port.StockTxFunc) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if m.txHook != nil {
		if err := m.txHook(ctx); err != nil {
			return err
		}
	}

	m.mu.Lock()
	p, ok := m.products[productID]
	m.mu.Unlock()

	tx := &mockStockTx{}
	if ok {
		tx.product = &p
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}

	if tx.product != nil {
		m.mu.Lock()
		m.products[productID] = *tx.product
		m.commits++
		m.mu.Unlock()
	}
	return nil
}

func (m *mockDatabaseRepo) Ping(ctx context.Context) error {
	return nil
}

type mockStockTx struct {
	product *domain.Product
}

func (t *mockStockTx) Product() *domain.Product {
	return t.product
}

func (t *mockStockTx) DecrementStock(ctx context.Context) (int64, error) {
	if t.product == nil {
		return 0, domain.ErrProductNotFound
	}
	if t.product.StockCount <= 0 {
		return 0, domain.ErrOutOfStock
	}
	t.product.StockCount--
	return t.product.StockCount, nil
}
