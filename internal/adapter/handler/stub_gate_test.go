package handler

import (
	"context"
	"sync"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

type stubGate struct {
	mu sync.Mutex

	purchase   domain.PurchaseResult
	resync     domain.ResyncResult
	stock      domain.StockStatus
	stockErr   error
	pingErr    error
	reseedUsed bool
	lastID     int64
}

func (g *stubGate) Purchase(_ context.Context, productID int64) domain.PurchaseResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastID = productID
	return g.purchase
}

func (g *stubGate) PurchaseWithReseed(_ context.Context, productID int64) domain.PurchaseResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastID = productID
	g.reseedUsed = true
	return g.purchase
}

func (g *stubGate) Resync(_ context.Context, productID int64) domain.ResyncResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastID = productID
	return g.resync
}

func (g *stubGate) GetStock(_ context.Context, productID int64) (domain.StockStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastID = productID
	return g.stock, g.stockErr
}

func (g *stubGate) Ping(context.Context) error {
	return g.pingErr
}
