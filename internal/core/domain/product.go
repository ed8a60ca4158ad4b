package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the durable record of a saleable item. StockCount is the
// authoritative remaining inventory and never goes negative.
type Product struct {
	ID         int64
	Name       string
	UnitPrice  decimal.Decimal
	StockCount int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (p *Product) InStock() bool {
	return p != nil && p.StockCount > 0
}

// StockStatus is a read-only view of both tiers for one product.
type StockStatus struct {
	ProductID   int64
	Gate        int64
	GatePresent bool
	Durable     int64
}
