package port

import (
	"context"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

// StockTxFunc runs inside a durable transaction. Returning an error rolls the
// transaction back.
type StockTxFunc func(ctx context.Context, tx StockTx) error

// StockTx is the view of one product row handed to a transaction body.
type StockTx interface {
	// Product returns the row as read inside the transaction, nil if missing
	Product() *domain.Product

	// DecrementStock removes one unit and returns the remaining stock.
	// Fails with domain.ErrProductNotFound or domain.ErrOutOfStock.
	DecrementStock(ctx context.Context) (int64, error)
}

type DatabaseRepository interface {
	// LoadProduct retrieves a product by ID, nil if it does not exist
	LoadProduct(ctx context.Context, productID int64) (*domain.Product, error)

	// RunTransaction locks the product row, runs fn and commits only if fn succeeds
	RunTransaction(ctx context.Context, productID int64, fn StockTxFunc) error

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
