package port

import "context"

// CacheRepository is the fast admission gate. Every method is a single atomic
// operation on the per-product counter; errors wrap domain.ErrCacheUnavailable.
type CacheRepository interface {
	// GetStock returns the counter and whether it exists, without side effects
	GetStock(ctx context.Context, productID int64) (int64, bool, error)

	// SetStockIfAbsent seeds the counter only if no counter exists yet
	SetStockIfAbsent(ctx context.Context, productID int64, quantity int64) (bool, error)

	// DecrementStock atomically decreases the counter by one and returns the new value.
	// A missing counter is treated as zero.
	DecrementStock(ctx context.Context, productID int64) (int64, error)

	// IncrementStock restores one unit (compensation) and returns the new value
	IncrementStock(ctx context.Context, productID int64) (int64, error)

	// SetStock overwrites the counter unconditionally
	SetStock(ctx context.Context, productID int64, quantity int64) error

	// DeleteStock removes the counter
	DeleteStock(ctx context.Context, productID int64) error

	// Ping checks connectivity
	Ping(ctx context.Context) error
}
