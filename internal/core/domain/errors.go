package domain

import "errors"

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrOutOfStock       = errors.New("out of stock")
	ErrCacheUnavailable = errors.New("stock cache unavailable")
	// ErrLockConflict marks deadlocks and lock wait timeouts on the product row.
	ErrLockConflict = errors.New("product row lock conflict")
)
