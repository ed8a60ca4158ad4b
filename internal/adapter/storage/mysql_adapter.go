package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
	"github.com/rl1809/flash-sale-gate/internal/port"
)

const (
	selectProductSQL = `
		SELECT id, name, unit_price, stock, created_at, updated_at
		FROM products WHERE id = ?`

	lockProductSQL = selectProductSQL + ` FOR UPDATE`

	decrementStockSQL = `
		UPDATE products
		SET stock = stock - 1, updated_at = NOW()
		WHERE id = ? AND stock > 0`

	upsertProductSQL = `
		INSERT INTO products (id, name, unit_price, stock)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), unit_price = VALUES(unit_price), stock = VALUES(stock)`
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
)

var errAlreadyDecremented = errors.New("stock already decremented in this transaction")

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) LoadProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	product, err := scanProduct(m.db.QueryRowContext(ctx, selectProductSQL, productID))
	if err != nil {
		return nil, errors.Wrapf(err, "load product %d", productID)
	}
	return product, nil
}

// RunTransaction reads the product row under FOR UPDATE so concurrent
// transactions on the same product serialize on the row lock. The deferred
// rollback is a no-op once the transaction has committed.
func (m *MySQLAdapter) RunTransaction(ctx context.Context, productID int64, fn port.StockTxFunc) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(classify(err), "begin tx")
	}
	defer tx.Rollback()

	product, err := scanProduct(tx.QueryRowContext(ctx, lockProductSQL, productID))
	if err != nil {
		return errors.Wrapf(err, "lock product %d", productID)
	}

	stockTx := &mysqlStockTx{tx: tx, productID: productID, product: product}
	if err := fn(ctx, stockTx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(classify(err), "commit tx")
	}

	return nil
}

// SeedProduct inserts or replaces a product row.
func (m *MySQLAdapter) SeedProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, upsertProductSQL, p.ID, p.Name, p.UnitPrice, p.StockCount)
	if err != nil {
		return errors.Wrapf(err, "seed product %d", p.ID)
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

type mysqlStockTx struct {
	tx          *sql.Tx
	productID   int64
	product     *domain.Product
	decremented bool
}

func (t *mysqlStockTx) Product() *domain.Product {
	return t.product
}

func (t *mysqlStockTx) DecrementStock(ctx context.Context) (int64, error) {
	if t.product == nil {
		return 0, domain.ErrProductNotFound
	}
	if t.decremented {
		return 0, errAlreadyDecremented
	}
	if t.product.StockCount <= 0 {
		return 0, domain.ErrOutOfStock
	}

	result, err := t.tx.ExecContext(ctx, decrementStockSQL, t.productID)
	if err != nil {
		return 0, errors.Wrap(classify(err), "update stock")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	if rows == 0 {
		return 0, domain.ErrOutOfStock
	}

	t.decremented = true
	t.product.StockCount--

	return t.product.StockCount, nil
}

func scanProduct(row *sql.Row) (*domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.UnitPrice, &p.StockCount, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}

	return &p, nil
}

func classify(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout) {
		return fmt.Errorf("%w: %w", domain.ErrLockConflict, err)
	}
	return err
}
