package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/flash-sale-gate/internal/core/domain"
)

const DefaultStockKeyPrefix = "stock:product:"

// RedisAdapter keeps one integer counter per product. All mutations are single
// Redis commands, so concurrent callers never race on a read-modify-write.
type RedisAdapter struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisAdapter(client *redis.Client, keyPrefix string) *RedisAdapter {
	if keyPrefix == "" {
		keyPrefix = DefaultStockKeyPrefix
	}
	return &RedisAdapter{client: client, keyPrefix: keyPrefix}
}

func (r *RedisAdapter) StockKey(productID int64) string {
	return r.keyPrefix + strconv.FormatInt(productID, 10)
}

func (r *RedisAdapter) GetStock(ctx context.Context, productID int64) (int64, bool, error) {
	key := r.StockKey(productID)

	val, err := r.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("get", key, err)
	}

	return val, true, nil
}

func (r *RedisAdapter) SetStockIfAbsent(ctx context.Context, productID int64, quantity int64) (bool, error) {
	key := r.StockKey(productID)

	ok, err := r.client.SetNX(ctx, key, quantity, 0).Result()
	if err != nil {
		return false, unavailable("setnx", key, err)
	}

	return ok, nil
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, productID int64) (int64, error) {
	key := r.StockKey(productID)

	val, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("decr", key, err)
	}

	return val, nil
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, productID int64) (int64, error) {
	key := r.StockKey(productID)

	val, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}

	return val, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, productID int64, quantity int64) error {
	key := r.StockKey(productID)

	if err := r.client.Set(ctx, key, quantity, 0).Err(); err != nil {
		return unavailable("set", key, err)
	}

	return nil
}

func (r *RedisAdapter) DeleteStock(ctx context.Context, productID int64) error {
	key := r.StockKey(productID)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}

	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", domain.ErrCacheUnavailable, op, key, err)
}
