package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/pkg/utils"
)

const (
	flagDirty = "1"
	flagClean = "0"
)

// OrderFlags is the external dirty-flag store for order totals. The
// relational store stays authoritative: a lost flag only means a total
// may be recomputed when it did not strictly need to be. Keys carry no
// expiry; the value persists until explicitly reset.
type OrderFlags struct {
	client  *redis.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewOrderFlags(client *redis.Client, logger *zap.Logger) *OrderFlags {
	return &OrderFlags{
		client: client,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "order-flags",
			Timeout: 10 * time.Second,
		}),
		logger: logger,
	}
}

func key(orderID int64) string {
	return fmt.Sprintf("modified_order_%d", orderID)
}

// MarkDirty records that the order's stored total is stale.
func (f *OrderFlags) MarkDirty(ctx context.Context, orderID int64) error {
	return f.set(ctx, orderID, flagDirty)
}

// MarkClean records that the stored total reflects all items.
func (f *OrderFlags) MarkClean(ctx context.Context, orderID int64) error {
	return f.set(ctx, orderID, flagClean)
}

func (f *OrderFlags) set(ctx context.Context, orderID int64, value string) error {
	_, err := utils.ExecuteWithBreaker(f.breaker, func() (struct{}, error) {
		return struct{}{}, f.client.Set(ctx, key(orderID), value, 0).Err()
	})
	if err != nil {
		return fmt.Errorf("set %s: %w", key(orderID), wrap(err))
	}

	return nil
}

// CheckAndClear consumes the flag atomically (GETDEL), so two concurrent
// readers cannot both observe the same dirty flag. A missing key reads
// as clean. The absent case must not feed the breaker as a failure, and
// a clean marker is put back (SETNX, so a concurrent MarkDirty wins) so
// ordinary reads keep finding a key.
func (f *OrderFlags) CheckAndClear(ctx context.Context, orderID int64) (bool, error) {
	value, err := utils.ExecuteWithBreaker(f.breaker, func() (string, error) {
		value, err := f.client.GetDel(ctx, key(orderID)).Result()
		if errors.Is(err, redis.Nil) {
			return flagClean, nil
		}
		if err != nil {
			return "", err
		}

		if value == flagClean {
			if err := f.client.SetNX(ctx, key(orderID), flagClean, 0).Err(); err != nil {
				return "", err
			}
		}

		return value, nil
	})
	if err != nil {
		return false, fmt.Errorf("getdel %s: %w", key(orderID), wrap(err))
	}

	return value == flagDirty, nil
}

func wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%v: %w", err, domain.ErrConnectivity)
	}

	return err
}
