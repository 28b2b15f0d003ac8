package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/pkg/mylogger"
)

// ProductRepository extends the generic gateway with the reservation
// statements. Both are single conditional updates so concurrent
// reserve/release calls cannot lose updates.
type ProductRepository struct {
	*Repo[domain.Product]
	logger *zap.Logger
	tracer trace.Tracer
}

func NewProductRepository(logger *zap.Logger) *ProductRepository {
	return &ProductRepository{
		Repo:   newProductRepo(logger),
		logger: logger,
		tracer: otel.Tracer("repository/products_reservation"),
	}
}

// Reserve increments reserved_quantity by quantity, refusing the update
// when it would exceed the stock on hand.
func (r *ProductRepository) Reserve(ctx context.Context, db DB, id, quantity int64) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", id),
		attribute.Int64("quantity", quantity),
	)

	query := `
		UPDATE products
		SET reserved_quantity = reserved_quantity + $2, updated_at = NOW()
		WHERE id = $1
			AND reserved_quantity + $2 <= quantity
	`

	commandTag, err := db.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error reserving stock",
			zap.Int64("product_id", id),
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("reserve product %d: %w", id, translate(err))
	}

	if commandTag.RowsAffected() == 0 {
		// Either the product is gone or the quantity does not fit.
		var exists bool
		probe := `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
		if err := db.QueryRow(ctx, probe, id).Scan(&exists); err != nil {
			span.RecordError(err)
			return fmt.Errorf("probe product %d: %w", id, translate(err))
		}

		if !exists {
			return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}

		mylogger.Warn(
			ctx,
			r.logger,
			"Reservation refused, not enough available stock",
			zap.Int64("product_id", id),
			zap.Int64("quantity", quantity),
		)

		return fmt.Errorf("product %d: %w", id, domain.ErrInsufficientStock)
	}

	return nil
}

// Release decrements reserved_quantity by quantity, flooring at zero.
func (r *ProductRepository) Release(ctx context.Context, db DB, id, quantity int64) error {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.Release")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", id),
		attribute.Int64("quantity", quantity),
	)

	query := `
		UPDATE products
		SET reserved_quantity = GREATEST(reserved_quantity - $2, 0), updated_at = NOW()
		WHERE id = $1
	`

	commandTag, err := db.Exec(ctx, query, id, quantity)
	if err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			r.logger,
			"Error releasing stock",
			zap.Int64("product_id", id),
			zap.Int64("quantity", quantity),
			zap.Error(err),
		)

		return fmt.Errorf("release product %d: %w", id, translate(err))
	}

	if commandTag.RowsAffected() == 0 {
		return fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
	}

	return nil
}

// AvailableQuantity reports quantity - reserved_quantity for a product.
func (r *ProductRepository) AvailableQuantity(ctx context.Context, db DB, id int64) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "ProductRepository.AvailableQuantity")
	defer span.End()

	span.SetAttributes(attribute.Int64("product_id", id))

	query := `
		SELECT quantity - reserved_quantity
		FROM products
		WHERE id = $1
	`

	var available int64
	if err := db.QueryRow(ctx, query, id).Scan(&available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("product %d: %w", id, domain.ErrNotFound)
		}

		span.RecordError(err)
		return 0, fmt.Errorf("query available quantity for product %d: %w", id, translate(err))
	}

	return available, nil
}
