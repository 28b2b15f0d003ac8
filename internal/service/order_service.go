package service

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/cache"
	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/internal/repository"
	"github.com/Shnikita2023/OnlineShop/pkg/metrics"
	"github.com/Shnikita2023/OnlineShop/pkg/mylogger"
)

type CreateOrderInput struct {
	UserID        int64  `validate:"required,gt=0"`
	CostDelivery  string `validate:"required"`
	PaymentMethod string `validate:"required"`
}

type OrderPatch struct {
	CostDelivery  *string
	PaymentMethod *string
}

type AddOrderItemInput struct {
	OrderID   int64 `validate:"required,gt=0"`
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int64 `validate:"required,gt=0"`
	Price     decimal.Decimal
	Total     decimal.Decimal
	Address   string `validate:"required"`
}

type OrderService interface {
	CreateOrder(ctx context.Context, in *CreateOrderInput) (int64, error)
	GetOrder(ctx context.Context, caller domain.Caller, orderID int64) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
	UpdateOrder(ctx context.Context, caller domain.Caller, orderID int64, patch *OrderPatch) (*domain.Order, error)
	DeleteOrder(ctx context.Context, caller domain.Caller, orderID int64) (int64, error)

	AddItem(ctx context.Context, caller domain.Caller, in *AddOrderItemInput) (int64, error)
	ListItems(ctx context.Context, caller domain.Caller, orderID int64) ([]domain.OrderItem, error)
}

type orderService struct {
	uow      *repository.Manager
	flags    *cache.OrderFlags
	logger   *zap.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewOrderService(uow *repository.Manager, flags *cache.OrderFlags, logger *zap.Logger) OrderService {
	return &orderService{
		uow:      uow,
		flags:    flags,
		logger:   logger,
		validate: validator.New(),
		tracer:   otel.Tracer("service/order"),
	}
}

// CreateOrder opens an order in the Not Ready state with a zero total.
// The flag store is initialized to clean after commit; failure there is
// tolerated because a missing key already reads as clean.
func (s *orderService) CreateOrder(ctx context.Context, in *CreateOrderInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", in.UserID))

	if err := validateStruct(s.validate, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		id, err = uow.Orders.AddOne(ctx, uow.Tx, &domain.Order{
			UserID:        in.UserID,
			TotalPrice:    decimal.Zero,
			Status:        domain.OrderStatusNotReady,
			CostDelivery:  in.CostDelivery,
			PaymentMethod: in.PaymentMethod,
		})
		if err != nil {
			return err
		}

		return emitEvent(ctx, uow, "order", id, "OrderCreated", map[string]any{
			"order_id": id,
			"user_id":  in.UserID,
		})
	})
	if err != nil {
		return 0, err
	}

	if err := s.flags.MarkClean(ctx, id); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to initialize order flag",
			zap.Int64("order_id", id),
			zap.Error(err),
		)
	}

	return id, nil
}

// GetOrder consumes the dirty flag and lazily recomputes the total when
// it was set. A flag store failure degrades to an unconditional
// recompute; the database remains the source of truth either way.
func (s *orderService) GetOrder(ctx context.Context, caller domain.Caller, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	var order *domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		order, err = s.ownedOrder(ctx, uow, caller, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	dirty, err := s.flags.CheckAndClear(ctx, orderID)
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Order flag unavailable, recomputing unconditionally",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		dirty = true
	}
	if !dirty {
		return order, nil
	}

	order, err = s.recompute(ctx, caller, orderID)
	if err != nil {
		// The flag was already consumed; put it back so the next read
		// retries the recompute.
		if markErr := s.flags.MarkDirty(ctx, orderID); markErr != nil {
			mylogger.Error(
				ctx,
				s.logger,
				"Failed to restore order flag after recompute failure",
				zap.Int64("order_id", orderID),
				zap.Error(markErr),
			)
		}

		return nil, err
	}

	return order, nil
}

func (s *orderService) recompute(ctx context.Context, caller domain.Caller, orderID int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.recompute")
	defer span.End()

	var order *domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedOrder(ctx, uow, caller, orderID); err != nil {
			return err
		}

		items, err := uow.OrderItems.FindAllByField(ctx, uow.Tx, "order_id", orderID)
		if err != nil {
			return err
		}

		total := domain.SumItemTotals(items)

		order, err = uow.Orders.UpdateOne(ctx, uow.Tx, orderID, map[string]any{
			"total_price": total,
			"status":      domain.OrderStatusReady,
		})
		if err != nil {
			return err
		}

		return emitEvent(ctx, uow, "order", orderID, "OrderReady", map[string]any{
			"order_id":    orderID,
			"total_price": total.String(),
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderRecomputesTotal.Inc()

	if err := s.flags.MarkClean(ctx, orderID); err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to reset order flag after recompute",
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}

	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrders")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	var orders []domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		orders, err = uow.Orders.FindAllByField(ctx, uow.Tx, "user_id", userID)
		return err
	})

	return orders, err
}

func (s *orderService) UpdateOrder(ctx context.Context, caller domain.Caller, orderID int64, patch *OrderPatch) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	fields := map[string]any{}
	if patch.CostDelivery != nil {
		fields["cost_delivery"] = *patch.CostDelivery
	}
	if patch.PaymentMethod != nil {
		fields["payment_method"] = *patch.PaymentMethod
	}

	var order *domain.Order
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedOrder(ctx, uow, caller, orderID); err != nil {
			return err
		}

		var err error
		order, err = uow.Orders.UpdateOne(ctx, uow.Tx, orderID, fields)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *orderService) DeleteOrder(ctx context.Context, caller domain.Caller, orderID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.DeleteOrder")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	var deletedID int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedOrder(ctx, uow, caller, orderID); err != nil {
			return err
		}

		var err error
		deletedID, err = uow.Orders.DeleteOne(ctx, uow.Tx, orderID)
		return err
	})

	return deletedID, err
}

// AddItem verifies availability against unreserved stock, stores the
// item, and marks the order total stale only after the commit succeeds.
func (s *orderService) AddItem(ctx context.Context, caller domain.Caller, in *AddOrderItemInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.AddItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", in.OrderID),
		attribute.Int64("product_id", in.ProductID),
		attribute.Int64("quantity", in.Quantity),
	)

	if err := validateStruct(s.validate, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedOrder(ctx, uow, caller, in.OrderID); err != nil {
			return err
		}

		available, err := uow.Products.AvailableQuantity(ctx, uow.Tx, in.ProductID)
		if err != nil {
			return err
		}
		if available < in.Quantity {
			return fmt.Errorf("product %d has %d available, need %d: %w",
				in.ProductID, available, in.Quantity, domain.ErrInsufficientStock)
		}

		item := &domain.OrderItem{
			OrderID:    in.OrderID,
			ProductID:  in.ProductID,
			Quantity:   in.Quantity,
			Price:      in.Price,
			TotalPrice: in.Total,
			Address:    in.Address,
		}
		item.FillTotal()

		id, err = uow.OrderItems.AddOne(ctx, uow.Tx, item)
		return err
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to add order item",
			zap.Int64("order_id", in.OrderID),
			zap.Int64("product_id", in.ProductID),
			zap.Error(err),
		)

		return 0, err
	}

	// A lost mark makes the stored total stale until the flag store
	// recovers, never incorrect in the database itself.
	if err := s.flags.MarkDirty(ctx, in.OrderID); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Failed to mark order as modified",
			zap.Int64("order_id", in.OrderID),
			zap.Error(err),
		)
	}

	return id, nil
}

func (s *orderService) ListItems(ctx context.Context, caller domain.Caller, orderID int64) ([]domain.OrderItem, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListItems")
	defer span.End()

	span.SetAttributes(attribute.Int64("order_id", orderID))

	var items []domain.OrderItem
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedOrder(ctx, uow, caller, orderID); err != nil {
			return err
		}

		var err error
		items, err = uow.OrderItems.FindAllByField(ctx, uow.Tx, "order_id", orderID)
		return err
	})

	return items, err
}

func (s *orderService) ownedOrder(ctx context.Context, uow *repository.UnitOfWork, caller domain.Caller, orderID int64) (*domain.Order, error) {
	order, err := uow.Orders.FindOne(ctx, uow.Tx, orderID)
	if err != nil {
		return nil, err
	}

	if !caller.Owns(order.UserID) {
		return nil, fmt.Errorf("order %d: %w", orderID, domain.ErrAccessDenied)
	}

	return order, nil
}
