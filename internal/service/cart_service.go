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

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/internal/repository"
	"github.com/Shnikita2023/OnlineShop/pkg/metrics"
	"github.com/Shnikita2023/OnlineShop/pkg/mylogger"
)

type AddCartItemInput struct {
	CartID    int64 `validate:"required,gt=0"`
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int64 `validate:"required,gt=0"`
	Price     decimal.Decimal
}

type UpdateCartItemInput struct {
	CartID    int64 `validate:"required,gt=0"`
	ProductID int64 `validate:"required,gt=0"`
	Quantity  int64 `validate:"required,gt=0"`
	Price     decimal.Decimal
}

// CartItemPatch carries optional fields for a partial update. Quantity
// changes do NOT re-run reservation adjustment; the source system
// behaves that way and the behavior is preserved until confirmed.
type CartItemPatch struct {
	Quantity *int64
	Price    *decimal.Decimal
}

type CartService interface {
	CreateCart(ctx context.Context, userID int64) (int64, error)
	GetCart(ctx context.Context, caller domain.Caller, cartID int64) (*domain.Cart, error)
	GetCartByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	DeleteCart(ctx context.Context, caller domain.Caller, userID int64) (int64, error)

	AddItem(ctx context.Context, caller domain.Caller, in *AddCartItemInput) (int64, error)
	GetItem(ctx context.Context, caller domain.Caller, itemID int64) (*domain.CartItem, error)
	ListItems(ctx context.Context, caller domain.Caller, cartID int64) ([]domain.CartItem, error)
	RemoveItem(ctx context.Context, caller domain.Caller, itemID int64) (int64, error)
	UpdateItem(ctx context.Context, caller domain.Caller, itemID int64, in *UpdateCartItemInput) (*domain.CartItem, error)
	UpdateItemPartial(ctx context.Context, caller domain.Caller, itemID int64, cartID int64, patch *CartItemPatch) (*domain.CartItem, error)
}

type cartService struct {
	uow      *repository.Manager
	logger   *zap.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewCartService(uow *repository.Manager, logger *zap.Logger) CartService {
	return &cartService{
		uow:      uow,
		logger:   logger,
		validate: validator.New(),
		tracer:   otel.Tracer("service/cart"),
	}
}

// CreateCart enforces the one-cart-per-user rule. The user_id unique
// constraint backs the pre-check against concurrent creates.
func (s *cartService) CreateCart(ctx context.Context, userID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.CreateCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := uow.Carts.FindOneByField(ctx, uow.Tx, "user_id", userID); err == nil {
			return fmt.Errorf("cart already exists for user %d: %w", userID, domain.ErrConflict)
		} else if !isNotFound(err) {
			return err
		}

		var err error
		id, err = uow.Carts.AddOne(ctx, uow.Tx, &domain.Cart{UserID: userID})
		return err
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to create cart",
			zap.Int64("user_id", userID),
			zap.Error(err),
		)

		return 0, err
	}

	return id, nil
}

func (s *cartService) GetCart(ctx context.Context, caller domain.Caller, cartID int64) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.GetCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_id", cartID))

	var cart *domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		cart, err = s.ownedCart(ctx, uow, caller, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func (s *cartService) GetCartByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.GetCartByUser")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	var cart *domain.Cart
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		cart, err = uow.Carts.FindOneByField(ctx, uow.Tx, "user_id", userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return cart, nil
}

func (s *cartService) DeleteCart(ctx context.Context, caller domain.Caller, userID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.DeleteCart")
	defer span.End()

	span.SetAttributes(attribute.Int64("user_id", userID))

	if !caller.Owns(userID) {
		return 0, fmt.Errorf("cart of user %d: %w", userID, domain.ErrAccessDenied)
	}

	var deletedID int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		cart, err := uow.Carts.FindOneByField(ctx, uow.Tx, "user_id", userID)
		if err != nil {
			return err
		}

		deletedID, err = uow.Carts.DeleteOne(ctx, uow.Tx, cart.ID)
		return err
	})

	return deletedID, err
}

// AddItem reserves stock and inserts the cart item in one transaction;
// a failed reservation leaves no cart item behind.
func (s *cartService) AddItem(ctx context.Context, caller domain.Caller, in *AddCartItemInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.AddItem")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("cart_id", in.CartID),
		attribute.Int64("product_id", in.ProductID),
		attribute.Int64("quantity", in.Quantity),
	)

	if err := validateStruct(s.validate, in); err != nil {
		return 0, err
	}

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedCart(ctx, uow, caller, in.CartID); err != nil {
			return err
		}

		items, err := uow.CartItems.FindAllByField(ctx, uow.Tx, "cart_id", in.CartID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ProductID == in.ProductID {
				return fmt.Errorf("product %d already exists in cart %d: %w",
					in.ProductID, in.CartID, domain.ErrConflict)
			}
		}

		if err := uow.Products.Reserve(ctx, uow.Tx, in.ProductID, in.Quantity); err != nil {
			return err
		}

		id, err = uow.CartItems.AddOne(ctx, uow.Tx, &domain.CartItem{
			CartID:    in.CartID,
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			Price:     in.Price,
		})
		return err
	})

	metrics.ReservationsTotal.WithLabelValues(reservationResult(err)).Inc()

	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to add cart item",
			zap.Int64("cart_id", in.CartID),
			zap.Int64("product_id", in.ProductID),
			zap.Error(err),
		)

		return 0, err
	}

	return id, nil
}

func (s *cartService) GetItem(ctx context.Context, caller domain.Caller, itemID int64) (*domain.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.GetItem")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_item_id", itemID))

	var item *domain.CartItem
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		item, err = s.ownedItem(ctx, uow, caller, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func (s *cartService) ListItems(ctx context.Context, caller domain.Caller, cartID int64) ([]domain.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.ListItems")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_id", cartID))

	var items []domain.CartItem
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := s.ownedCart(ctx, uow, caller, cartID); err != nil {
			return err
		}

		var err error
		items, err = uow.CartItems.FindAllByField(ctx, uow.Tx, "cart_id", cartID)
		return err
	})

	return items, err
}

// RemoveItem releases the item's reservation and deletes the row in one
// transaction. Returns the released quantity.
func (s *cartService) RemoveItem(ctx context.Context, caller domain.Caller, itemID int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.RemoveItem")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_item_id", itemID))

	var released int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		item, err := s.ownedItem(ctx, uow, caller, itemID)
		if err != nil {
			return err
		}

		if err := uow.Products.Release(ctx, uow.Tx, item.ProductID, item.Quantity); err != nil {
			return err
		}

		if _, err := uow.CartItems.DeleteOne(ctx, uow.Tx, itemID); err != nil {
			return err
		}

		released = item.Quantity
		return nil
	})
	if err != nil {
		return 0, err
	}

	metrics.ReleasesTotal.Inc()

	return released, nil
}

func (s *cartService) UpdateItem(ctx context.Context, caller domain.Caller, itemID int64, in *UpdateCartItemInput) (*domain.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.UpdateItem")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_item_id", itemID))

	if err := validateStruct(s.validate, in); err != nil {
		return nil, err
	}

	var item *domain.CartItem
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		current, err := s.ownedItem(ctx, uow, caller, itemID)
		if err != nil {
			return err
		}
		if current.CartID != in.CartID {
			return fmt.Errorf("cart item %d is not in cart %d: %w", itemID, in.CartID, domain.ErrNotFound)
		}

		if _, err := uow.Products.FindOne(ctx, uow.Tx, in.ProductID); err != nil {
			return fmt.Errorf("product check: %w", err)
		}

		item, err = uow.CartItems.UpdateOne(ctx, uow.Tx, itemID, map[string]any{
			"quantity": in.Quantity,
			"price":    in.Price,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func (s *cartService) UpdateItemPartial(ctx context.Context, caller domain.Caller, itemID int64, cartID int64, patch *CartItemPatch) (*domain.CartItem, error) {
	ctx, span := s.tracer.Start(ctx, "CartService.UpdateItemPartial")
	defer span.End()

	span.SetAttributes(attribute.Int64("cart_item_id", itemID))

	fields := map[string]any{}
	if patch.Quantity != nil {
		fields["quantity"] = *patch.Quantity
	}
	if patch.Price != nil {
		fields["price"] = *patch.Price
	}

	var item *domain.CartItem
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		current, err := s.ownedItem(ctx, uow, caller, itemID)
		if err != nil {
			return err
		}
		if current.CartID != cartID {
			return fmt.Errorf("cart item %d is not in cart %d: %w", itemID, cartID, domain.ErrNotFound)
		}

		if _, err := uow.Products.FindOne(ctx, uow.Tx, current.ProductID); err != nil {
			return fmt.Errorf("product check: %w", err)
		}

		item, err = uow.CartItems.UpdateOne(ctx, uow.Tx, itemID, fields)
		return err
	})
	if err != nil {
		return nil, err
	}

	return item, nil
}

func (s *cartService) ownedCart(ctx context.Context, uow *repository.UnitOfWork, caller domain.Caller, cartID int64) (*domain.Cart, error) {
	cart, err := uow.Carts.FindOne(ctx, uow.Tx, cartID)
	if err != nil {
		return nil, err
	}

	if !caller.Owns(cart.UserID) {
		return nil, fmt.Errorf("cart %d: %w", cartID, domain.ErrAccessDenied)
	}

	return cart, nil
}

func (s *cartService) ownedItem(ctx context.Context, uow *repository.UnitOfWork, caller domain.Caller, itemID int64) (*domain.CartItem, error) {
	item, err := uow.CartItems.FindOne(ctx, uow.Tx, itemID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ownedCart(ctx, uow, caller, item.CartID); err != nil {
		return nil, err
	}

	return item, nil
}
