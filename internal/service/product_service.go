package service

import (
	"context"
	"encoding/json"
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
	"github.com/Shnikita2023/OnlineShop/pkg/outbox"
)

type CreateProductInput struct {
	CategoryID  int64  `validate:"required,gt=0"`
	Name        string `validate:"required"`
	Description string
	Price       decimal.Decimal
	Discount    decimal.Decimal
	Quantity    int64 `validate:"gte=0"`
}

// ProductPatch carries the optional fields of a partial update. Quantity
// changes never touch reserved_quantity; only Reserve/Release do that.
type ProductPatch struct {
	CategoryID  *int64
	Name        *string
	Description *string
	Price       *decimal.Decimal
	Quantity    *int64
}

type ProductService interface {
	Create(ctx context.Context, in *CreateProductInput) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	ListDiscounted(ctx context.Context) ([]domain.Product, error)
	UpdatePartial(ctx context.Context, id int64, patch *ProductPatch) (*domain.Product, error)
	Delete(ctx context.Context, id int64) (int64, error)
	Reserve(ctx context.Context, productID, quantity int64) error
	Release(ctx context.Context, productID, quantity int64) error
}

type productService struct {
	uow      *repository.Manager
	logger   *zap.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewProductService(uow *repository.Manager, logger *zap.Logger) ProductService {
	return &productService{
		uow:      uow,
		logger:   logger,
		validate: validator.New(),
		tracer:   otel.Tracer("service/product"),
	}
}

func (s *productService) Create(ctx context.Context, in *CreateProductInput) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Create")
	defer span.End()

	span.SetAttributes(attribute.String("name", in.Name))

	if err := validateStruct(s.validate, in); err != nil {
		return 0, err
	}
	if in.Price.IsNegative() {
		return 0, fmt.Errorf("price must not be negative")
	}
	if in.Discount.IsNegative() || in.Discount.GreaterThan(decimal.NewFromInt(1)) {
		return 0, fmt.Errorf("discount must be between 0 and 1")
	}

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		if _, err := uow.Categories.FindOne(ctx, uow.Tx, in.CategoryID); err != nil {
			return fmt.Errorf("category check: %w", err)
		}

		product := &domain.Product{
			CategoryID:  in.CategoryID,
			Name:        in.Name,
			Description: in.Description,
			// The stored price already reflects the discount; it is
			// computed exactly once, here.
			Price:    domain.EffectivePrice(in.Price, in.Discount),
			Discount: in.Discount,
			Quantity: in.Quantity,
		}

		var err error
		if id, err = uow.Products.AddOne(ctx, uow.Tx, product); err != nil {
			return err
		}

		return emitEvent(ctx, uow, "product", id, "ProductCreated", map[string]any{
			"product_id": id,
			"name":       in.Name,
		})
	})
	if err != nil {
		mylogger.Warn(
			ctx,
			s.logger,
			"Failed to create product",
			zap.String("name", in.Name),
			zap.Error(err),
		)

		return 0, err
	}

	return id, nil
}

func (s *productService) Get(ctx context.Context, id int64) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Get")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	var product *domain.Product
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		product, err = uow.Products.FindOne(ctx, uow.Tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (s *productService) List(ctx context.Context) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.List")
	defer span.End()

	var products []domain.Product
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		products, err = uow.Products.FindAll(ctx, uow.Tx)
		return err
	})

	return products, err
}

func (s *productService) ListDiscounted(ctx context.Context) ([]domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.ListDiscounted")
	defer span.End()

	var products []domain.Product
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		products, err = uow.Products.FindAllGreaterThan(ctx, uow.Tx, "discount", 0)
		return err
	})

	return products, err
}

func (s *productService) UpdatePartial(ctx context.Context, id int64, patch *ProductPatch) (*domain.Product, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.UpdatePartial")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	fields := map[string]any{}
	if patch.CategoryID != nil {
		fields["category_id"] = *patch.CategoryID
	}
	if patch.Name != nil {
		fields["name"] = *patch.Name
	}
	if patch.Description != nil {
		fields["description"] = *patch.Description
	}
	if patch.Price != nil {
		fields["price"] = *patch.Price
	}
	if patch.Quantity != nil {
		fields["quantity"] = *patch.Quantity
	}

	var product *domain.Product
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		product, err = uow.Products.UpdateOne(ctx, uow.Tx, id, fields)
		return err
	})
	if err != nil {
		return nil, err
	}

	return product, nil
}

func (s *productService) Delete(ctx context.Context, id int64) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "ProductService.Delete")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	var deletedID int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		deletedID, err = uow.Products.DeleteOne(ctx, uow.Tx, id)
		return err
	})

	return deletedID, err
}

// Reserve earmarks stock for a cart item. The refusal path leaves the
// product row untouched.
func (s *productService) Reserve(ctx context.Context, productID, quantity int64) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.Reserve")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("quantity", quantity),
	)

	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		return uow.Products.Reserve(ctx, uow.Tx, productID, quantity)
	})

	metrics.ReservationsTotal.WithLabelValues(reservationResult(err)).Inc()

	return err
}

func (s *productService) Release(ctx context.Context, productID, quantity int64) error {
	ctx, span := s.tracer.Start(ctx, "ProductService.Release")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("product_id", productID),
		attribute.Int64("quantity", quantity),
	)

	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}

	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		return uow.Products.Release(ctx, uow.Tx, productID, quantity)
	})
	if err == nil {
		metrics.ReleasesTotal.Inc()
	}

	return err
}

func reservationResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isInsufficientStock(err):
		return "insufficient"
	default:
		return "error"
	}
}

// emitEvent enqueues an outbox row inside the current scope; the worker
// publishes it after commit.
func emitEvent(ctx context.Context, uow *repository.UnitOfWork, aggregateType string, aggregateID int64, eventType string, payload map[string]any) error {
	envelope := map[string]any{
		"event":   eventType,
		"payload": payload,
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	return uow.Outbox.SaveEvent(ctx, uow.Tx, &outbox.Event{
		AggregateType: aggregateType,
		AggregateID:   fmt.Sprintf("%d", aggregateID),
		EventType:     eventType,
		Payload:       body,
	})
}
