package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/internal/repository"
)

type CategoryService interface {
	Create(ctx context.Context, name string) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
}

type categoryService struct {
	uow    *repository.Manager
	logger *zap.Logger
	tracer trace.Tracer
}

func NewCategoryService(uow *repository.Manager, logger *zap.Logger) CategoryService {
	return &categoryService{
		uow:    uow,
		logger: logger,
		tracer: otel.Tracer("service/category"),
	}
}

func (s *categoryService) Create(ctx context.Context, name string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "CategoryService.Create")
	defer span.End()

	span.SetAttributes(attribute.String("name", name))

	var id int64
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		id, err = uow.Categories.AddOne(ctx, uow.Tx, &domain.Category{Name: name})
		return err
	})

	return id, err
}

func (s *categoryService) Get(ctx context.Context, id int64) (*domain.Category, error) {
	ctx, span := s.tracer.Start(ctx, "CategoryService.Get")
	defer span.End()

	span.SetAttributes(attribute.Int64("id", id))

	var category *domain.Category
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		category, err = uow.Categories.FindOne(ctx, uow.Tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	return category, nil
}

func (s *categoryService) List(ctx context.Context) ([]domain.Category, error) {
	ctx, span := s.tracer.Start(ctx, "CategoryService.List")
	defer span.End()

	var categories []domain.Category
	err := s.uow.Do(ctx, func(ctx context.Context, uow *repository.UnitOfWork) error {
		var err error
		categories, err = uow.Categories.FindAll(ctx, uow.Tx)
		return err
	})

	return categories, err
}
