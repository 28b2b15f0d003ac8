package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/domain"
	"github.com/Shnikita2023/OnlineShop/pkg/mylogger"
	"github.com/Shnikita2023/OnlineShop/pkg/outbox"
)

// Registry carries one repository per entity type. Repositories are
// stateless; the transaction travels separately as UnitOfWork.Tx.
type Registry struct {
	Categories *Repo[domain.Category]
	Products   *ProductRepository
	Carts      *Repo[domain.Cart]
	CartItems  *Repo[domain.CartItem]
	Orders     *Repo[domain.Order]
	OrderItems *Repo[domain.OrderItem]
	Outbox     *outbox.Repository
}

// UnitOfWork is one transactional scope: every repository call made with
// Tx commits or rolls back as a group.
type UnitOfWork struct {
	*Registry
	Tx pgx.Tx
}

// Manager opens UnitOfWork scopes on the shared pool.
type Manager struct {
	pool   *pgxpool.Pool
	repos  *Registry
	logger *zap.Logger
	tracer trace.Tracer
}

func NewRegistry(logger *zap.Logger, eventsTopic string) *Registry {
	return &Registry{
		Categories: NewCategoryRepo(logger),
		Products:   NewProductRepository(logger),
		Carts:      NewCartRepo(logger),
		CartItems:  NewCartItemRepo(logger),
		Orders:     NewOrderRepo(logger),
		OrderItems: NewOrderItemRepo(logger),
		Outbox:     outbox.NewRepository(logger, eventsTopic),
	}
}

func NewManager(pool *pgxpool.Pool, repos *Registry, logger *zap.Logger) *Manager {
	return &Manager{
		pool:   pool,
		repos:  repos,
		logger: logger,
		tracer: otel.Tracer("repository/uow"),
	}
}

// Do runs fn inside a fresh transaction. Any error from fn aborts the
// whole scope; the deferred rollback is a no-op after a successful
// commit. The connection goes back to the pool exactly once.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, uow *UnitOfWork) error) error {
	ctx, span := m.tracer.Start(ctx, "UnitOfWork.Do")
	defer span.End()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		mylogger.Error(
			ctx,
			m.logger,
			"Failed to begin transaction",
			zap.Error(err),
		)

		return fmt.Errorf("begin transaction: %w", translate(err))
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Warn(
				cleanupCtx,
				m.logger,
				"Failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	if err := fn(ctx, &UnitOfWork{Registry: m.repos, Tx: tx}); err != nil {
		span.RecordError(err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)

		mylogger.Error(
			ctx,
			m.logger,
			"Failed to commit transaction",
			zap.Error(err),
		)

		return fmt.Errorf("commit transaction: %w", translate(err))
	}

	return nil
}
