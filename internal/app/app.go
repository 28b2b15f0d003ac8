package app

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/internal/cache"
	"github.com/Shnikita2023/OnlineShop/internal/repository"
	"github.com/Shnikita2023/OnlineShop/internal/service"
	"github.com/Shnikita2023/OnlineShop/pkg/config"
	"github.com/Shnikita2023/OnlineShop/pkg/outbox"
)

// App is the composition root: every service wired onto one pool, one
// flag store and one outbox registry.
type App struct {
	Repos      *repository.Registry
	UoW        *repository.Manager
	OrderFlags *cache.OrderFlags

	Categories service.CategoryService
	Products   service.ProductService
	Carts      service.CartService
	Orders     service.OrderService
}

func New(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *zap.Logger) *App {
	repos := repository.NewRegistry(logger, cfg.Kafka.Topic)
	uow := repository.NewManager(pool, repos, logger)
	flags := cache.NewOrderFlags(redisClient, logger)

	return &App{
		Repos:      repos,
		UoW:        uow,
		OrderFlags: flags,
		Categories: service.NewCategoryService(uow, logger),
		Products:   service.NewProductService(uow, logger),
		Carts:      service.NewCartService(uow, logger),
		Orders:     service.NewOrderService(uow, flags, logger),
	}
}

// OutboxProcessor builds the background publisher against the app's
// outbox repository.
func (a *App) OutboxProcessor(cfg *config.Config, pool *pgxpool.Pool, producer outbox.Producer, logger *zap.Logger) *outbox.Processor {
	return outbox.NewProcessor(
		pool,
		a.Repos.Outbox,
		producer,
		logger,
		cfg.Outbox.BatchSize,
		cfg.Outbox.Interval,
	)
}
