package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Shnikita2023/OnlineShop/pkg/metrics"
	"github.com/Shnikita2023/OnlineShop/pkg/mylogger"
)

type Producer interface {
	ProduceMessage(ctx context.Context, topic string, message interface{}) error
}

// Processor drains the outbox table on a ticker and publishes pending
// events to the broker.
type Processor struct {
	pool      *pgxpool.Pool
	repo      *Repository
	producer  Producer
	logger    *zap.Logger
	batchSize int
	interval  time.Duration
	tracer    trace.Tracer
}

func NewProcessor(
	pool *pgxpool.Pool,
	repo *Repository,
	producer Producer,
	logger *zap.Logger,
	batchSize int,
	interval time.Duration,
) *Processor {
	if batchSize <= 0 {
		batchSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	return &Processor{
		pool:      pool,
		repo:      repo,
		producer:  producer,
		logger:    logger,
		batchSize: batchSize,
		interval:  interval,
		tracer:    otel.Tracer("outbox/worker"),
	}
}

func (p *Processor) Start(ctx context.Context) {
	mylogger.Info(ctx, p.logger, "Starting outbox processor")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mylogger.Info(ctx, p.logger, "Outbox processor stopping")
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Error processing outbox batch",
					zap.Error(err),
				)
			}
		}
	}
}

func (p *Processor) processBatch(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "OutboxProcessor.processBatch")
	defer span.End()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)

		if err := tx.Rollback(cleanupCtx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			mylogger.Error(
				cleanupCtx,
				p.logger,
				"Outbox worker failed to rollback transaction",
				zap.Error(err),
			)
		}
	}()

	events, err := p.repo.UnpublishedBatch(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}

	if len(events) == 0 {
		return nil
	}

	mylogger.Debug(
		ctx,
		p.logger,
		"Processing outbox events",
		zap.Int("count", len(events)),
	)

	for _, event := range events {
		var payload map[string]any
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			mylogger.Error(
				ctx,
				p.logger,
				"Failed to unmarshal event payload",
				zap.Int64("id", event.ID),
				zap.Error(err),
			)

			_ = p.repo.MarkFailed(ctx, tx, event.ID, err.Error())
			metrics.OutboxFailedTotal.Inc()
			continue
		}

		payload["event_id"] = event.ID

		if err := p.producer.ProduceMessage(ctx, event.Topic, payload); err != nil {
			mylogger.Error(
				ctx,
				p.logger,
				"Failed to produce outbox message",
				zap.Int64("id", event.ID),
				zap.String("topic", event.Topic),
				zap.Error(err),
			)

			if dbErr := p.repo.MarkFailed(ctx, tx, event.ID, err.Error()); dbErr != nil {
				mylogger.Error(
					ctx,
					p.logger,
					"Failed to mark event failed",
					zap.Int64("id", event.ID),
					zap.Error(dbErr),
				)
			}
			metrics.OutboxFailedTotal.Inc()

			continue
		}

		if dbErr := p.repo.MarkPublished(ctx, tx, event.ID); dbErr != nil {
			mylogger.Error(
				ctx,
				p.logger,
				"Failed to mark event published",
				zap.Int64("id", event.ID),
				zap.Error(dbErr),
			)

			return dbErr
		}
		metrics.OutboxPublishedTotal.Inc()
	}

	return tx.Commit(ctx)
}
