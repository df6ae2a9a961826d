package service

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const availabilityCachePattern = "availability:*"

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pattern string) error
}

func publishEvent(ctx context.Context, events eventPublisher, logger *zap.Logger, routingKey string, payload any) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, routingKey, payload); err != nil {
		logger.Warn("publish event failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}

func invalidateAvailability(ctx context.Context, cache cacheInvalidator, logger *zap.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Invalidate(ctx, availabilityCachePattern); err != nil {
		logger.Warn("invalidate availability cache failed", zap.Error(err))
	}
}
