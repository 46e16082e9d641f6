package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/garage-inventory/internal/alerts"
	"github.com/odyssey-erp/garage-inventory/internal/catalog"
	"github.com/odyssey-erp/garage-inventory/internal/counting"
	"github.com/odyssey-erp/garage-inventory/internal/inventory"
	"github.com/odyssey-erp/garage-inventory/internal/locations"
	"github.com/odyssey-erp/garage-inventory/internal/observability"
	"github.com/odyssey-erp/garage-inventory/internal/platform/cache"
	"github.com/odyssey-erp/garage-inventory/internal/shared"
)

// Services is the wired domain layer shared by the API, the worker and stockctl.
type Services struct {
	Catalog   *catalog.Service
	Locations *locations.Service
	Inventory *inventory.Service
	Counting  *counting.Service
	Alerts    *alerts.Service

	redis *redis.Client
}

// Close releases the Redis connection used by the lock backend.
func (s *Services) Close() error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

// BuildServices wires every domain service on top of pool.
// metrics may be nil.
func BuildServices(ctx context.Context, cfg *Config, pool *pgxpool.Pool, logger *slog.Logger, metrics *observability.Metrics) (*Services, error) {
	s := &Services{}
	locker, err := s.newLocker(ctx, cfg)
	if err != nil {
		return nil, err
	}

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	s.Catalog = catalog.NewService(catalog.NewRepository(pool), auditLogger, logger)
	s.Locations = locations.NewService(locations.NewRepository(pool))

	invOpts := []inventory.Option{
		inventory.WithAudit(auditLogger),
		inventory.WithIdempotency(idempotencyStore),
		inventory.WithLocations(s.Locations),
	}
	if metrics != nil {
		invOpts = append(invOpts, inventory.WithMetrics(metrics))
	}
	s.Inventory = inventory.NewService(inventory.NewRepository(pool), s.Catalog, locker, logger, inventory.ServiceConfig{
		DefaultMethod:     catalog.CostingMethod(cfg.CostingMethod),
		LockRetryAttempts: cfg.LockRetryAttempts,
		LockRetryBackoff:  cfg.LockRetryBackoff,
	}, invOpts...)

	s.Counting = counting.NewService(counting.NewRepository(pool), s.Inventory, locker, logger,
		counting.WithApprovals(approvalRecorder),
		counting.WithAudit(auditLogger),
	)

	var alertOpts []alerts.Option
	if metrics != nil {
		alertOpts = append(alertOpts, alerts.WithMetrics(metrics))
	}
	s.Alerts = alerts.NewService(alerts.NewRepository(pool), s.Inventory, s.Catalog, logger, alerts.Config{
		ExpiryWindow: cfg.AlertExpiryWindow,
	}, alertOpts...)
	s.Inventory.SetObserver(s.Alerts)

	return s, nil
}

func (s *Services) newLocker(ctx context.Context, cfg *Config) (shared.Locker, error) {
	if cfg.LockBackend != "redis" {
		return shared.NewLocalLocker(cfg.LockTimeout), nil
	}
	client, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("app: lock backend: %w", err)
	}
	s.redis = client
	return shared.NewRedisLocker(client, cfg.LockTimeout, cfg.LockTTL), nil
}
