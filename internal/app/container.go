package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/catalog"
	"github.com/odyssey-erp/stockledger/internal/documents"
	"github.com/odyssey-erp/stockledger/internal/integration"
	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/locations"
	"github.com/odyssey-erp/stockledger/internal/observability"
	"github.com/odyssey-erp/stockledger/internal/platform/cache"
	"github.com/odyssey-erp/stockledger/internal/platform/db"
	"github.com/odyssey-erp/stockledger/internal/sequence"
	"github.com/odyssey-erp/stockledger/internal/shared"
	"github.com/odyssey-erp/stockledger/jobs"
)

// auditRecorder is satisfied by shared.AuditLogger and shared.SlogAuditLogger.
type auditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyStore is satisfied by both idempotency store implementations.
type IdempotencyStore interface {
	documents.IdempotencyPort
	jobs.KeyCleaner
}

// Container holds the wired services shared by the server and the worker.
type Container struct {
	Config  *Config
	Logger  *slog.Logger
	Metrics *observability.Metrics

	Pool  *pgxpool.Pool
	Redis redis.UniversalClient

	Locations   *locations.Service
	Inventory   *inventory.Store
	Documents   *documents.Service
	Checkout    *integration.Checkout
	POS         *integration.POS
	Idempotency IdempotencyStore
	Jobs        *asynq.Client

	closers []func() error
}

// Build connects the configured backends and wires every service.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	if cfg.StorageDriver == DriverPostgres {
		pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
		if err != nil {
			return nil, err
		}
		c.Pool = pool
		c.closers = append(c.closers, func() error { pool.Close(); return nil })
	}
	if cfg.UsesRedis() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		c.Redis = client
		c.closers = append(c.closers, client.Close)
	}
	if cfg.JobsEnabled {
		c.Jobs = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		c.closers = append(c.closers, c.Jobs.Close)
	}

	c.wire(cfg, logger)
	return c, nil
}

func (c *Container) wire(cfg *Config, logger *slog.Logger) {
	var (
		audit    auditRecorder
		locRepo  locations.Repository
		stock    inventory.RepositoryPort
		docRepo  documents.Repository
		products catalog.ProductChecker
	)
	if c.Pool != nil {
		audit = shared.NewAuditLogger(c.Pool)
		c.Idempotency = shared.NewIdempotencyStore(c.Pool)
		locRepo = locations.NewRepository(c.Pool)
		stock = inventory.NewRepository(c.Pool)
		docRepo = documents.NewPostgresRepository(c.Pool)
		products = catalog.NewPostgresChecker(c.Pool)
		if c.Redis != nil && cfg.CatalogCacheTTL > 0 {
			products = catalog.NewCachedChecker(products, c.Redis, cfg.CatalogCacheTTL)
		}
	} else {
		audit = shared.NewSlogAuditLogger(logger)
		c.Idempotency = shared.NewMemoryIdempotencyStore()
		locRepo = locations.NewMemoryRepository()
		memStock := inventory.NewMemoryRepository()
		stock = memStock
		docRepo = documents.NewMemoryRepository(memStock)
		products = &catalog.MemoryChecker{AllowAll: true}
	}

	var locker inventory.Locker
	if cfg.LockDriver == DriverRedis && c.Redis != nil {
		locker = inventory.NewRedisLocker(c.Redis, cfg.LockTimeout, c.Metrics)
	} else {
		locker = inventory.NewLocalLocker(cfg.LockTimeout, c.Metrics)
	}

	var seq sequence.Sequencer
	switch {
	case cfg.SequenceDriver == DriverRedis && c.Redis != nil:
		seq = sequence.NewRedisSequencer(c.Redis)
	case cfg.SequenceDriver == DriverPostgres && c.Pool != nil:
		seq = sequence.NewPostgresSequencer(c.Pool)
	default:
		seq = sequence.NewMemorySequencer()
	}

	var hook documents.ConfirmHook
	if c.Jobs != nil {
		hook = jobs.NewLowStockNotifier(c.Jobs, cfg.LowStockDedupWindow)
	}

	c.Locations = locations.NewService(locRepo, nil, audit, logger)
	c.Inventory = inventory.NewStore(stock, locker, audit, logger)
	c.Documents = documents.NewService(docRepo, documents.Dependencies{
		Locker:      locker,
		Stock:       c.Inventory,
		Locations:   c.Locations,
		Products:    products,
		Sequencer:   seq,
		Idempotency: c.Idempotency,
		Audit:       audit,
		Observer:    c.Metrics,
		Hook:        hook,
		Logger:      logger,
	})
	c.Locations.SetDraftChecker(c.Documents)
	c.Checkout = integration.NewCheckout(c.Inventory, c.Documents, logger)
	c.POS = integration.NewPOS(c.Inventory, c.Documents, logger)
}

// Close releases backends in reverse order of acquisition.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
