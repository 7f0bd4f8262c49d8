// Package app wires configuration into stores, services and controllers.
// It is shared by the server and the offline audit command.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"potluck/config"
	"potluck/internal/adapters/archive"
	"potluck/internal/domain"
	"potluck/internal/metrics"
	"potluck/internal/services"
	"potluck/internal/store"
	"potluck/internal/store/memory"
	"potluck/internal/store/postgres"
	"potluck/internal/store/redisstore"
)

// NewRedisClient returns a client for the configured Redis server.
func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// OpenBackend connects the document backend selected by STORE_DRIVER.
// Transaction retries are counted on rec when it is non-nil.
func OpenBackend(ctx context.Context, cfg *config.Config, rec *metrics.Recorder, logger *slog.Logger) (store.Backend, error) {
	opts := store.Options{MaxRetries: cfg.TxMaxRetries}
	if rec != nil {
		opts.OnRetry = rec.TransactionRetried
	}

	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("using the in-memory store; data is lost on restart")
		return memory.NewBackend(opts), nil
	case config.StoreRedis:
		b := redisstore.NewBackend(NewRedisClient(cfg), "", opts)
		if err := b.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		logger.Info("connected to redis store", "addr", cfg.RedisAddr, "db", cfg.RedisDB)
		return b, nil
	case config.StorePostgres:
		db, err := postgres.Open(ctx, cfg.DBDriver, cfg.DBUrl)
		if err != nil {
			return nil, err
		}
		b := postgres.NewBackend(db, cfg.DBUrl, opts)
		if err := b.EnsureSchema(ctx); err != nil {
			_ = b.Close()
			return nil, err
		}
		logger.Info("connected to postgres store", "driver", cfg.DBDriver)
		return b, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewArchiver returns the purge archive selected by ARCHIVE_DRIVER, or nil
// when purged events are not archived.
func NewArchiver(ctx context.Context, cfg *config.Config) (domain.EventArchiver, error) {
	if cfg.ArchiveDriver != "s3" {
		return nil, nil
	}
	a, err := archive.NewS3Archiver(ctx, archive.Config{
		Bucket:          cfg.Archive.Bucket,
		Prefix:          cfg.Archive.Prefix,
		Region:          cfg.Archive.Region,
		Endpoint:        cfg.Archive.Endpoint,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		PathStyle:       cfg.Archive.PathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 archive: %w", err)
	}
	return a, nil
}

// Services holds every domain service over one entity store.
type Services struct {
	Events       domain.EventService
	Items        domain.ItemService
	Reservations domain.ReservationService
	Participants domain.ParticipantService
	Purge        domain.PurgeService
	Validator    domain.Validator
}

// NewServices builds the services. archiver and rec may be nil.
func NewServices(es domain.EventStore, archiver domain.EventArchiver, cfg *config.Config, rec domain.MetricsRecorder, logger *slog.Logger) *Services {
	participants := services.NewParticipantService(es, rec, cfg.RequestTimeout)
	return &Services{
		Events:       services.NewEventService(es, rec, logger, cfg.RequestTimeout),
		Items:        services.NewItemService(es, rec, cfg.DefaultUserItemLimit, cfg.RequestTimeout),
		Reservations: services.NewReservationService(es, participants, rec, logger, cfg.RequestTimeout),
		Participants: participants,
		Purge:        services.NewPurgeService(es, archiver, cfg.ProtectedUserIDs, rec, logger),
		Validator:    services.NewValidator(es, rec, logger),
	}
}
