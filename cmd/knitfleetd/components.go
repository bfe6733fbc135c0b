package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opst/knitfleet/pkg/action"
	apientities "github.com/opst/knitfleet/pkg/api/types/entities"
	"github.com/opst/knitfleet/pkg/audit"
	auditpg "github.com/opst/knitfleet/pkg/audit/postgres"
	"github.com/opst/knitfleet/pkg/backend"
	"github.com/opst/knitfleet/pkg/backend/colo"
	"github.com/opst/knitfleet/pkg/backend/k8s"
	kdaemon "github.com/opst/knitfleet/pkg/configs/daemon"
	kpool "github.com/opst/knitfleet/pkg/conn/db/postgres/pool"
	"github.com/opst/knitfleet/pkg/domain"
	"github.com/opst/knitfleet/pkg/logs"
	"github.com/opst/knitfleet/pkg/metrics"
	"github.com/opst/knitfleet/pkg/store"
	"github.com/opst/knitfleet/pkg/store/memory"
	storepg "github.com/opst/knitfleet/pkg/store/postgres"
	"github.com/opst/knitfleet/pkg/utils/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// closers are called in reverse order on shutdown.
type closers []func()

func (c *closers) add(f func()) {
	*c = append(*c, f)
}

func (c closers) close() {
	for i := len(c) - 1; 0 <= i; i-- {
		c[i]()
	}
}

func connectPostgres(ctx context.Context, conf kdaemon.StoreConfig, logger *zap.Logger) (kpool.Pool, error) {
	backoff := retry.Limited(5, retry.ExponentialBackoff(time.Second, 2))
	return retry.Blocking(ctx, backoff, func() (kpool.Pool, error) {
		p, err := kpool.Connect(ctx, kpool.Config{
			URI: conf.URI, MaxConns: conf.MaxConns, ConnectTimeout: 10 * time.Second,
		})
		if err != nil {
			logger.Warn("can not connect to database. retrying.", zap.Error(err))
			return nil, errors.Join(retry.ErrRetry, err)
		}
		return p, nil
	})
}

// newStore builds the entity store, and the pool when the store is on PostgreSQL.
func newStore(ctx context.Context, conf kdaemon.StoreConfig, logger *zap.Logger) (store.Interface, kpool.Pool, error) {
	switch conf.Driver {
	case kdaemon.Postgres:
		pool, err := connectPostgres(ctx, conf, logger)
		if err != nil {
			return nil, nil, err
		}
		s := storepg.New(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, pool, nil
	default:
		return memory.New(), nil, nil
	}
}

// seed submits entities defined in files. Entities already stored are left as they are.
func seed(ctx context.Context, s store.Interface, files []string, logger *zap.Logger) error {
	for _, f := range files {
		entity, err := readEntity(f)
		if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		if err := s.Submit(ctx, entity); errors.Is(err, domain.ErrConflict) {
			logger.Info("entity is already stored", zap.String("file", f), zap.String("entity", entity.Name))
			continue
		} else if err != nil {
			return fmt.Errorf("%s: %w", f, err)
		}
		logger.Info(
			"entity is submitted",
			zap.String("file", f), zap.String("entity", entity.Name), zap.String("type", entity.Type.String()),
		)
	}
	return nil
}

func readEntity(file string) (*domain.Entity, error) {
	r, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	doc, err := apientities.Decode(r)
	if err != nil {
		return nil, err
	}
	return doc.Entity()
}

// newAuditQueue starts queue writing audit records into the configured sink.
func newAuditQueue(
	ctx context.Context, conf kdaemon.AuditConfig, pool kpool.Pool, m *metrics.Metrics, logger *zap.Logger,
) (*audit.Queue, error) {
	var w audit.Writer
	switch conf.Sink {
	case kdaemon.Postgres:
		pw := auditpg.New(pool)
		if err := pw.Migrate(ctx); err != nil {
			return nil, err
		}
		w = pw
	default:
		w = audit.NewLogWriter(logger)
	}
	return audit.NewQueue(
		ctx, w, conf.QueueSize,
		audit.WithLogger(logger),
		audit.WithOnDrop(func(audit.Record) { m.AuditDropped() }),
		audit.WithRetry(3, 500*time.Millisecond),
	), nil
}

func newLocker(ctx context.Context, conf kdaemon.LockConfig, logger *zap.Logger) (action.Locker, func(), error) {
	if conf.Driver != kdaemon.Redis {
		return action.NewKeyedMutex(), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: conf.Addr, Password: conf.Password, DB: conf.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("redis %s: %w", conf.Addr, err)
	}
	locker := action.NewRedisLocker(
		client, action.WithTTL(conf.TTL), action.WithLockerLogger(logger),
	)
	return locker, func() { client.Close() }, nil
}

// colos are execution backends and log resolvers per colo.
type colos struct {
	router   *colo.Router
	logs     logs.ByColo
	timeouts map[string]time.Duration
}

func (c colos) timeout(name string) time.Duration {
	return c.timeouts[name]
}

func newColos(confs []kdaemon.ColoConfig) (colos, error) {
	backends := map[string]backend.Interface{}
	ret := colos{logs: logs.ByColo{}, timeouts: map[string]time.Duration{}}
	for _, c := range confs {
		cs, err := k8s.Connect(c.Kubeconfig, c.Context)
		if err != nil {
			return colos{}, fmt.Errorf("colo %s: %w", c.Name, err)
		}
		backends[c.Name] = k8s.New(k8s.WrapK8sClient(cs), c.Namespace, c.Cluster)
		ret.timeouts[c.Name] = c.Timeout

		if c.LogTemplate != "" {
			r, err := logs.NewTemplateResolver(c.LogTemplate)
			if err != nil {
				return colos{}, fmt.Errorf("colo %s: %w", c.Name, err)
			}
			ret.logs[c.Name] = r
		}
	}
	ret.router = colo.New(backends, colo.WithTimeouts(ret.timeouts))
	return ret, nil
}
