package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"searchkit/sessionclient/internal/audit"
	"searchkit/sessionclient/internal/authapi"
	"searchkit/sessionclient/internal/config"
	"searchkit/sessionclient/internal/metrics"
	"searchkit/sessionclient/internal/notify"
	"searchkit/sessionclient/internal/session"
	"searchkit/sessionclient/internal/store"
)

// App holds a ready session manager and the resources behind it.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	client   *authapi.Client
	manager  *session.Manager
	registry *prometheus.Registry
	closers  []func() error
}

// New wires the configured store, auth client and manager. Notifications go
// to the application log and to sink, if given.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, sink notify.Sink) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{cfg: cfg, log: logger, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	st, closer, err := OpenStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		a.closers = append(a.closers, closer)
	}

	a.client, err = NewClient(cfg.AuthAPI)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.manager, err = session.New(st, a.client, session.Options{
		Sink:    notify.Multi(notify.NewLog(logger), sink),
		Audit:   audit.NewLogger(cfg.AuditLogFile),
		Metrics: metrics.NewSession(a.registry),
		Logger:  logger,
	})
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("create session manager: %w", err)
	}
	return a, nil
}

func (a *App) Manager() *session.Manager { return a.manager }

func (a *App) Client() *authapi.Client { return a.client }

// Watch runs periodic token checks until ctx is done. When METRICS_ADDR is
// set the manager metrics are served for the duration.
func (a *App) Watch(ctx context.Context) error {
	if a.cfg.MetricsAddr == "" {
		a.manager.Watch(ctx, a.cfg.WatchInterval)
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	srv := &http.Server{
		Addr:              a.cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("metrics server starting", "addr", a.cfg.MetricsAddr)
		errCh <- srv.ListenAndServe()
	}()

	watchDone := make(chan struct{})
	go func() {
		a.manager.Watch(ctx, a.cfg.WatchInterval)
		close(watchDone)
	}()

	select {
	case <-watchDone:
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	case err := <-errCh:
		cancel()
		<-watchDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server exited: %w", err)
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewClient builds the auth API client with the configured timeout.
func NewClient(cfg config.AuthAPIConfig) (*authapi.Client, error) {
	client, err := authapi.NewClient(cfg.URL, &http.Client{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create auth api client: %w", err)
	}
	return client, nil
}

// OpenStore opens the configured session store backend. The returned closer
// is nil for backends that hold no connection.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (store.Store, func() error, error) {
	switch cfg.Backend {
	case config.StoreMemory:
		return store.NewMemory(), nil, nil
	case config.StoreFile:
		st, err := store.NewFile(cfg.StateFile)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		return st, nil, nil
	case config.StoreEncrypted:
		st, err := store.NewEncryptedFile(cfg.StateFile, cfg.EncryptionKey)
		if err != nil {
			return nil, nil, fmt.Errorf("open encrypted store: %w", err)
		}
		return st, nil, nil
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		st, err := store.NewPostgres(ctx, db, cfg.KeyPrefix)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("create postgres store: %w", err)
		}
		return st, db.Close, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		st, err := store.NewRedis(client, cfg.KeyPrefix)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("create redis store: %w", err)
		}
		return st, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", cfg.Backend)
	}
}
