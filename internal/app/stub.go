package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"searchkit/sessionclient/internal/audit"
	"searchkit/sessionclient/internal/authstub"
	"searchkit/sessionclient/internal/config"
	"searchkit/sessionclient/internal/metrics"
)

// Stub runs the local auth service used for development and tests.
type Stub struct {
	cfg    config.StubConfig
	log    *slog.Logger
	server *authstub.Server
}

func NewStub(cfg config.Config, logger *slog.Logger) (*Stub, error) {
	if logger == nil {
		logger = slog.Default()
	}

	users, err := authstub.NewFileUserStore(cfg.Stub.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("create user store: %w", err)
	}
	svc, err := authstub.NewService(users, authstub.ServiceConfig{TokenTTL: cfg.Stub.TokenTTL})
	if err != nil {
		return nil, fmt.Errorf("create stub auth service: %w", err)
	}

	if _, err := users.GetByUsername(cfg.Stub.BootstrapUsername); errors.Is(err, authstub.ErrUserNotFound) {
		if err := svc.EnsureUser(authstub.User{
			ID:        1,
			Username:  cfg.Stub.BootstrapUsername,
			FirstName: cfg.Stub.BootstrapUsername,
		}, cfg.Stub.BootstrapPassword); err != nil {
			return nil, fmt.Errorf("create bootstrap user: %w", err)
		}
		logger.Info("bootstrap stub user created", "username", cfg.Stub.BootstrapUsername)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	return &Stub{
		cfg: cfg.Stub,
		log: logger,
		server: authstub.NewServer(cfg.Stub.Addr, authstub.Deps{
			Auth:     svc,
			Audit:    audit.NewLogger(cfg.AuditLogFile),
			Metrics:  metrics.NewHTTP(reg),
			Gatherer: reg,
			Logger:   logger,
		}),
	}, nil
}

func (s *Stub) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("stub auth service starting", "addr", s.cfg.Addr)
		errCh <- s.server.Start()
	}()

	select {
	case <-ctx.Done():
		s.log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server exited: %w", err)
	}
}
