package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/callbroker/callbroker/internal/account"
	"github.com/callbroker/callbroker/internal/api"
	"github.com/callbroker/callbroker/internal/config"
	"github.com/callbroker/callbroker/internal/database"
	"github.com/callbroker/callbroker/internal/emergency"
	"github.com/callbroker/callbroker/internal/metrics"
	"github.com/callbroker/callbroker/internal/provider"
	"github.com/callbroker/callbroker/internal/resolve"
	sipprovider "github.com/callbroker/callbroker/internal/sip"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Configure structured logging.
	logger := slog.New(cfg.SlogHandler(os.Stdout))
	slog.SetDefault(logger)

	slog.Info("starting callbroker",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"attempt_timeout", cfg.AttemptTimeout,
	)

	// Open database and run migrations.
	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	accountRepo := database.NewAccountRepository(db)
	gatewayRepo := database.NewGatewayRepository(db)
	sysConfigRepo := database.NewSystemConfigRepository(db)
	recordRepo := database.NewCallRecordRepository(db)
	adminRepo := database.NewAdminUserRepository(db)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	// Routing snapshot over the account table.
	registry := account.NewRegistry(accountRepo, sysConfigRepo, logger)
	if err := registry.Reload(startCtx); err != nil {
		slog.Error("failed to load account snapshot", "error", err)
		os.Exit(1)
	}

	// SIP stack shared by all gateway providers.
	stack, err := sipprovider.NewStack(cfg.SIPHostname, logger)
	if err != nil {
		slog.Error("failed to create sip stack", "error", err)
		os.Exit(1)
	}
	defer stack.Close()

	providers := provider.NewRegistry(logger)

	classifier := &swappableClassifier{}

	reloader := &runtimeReloader{
		registry:   registry,
		classifier: classifier,
		sysConfig:  sysConfigRepo,
		gateways:   gatewayRepo,
		providers:  providers,
		stack:      stack,
		region:     cfg.EmergencyRegion,
		logger:     logger,
	}
	if err := reloader.reloadEmergency(startCtx); err != nil {
		slog.Error("failed to load emergency numbers", "error", err)
		os.Exit(1)
	}
	if err := reloader.bindProviders(startCtx); err != nil {
		slog.Error("failed to bind gateway providers", "error", err)
		os.Exit(1)
	}

	builder := resolve.NewBuilder(registry, classifier, logger)
	manager := resolve.NewManager(builder, registry, providers, recordRepo,
		clock.New(), cfg.AttemptTimeout, logger)

	// Metrics scraped through /metrics.
	collector := metrics.NewCollector(manager, providers, registry, recordRepo, time.Now())
	prometheus.MustRegister(collector)

	jwtSecret, err := cfg.JWTSecretBytes()
	if err != nil {
		slog.Error("failed to decode jwt secret", "error", err)
		os.Exit(1)
	}

	handler := api.NewServer(api.Deps{
		Config:       cfg,
		JWTSecret:    jwtSecret,
		Accounts:     accountRepo,
		Gateways:     gatewayRepo,
		SystemConfig: sysConfigRepo,
		Records:      recordRepo,
		AdminUsers:   adminRepo,
		Calls:        manager,
		Providers:    providers,
		Reloader:     reloader,
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt or server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Graceful shutdown with timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("callbroker stopped")
}

// runtimeReloader re-reads routing state from the database: the account
// snapshot, the emergency number set, and the gateway provider bindings.
// The API invokes it after mutations and on POST /system/reload.
type runtimeReloader struct {
	registry   *account.Registry
	classifier *swappableClassifier
	sysConfig  database.SystemConfigRepository
	gateways   database.GatewayRepository
	providers  *provider.Registry
	stack      *sipprovider.Stack
	region     string
	logger     *slog.Logger
}

func (r *runtimeReloader) Reload(ctx context.Context) error {
	if err := r.registry.Reload(ctx); err != nil {
		return err
	}
	if err := r.reloadEmergency(ctx); err != nil {
		return err
	}
	return r.bindProviders(ctx)
}

// reloadEmergency rebuilds the emergency classifier with the configured
// extra numbers.
func (r *runtimeReloader) reloadEmergency(ctx context.Context) error {
	raw, err := r.sysConfig.Get(ctx, database.ConfigKeyEmergencyNumbers)
	if err != nil {
		return fmt.Errorf("loading emergency numbers: %w", err)
	}
	extra := decodeStringArray(raw)
	r.classifier.swap(emergency.NewClassifier(r.region, extra, r.logger))
	return nil
}

// bindProviders registers a SIP provider for every enabled gateway and
// drops bindings whose gateway is gone or disabled. In-flight attempts keep
// the provider instance they were dispatched on.
func (r *runtimeReloader) bindProviders(ctx context.Context) error {
	enabled, err := r.gateways.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("loading gateways: %w", err)
	}

	want := make(map[string]bool, len(enabled))
	for _, gw := range enabled {
		want[gw.Component] = true
		r.providers.Register(gw.Component, sipprovider.NewProvider(gw, r.stack, r.logger))
	}
	for _, component := range r.providers.Components() {
		if !want[component] {
			r.providers.Unregister(component)
		}
	}

	slog.Info("gateway providers bound", "count", len(enabled))
	return nil
}

// swappableClassifier routes emergency classification to the most recently
// loaded classifier so number changes apply without a restart.
type swappableClassifier struct {
	mu    sync.RWMutex
	inner *emergency.Classifier
}

func (s *swappableClassifier) IsEmergencyNumber(h resolve.Handle) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.inner == nil {
		return false
	}
	return s.inner.IsEmergencyNumber(h)
}

func (s *swappableClassifier) swap(c *emergency.Classifier) {
	s.mu.Lock()
	s.inner = c
	s.mu.Unlock()
}

// decodeStringArray parses the JSON array storage form of a string list.
func decodeStringArray(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		slog.Warn("ignoring malformed emergency number list", "error", err)
		return nil
	}
	return values
}
