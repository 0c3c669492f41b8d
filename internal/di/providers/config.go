// Package providers contains dependency injection providers for the storefront server.
package providers

import (
	"github.com/samber/do/v2"

	"github.com/stonewallbooks/storefront/internal/config"
	"github.com/stonewallbooks/storefront/internal/logger"
	"github.com/stonewallbooks/storefront/internal/metrics"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		Format:      cfg.Logger.Format,
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Info("Starting storefront server",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"backend", cfg.Storage.Backend,
		"app_id", cfg.Storage.AppID,
		"strict_writes", cfg.Sync.StrictWrites,
	)

	return log, nil
}

// ProvideMetrics provides the prometheus collectors.
func ProvideMetrics(_ do.Injector) (*metrics.Metrics, error) {
	return metrics.New(), nil
}
