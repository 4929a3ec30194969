package bootstrap

import (
	"fmt"

	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/report"
	"github.com/go-authgate/qbgate/internal/version"

	"go.uber.org/zap"
)

// initializeReporter always logs terminal errors and also sends them to
// Sentry when SENTRY_DSN is set. The Sentry reporter is returned for flushing.
func initializeReporter(
	cfg *config.Config,
	log *zap.Logger,
) (report.Reporter, *report.SentryReporter, error) {
	logReporter := report.NewLogReporter(log)
	if cfg.SentryDSN == "" {
		return logReporter, nil, nil
	}

	sentryReporter, err := report.NewSentryReporter(cfg.SentryDSN, cfg.SentryEnvironment, version.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}
	log.Info("sentry error reporting enabled", zap.String("environment", cfg.SentryEnvironment))
	return report.Multi{logReporter, sentryReporter}, sentryReporter, nil
}

func initializeMetrics(cfg *config.Config, log *zap.Logger) metrics.Recorder {
	m := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Info("prometheus metrics initialized")
	} else {
		log.Info("metrics disabled (using noop implementation)")
	}
	return m
}
