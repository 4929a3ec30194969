package bootstrap

import (
	"github.com/go-authgate/qbgate/internal/config"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/report"
	"github.com/go-authgate/qbgate/internal/services"
	"github.com/go-authgate/qbgate/internal/state"
	"github.com/go-authgate/qbgate/internal/store"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// initializeServices creates the token lifecycle and customer services
func initializeServices(
	cfg *config.Config,
	tokenStore store.TokenStore,
	stateStore state.Store,
	clock clockwork.Clock,
	reporter report.Reporter,
	log *zap.Logger,
	m metrics.Recorder,
) (*services.TokenService, *services.CustomerService, error) {
	provider, err := initializeOAuthProvider(cfg)
	if err != nil {
		return nil, nil, err
	}

	qb, err := initializeQuickBooksClient(cfg, m)
	if err != nil {
		return nil, nil, err
	}

	tokens := services.NewTokenService(
		tokenStore,
		stateStore,
		provider,
		clock,
		reporter,
		log,
		m,
		services.TokenServiceOptions{
			RefreshTimeout: cfg.RefreshTimeout,
			StateRequired:  cfg.StateRequired,
			StoreKey:       cfg.TokenDocumentPath,
		},
	)
	customers := services.NewCustomerService(tokens, qb, clock, cfg.CustomerLookback, reporter, log)
	return tokens, customers, nil
}
