package bootstrap

import (
	"github.com/go-authgate/qbgate/internal/handlers"
	"github.com/go-authgate/qbgate/internal/services"

	"go.uber.org/zap"
)

// handlerSet holds all HTTP handlers
type handlerSet struct {
	qb *handlers.QuickBooksHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(
	tokens *services.TokenService,
	customers *services.CustomerService,
	log *zap.Logger,
) handlerSet {
	return handlerSet{
		qb: handlers.NewQuickBooksHandler(tokens, customers, log),
	}
}
