package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-authgate/qbgate/internal/quickbooks"
	"github.com/go-authgate/qbgate/internal/report"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Querier runs QuickBooks query statements.
type Querier interface {
	Query(ctx context.Context, realmID, accessToken, statement string) (*quickbooks.QueryResponse, error)
}

var _ Querier = (*quickbooks.Client)(nil)

const defaultCustomerLookback = 90 * 24 * time.Hour

// CustomerUpdates is the result of an incremental customer sync.
type CustomerUpdates struct {
	Since     string                `json:"since"`
	Customers []quickbooks.Customer `json:"customers"`
}

// CustomerService reads customers through the shared token.
type CustomerService struct {
	tokens   *TokenService
	qb       Querier
	clock    clockwork.Clock
	lookback time.Duration
	reporter report.Reporter
	logger   *zap.Logger
}

func NewCustomerService(
	tokens *TokenService,
	qb Querier,
	clock clockwork.Clock,
	lookback time.Duration,
	reporter report.Reporter,
	logger *zap.Logger,
) *CustomerService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if lookback <= 0 {
		lookback = defaultCustomerLookback
	}
	if reporter == nil {
		reporter = report.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CustomerService{
		tokens:   tokens,
		qb:       qb,
		clock:    clock,
		lookback: lookback,
		reporter: reporter,
		logger:   logger.Named("customers"),
	}
}

// GetUpdates returns customers changed since the stored high-water mark, or
// within the lookback window when no mark exists, and advances the mark.
// realmOverride replaces the stored realm when non-empty.
func (s *CustomerService) GetUpdates(ctx context.Context, realmOverride string) (*CustomerUpdates, error) {
	rec, err := s.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	started := s.clock.Now()
	sinceMs := rec.LastCustomerUpdate
	if sinceMs == 0 {
		sinceMs = started.Add(-s.lookback).UnixMilli()
	}
	since := time.UnixMilli(sinceMs).UTC().Format(time.DateOnly)

	statement := fmt.Sprintf("Select * from Customer where Metadata.LastUpdatedTime > '%s'", since)
	resp, err := s.query(ctx, realm(rec.RealmID, realmOverride), rec.AccessToken, statement)
	if err != nil {
		return nil, err
	}

	// The query result is already in hand; a failed mark only widens the
	// next window.
	if err := s.tokens.AdvanceCustomerMark(ctx, started.UnixMilli()); err != nil {
		s.logger.Warn("failed to advance customer mark", zap.Error(err))
		s.reporter.Report(ctx, err, report.Fields{"step": StepCustomers})
	}

	return &CustomerUpdates{Since: since, Customers: resp.Customers()}, nil
}

// FindByEmail returns the customers whose primary email is email.
func (s *CustomerService) FindByEmail(
	ctx context.Context,
	email, realmOverride string,
) ([]quickbooks.Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmailRequired
	}

	rec, err := s.tokens.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	statement := fmt.Sprintf("Select * from Customer where PrimaryEmailAddr = '%s'",
		quickbooks.EscapeQueryValue(email))
	resp, err := s.query(ctx, realm(rec.RealmID, realmOverride), rec.AccessToken, statement)
	if err != nil {
		return nil, err
	}
	return resp.Customers(), nil
}

func (s *CustomerService) query(
	ctx context.Context,
	realmID, accessToken, statement string,
) (*quickbooks.QueryResponse, error) {
	resp, err := s.qb.Query(ctx, realmID, accessToken, statement)
	if err == nil {
		return resp, nil
	}
	if errors.Is(err, quickbooks.ErrUnauthorized) {
		return nil, s.tokens.Reauthorize(ctx, StepAPICall, err)
	}
	s.reporter.Report(ctx, err, report.Fields{"step": StepAPICall, "realm_id": realmID})
	return nil, err
}

func realm(stored, override string) string {
	if override != "" {
		return override
	}
	return stored
}
