package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-authgate/qbgate/internal/auth"
	"github.com/go-authgate/qbgate/internal/metrics"
	"github.com/go-authgate/qbgate/internal/models"
	"github.com/go-authgate/qbgate/internal/report"
	"github.com/go-authgate/qbgate/internal/state"
	"github.com/go-authgate/qbgate/internal/store"
	"github.com/go-authgate/qbgate/internal/util"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Steps recorded on lifecycle errors and reports.
const (
	StepLoad      = "load"
	StepExpired   = "refresh_token_expired"
	StepRefresh   = "refresh"
	StepPersist   = "persist"
	StepExchange  = "exchange"
	StepCallback  = "callback"
	StepRevoke    = "revoke"
	StepAPICall   = "api_call"
	StepCustomers = "customer_mark"
)

const defaultRefreshTimeout = 5 * time.Second

// Provider is the Intuit authorization server as seen by the lifecycle.
type Provider interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*models.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*models.TokenResponse, error)
	Revoke(ctx context.Context, token string) error
}

var _ Provider = (*auth.OAuthProvider)(nil)

// OutcomeKind tags the result of EnsureValidToken.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeReauthRequired
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeReauthRequired:
		return "reauth_required"
	default:
		return "fatal"
	}
}

// Outcome is Ok(token), ReauthRequired(url) or Fatal(cause). Err is set for
// every kind except OutcomeOK and is one of the typed errors of this package
// or *auth.MalformedResponseError.
type Outcome struct {
	Kind    OutcomeKind
	Token   *models.TokenRecord
	AuthURL string
	Err     error
}

func (o Outcome) OK() bool { return o.Kind == OutcomeOK }

// AsError returns nil for OutcomeOK and the typed error otherwise.
func (o Outcome) AsError() error {
	if o.Kind == OutcomeOK {
		return nil
	}
	if o.Err == nil {
		return &RefreshFailedError{Step: "unknown", Cause: errors.New("outcome without error")}
	}
	return o.Err
}

// CallbackParams are the query parameters of the OAuth redirect.
type CallbackParams struct {
	Code             string
	State            string
	RealmID          string
	Error            string
	ErrorDescription string
}

// TokenStatus describes the stored record without exposing token values.
type TokenStatus struct {
	models.TokenState
	Present            bool   `json:"present"`
	RealmID            string `json:"realmId,omitempty"`
	ServerTime         int64  `json:"serverTime,omitempty"`
	ExpiresTime        int64  `json:"expiresTime,omitempty"`
	RefreshExpiresTime int64  `json:"refreshExpiresTime,omitempty"`
	LastCustomerUpdate int64  `json:"lastCustomerUpdate,omitempty"`
}

type TokenServiceOptions struct {
	// RefreshTimeout bounds each call to the token endpoint.
	RefreshTimeout time.Duration
	// StateRequired enforces one-time state on the callback.
	StateRequired bool
	// StoreKey identifies the token document; concurrent refreshes of the
	// same key collapse into one.
	StoreKey string
}

// TokenService owns the lifecycle of the single shared QuickBooks token.
type TokenService struct {
	store    store.TokenStore
	states   state.Store
	provider Provider
	clock    clockwork.Clock
	reporter report.Reporter
	logger   *zap.Logger
	metrics  metrics.Recorder
	opts     TokenServiceOptions

	refreshGroup singleflight.Group
}

func NewTokenService(
	s store.TokenStore,
	states state.Store,
	provider Provider,
	clock clockwork.Clock,
	reporter report.Reporter,
	logger *zap.Logger,
	m metrics.Recorder,
	opts TokenServiceOptions,
) *TokenService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if reporter == nil {
		reporter = report.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoopMetrics()
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = defaultRefreshTimeout
	}
	if opts.StoreKey == "" {
		opts.StoreKey = "default"
	}
	return &TokenService{
		store:    s,
		states:   states,
		provider: provider,
		clock:    clock,
		reporter: reporter,
		logger:   logger.Named("token"),
		metrics:  m,
		opts:     opts,
	}
}

// EnsureValidToken returns the stored record when its access token is valid,
// refreshes it once when only the refresh token is valid, and otherwise asks
// for re-authorization without touching the network.
func (s *TokenService) EnsureValidToken(ctx context.Context) Outcome {
	rec, err := s.store.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return s.noToken(ctx)
	}
	if err != nil {
		return s.fatal(ctx, &RefreshFailedError{Step: StepLoad, Cause: err}, nil)
	}

	now := s.clock.Now().UnixMilli()
	if rec.IsAccessTokenValid(now) {
		s.metrics.RecordTokenCheck(metrics.OutcomeValid)
		return Outcome{Kind: OutcomeOK, Token: rec}
	}
	if !rec.IsRefreshTokenValid(now) {
		return s.reauth(ctx, StepExpired, nil, rec)
	}

	v, err, _ := s.refreshGroup.Do(s.opts.StoreKey, func() (any, error) {
		// The shared flight must not die with the first caller's request.
		return s.refreshStored(context.WithoutCancel(ctx))
	})
	if err == nil {
		res := v.(refreshResult)
		s.metrics.RecordTokenCheck(res.outcome)
		return Outcome{Kind: OutcomeOK, Token: res.record}
	}

	if isFatalRefreshError(err) {
		return s.fatal(ctx, err, rec)
	}

	// Another caller may have rotated the refresh token first.
	if current, getErr := s.store.Get(ctx); getErr == nil &&
		current.IsAccessTokenValid(s.clock.Now().UnixMilli()) {
		s.logger.Info("refresh failed but stored token is valid again",
			zap.Error(err),
			zap.String("refresh_token_fp", util.Fingerprint(rec.RefreshToken)),
		)
		s.metrics.RecordTokenCheck(metrics.OutcomeRecovered)
		return Outcome{Kind: OutcomeOK, Token: current}
	}

	return s.reauth(ctx, StepRefresh, err, rec)
}

// ValidToken is EnsureValidToken for callers that prefer an error.
func (s *TokenService) ValidToken(ctx context.Context) (*models.TokenRecord, error) {
	out := s.EnsureValidToken(ctx)
	if err := out.AsError(); err != nil {
		return nil, err
	}
	return out.Token, nil
}

type refreshResult struct {
	record  *models.TokenRecord
	outcome string
}

// refreshStored re-reads the record inside the flight so a caller arriving
// just after a finished refresh reuses its result.
func (s *TokenService) refreshStored(ctx context.Context) (refreshResult, error) {
	current, err := s.store.Get(ctx)
	if err != nil {
		return refreshResult{}, &RefreshFailedError{Step: StepLoad, Cause: err}
	}
	if current.IsAccessTokenValid(s.clock.Now().UnixMilli()) {
		return refreshResult{record: current, outcome: metrics.OutcomeRecovered}, nil
	}
	rec, err := s.refreshAndPersist(ctx, current, current.RefreshToken)
	if err != nil {
		return refreshResult{}, err
	}
	return refreshResult{record: rec, outcome: metrics.OutcomeRefreshed}, nil
}

// refreshAndPersist performs one refresh grant and merge-persists the result
// before returning it.
func (s *TokenService) refreshAndPersist(
	ctx context.Context,
	current *models.TokenRecord,
	refreshToken string,
) (*models.TokenRecord, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
	defer cancel()

	start := s.clock.Now()
	resp, err := s.provider.RefreshToken(callCtx, refreshToken)
	s.metrics.RecordTokenRefresh(err == nil, s.clock.Since(start))
	if err != nil {
		return nil, err
	}

	fresh := models.NewTokenRecord(*resp, s.clock.Now())
	if err := store.SaveMerged(ctx, s.store, fresh); err != nil {
		return nil, &RefreshFailedError{Step: StepPersist, Cause: err}
	}
	merged := current.Merge(fresh)

	s.logger.Info("quickbooks token refreshed",
		zap.Int64("expires_time", merged.ExpiresTime),
		zap.Int64("refresh_expires_time", merged.RefreshExpiresTime),
		zap.Bool("refresh_token_rotated", fresh.RefreshToken != "" && fresh.RefreshToken != refreshToken),
		zap.String("refresh_token_fp", util.Fingerprint(merged.RefreshToken)),
	)
	return merged, nil
}

// AuthorizationURL issues a one-time state and returns the consent URL.
func (s *TokenService) AuthorizationURL(ctx context.Context) (string, error) {
	st, err := s.states.Issue(ctx)
	if err != nil {
		s.metrics.RecordOAuthState(metrics.StateError)
		return "", fmt.Errorf("issue oauth state: %w", err)
	}
	s.metrics.RecordOAuthState(metrics.StateIssued)
	return s.provider.GetAuthURL(st), nil
}

// CompleteAuthorization handles the OAuth redirect: it consumes the state,
// exchanges the code and persists the initial token set.
func (s *TokenService) CompleteAuthorization(
	ctx context.Context,
	p CallbackParams,
) (*models.TokenRecord, error) {
	rec, err := s.completeAuthorization(ctx, p)
	s.metrics.RecordOAuthCallback(err == nil)
	if err != nil {
		s.reporter.Report(ctx, err, report.Fields{
			"step":     StepCallback,
			"realm_id": p.RealmID,
			"now":      s.clock.Now().UnixMilli(),
		})
		return nil, err
	}
	return rec, nil
}

func (s *TokenService) completeAuthorization(
	ctx context.Context,
	p CallbackParams,
) (*models.TokenRecord, error) {
	if p.Error != "" {
		return nil, &AuthorizationDeniedError{Code: p.Error, Description: p.ErrorDescription}
	}
	if p.Code == "" {
		return nil, &InvalidCallbackError{Reason: "missing authorization code"}
	}

	if s.opts.StateRequired {
		if err := s.consumeState(ctx, p.State); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
	resp, err := s.provider.ExchangeCode(callCtx, p.Code)
	cancel()
	if err != nil {
		var malformed *auth.MalformedResponseError
		if errors.As(err, &malformed) {
			return nil, err
		}
		return nil, &ExchangeFailedError{Step: StepExchange, Cause: err}
	}

	rec := models.NewTokenRecord(*resp, s.clock.Now())
	if rec.RealmID == "" {
		rec.RealmID = p.RealmID
	}
	if rec.RealmID == "" {
		rec.RealmID = auth.RealmFromIDToken(rec.IDToken)
	}

	if err := store.SaveMerged(ctx, s.store, rec); err != nil {
		return nil, &ExchangeFailedError{Step: StepPersist, Cause: err}
	}

	s.logger.Info("quickbooks authorization completed",
		zap.String("realm_id", rec.RealmID),
		zap.Int64("expires_time", rec.ExpiresTime),
		zap.Int64("refresh_expires_time", rec.RefreshExpiresTime),
		zap.String("refresh_token_fp", util.Fingerprint(rec.RefreshToken)),
	)
	return rec, nil
}

func (s *TokenService) consumeState(ctx context.Context, value string) error {
	if value == "" {
		s.metrics.RecordOAuthState(metrics.StateMissing)
		return &InvalidCallbackError{Reason: "missing state"}
	}
	err := s.states.Consume(ctx, value)
	switch {
	case err == nil:
		s.metrics.RecordOAuthState(metrics.StateConsumed)
		return nil
	case errors.Is(err, state.ErrStateNotFound):
		s.metrics.RecordOAuthState(metrics.StateMissing)
		return &InvalidCallbackError{Reason: "unknown state", Cause: err}
	case errors.Is(err, state.ErrStateExpired):
		s.metrics.RecordOAuthState(metrics.StateExpired)
		return &InvalidCallbackError{Reason: "expired state", Cause: err}
	case errors.Is(err, state.ErrStateUsed):
		s.metrics.RecordOAuthState(metrics.StateReplayed)
		return &InvalidCallbackError{Reason: "state already used", Cause: err}
	default:
		s.metrics.RecordOAuthState(metrics.StateError)
		return fmt.Errorf("consume oauth state: %w", err)
	}
}

// ForceRefresh refreshes with refreshToken, or with the stored refresh
// token when it is empty, and persists the result. It makes exactly one
// attempt against the token endpoint.
func (s *TokenService) ForceRefresh(
	ctx context.Context,
	refreshToken string,
) (*models.TokenRecord, error) {
	current, err := s.store.Get(ctx)
	switch {
	case errors.Is(err, store.ErrNotFound):
		current = nil
	case err != nil:
		return nil, s.fail(ctx, &RefreshFailedError{Step: StepLoad, Cause: err}, nil)
	}

	if refreshToken == "" {
		if current == nil || current.RefreshToken == "" {
			return nil, s.noToken(ctx).Err
		}
		refreshToken = current.RefreshToken
	}

	rec, err := s.refreshAndPersist(ctx, current, refreshToken)
	if err == nil {
		return rec, nil
	}

	if isFatalRefreshError(err) {
		return nil, s.fail(ctx, err, current)
	}
	return nil, s.reauth(ctx, StepRefresh, err, current).Err
}

// Validate evaluates rec against the current time.
func (s *TokenService) Validate(rec *models.TokenRecord) models.TokenState {
	return rec.State(s.clock.Now().UnixMilli())
}

// Status reports the stored record's validity without token values.
func (s *TokenService) Status(ctx context.Context) (*TokenStatus, error) {
	rec, err := s.store.Get(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return &TokenStatus{TokenState: s.Validate(nil)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	return &TokenStatus{
		TokenState:         s.Validate(rec),
		Present:            true,
		RealmID:            rec.RealmID,
		ServerTime:         rec.ServerTime,
		ExpiresTime:        rec.ExpiresTime,
		RefreshExpiresTime: rec.RefreshExpiresTime,
		LastCustomerUpdate: rec.LastCustomerUpdate,
	}, nil
}

// Revoke revokes the stored refresh token at Intuit. The record is kept;
// the next EnsureValidToken escalates to re-authorization.
func (s *TokenService) Revoke(ctx context.Context) error {
	rec, err := s.store.Get(ctx)
	if errors.Is(err, store.ErrNotFound) || (err == nil && rec.RefreshToken == "") {
		return s.noToken(ctx).Err
	}
	if err != nil {
		return fmt.Errorf("load token: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.RefreshTimeout)
	defer cancel()
	if err := s.provider.Revoke(callCtx, rec.RefreshToken); err != nil {
		return s.fail(ctx, &RevokeFailedError{Cause: err}, rec)
	}

	s.logger.Info("quickbooks refresh token revoked",
		zap.String("refresh_token_fp", util.Fingerprint(rec.RefreshToken)))
	return nil
}

// AdvanceCustomerMark merge-updates the customer sync high-water mark.
func (s *TokenService) AdvanceCustomerMark(ctx context.Context, markMs int64) error {
	return store.SaveMerged(ctx, s.store, &models.TokenRecord{LastCustomerUpdate: markMs})
}

// Reauthorize builds a reauth error for a downstream rejection of the
// access token, such as a 401 from the QuickBooks API.
func (s *TokenService) Reauthorize(ctx context.Context, step string, cause error) error {
	rec, _ := s.store.Get(ctx)
	return s.reauth(ctx, step, cause, rec).Err
}

func (s *TokenService) noToken(ctx context.Context) Outcome {
	authURL, urlErr := s.AuthorizationURL(ctx)
	if urlErr != nil {
		s.logger.Warn("could not prepare authorization url", zap.Error(urlErr))
	}
	err := &NoTokenError{AuthURL: authURL}
	s.reporter.Report(ctx, err, s.fields(StepLoad, nil))
	s.metrics.RecordTokenCheck(metrics.OutcomeNoToken)
	return Outcome{Kind: OutcomeReauthRequired, AuthURL: authURL, Err: err}
}

func (s *TokenService) reauth(
	ctx context.Context,
	step string,
	cause error,
	rec *models.TokenRecord,
) Outcome {
	authURL, urlErr := s.AuthorizationURL(ctx)
	if urlErr != nil {
		cause = errors.Join(cause, urlErr)
	}
	err := &ReauthRequiredError{AuthURL: authURL, Step: step, Cause: cause}
	s.reporter.Report(ctx, err, s.fields(step, rec))
	s.metrics.RecordTokenCheck(metrics.OutcomeReauth)
	s.logger.Warn("quickbooks re-authorization required",
		zap.String("step", step),
		zap.NamedError("cause", cause),
	)
	return Outcome{Kind: OutcomeReauthRequired, AuthURL: authURL, Err: err}
}

func (s *TokenService) fatal(ctx context.Context, err error, rec *models.TokenRecord) Outcome {
	s.metrics.RecordTokenCheck(metrics.OutcomeFatal)
	return Outcome{Kind: OutcomeFatal, Err: s.fail(ctx, err, rec)}
}

func (s *TokenService) fail(ctx context.Context, err error, rec *models.TokenRecord) error {
	step := StepRefresh
	var rf *RefreshFailedError
	if errors.As(err, &rf) {
		step = rf.Step
	}
	var rv *RevokeFailedError
	if errors.As(err, &rv) {
		step = StepRevoke
	}
	s.reporter.Report(ctx, err, s.fields(step, rec))
	return err
}

// isFatalRefreshError separates faults that re-authorization cannot fix
// from token endpoint rejections.
func isFatalRefreshError(err error) bool {
	var malformed *auth.MalformedResponseError
	var rf *RefreshFailedError
	return errors.As(err, &malformed) || errors.As(err, &rf)
}

func (s *TokenService) fields(step string, rec *models.TokenRecord) report.Fields {
	f := report.Fields{
		"step":      step,
		"now":       s.clock.Now().UnixMilli(),
		"token_doc": s.opts.StoreKey,
	}
	if rec != nil {
		f["server_time"] = rec.ServerTime
		f["expires_time"] = rec.ExpiresTime
		f["refresh_expires_time"] = rec.RefreshExpiresTime
		f["realm_id"] = rec.RealmID
		f["refresh_token_fp"] = util.Fingerprint(rec.RefreshToken)
	}
	return f
}
