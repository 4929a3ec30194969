// Package state issues and consumes one-time OAuth state values.
package state

import (
	"context"
	"errors"
	"time"

	"github.com/go-authgate/qbgate/internal/util"
)

var (
	ErrStateNotFound = errors.New("oauth state not found")
	ErrStateExpired  = errors.New("oauth state expired")
	ErrStateUsed     = errors.New("oauth state already used")
)

// DefaultTTL bounds how long an operator has to complete consent.
const DefaultTTL = 10 * time.Minute

// stateBytes is the entropy of a generated state value.
const stateBytes = 32

// Store records issued states and consumes each at most once.
type Store interface {
	// Issue generates and records a new state value.
	Issue(ctx context.Context) (string, error)
	// Consume atomically checks and marks state used. It returns
	// ErrStateNotFound, ErrStateExpired or ErrStateUsed on rejection.
	Consume(ctx context.Context, state string) error
}

func newStateValue() (string, error) {
	return util.RandomURLToken(stateBytes)
}
