// Package identity resolves caller identities against the external identity
// domain. Account records live in the read-only perfiles relation; this package
// only consumes them.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/festeja/festeja/internal/store"
)

// AccountType is the coarse account classification carried by a profile.
type AccountType string

const (
	// AccountAdministrator flags accounts that bypass per-permission checks.
	AccountAdministrator AccountType = "administrador"
	// AccountStandard is every other account.
	AccountStandard AccountType = "estandar"
)

// ErrUnknownIdentity indicates no profile exists for the user id.
var ErrUnknownIdentity = errors.New("identity: unknown user")

// Resolver yields the account type for a user id.
type Resolver interface {
	AccountType(ctx context.Context, userID string) (AccountType, error)
}

const relProfiles = "perfiles"

// ProfileResolver reads the perfiles relation through the record store.
type ProfileResolver struct {
	store store.Gateway
}

// NewProfileResolver builds a resolver backed by the provided gateway.
func NewProfileResolver(gw store.Gateway) *ProfileResolver {
	return &ProfileResolver{store: gw}
}

// AccountType looks up the profile row and classifies the account.
func (r *ProfileResolver) AccountType(ctx context.Context, userID string) (AccountType, error) {
	rows, err := r.store.Select(ctx, relProfiles, store.Query{
		Filters: []store.Filter{store.Eq("id", userID)},
	})
	if err != nil {
		return "", fmt.Errorf("identity: profile lookup: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownIdentity, userID)
	}
	var profile struct {
		Type string `json:"tipo_cuenta"`
	}
	if err := json.Unmarshal(rows[0], &profile); err != nil {
		return "", fmt.Errorf("identity: decode profile: %w", err)
	}
	if profile.Type == string(AccountAdministrator) {
		return AccountAdministrator, nil
	}
	return AccountStandard, nil
}
