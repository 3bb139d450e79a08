package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/store/meta"
)

// TokenState reads and writes go through their own record so that token
// rotation never races with delegate record updates.

// GetTokenState loads the delegate's current token state. A delegate that
// never issued tokens has an empty state.
func (s *Service) GetTokenState(ctx context.Context, delegateID string) (*TokenState, error) {
	raw, err := s.store.Get(ctx, tokenPrefix+delegateID)
	if errors.Is(err, meta.ErrNotFound) {
		return &TokenState{}, nil
	}
	if err != nil {
		return nil, errtypes.Internal(err, "read token state for %s", delegateID)
	}
	var state TokenState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, errtypes.Internal(err, "unmarshal token state for %s", delegateID)
	}
	return &state, nil
}

// SetTokens unconditionally installs a fresh token pair, as on initial
// issuance.
func (s *Service) SetTokens(ctx context.Context, delegateID, accessHash, refreshHash string, accessExp time.Time) error {
	value, err := json.Marshal(TokenState{
		AccessHash:  accessHash,
		RefreshHash: refreshHash,
		AccessExp:   accessExp.UTC(),
	})
	if err != nil {
		return errtypes.Internal(err, "marshal token state")
	}
	if err := s.store.Put(ctx, tokenPrefix+delegateID, value); err != nil {
		return errtypes.Internal(err, "store token state for %s", delegateID)
	}
	return nil
}

// RotateTokens replaces the token pair, gated on the presented refresh
// token hash. The swap is a compare-and-set on the full token state, so of
// any number of concurrent refreshes exactly one wins; the rest observe
// CONCURRENT_REQUEST. A stale or unknown refresh hash is TOKEN_INVALID.
func (s *Service) RotateTokens(ctx context.Context, delegateID, presentedRefreshHash, newAccessHash, newRefreshHash string, accessExp time.Time) error {
	currentRaw, err := s.store.Get(ctx, tokenPrefix+delegateID)
	if errors.Is(err, meta.ErrNotFound) {
		return errtypes.Authorization(CodeTokenInvalid, "no token state for delegate %s", delegateID)
	}
	if err != nil {
		return errtypes.Internal(err, "read token state for %s", delegateID)
	}
	var current TokenState
	if err := json.Unmarshal(currentRaw, &current); err != nil {
		return errtypes.Internal(err, "unmarshal token state for %s", delegateID)
	}
	if current.RefreshHash == "" || current.RefreshHash != presentedRefreshHash {
		return errtypes.Authorization(CodeTokenInvalid, "refresh token is not current")
	}

	next, err := json.Marshal(TokenState{
		AccessHash:  newAccessHash,
		RefreshHash: newRefreshHash,
		AccessExp:   accessExp.UTC(),
	})
	if err != nil {
		return errtypes.Internal(err, "marshal token state")
	}
	err = s.store.PutIfValueEquals(ctx, tokenPrefix+delegateID, currentRaw, next)
	if errors.Is(err, meta.ErrConditionFailed) {
		return errtypes.Conflict(CodeConcurrentRequest, "token state changed during rotation")
	}
	if err != nil {
		return errtypes.Internal(err, "rotate token state for %s", delegateID)
	}
	return nil
}
