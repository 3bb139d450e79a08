// Package claim implements proof-of-possession ownership acquisition: a
// delegate that can produce a keyed hash of a node's content under its own
// access token acquires full-chain ownership of that node.
package claim

import (
	"context"
	"errors"

	"lukechampine.com/blake3"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/ownership"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// Stable error codes surfaced by the claim protocol.
const (
	CodeAccessTokenRequired = "ACCESS_TOKEN_REQUIRED"
	CodeUploadNotAllowed    = "UPLOAD_NOT_ALLOWED"
	CodeRealmMismatch       = "REALM_MISMATCH"
	CodeInvalidPoP          = "INVALID_POP"
	CodeNodeNotFound        = "NODE_NOT_FOUND"
)

// claimedContentType is recorded on ownership acquired by claim, where the
// original upload's media type is unknown.
const claimedContentType = "application/octet-stream"

// ComputePoP derives the proof-of-possession string for node content under
// an access token: the BLAKE3-128 keyed hash of the content, keyed by the
// BLAKE3-256 digest of the token bytes, rendered in Crockford Base32.
func ComputePoP(content, accessToken []byte) string {
	key := blake3.Sum256(accessToken)
	h := blake3.New(cas.KeySize, key[:])
	h.Write(content)
	var digest cas.Key
	copy(digest[:], h.Sum(nil))
	return digest.String()
}

// Params is one claim request.
type Params struct {
	Realm      string
	DelegateID string

	// AccessToken is the raw bytes of the caller's current access token.
	AccessToken []byte

	Node cas.Key

	// PoP is the caller-computed proof-of-possession string.
	PoP string
}

// Result reports a successful claim. AlreadyOwned is true when the
// delegate held ownership before the call; the PoP is not verified then.
type Result struct {
	AlreadyOwned bool
}

// Service executes claims.
type Service struct {
	owners    *ownership.Index
	delegates *delegate.Service
	nodes     nodestore.Store
}

// New creates a claim service.
func New(owners *ownership.Index, delegates *delegate.Service, nodes nodestore.Store) *Service {
	return &Service{owners: owners, delegates: delegates, nodes: nodes}
}

// Claim verifies the request gates and the PoP, then writes full-chain
// ownership for the acting delegate. Claiming an already-owned node is an
// idempotent success.
func (s *Service) Claim(ctx context.Context, params Params) (*Result, error) {
	if len(params.AccessToken) == 0 {
		return nil, errtypes.Authorization(CodeAccessTokenRequired, "claim requires an access token")
	}
	record, err := s.delegates.RequireAlive(ctx, params.DelegateID)
	if err != nil {
		return nil, err
	}
	if !record.CanUpload {
		return nil, errtypes.Authorization(CodeUploadNotAllowed, "delegate %s cannot upload", params.DelegateID)
	}
	if record.Realm != params.Realm {
		return nil, errtypes.Authorization(CodeRealmMismatch,
			"delegate %s does not belong to realm %s", params.DelegateID, params.Realm)
	}

	owned, err := s.owners.Has(ctx, params.Node, params.DelegateID)
	if err != nil {
		return nil, err
	}
	if owned {
		return &Result{AlreadyOwned: true}, nil
	}

	content, err := s.nodes.Get(ctx, params.Node)
	if errors.Is(err, nodestore.ErrNodeNotFound) {
		return nil, errtypes.NotFound(CodeNodeNotFound, "node %s not found", params.Node.Format(cas.PrefixNode))
	}
	if err != nil {
		return nil, errtypes.Internal(err, "read node %s", params.Node)
	}

	if ComputePoP(content, params.AccessToken) != params.PoP {
		return nil, errtypes.Validation(CodeInvalidPoP, "proof of possession does not match node content")
	}

	kind := cas.KindFile
	if decoded, err := cas.Decode(content); err == nil {
		kind = decoded.Kind
	}
	if err := s.owners.Add(ctx, params.Node, record.Chain, params.DelegateID, kind, uint64(len(content)), claimedContentType); err != nil {
		return nil, err
	}
	logger.InfoCtx(ctx, "Node claimed", "node", params.Node.String(), "delegate", params.DelegateID)
	return &Result{AlreadyOwned: false}, nil
}
