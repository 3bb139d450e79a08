// Package delegate manages the hierarchical authorization principals: the
// delegate tree, capability inheritance, scope bindings and per-delegate
// token state.
package delegate

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/ownership"
	"github.com/depotfs/depotfs/pkg/store/meta"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// Stable error codes surfaced by delegate operations.
const (
	CodeDelegateNotFound    = "DELEGATE_NOT_FOUND"
	CodeDelegateRevoked     = "DELEGATE_REVOKED"
	CodeRootRevoked         = "ROOT_DELEGATE_REVOKED"
	CodeRealmMismatch       = "REALM_MISMATCH"
	CodeInvalidChain        = "INVALID_CHAIN"
	CodeInvalidCapabilities = "INVALID_CAPABILITIES"
	CodeInvalidScope        = "INVALID_SCOPE"
	CodeTokenInvalid        = "TOKEN_INVALID"
	CodeConcurrentRequest   = "CONCURRENT_REQUEST"
)

const (
	recordPrefix = "DELEGATE#"
	tokenPrefix  = "DLGTOK#"
)

// Scope binds a delegate to the subtrees it may reference. At most one
// field is set: a single CAS node, or a set-node whose children are the
// scope roots.
type Scope struct {
	NodeHash  cas.Key `json:"nodeHash,omitempty"`
	SetNodeID cas.Key `json:"setNodeId,omitempty"`
}

// IsEmpty reports whether no scope is bound.
func (s Scope) IsEmpty() bool {
	return s.NodeHash.IsZero() && s.SetNodeID.IsZero()
}

func (s Scope) validate(isRoot bool) error {
	if !s.NodeHash.IsZero() && !s.SetNodeID.IsZero() {
		return errtypes.Validation(CodeInvalidScope, "scope node hash and scope set are mutually exclusive")
	}
	if s.IsEmpty() && !isRoot {
		return errtypes.Validation(CodeInvalidScope, "non-root delegates require a scope")
	}
	return nil
}

// Record is a stored delegate.
type Record struct {
	DelegateID string   `json:"delegateId"`
	Realm      string   `json:"realm"`
	ParentID   string   `json:"parentId,omitempty"`
	Chain      []string `json:"chain"`

	CanUpload      bool `json:"canUpload"`
	CanManageDepot bool `json:"canManageDepot"`

	Scope Scope `json:"scope"`

	IsRevoked bool      `json:"isRevoked"`
	CreatedAt time.Time `json:"createdAt"`
	RevokedAt time.Time `json:"revokedAt,omitempty"`
}

// Depth is the delegate's position in its chain; the root is depth 0.
func (r *Record) Depth() int {
	return len(r.Chain) - 1
}

// IsRoot reports whether the delegate is the root of its chain.
func (r *Record) IsRoot() bool {
	return r.Depth() == 0
}

// TokenState is the mutable token record of a delegate, rotated by
// compare-and-set.
type TokenState struct {
	AccessHash  string    `json:"accessHash,omitempty"`
	RefreshHash string    `json:"refreshHash,omitempty"`
	AccessExp   time.Time `json:"accessExp,omitempty"`
}

// CreateParams describes a delegate to create. ParentID is empty for a
// root delegate; Realm is required for roots and must match the parent's
// realm (or be empty to inherit) otherwise.
type CreateParams struct {
	Realm          string
	ParentID       string
	CanUpload      bool
	CanManageDepot bool
	Scope          Scope
}

// Service manages delegate records over the metadata store. The node store
// is consulted to resolve set-node scopes.
type Service struct {
	store meta.Store
	nodes nodestore.Store
	now   func() time.Time
}

// New creates a delegate service.
func New(store meta.Store, nodes nodestore.Store) *Service {
	return &Service{store: store, nodes: nodes, now: time.Now}
}

func newDelegateID() string {
	id := uuid.New()
	var key cas.Key
	copy(key[:], id[:])
	return key.Format(cas.PrefixDelegate)
}

// Create registers a new delegate. Child capabilities must be a subset of
// the parent's, the resulting chain is bounded, and every chain ancestor
// must exist and be non-revoked at creation time.
func (s *Service) Create(ctx context.Context, params CreateParams) (*Record, error) {
	record := &Record{
		DelegateID:     newDelegateID(),
		Realm:          params.Realm,
		ParentID:       params.ParentID,
		CanUpload:      params.CanUpload,
		CanManageDepot: params.CanManageDepot,
		Scope:          params.Scope,
		CreatedAt:      s.now().UTC(),
	}

	if params.ParentID == "" {
		if params.Realm == "" {
			return nil, errtypes.Validation(CodeRealmMismatch, "root delegate requires a realm")
		}
		record.Chain = []string{record.DelegateID}
	} else {
		parent, err := s.Get(ctx, params.ParentID)
		if err != nil {
			return nil, err
		}
		if parent.IsRevoked {
			return nil, errtypes.Authorization(CodeDelegateRevoked, "parent delegate %s is revoked", parent.DelegateID)
		}
		if params.Realm != "" && params.Realm != parent.Realm {
			return nil, errtypes.Authorization(CodeRealmMismatch, "child realm %q does not match parent realm %q", params.Realm, parent.Realm)
		}
		record.Realm = parent.Realm
		if (params.CanUpload && !parent.CanUpload) || (params.CanManageDepot && !parent.CanManageDepot) {
			return nil, errtypes.Validation(CodeInvalidCapabilities, "child capabilities must be a subset of the parent's")
		}
		if len(parent.Chain)+1 > ownership.MaxChainDepth {
			return nil, errtypes.Validation(CodeInvalidChain, "chain depth exceeds %d", ownership.MaxChainDepth-1)
		}
		if err := s.checkChainAlive(ctx, parent.Chain); err != nil {
			return nil, err
		}
		record.Chain = append(append([]string(nil), parent.Chain...), record.DelegateID)
	}

	if err := record.Scope.validate(record.IsRoot()); err != nil {
		return nil, err
	}

	value, err := json.Marshal(record)
	if err != nil {
		return nil, errtypes.Internal(err, "marshal delegate record")
	}
	if err := s.store.PutIfAbsent(ctx, recordPrefix+record.DelegateID, value); err != nil {
		return nil, errtypes.Internal(err, "store delegate %s", record.DelegateID)
	}
	return record, nil
}

// checkChainAlive verifies every chain element exists and is not revoked.
func (s *Service) checkChainAlive(ctx context.Context, chain []string) error {
	keys := make([]string, len(chain))
	for i, id := range chain {
		keys[i] = recordPrefix + id
	}
	values, err := s.store.BatchGet(ctx, keys)
	if err != nil {
		return errtypes.Internal(err, "load delegate chain")
	}
	for i, value := range values {
		if value == nil {
			return errtypes.NotFound(CodeDelegateNotFound, "chain delegate %s not found", chain[i])
		}
		var ancestor Record
		if err := json.Unmarshal(value, &ancestor); err != nil {
			return errtypes.Internal(err, "unmarshal delegate %s", chain[i])
		}
		if ancestor.IsRevoked {
			code := CodeDelegateRevoked
			if ancestor.IsRoot() {
				code = CodeRootRevoked
			}
			return errtypes.Authorization(code, "chain delegate %s is revoked", chain[i])
		}
	}
	return nil
}

// Get loads a delegate record.
func (s *Service) Get(ctx context.Context, delegateID string) (*Record, error) {
	raw, err := s.store.Get(ctx, recordPrefix+delegateID)
	if errors.Is(err, meta.ErrNotFound) {
		return nil, errtypes.NotFound(CodeDelegateNotFound, "delegate %s not found", delegateID)
	}
	if err != nil {
		return nil, errtypes.Internal(err, "read delegate %s", delegateID)
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, errtypes.Internal(err, "unmarshal delegate %s", delegateID)
	}
	return &record, nil
}

// Revoke marks a delegate revoked. Its chain recording is preserved for
// audit; all subsequent authorization checks fail.
func (s *Service) Revoke(ctx context.Context, delegateID string) error {
	record, err := s.Get(ctx, delegateID)
	if err != nil {
		return err
	}
	if record.IsRevoked {
		return nil
	}
	record.IsRevoked = true
	record.RevokedAt = s.now().UTC()
	value, err := json.Marshal(record)
	if err != nil {
		return errtypes.Internal(err, "marshal delegate record")
	}
	if err := s.store.Put(ctx, recordPrefix+delegateID, value); err != nil {
		return errtypes.Internal(err, "store delegate %s", delegateID)
	}
	return nil
}

// RequireAlive loads a delegate and rejects revoked ones, distinguishing a
// revoked root from a revoked descendant.
func (s *Service) RequireAlive(ctx context.Context, delegateID string) (*Record, error) {
	record, err := s.Get(ctx, delegateID)
	if err != nil {
		return nil, err
	}
	if record.IsRevoked {
		code := CodeDelegateRevoked
		if record.IsRoot() {
			code = CodeRootRevoked
		}
		return nil, errtypes.Authorization(code, "delegate %s is revoked", delegateID)
	}
	return record, nil
}

// ScopeRoots resolves the delegate's scope to its list of root node keys.
// An unrestricted (scopeless root) delegate yields nil.
func (s *Service) ScopeRoots(ctx context.Context, record *Record) ([]cas.Key, error) {
	switch {
	case !record.Scope.NodeHash.IsZero():
		return []cas.Key{record.Scope.NodeHash}, nil
	case !record.Scope.SetNodeID.IsZero():
		raw, err := s.nodes.Get(ctx, record.Scope.SetNodeID)
		if errors.Is(err, nodestore.ErrNodeNotFound) {
			return nil, errtypes.NotFound("NODE_NOT_FOUND", "scope set node %s not found", record.Scope.SetNodeID)
		}
		if err != nil {
			return nil, errtypes.Internal(err, "read scope set node")
		}
		decoded, err := cas.Decode(raw)
		if err != nil {
			return nil, errtypes.Internal(err, "scope set node %s is corrupt", record.Scope.SetNodeID)
		}
		if decoded.Kind != cas.KindSet {
			return nil, errtypes.Validation(CodeInvalidScope, "scope node %s is a %s node, not a set", record.Scope.SetNodeID, decoded.Kind)
		}
		return decoded.Children, nil
	default:
		return nil, nil
	}
}
