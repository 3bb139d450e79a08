// Package depot implements the registry of named, versioned roots into the
// CAS graph. Commits use optimistic concurrency at the metadata store, so
// concurrent writers to the same depot resolve by conflict and retry.
package depot

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cache"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
	"github.com/depotfs/depotfs/pkg/store/meta"
)

// Stable error codes surfaced by depot operations.
const (
	CodeDepotNotFound        = "DEPOT_NOT_FOUND"
	CodeDepotConflict        = "DEPOT_CONFLICT"
	CodeDepotVersionNotFound = "DEPOT_VERSION_NOT_FOUND"
	CodeTargetExists         = "TARGET_EXISTS"
	CodeInvalidName          = "INVALID_PATH"
)

const (
	// MaxHistoryLimit is the system-wide cap on history ring size.
	MaxHistoryLimit = 100

	// DefaultMaxHistory applies when a depot is created without one.
	DefaultMaxHistory = 10

	// cacheTTL bounds staleness of depot reads served from cache.
	cacheTTL = 10 * time.Second
)

const (
	recordPrefix = "DEPOT#"
	namePrefix   = "DEPOTNAME#"
)

// Version is one entry of a depot's history ring.
type Version struct {
	// Seq is the monotonic commit sequence number, unique per depot.
	Seq uint64 `json:"seq"`

	Root       cas.Key `json:"root"`
	ParentRoot cas.Key `json:"parentRoot,omitempty"`

	CommittedAt time.Time `json:"committedAt"`

	// Diff is an optional compact description of the change.
	Diff string `json:"diff,omitempty"`
}

// Depot is a stored depot record. History[0] is always the most recent
// commit and Root always equals History[0].Root after any commit.
type Depot struct {
	Realm   string  `json:"realm"`
	DepotID string  `json:"depotId"`
	Name    string  `json:"name"`
	Root    cas.Key `json:"root,omitempty"`

	MaxHistory int       `json:"maxHistory"`
	History    []Version `json:"history,omitempty"`

	// NextSeq is the sequence number the next commit will take.
	NextSeq uint64 `json:"nextSeq"`

	CreatorIssuerID string `json:"creatorIssuerId,omitempty"`
	CreatorTokenID  string `json:"creatorTokenId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommitParams describes one commit.
type CommitParams struct {
	NewRoot cas.Key

	// ExpectedRoot, when non-nil, must match the depot's current root for
	// the commit to apply. The zero key expects a depot with no root yet.
	ExpectedRoot *cas.Key

	Diff string
}

// UpdateParams carries the mutable depot settings. Nil fields are left
// unchanged.
type UpdateParams struct {
	Name       *string
	MaxHistory *int
}

// Registry manages depot records. Reads may be served from cache for up to
// cacheTTL; writes invalidate eagerly.
type Registry struct {
	store meta.Store
	cache cache.Cache
	now   func() time.Time
}

// New creates a depot registry. cache may be cache.Null{}.
func New(store meta.Store, c cache.Cache) *Registry {
	if c == nil {
		c = cache.Null{}
	}
	return &Registry{store: store, cache: c, now: time.Now}
}

func recordKey(realm, depotID string) string {
	return recordPrefix + realm + "#" + depotID
}

func nameKey(realm, name string) string {
	return namePrefix + realm + "#" + name
}

func cacheKey(realm, depotID string) string {
	return "depot:" + realm + ":" + depotID
}

func newDepotID() string {
	id := uuid.New()
	var key cas.Key
	copy(key[:], id[:])
	return key.Format(cas.PrefixDepot)
}

// Create registers a depot. The name is unique within the realm; the
// initial root may be zero for a depot that starts empty.
func (r *Registry) Create(ctx context.Context, realm, name string, initialRoot cas.Key, maxHistory int, creatorIssuerID, creatorTokenID string) (*Depot, error) {
	if name == "" {
		return nil, errtypes.Validation(CodeInvalidName, "depot name is required")
	}
	if maxHistory == 0 {
		maxHistory = DefaultMaxHistory
	}
	if maxHistory < 1 || maxHistory > MaxHistoryLimit {
		return nil, errtypes.Validation(CodeInvalidName, "maxHistory %d out of range [1, %d]", maxHistory, MaxHistoryLimit)
	}

	now := r.now().UTC()
	record := &Depot{
		Realm:           realm,
		DepotID:         newDepotID(),
		Name:            name,
		Root:            initialRoot,
		MaxHistory:      maxHistory,
		NextSeq:         1,
		CreatorIssuerID: creatorIssuerID,
		CreatorTokenID:  creatorTokenID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !initialRoot.IsZero() {
		record.History = []Version{{Seq: 1, Root: initialRoot, CommittedAt: now}}
		record.NextSeq = 2
	}

	if err := r.store.PutIfAbsent(ctx, nameKey(realm, name), []byte(record.DepotID)); err != nil {
		if errors.Is(err, meta.ErrConditionFailed) {
			return nil, errtypes.Conflict(CodeTargetExists, "depot name %q already exists in realm", name)
		}
		return nil, errtypes.Internal(err, "reserve depot name %q", name)
	}
	value, err := json.Marshal(record)
	if err != nil {
		return nil, errtypes.Internal(err, "marshal depot record")
	}
	if err := r.store.PutIfAbsent(ctx, recordKey(realm, record.DepotID), value); err != nil {
		return nil, errtypes.Internal(err, "store depot %s", record.DepotID)
	}
	logger.InfoCtx(ctx, "Depot created", "depot", record.DepotID, "name", name, "realm", realm)
	return record, nil
}

// Get loads a depot, possibly from cache.
func (r *Registry) Get(ctx context.Context, realm, depotID string) (*Depot, error) {
	if cached, ok := r.cache.Get(ctx, cacheKey(realm, depotID)); ok {
		var record Depot
		if err := json.Unmarshal([]byte(cached), &record); err == nil {
			return &record, nil
		}
	}
	record, _, err := r.load(ctx, realm, depotID)
	if err != nil {
		return nil, err
	}
	if value, err := json.Marshal(record); err == nil {
		r.cache.Set(ctx, cacheKey(realm, depotID), string(value), cacheTTL)
	}
	return record, nil
}

// GetByName resolves a depot through the realm's name index.
func (r *Registry) GetByName(ctx context.Context, realm, name string) (*Depot, error) {
	id, err := r.store.Get(ctx, nameKey(realm, name))
	if errors.Is(err, meta.ErrNotFound) {
		return nil, errtypes.NotFound(CodeDepotNotFound, "depot %q not found in realm", name)
	}
	if err != nil {
		return nil, errtypes.Internal(err, "resolve depot name %q", name)
	}
	return r.Get(ctx, realm, string(id))
}

// load reads the authoritative record plus its raw bytes for CAS writes.
func (r *Registry) load(ctx context.Context, realm, depotID string) (*Depot, []byte, error) {
	raw, err := r.store.Get(ctx, recordKey(realm, depotID))
	if errors.Is(err, meta.ErrNotFound) {
		return nil, nil, errtypes.NotFound(CodeDepotNotFound, "depot %s not found", depotID)
	}
	if err != nil {
		return nil, nil, errtypes.Internal(err, "read depot %s", depotID)
	}
	var record Depot
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, nil, errtypes.Internal(err, "unmarshal depot %s", depotID)
	}
	return &record, raw, nil
}

// Commit advances the depot to newRoot. When ExpectedRoot is set, the
// commit applies only if it matches the current root; the conflict error
// carries both roots. The store-level compare-and-set closes the TOCTOU
// window between the read and the write.
func (r *Registry) Commit(ctx context.Context, realm, depotID string, params CommitParams) (*Depot, error) {
	if params.NewRoot.IsZero() {
		return nil, errtypes.Validation("INVALID_ROOT", "commit requires a root key")
	}

	// Unconditional commits retry on CAS races; conditional ones surface
	// the conflict immediately.
	attempts := 1
	if params.ExpectedRoot == nil {
		attempts = 3
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		record, raw, err := r.load(ctx, realm, depotID)
		if err != nil {
			return nil, err
		}
		if params.ExpectedRoot != nil && *params.ExpectedRoot != record.Root {
			return nil, conflictErr(record.Root, *params.ExpectedRoot)
		}

		updated := *record
		updated.applyCommit(params.NewRoot, params.Diff, r.now().UTC())
		value, err := json.Marshal(&updated)
		if err != nil {
			return nil, errtypes.Internal(err, "marshal depot record")
		}
		err = r.store.PutIfValueEquals(ctx, recordKey(realm, depotID), raw, value)
		if errors.Is(err, meta.ErrConditionFailed) {
			if params.ExpectedRoot != nil {
				current, _, loadErr := r.load(ctx, realm, depotID)
				if loadErr != nil {
					return nil, loadErr
				}
				return nil, conflictErr(current.Root, *params.ExpectedRoot)
			}
			lastErr = errtypes.Conflict(CodeDepotConflict, "depot %s changed concurrently", depotID)
			continue
		}
		if err != nil {
			return nil, errtypes.Internal(err, "commit depot %s", depotID)
		}
		r.cache.Del(ctx, cacheKey(realm, depotID))
		logger.InfoCtx(ctx, "Depot committed",
			"depot", depotID, "root", params.NewRoot.String(), "seq", updated.History[0].Seq)
		return &updated, nil
	}
	return nil, lastErr
}

func conflictErr(current, expected cas.Key) error {
	return errtypes.Conflict(CodeDepotConflict, "depot root changed: expected %s, current %s",
		expected.Format(cas.PrefixNode), current.Format(cas.PrefixNode)).
		WithDetail("currentRoot", current.Format(cas.PrefixNode)).
		WithDetail("expectedRoot", expected.Format(cas.PrefixNode))
}

// applyCommit inserts the new version at the head of the history ring,
// dedupes by root and truncates to MaxHistory.
func (d *Depot) applyCommit(newRoot cas.Key, diff string, now time.Time) {
	version := Version{
		Seq:         d.NextSeq,
		Root:        newRoot,
		ParentRoot:  d.Root,
		CommittedAt: now,
		Diff:        diff,
	}
	history := make([]Version, 0, len(d.History)+1)
	history = append(history, version)
	for _, v := range d.History {
		if v.Root == newRoot {
			continue
		}
		history = append(history, v)
	}
	if len(history) > d.MaxHistory {
		history = history[:d.MaxHistory]
	}
	d.History = history
	d.Root = newRoot
	d.NextSeq++
	d.UpdatedAt = now
}

// ResolveVersion returns the root recorded for a commit sequence number.
func (r *Registry) ResolveVersion(ctx context.Context, realm, depotID string, version uint64) (cas.Key, error) {
	record, err := r.Get(ctx, realm, depotID)
	if err != nil {
		return cas.ZeroKey, err
	}
	for _, v := range record.History {
		if v.Seq == version {
			return v.Root, nil
		}
	}
	return cas.ZeroKey, errtypes.NotFound(CodeDepotVersionNotFound,
		"depot %s has no version %d", depotID, version)
}

// Update changes a depot's name or history cap. A lowered cap does not
// shrink existing history until the next commit truncates it.
func (r *Registry) Update(ctx context.Context, realm, depotID string, params UpdateParams) (*Depot, error) {
	record, raw, err := r.load(ctx, realm, depotID)
	if err != nil {
		return nil, err
	}

	updated := *record
	if params.Name != nil && *params.Name != record.Name {
		if *params.Name == "" {
			return nil, errtypes.Validation(CodeInvalidName, "depot name is required")
		}
		if err := r.store.PutIfAbsent(ctx, nameKey(realm, *params.Name), []byte(depotID)); err != nil {
			if errors.Is(err, meta.ErrConditionFailed) {
				return nil, errtypes.Conflict(CodeTargetExists, "depot name %q already exists in realm", *params.Name)
			}
			return nil, errtypes.Internal(err, "reserve depot name %q", *params.Name)
		}
		if err := r.store.Delete(ctx, nameKey(realm, record.Name)); err != nil {
			return nil, errtypes.Internal(err, "release depot name %q", record.Name)
		}
		updated.Name = *params.Name
	}
	if params.MaxHistory != nil {
		if *params.MaxHistory < 1 || *params.MaxHistory > MaxHistoryLimit {
			return nil, errtypes.Validation(CodeInvalidName, "maxHistory %d out of range [1, %d]", *params.MaxHistory, MaxHistoryLimit)
		}
		updated.MaxHistory = *params.MaxHistory
	}
	updated.UpdatedAt = r.now().UTC()

	value, err := json.Marshal(&updated)
	if err != nil {
		return nil, errtypes.Internal(err, "marshal depot record")
	}
	err = r.store.PutIfValueEquals(ctx, recordKey(realm, depotID), raw, value)
	if errors.Is(err, meta.ErrConditionFailed) {
		return nil, errtypes.Conflict(CodeDepotConflict, "depot %s changed concurrently", depotID)
	}
	if err != nil {
		return nil, errtypes.Internal(err, "update depot %s", depotID)
	}
	r.cache.Del(ctx, cacheKey(realm, depotID))
	return &updated, nil
}

// Delete removes the depot and its name index entry. Underlying CAS nodes
// remain until their realm refcount drops to zero.
func (r *Registry) Delete(ctx context.Context, realm, depotID string) error {
	record, _, err := r.load(ctx, realm, depotID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, recordKey(realm, depotID)); err != nil {
		return errtypes.Internal(err, "delete depot %s", depotID)
	}
	if err := r.store.Delete(ctx, nameKey(realm, record.Name)); err != nil {
		return errtypes.Internal(err, "release depot name %q", record.Name)
	}
	r.cache.Del(ctx, cacheKey(realm, depotID))
	logger.InfoCtx(ctx, "Depot deleted", "depot", depotID, "realm", realm)
	return nil
}

// List pages through a realm's depots in key order.
func (r *Registry) List(ctx context.Context, realm, cursor string, limit int) ([]*Depot, string, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	items, next, err := r.store.List(ctx, recordPrefix+realm+"#", cursor, limit)
	if err != nil {
		return nil, "", errtypes.Internal(err, "list depots in realm %s", realm)
	}
	depots := make([]*Depot, 0, len(items))
	for _, item := range items {
		var record Depot
		if err := json.Unmarshal(item.Value, &record); err != nil {
			return nil, "", errtypes.Internal(err, "unmarshal depot record %s", item.Key)
		}
		depots = append(depots, &record)
	}
	return depots, next, nil
}
