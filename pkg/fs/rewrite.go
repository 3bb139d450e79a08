package fs

import (
	"context"
	"sort"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
)

// Spec is one declarative rewrite entry. Exactly one of From, Dir and Link
// must be set.
type Spec struct {
	// From re-uses the node at this path in the original, pre-delete root.
	From string `json:"from,omitempty"`

	// Dir creates an empty directory at the target.
	Dir bool `json:"dir,omitempty"`

	// Link references an arbitrary node by its nod_ key; the reference is
	// authorized through ownership or the accompanying proof.
	Link string `json:"link,omitempty"`

	// Proof is the optional proof word supporting Link.
	Proof string `json:"proof,omitempty"`
}

func (spec Spec) validate(target string) error {
	set := 0
	if spec.From != "" {
		set++
	}
	if spec.Dir {
		set++
	}
	if spec.Link != "" {
		set++
	}
	if set != 1 {
		return errtypes.Validation(CodeInvalidPath, "entry %q must set exactly one of from, dir, link", target)
	}
	return nil
}

// Rewrite applies a declarative batch: deletes first against a rolling
// root, then entries in target-path order, each {from} source resolved
// against the original root. Missing delete targets are skipped; a missing
// {from} source fails the whole batch.
func (s *Service) Rewrite(ctx context.Context, actor Actor, root cas.Key, entries map[string]Spec, deletes []string) (cas.Key, error) {
	if len(entries) == 0 && len(deletes) == 0 {
		return cas.ZeroKey, errtypes.Validation(CodeEmptyRewrite, "rewrite has no entries and no deletes")
	}
	if len(entries)+len(deletes) > s.maxRewriteEntries {
		return cas.ZeroKey, errtypes.Validation(CodeTooManyEntries,
			"rewrite of %d operations exceeds limit of %d", len(entries)+len(deletes), s.maxRewriteEntries).
			WithDetail("limit", s.maxRewriteEntries)
	}

	original := root
	rolling := root

	for _, path := range deletes {
		ref, err := PathRef(path)
		if err != nil {
			return cas.ZeroKey, err
		}
		if ref.IsRoot() {
			return cas.ZeroKey, errtypes.Conflict(CodeCannotRemoveRoot, "cannot delete the root")
		}
		target, err := s.resolve(ctx, rolling, ref)
		if err != nil {
			if errtypes.IsCode(err, CodePathNotFound) {
				continue
			}
			return cas.ZeroKey, err
		}
		rolling, err = s.removeAt(ctx, actor, target)
		if err != nil {
			return cas.ZeroKey, err
		}
	}

	targets := make([]string, 0, len(entries))
	for target := range entries {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	for _, target := range targets {
		spec := entries[target]
		if err := spec.validate(target); err != nil {
			return cas.ZeroKey, err
		}
		ref, err := PathRef(target)
		if err != nil {
			return cas.ZeroKey, err
		}
		if ref.IsRoot() {
			return cas.ZeroKey, errtypes.Validation(CodeInvalidPath, "cannot rewrite the root")
		}
		child, err := s.rewriteChild(ctx, actor, original, target, spec)
		if err != nil {
			return cas.ZeroKey, err
		}
		rolling, err = s.setAt(ctx, actor, rolling, ref.Segments(), child)
		if err != nil {
			return cas.ZeroKey, err
		}
	}

	logger.DebugCtx(ctx, "Rewrite applied",
		"entries", len(entries), "deletes", len(deletes), "root", rolling.String())
	return rolling, nil
}

// rewriteChild materializes the node key a rewrite entry places at its
// target.
func (s *Service) rewriteChild(ctx context.Context, actor Actor, original cas.Key, target string, spec Spec) (cas.Key, error) {
	switch {
	case spec.From != "":
		ref, err := PathRef(spec.From)
		if err != nil {
			return cas.ZeroKey, err
		}
		source, err := s.resolve(ctx, original, ref)
		if err != nil {
			if errtypes.IsCode(err, CodePathNotFound) {
				return cas.ZeroKey, errtypes.NotFound(CodePathNotFound, "rewrite source %q not found", spec.From).
					WithDetail("from", spec.From).WithDetail("target", target)
			}
			return cas.ZeroKey, err
		}
		return source.Hash, nil

	case spec.Dir:
		return cas.EmptyDirKey(), nil

	default:
		key, err := cas.ParsePrefixed(cas.PrefixNode, spec.Link)
		if err != nil {
			return cas.ZeroKey, err
		}
		if cas.IsWellKnown(key) {
			return key, nil
		}
		if s.links == nil {
			return cas.ZeroKey, errtypes.Authorization(CodeLinkNotAuthorized, "link %s is not authorized", spec.Link)
		}
		if err := s.links.AuthorizeLink(ctx, actor, key, spec.Proof); err != nil {
			return cas.ZeroKey, err
		}
		return key, nil
	}
}

// setAt places child at the named path below root, creating missing parent
// directories and replacing any existing node at the target.
func (s *Service) setAt(ctx context.Context, actor Actor, root cas.Key, segments []string, child cas.Key) (cas.Key, error) {
	dirSegments, name := segments[:len(segments)-1], segments[len(segments)-1]
	root, _, err := s.mkdirAll(ctx, actor, root, dirSegments)
	if err != nil {
		return cas.ZeroKey, err
	}
	parent, err := s.resolve(ctx, root, pathRefOf(dirSegments))
	if err != nil {
		return cas.ZeroKey, err
	}
	idx := parent.Node.ChildIndex(name)
	if idx < 0 {
		return s.insertAt(ctx, actor, parent, name, child)
	}
	steps := make([]Step, 0, len(parent.Parents)+1)
	steps = append(steps, parent.Parents...)
	steps = append(steps, Step{Hash: parent.Hash, Node: parent.Node, ChildIndex: idx})
	return s.rebuild(ctx, actor, steps, child)
}
