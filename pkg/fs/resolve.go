package fs

import (
	"context"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
)

// Step is one ancestor on the walk from a root to a resolved node.
// ChildIndex is the index of the traversed child within Node.
type Step struct {
	Hash       cas.Key
	Node       *cas.Node
	ChildIndex int
}

// Resolved is the outcome of a path or index-path walk. Parents runs from
// the root down to the immediate parent; it is empty when the root itself
// was resolved. Name is the resolved node's name in its parent, when it was
// reached through a directory.
type Resolved struct {
	Hash    cas.Key
	Node    *cas.Node
	Name    string
	Parents []Step
}

// resolve walks ref from root, loading every node on the way.
func (s *Service) resolve(ctx context.Context, root cas.Key, ref Ref) (*Resolved, error) {
	if root.IsZero() {
		return nil, errtypes.Validation(CodeInvalidRoot, "root key is required")
	}
	current, err := s.load(ctx, root)
	if err != nil {
		return nil, err
	}
	res := &Resolved{Hash: root, Node: current}

	if ref.byIndex {
		for depth, idx := range ref.indexes {
			if idx >= len(res.Node.Children) {
				return nil, errtypes.NotFound(CodeIndexOutOfBounds,
					"index %d out of bounds at depth %d (%d children)", idx, depth, len(res.Node.Children)).
					WithDetail("indexPath", ref.String())
			}
			if err := s.descend(ctx, res, idx); err != nil {
				return nil, err
			}
		}
		return res, nil
	}

	for _, name := range ref.segments {
		if res.Node.Kind != cas.KindDict {
			return nil, errtypes.TypeMismatch(CodeNotADirectory,
				"%q is not a directory", res.Name).WithDetail("path", ref.String())
		}
		idx := res.Node.ChildIndex(name)
		if idx < 0 {
			return nil, errtypes.NotFound(CodePathNotFound,
				"path segment %q not found", name).WithDetail("path", ref.String())
		}
		if err := s.descend(ctx, res, idx); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// descend moves the resolution one child deeper, in place.
func (s *Service) descend(ctx context.Context, res *Resolved, idx int) error {
	childKey := res.Node.Children[idx]
	child, err := s.load(ctx, childKey)
	if err != nil {
		return err
	}
	name := ""
	if res.Node.Kind == cas.KindDict {
		name = res.Node.Names[idx]
	}
	res.Parents = append(res.Parents, Step{Hash: res.Hash, Node: res.Node, ChildIndex: idx})
	res.Hash = childKey
	res.Node = child
	res.Name = name
	return nil
}
