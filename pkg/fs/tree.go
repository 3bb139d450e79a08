package fs

import (
	"context"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
)

// rebuild re-encodes the ancestor chain bottom-up, replacing the traversed
// child of each step with the rolling new key, and returns the new root.
func (s *Service) rebuild(ctx context.Context, actor Actor, parents []Step, child cas.Key) (cas.Key, error) {
	current := child
	for i := len(parents) - 1; i >= 0; i-- {
		p := parents[i]

		var (
			raw         []byte
			key         cas.Key
			err         error
			contentType string
		)
		switch p.Node.Kind {
		case cas.KindDict:
			entries := p.Node.Entries()
			entries[p.ChildIndex].Key = current
			raw, key, err = cas.EncodeDict(entries)
		case cas.KindFile:
			children := append([]cas.Key(nil), p.Node.Children...)
			children[p.ChildIndex] = current
			raw, key, err = cas.EncodeFile(p.Node.Data, p.Node.Info.ContentType, p.Node.Info.Size, children)
			contentType = p.Node.Info.ContentType
		case cas.KindSuccessor:
			children := append([]cas.Key(nil), p.Node.Children...)
			children[p.ChildIndex] = current
			raw, key, err = cas.EncodeSuccessor(p.Node.Data, children)
		default:
			return cas.ZeroKey, errtypes.TypeMismatch(CodeNotADirectory, "cannot rebuild through a set node")
		}
		if err != nil {
			return cas.ZeroKey, errtypes.Internal(err, "re-encode ancestor %s", p.Hash)
		}
		if err := s.putNode(ctx, actor, key, raw, p.Node.Kind, contentType); err != nil {
			return cas.ZeroKey, err
		}
		current = key
	}
	return current, nil
}

// insertAt adds a named child to the directory at parent and rebuilds to a
// new root. The name must not already exist.
func (s *Service) insertAt(ctx context.Context, actor Actor, parent *Resolved, name string, child cas.Key) (cas.Key, error) {
	if parent.Node.Kind != cas.KindDict {
		return cas.ZeroKey, errtypes.TypeMismatch(CodeNotADirectory, "%q is not a directory", parent.Name)
	}
	if parent.Node.ChildIndex(name) >= 0 {
		return cas.ZeroKey, errtypes.Conflict(CodeTargetExists, "%q already exists", name)
	}
	entries := append(parent.Node.Entries(), cas.DictEntry{Name: name, Key: child})
	raw, key, err := cas.EncodeDict(entries)
	if err != nil {
		return cas.ZeroKey, errtypes.Internal(err, "encode directory")
	}
	if err := s.putNode(ctx, actor, key, raw, cas.KindDict, ""); err != nil {
		return cas.ZeroKey, err
	}
	return s.rebuild(ctx, actor, parent.Parents, key)
}

// removeAt removes the resolved node from its parent directory and rebuilds
// to a new root.
func (s *Service) removeAt(ctx context.Context, actor Actor, target *Resolved) (cas.Key, error) {
	if len(target.Parents) == 0 {
		return cas.ZeroKey, errtypes.Conflict(CodeCannotRemoveRoot, "cannot remove the root")
	}
	parent := target.Parents[len(target.Parents)-1]
	if parent.Node.Kind != cas.KindDict {
		return cas.ZeroKey, errtypes.TypeMismatch(CodeNotADirectory, "parent is not a directory")
	}
	entries := parent.Node.Entries()
	entries = append(entries[:parent.ChildIndex], entries[parent.ChildIndex+1:]...)
	raw, key, err := cas.EncodeDict(entries)
	if err != nil {
		return cas.ZeroKey, errtypes.Internal(err, "encode directory")
	}
	if err := s.putNode(ctx, actor, key, raw, cas.KindDict, ""); err != nil {
		return cas.ZeroKey, err
	}
	return s.rebuild(ctx, actor, target.Parents[:len(target.Parents)-1], key)
}

// mkdirAll ensures segments exist as nested directories under dirKey and
// returns the possibly new key for dirKey's position plus whether anything
// was created. An existing non-directory at the terminal segment is
// EXISTS_AS_FILE; one crossed mid-path is NOT_A_DIRECTORY.
func (s *Service) mkdirAll(ctx context.Context, actor Actor, dirKey cas.Key, segments []string) (cas.Key, bool, error) {
	if len(segments) == 0 {
		return dirKey, false, nil
	}
	dir, err := s.load(ctx, dirKey)
	if err != nil {
		return cas.ZeroKey, false, err
	}
	if dir.Kind != cas.KindDict {
		return cas.ZeroKey, false, errtypes.TypeMismatch(CodeNotADirectory, "%s is not a directory", dirKey.Format(cas.PrefixNode))
	}

	name := segments[0]
	idx := dir.ChildIndex(name)
	if idx >= 0 {
		childKey := dir.Children[idx]
		child, err := s.load(ctx, childKey)
		if err != nil {
			return cas.ZeroKey, false, err
		}
		if child.Kind != cas.KindDict {
			if len(segments) == 1 {
				return cas.ZeroKey, false, errtypes.Conflict(CodeExistsAsFile, "%q exists and is not a directory", name)
			}
			return cas.ZeroKey, false, errtypes.TypeMismatch(CodeNotADirectory, "%q is not a directory", name)
		}
		newChild, created, err := s.mkdirAll(ctx, actor, childKey, segments[1:])
		if err != nil {
			return cas.ZeroKey, false, err
		}
		if newChild == childKey {
			return dirKey, false, nil
		}
		entries := dir.Entries()
		entries[idx].Key = newChild
		raw, key, err := cas.EncodeDict(entries)
		if err != nil {
			return cas.ZeroKey, false, errtypes.Internal(err, "encode directory")
		}
		if err := s.putNode(ctx, actor, key, raw, cas.KindDict, ""); err != nil {
			return cas.ZeroKey, false, err
		}
		return key, created, nil
	}

	// Build the missing chain bottom-up, starting from the well-known
	// empty directory.
	childKey := cas.EmptyDirKey()
	for i := len(segments) - 1; i >= 1; i-- {
		raw, key, err := cas.EncodeDict([]cas.DictEntry{{Name: segments[i], Key: childKey}})
		if err != nil {
			return cas.ZeroKey, false, errtypes.Internal(err, "encode directory")
		}
		if err := s.putNode(ctx, actor, key, raw, cas.KindDict, ""); err != nil {
			return cas.ZeroKey, false, err
		}
		childKey = key
	}
	entries := append(dir.Entries(), cas.DictEntry{Name: name, Key: childKey})
	raw, key, err := cas.EncodeDict(entries)
	if err != nil {
		return cas.ZeroKey, false, errtypes.Internal(err, "encode directory")
	}
	if err := s.putNode(ctx, actor, key, raw, cas.KindDict, ""); err != nil {
		return cas.ZeroKey, false, err
	}
	return key, true, nil
}

// uploadFile encodes data as a file tree per the computed layout, storing
// leaves before parents, and returns the f-node root key.
func (s *Service) uploadFile(ctx context.Context, actor Actor, data []byte, contentType string) (cas.Key, error) {
	layout, err := cas.ComputeLayout(uint64(len(data)), s.nodeLimit)
	if err != nil {
		return cas.ZeroKey, errtypes.Validation(CodeFileTooLarge, "no layout for %d bytes: %v", len(data), err)
	}
	return s.uploadLayout(ctx, actor, layout, data, contentType, uint64(len(data)), true)
}

func (s *Service) uploadLayout(ctx context.Context, actor Actor, layout *cas.Layout, data []byte, contentType string, fileSize uint64, isRoot bool) (cas.Key, error) {
	rest := data[layout.DataSize:]
	children := make([]cas.Key, 0, len(layout.Children))
	for _, childLayout := range layout.Children {
		span := childLayout.TotalSize()
		childKey, err := s.uploadLayout(ctx, actor, childLayout, rest[:span], "", 0, false)
		if err != nil {
			return cas.ZeroKey, err
		}
		rest = rest[span:]
		children = append(children, childKey)
	}

	own := data[:layout.DataSize]
	if isRoot {
		raw, key, err := cas.EncodeFile(own, contentType, fileSize, children)
		if err != nil {
			return cas.ZeroKey, errtypes.Internal(err, "encode file root")
		}
		return key, s.putNode(ctx, actor, key, raw, cas.KindFile, contentType)
	}
	raw, key, err := cas.EncodeSuccessor(own, children)
	if err != nil {
		return cas.ZeroKey, errtypes.Internal(err, "encode file successor")
	}
	return key, s.putNode(ctx, actor, key, raw, cas.KindSuccessor, "")
}

// readInto appends the file bytes rooted at n: own data first, then each
// child subtree in order.
func (s *Service) readInto(ctx context.Context, n *cas.Node, buf []byte) ([]byte, error) {
	buf = append(buf, n.Data...)
	for _, childKey := range n.Children {
		child, err := s.load(ctx, childKey)
		if err != nil {
			return nil, err
		}
		if child.Kind != cas.KindSuccessor {
			return nil, errtypes.Internal(nil, "file child %s is a %s node", childKey, child.Kind)
		}
		buf, err = s.readInto(ctx, child, buf)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}
