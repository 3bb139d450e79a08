package fs

import (
	"context"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
)

// WriteResult is the outcome of a Write.
type WriteResult struct {
	Root    cas.Key
	Key     cas.Key
	Created bool
}

// MkdirResult is the outcome of a Mkdir.
type MkdirResult struct {
	Root    cas.Key
	Created bool
}

// RemoveResult reports the removed node alongside the new root.
type RemoveResult struct {
	Root cas.Key
	Key  cas.Key
	Kind cas.Kind
}

// ReadResult carries a whole file's bytes and its FileInfo.
type ReadResult struct {
	Data []byte
	Info cas.FileInfo
}

// StatInfo describes a resolved node.
type StatInfo struct {
	Key         cas.Key
	Kind        cas.Kind
	Name        string
	ChildCount  int
	Size        uint64
	ContentType string
}

// Write stores data as a file at ref below root. Missing parent directories
// are created. Overwriting an existing file succeeds with Created=false;
// an existing directory at the target is NOT_A_FILE. Writing to the root
// itself is rejected.
func (s *Service) Write(ctx context.Context, actor Actor, root cas.Key, ref Ref, data []byte, contentType string) (*WriteResult, error) {
	if len(data) > s.maxWriteBytes {
		return nil, errtypes.Validation(CodeFileTooLarge, "payload of %d bytes exceeds limit of %d", len(data), s.maxWriteBytes).
			WithDetail("limit", s.maxWriteBytes)
	}
	if ref.IsRoot() {
		return nil, errtypes.Validation(CodeInvalidPath, "cannot write to the root")
	}

	fileKey, err := s.uploadFile(ctx, actor, data, contentType)
	if err != nil {
		return nil, err
	}

	if ref.ByIndex() {
		target, err := s.resolve(ctx, root, ref)
		if err != nil {
			return nil, err
		}
		if target.Node.Kind == cas.KindDict {
			return nil, errtypes.TypeMismatch(CodeNotAFile, "target at %q is a directory", ref.String())
		}
		newRoot, err := s.rebuild(ctx, actor, target.Parents, fileKey)
		if err != nil {
			return nil, err
		}
		return &WriteResult{Root: newRoot, Key: fileKey, Created: false}, nil
	}

	segments := ref.Segments()
	dirSegments, name := segments[:len(segments)-1], segments[len(segments)-1]
	root, _, err = s.mkdirAll(ctx, actor, root, dirSegments)
	if err != nil {
		return nil, err
	}
	parent, err := s.resolve(ctx, root, pathRefOf(dirSegments))
	if err != nil {
		return nil, err
	}

	idx := parent.Node.ChildIndex(name)
	if idx < 0 {
		newRoot, err := s.insertAt(ctx, actor, parent, name, fileKey)
		if err != nil {
			return nil, err
		}
		logger.DebugCtx(ctx, "File written", "path", ref.String(), "root", newRoot.String(), "created", true)
		return &WriteResult{Root: newRoot, Key: fileKey, Created: true}, nil
	}

	existing, err := s.load(ctx, parent.Node.Children[idx])
	if err != nil {
		return nil, err
	}
	if existing.Kind == cas.KindDict {
		return nil, errtypes.TypeMismatch(CodeNotAFile, "%q is a directory", name)
	}
	steps := make([]Step, 0, len(parent.Parents)+1)
	steps = append(steps, parent.Parents...)
	steps = append(steps, Step{Hash: parent.Hash, Node: parent.Node, ChildIndex: idx})
	newRoot, err := s.rebuild(ctx, actor, steps, fileKey)
	if err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "File overwritten", "path", ref.String(), "root", newRoot.String())
	return &WriteResult{Root: newRoot, Key: fileKey, Created: false}, nil
}

// Mkdir creates the directory at ref, with intermediate directories as
// needed. Creating an existing directory succeeds with Created=false.
func (s *Service) Mkdir(ctx context.Context, actor Actor, root cas.Key, ref Ref) (*MkdirResult, error) {
	if ref.ByIndex() {
		return nil, errtypes.Validation(CodeInvalidPath, "mkdir requires a name path")
	}
	if root.IsZero() {
		return nil, errtypes.Validation(CodeInvalidRoot, "root key is required")
	}
	if ref.IsRoot() {
		return &MkdirResult{Root: root, Created: false}, nil
	}
	newRoot, created, err := s.mkdirAll(ctx, actor, root, ref.Segments())
	if err != nil {
		return nil, err
	}
	return &MkdirResult{Root: newRoot, Created: created}, nil
}

// Remove deletes the node at ref and returns the new root plus the removed
// node's kind and key. Removing the root is rejected.
func (s *Service) Remove(ctx context.Context, actor Actor, root cas.Key, ref Ref) (*RemoveResult, error) {
	if ref.IsRoot() {
		return nil, errtypes.Conflict(CodeCannotRemoveRoot, "cannot remove the root")
	}
	target, err := s.resolve(ctx, root, ref)
	if err != nil {
		return nil, err
	}
	newRoot, err := s.removeAt(ctx, actor, target)
	if err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "Node removed", "path", ref.String(), "kind", target.Node.Kind.String(), "root", newRoot.String())
	return &RemoveResult{Root: newRoot, Key: target.Hash, Kind: target.Node.Kind}, nil
}

// Move relocates the node at from to to. Moving into the source's own
// subtree is rejected. When to is an existing directory and the source is a
// file, the source is placed under to with its original name; any other
// existing target is TARGET_EXISTS.
func (s *Service) Move(ctx context.Context, actor Actor, root cas.Key, from, to Ref) (cas.Key, error) {
	if from.ByIndex() || to.ByIndex() {
		return cas.ZeroKey, errtypes.Validation(CodeInvalidPath, "move requires name paths")
	}
	if from.IsRoot() {
		return cas.ZeroKey, errtypes.Conflict(CodeCannotMoveRoot, "cannot move the root")
	}
	if isPathPrefix(from.Segments(), to.Segments()) {
		return cas.ZeroKey, errtypes.Conflict(CodeMoveIntoSelf, "cannot move %q into itself", from.String())
	}

	source, err := s.resolve(ctx, root, from)
	if err != nil {
		return cas.ZeroKey, err
	}
	destination, err := s.destinationFor(ctx, root, source, to)
	if err != nil {
		return cas.ZeroKey, err
	}

	root, err = s.removeAt(ctx, actor, source)
	if err != nil {
		return cas.ZeroKey, err
	}
	return s.placeAt(ctx, actor, root, destination, source.Hash)
}

// Copy links the node at from under to as well. The copy is shallow: only
// the content hash is reused, no bytes are duplicated.
func (s *Service) Copy(ctx context.Context, actor Actor, root cas.Key, from, to Ref) (cas.Key, error) {
	if from.ByIndex() || to.ByIndex() {
		return cas.ZeroKey, errtypes.Validation(CodeInvalidPath, "copy requires name paths")
	}
	if isPathPrefix(from.Segments(), to.Segments()) {
		return cas.ZeroKey, errtypes.Conflict(CodeMoveIntoSelf, "cannot copy %q into itself", from.String())
	}
	source, err := s.resolve(ctx, root, from)
	if err != nil {
		return cas.ZeroKey, err
	}
	destination, err := s.destinationFor(ctx, root, source, to)
	if err != nil {
		return cas.ZeroKey, err
	}
	return s.placeAt(ctx, actor, root, destination, source.Hash)
}

// destinationFor applies the directory-target rule: moving or copying a
// file onto an existing directory places it inside that directory under the
// source's name.
func (s *Service) destinationFor(ctx context.Context, root cas.Key, source *Resolved, to Ref) ([]string, error) {
	destination := to.Segments()
	existing, err := s.resolve(ctx, root, to)
	switch {
	case err == nil:
		if existing.Node.Kind == cas.KindDict && source.Node.Kind == cas.KindFile {
			return append(append([]string(nil), destination...), source.Name), nil
		}
		return nil, errtypes.Conflict(CodeTargetExists, "%q already exists", to.String())
	case errtypes.IsCode(err, CodePathNotFound):
		return destination, nil
	default:
		return nil, err
	}
}

// placeAt inserts child under the named destination path against root.
// The destination's parent must already exist.
func (s *Service) placeAt(ctx context.Context, actor Actor, root cas.Key, destination []string, child cas.Key) (cas.Key, error) {
	if len(destination) == 0 {
		return cas.ZeroKey, errtypes.Validation(CodeInvalidPath, "destination path is empty")
	}
	parent, err := s.resolve(ctx, root, pathRefOf(destination[:len(destination)-1]))
	if err != nil {
		return cas.ZeroKey, err
	}
	return s.insertAt(ctx, actor, parent, destination[len(destination)-1], child)
}

// Read returns the full contents and FileInfo of the file at ref.
func (s *Service) Read(ctx context.Context, root cas.Key, ref Ref) (*ReadResult, error) {
	target, err := s.resolve(ctx, root, ref)
	if err != nil {
		return nil, err
	}
	if target.Node.Kind != cas.KindFile {
		return nil, errtypes.TypeMismatch(CodeNotAFile, "%q is not a file", ref.String())
	}
	data := make([]byte, 0, target.Node.Info.Size)
	data, err = s.readInto(ctx, target.Node, data)
	if err != nil {
		return nil, err
	}
	return &ReadResult{Data: data, Info: *target.Node.Info}, nil
}

// Stat describes the node at ref.
func (s *Service) Stat(ctx context.Context, root cas.Key, ref Ref) (*StatInfo, error) {
	target, err := s.resolve(ctx, root, ref)
	if err != nil {
		return nil, err
	}
	info := &StatInfo{
		Key:        target.Hash,
		Kind:       target.Node.Kind,
		Name:       target.Name,
		ChildCount: len(target.Node.Children),
	}
	if target.Node.Info != nil {
		info.Size = target.Node.Info.Size
		info.ContentType = target.Node.Info.ContentType
	}
	return info, nil
}

// List returns the entries of the directory at ref.
func (s *Service) List(ctx context.Context, root cas.Key, ref Ref) ([]cas.DictEntry, error) {
	target, err := s.resolve(ctx, root, ref)
	if err != nil {
		return nil, err
	}
	if target.Node.Kind != cas.KindDict {
		return nil, errtypes.TypeMismatch(CodeNotADirectory, "%q is not a directory", ref.String())
	}
	return target.Node.Entries(), nil
}
