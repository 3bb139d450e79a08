package fs

import (
	"strconv"
	"strings"

	"github.com/depotfs/depotfs/pkg/errtypes"
)

// Ref addresses a node below a root, either by a relative name path
// ("a/b/c.txt") or by a child-index path ("0:2:1"). The empty ref addresses
// the root itself.
type Ref struct {
	segments []string
	indexes  []int
	byIndex  bool
}

// PathRef parses a relative name path. The empty string and "." address the
// root. Absolute paths, empty segments, "." segments and ".." segments are
// rejected.
func PathRef(s string) (Ref, error) {
	if s == "" || s == "." {
		return Ref{}, nil
	}
	if strings.HasPrefix(s, "/") {
		return Ref{}, errtypes.Validation(CodeInvalidPath, "path %q must be relative", s)
	}
	s = strings.TrimSuffix(s, "/")
	segments := strings.Split(s, "/")
	for _, segment := range segments {
		switch segment {
		case "":
			return Ref{}, errtypes.Validation(CodeInvalidPath, "path %q contains an empty segment", s)
		case ".", "..":
			return Ref{}, errtypes.Validation(CodeInvalidPath, "path %q contains a %q segment", s, segment)
		}
	}
	return Ref{segments: segments}, nil
}

// IndexRef parses a ":"-separated child-index path such as "0:2:1". The
// empty string addresses the root.
func IndexRef(s string) (Ref, error) {
	if s == "" {
		return Ref{byIndex: true}, nil
	}
	parts := strings.Split(s, ":")
	indexes := make([]int, len(parts))
	for i, part := range parts {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return Ref{}, errtypes.Validation(CodeInvalidPath, "index path %q has invalid index %q", s, part)
		}
		indexes[i] = idx
	}
	return Ref{indexes: indexes, byIndex: true}, nil
}

// MustPathRef is PathRef for statically known paths; it panics on error.
func MustPathRef(s string) Ref {
	ref, err := PathRef(s)
	if err != nil {
		panic(err)
	}
	return ref
}

// IsRoot reports whether the ref addresses the root itself.
func (r Ref) IsRoot() bool {
	return len(r.segments) == 0 && len(r.indexes) == 0
}

// ByIndex reports whether the ref navigates by child indices.
func (r Ref) ByIndex() bool {
	return r.byIndex
}

// Segments returns the name-path segments of a path ref.
func (r Ref) Segments() []string {
	return r.segments
}

// String renders the ref in its source form.
func (r Ref) String() string {
	if r.byIndex {
		parts := make([]string, len(r.indexes))
		for i, idx := range r.indexes {
			parts[i] = strconv.Itoa(idx)
		}
		return strings.Join(parts, ":")
	}
	return strings.Join(r.segments, "/")
}

func pathRefOf(segments []string) Ref {
	return Ref{segments: segments}
}

// isPathPrefix reports whether prefix is a strict ancestor path of path.
func isPathPrefix(prefix, path []string) bool {
	if len(path) <= len(prefix) {
		return false
	}
	for i, segment := range prefix {
		if path[i] != segment {
			return false
		}
	}
	return true
}
