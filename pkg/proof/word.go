// Package proof implements the scope proof engine: the textual proof-word
// grammar carried in the X-CAS-Proof header, and the index-path walks that
// re-derive a target node's hash from a delegate's scope roots or a depot
// version.
package proof

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/errtypes"
)

// Stable error codes surfaced by proof parsing and verification.
const (
	CodeMissingProof         = "MISSING_PROOF"
	CodeInvalidFormat        = "INVALID_PROOF_FORMAT"
	CodeInvalidWord          = "INVALID_PROOF_WORD"
	CodeScopeRootOutOfBounds = "SCOPE_ROOT_OUT_OF_BOUNDS"
	CodeNodeNotFound         = "NODE_NOT_FOUND"
	CodeChildOutOfBounds     = "CHILD_INDEX_OUT_OF_BOUNDS"
	CodePathMismatch         = "PATH_MISMATCH"
	CodeDepotAccessDenied    = "DEPOT_ACCESS_DENIED"
)

// WordKind distinguishes the two proof word types.
type WordKind int

const (
	// KindIPath walks from one of the delegate's scope roots.
	KindIPath WordKind = iota

	// KindDepot walks from a committed depot version's root.
	KindDepot
)

// Word is one parsed proof word.
type Word struct {
	Kind WordKind

	// ScopeIndex selects the scope root for ipath words.
	ScopeIndex uint32

	// DepotID and Version select the walk origin for depot words.
	DepotID string
	Version uint64

	// Path is the sequence of child indices to walk.
	Path []int
}

// ParseWord parses the textual word grammar:
//
//	ipath#<scopeIndex>[:<idx>…]
//	depot:<depotId>@<version>#<idx>[:<idx>…]
func ParseWord(s string) (*Word, error) {
	switch {
	case s == "":
		return nil, errtypes.Authorization(CodeMissingProof, "empty proof word")

	case strings.HasPrefix(s, "ipath#"):
		parts := strings.Split(strings.TrimPrefix(s, "ipath#"), ":")
		scopeIndex, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, errtypes.Validation(CodeInvalidWord, "bad scope index in %q", s)
		}
		path, err := parseIndices(parts[1:], s)
		if err != nil {
			return nil, err
		}
		return &Word{Kind: KindIPath, ScopeIndex: uint32(scopeIndex), Path: path}, nil

	case strings.HasPrefix(s, "depot:"):
		rest := strings.TrimPrefix(s, "depot:")
		atSign := strings.IndexByte(rest, '@')
		hash := strings.IndexByte(rest, '#')
		if atSign <= 0 || hash <= atSign {
			return nil, errtypes.Validation(CodeInvalidWord, "malformed depot word %q", s)
		}
		depotID := rest[:atSign]
		version, err := strconv.ParseUint(rest[atSign+1:hash], 10, 64)
		if err != nil {
			return nil, errtypes.Validation(CodeInvalidWord, "bad version in %q", s)
		}
		path, err := parseIndices(strings.Split(rest[hash+1:], ":"), s)
		if err != nil {
			return nil, err
		}
		if len(path) == 0 {
			return nil, errtypes.Validation(CodeInvalidWord, "depot word %q requires a path", s)
		}
		return &Word{Kind: KindDepot, DepotID: depotID, Version: version, Path: path}, nil

	default:
		return nil, errtypes.Validation(CodeInvalidWord, "unknown proof word %q", s)
	}
}

func parseIndices(parts []string, word string) ([]int, error) {
	if len(parts) == 1 && parts[0] == "" {
		return nil, nil
	}
	path := make([]int, len(parts))
	for i, part := range parts {
		idx, err := strconv.Atoi(part)
		if err != nil || idx < 0 {
			return nil, errtypes.Validation(CodeInvalidWord, "bad child index %q in %q", part, word)
		}
		path[i] = idx
	}
	return path, nil
}

// String renders the word in its grammar form.
func (w *Word) String() string {
	var b strings.Builder
	switch w.Kind {
	case KindIPath:
		fmt.Fprintf(&b, "ipath#%d", w.ScopeIndex)
	case KindDepot:
		fmt.Fprintf(&b, "depot:%s@%d#", w.DepotID, w.Version)
	}
	for i, idx := range w.Path {
		if i > 0 || w.Kind == KindIPath {
			b.WriteByte(':')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}

// Set associates target node hashes with proof words, as carried by the
// X-CAS-Proof header.
type Set map[cas.Key]*Word

// ParseHeader parses the header value, a JSON object mapping node hash hex
// to proof word. An empty value yields an empty set.
func ParseHeader(value string) (Set, error) {
	set := make(Set)
	if strings.TrimSpace(value) == "" {
		return set, nil
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, errtypes.Validation(CodeInvalidFormat, "proof header is not a JSON object: %v", err)
	}
	for hexKey, wordText := range raw {
		key, err := cas.ParseKeyHex(hexKey)
		if err != nil {
			return nil, errtypes.Validation(CodeInvalidFormat, "bad node hash %q in proof header", hexKey)
		}
		word, err := ParseWord(wordText)
		if err != nil {
			return nil, err
		}
		set[key] = word
	}
	return set, nil
}
