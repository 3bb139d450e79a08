package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/authz"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/fs"
	nodestore "github.com/depotfs/depotfs/pkg/store/node"
)

// NodeHandler serves raw node bytes. Reads go through the link gate so a
// node is only visible to delegates that own it, are realm roots, or hold
// a proof for it; writes are verified against the content key and recorded
// as owned by the acting chain.
type NodeHandler struct {
	nodes nodestore.Store
	gate  *authz.Gate
	hook  fs.StoredHook

	nodeLimit int64
}

// NewNodeHandler creates the node handler. nodeLimit caps PUT bodies.
func NewNodeHandler(nodes nodestore.Store, gate *authz.Gate, hook fs.StoredHook, nodeLimit uint64) *NodeHandler {
	if nodeLimit == 0 {
		nodeLimit = cas.DefaultNodeLimit
	}
	return &NodeHandler{nodes: nodes, gate: gate, hook: hook, nodeLimit: int64(nodeLimit)}
}

// nodeKey parses the {key} URL parameter, accepting both the prefixed and
// the bare form.
func nodeKey(r *http.Request) (cas.Key, error) {
	raw := chi.URLParam(r, "key")
	if len(raw) > len(cas.PrefixNode) && raw[:len(cas.PrefixNode)] == cas.PrefixNode {
		return cas.ParsePrefixed(cas.PrefixNode, raw)
	}
	return cas.ParseKey(raw)
}

// Get handles GET /v1/nodes/{key}.
func (h *NodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	key, err := nodeKey(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, _ := middleware.ActorFrom(r.Context())

	proofWord := ""
	if word, ok := middleware.ProofSetFrom(r.Context())[key]; ok {
		proofWord = word.String()
	}
	if err := h.gate.AuthorizeLink(r.Context(), actor, key, proofWord); err != nil {
		writeError(w, err)
		return
	}

	raw, err := h.nodes.Get(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-CAS-Key", key.Format(cas.PrefixNode))
	_, _ = w.Write(raw)
}

// Put handles PUT /v1/nodes/{key}. The body must be a well-formed node
// whose content key equals the URL key; the underlying verified store
// enforces the key, this handler enforces the encoding and fires the
// bookkeeping hook.
func (h *NodeHandler) Put(w http.ResponseWriter, r *http.Request) {
	key, err := nodeKey(r)
	if err != nil {
		writeError(w, err)
		return
	}

	actor, _ := middleware.ActorFrom(r.Context())
	record, ok := middleware.DelegateFrom(r.Context())
	if !ok || !record.CanUpload {
		writeErrorCode(w, http.StatusForbidden, "UPLOAD_NOT_ALLOWED",
			"delegate lacks the upload capability")
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.nodeLimit))
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "FILE_TOO_LARGE", "node body exceeds the node size limit")
		return
	}

	decoded, err := cas.Decode(raw)
	if err != nil {
		writeError(w, err)
		return
	}

	fresh := true
	if exists, err := h.nodes.Has(r.Context(), key); err == nil && exists {
		fresh = false
	}

	if err := h.nodes.Put(r.Context(), key, raw); err != nil {
		if errors.Is(err, nodestore.ErrKeyMismatch) {
			writeErrorCode(w, http.StatusBadRequest, "KEY_MISMATCH",
				"node bytes do not hash to the given key")
			return
		}
		writeError(w, err)
		return
	}

	if h.hook != nil && !cas.IsWellKnown(key) {
		contentType := ""
		if decoded.Info != nil {
			contentType = decoded.Info.ContentType
		}
		err := h.hook.OnNodeStored(r.Context(), actor, fs.StoredNode{
			Key:         key,
			Raw:         raw,
			Kind:        decoded.Kind,
			Size:        uint64(len(raw)),
			ContentType: contentType,
			Fresh:       fresh,
		})
		if err != nil {
			writeError(w, err)
			return
		}
	}

	logger.DebugCtx(r.Context(), "Node stored",
		logger.Node(key.String()), logger.Size(uint64(len(raw))), "fresh", fresh)
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":   key.Format(cas.PrefixNode),
		"kind":  decoded.Kind.String(),
		"size":  len(raw),
		"fresh": fresh,
	})
}
