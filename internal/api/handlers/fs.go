package handlers

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/depotfs/depotfs/internal/api/middleware"
	"github.com/depotfs/depotfs/pkg/cas"
	"github.com/depotfs/depotfs/pkg/fs"
)

// FSHandler exposes the filesystem operations. Every mutation takes an
// explicit root key and returns the new root; old roots stay navigable.
type FSHandler struct {
	fs *fs.Service
}

// NewFSHandler creates the filesystem handler.
func NewFSHandler(service *fs.Service) *FSHandler {
	return &FSHandler{fs: service}
}

// parseNodeParam accepts a node key in prefixed or bare form.
func parseNodeParam(s string) (cas.Key, error) {
	if strings.HasPrefix(s, cas.PrefixNode) {
		return cas.ParsePrefixed(cas.PrefixNode, s)
	}
	return cas.ParseKey(s)
}

type fsMutateRequest struct {
	Root string `json:"root"`

	Path  string `json:"path,omitempty"`
	IPath string `json:"ipath,omitempty"`

	// Write fields.
	Data        string `json:"data,omitempty"` // base64
	ContentType string `json:"contentType,omitempty"`

	// Move/copy fields.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// Rewrite fields.
	Entries map[string]fs.Spec `json:"entries,omitempty"`
	Deletes []string           `json:"deletes,omitempty"`
}

func (req *fsMutateRequest) ref() (fs.Ref, error) {
	if req.IPath != "" {
		return fs.IndexRef(req.IPath)
	}
	return fs.PathRef(req.Path)
}

// Mutate handles POST /v1/fs/{op} for write, mkdir, rm, mv, cp and
// rewrite. The response always carries the new root.
func (h *FSHandler) Mutate(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "op")

	actor, ok := middleware.ActorFrom(r.Context())
	if !ok {
		writeErrorCode(w, http.StatusUnauthorized, "MISSING_TOKEN", "no acting delegate")
		return
	}
	record, ok := middleware.DelegateFrom(r.Context())
	if !ok || !record.CanUpload {
		writeErrorCode(w, http.StatusForbidden, "UPLOAD_NOT_ALLOWED",
			"delegate lacks the upload capability")
		return
	}

	var req fsMutateRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	root, err := parseNodeParam(req.Root)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()

	switch op {
	case "write":
		ref, err := req.ref()
		if err != nil {
			writeError(w, err)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "data is not valid base64")
			return
		}
		result, err := h.fs.Write(ctx, actor, root, ref, data, req.ContentType)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"root":    result.Root.Format(cas.PrefixNode),
			"key":     result.Key.Format(cas.PrefixNode),
			"created": result.Created,
		})

	case "mkdir":
		ref, err := req.ref()
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := h.fs.Mkdir(ctx, actor, root, ref)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"root":    result.Root.Format(cas.PrefixNode),
			"created": result.Created,
		})

	case "rm":
		ref, err := req.ref()
		if err != nil {
			writeError(w, err)
			return
		}
		result, err := h.fs.Remove(ctx, actor, root, ref)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"root":    result.Root.Format(cas.PrefixNode),
			"removed": result.Key.Format(cas.PrefixNode),
			"kind":    result.Kind.String(),
		})

	case "mv", "cp":
		from, err := fs.PathRef(req.From)
		if err != nil {
			writeError(w, err)
			return
		}
		to, err := fs.PathRef(req.To)
		if err != nil {
			writeError(w, err)
			return
		}
		var newRoot cas.Key
		if op == "mv" {
			newRoot, err = h.fs.Move(ctx, actor, root, from, to)
		} else {
			newRoot, err = h.fs.Copy(ctx, actor, root, from, to)
		}
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"root": newRoot.Format(cas.PrefixNode),
		})

	case "rewrite":
		entries := h.proofsFromHeader(r, req.Entries)
		newRoot, err := h.fs.Rewrite(ctx, actor, root, entries, req.Deletes)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"root": newRoot.Format(cas.PrefixNode),
		})

	default:
		writeErrorCode(w, http.StatusNotFound, "INVALID_PATH", "unknown filesystem operation "+op)
	}
}

// proofsFromHeader fills missing per-entry proofs for link entries from
// the request's proof set.
func (h *FSHandler) proofsFromHeader(r *http.Request, entries map[string]fs.Spec) map[string]fs.Spec {
	set := middleware.ProofSetFrom(r.Context())
	if len(set) == 0 || len(entries) == 0 {
		return entries
	}
	for target, spec := range entries {
		if spec.Link == "" || spec.Proof != "" {
			continue
		}
		key, err := parseNodeParam(spec.Link)
		if err != nil {
			continue
		}
		if word, ok := set[key]; ok {
			spec.Proof = word.String()
			entries[target] = spec
		}
	}
	return entries
}

// queryRef builds a Ref from the read query parameters.
func queryRef(r *http.Request) (fs.Ref, error) {
	if ipath := r.URL.Query().Get("ipath"); ipath != "" {
		return fs.IndexRef(ipath)
	}
	return fs.PathRef(r.URL.Query().Get("path"))
}

func queryRoot(r *http.Request) (cas.Key, error) {
	return parseNodeParam(r.URL.Query().Get("root"))
}

// Read handles GET /v1/fs/read. The file bytes are returned verbatim with
// the stored content type.
func (h *FSHandler) Read(w http.ResponseWriter, r *http.Request) {
	root, err := queryRoot(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := queryRef(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.fs.Read(r.Context(), root, ref)
	if err != nil {
		writeError(w, err)
		return
	}

	contentType := result.Info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(result.Data)
}

// Stat handles GET /v1/fs/stat.
func (h *FSHandler) Stat(w http.ResponseWriter, r *http.Request) {
	root, err := queryRoot(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := queryRef(r)
	if err != nil {
		writeError(w, err)
		return
	}

	info, err := h.fs.Stat(r.Context(), root, ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":         info.Key.Format(cas.PrefixNode),
		"kind":        info.Kind.String(),
		"name":        info.Name,
		"childCount":  info.ChildCount,
		"size":        info.Size,
		"contentType": info.ContentType,
	})
}

// List handles GET /v1/fs/list.
func (h *FSHandler) List(w http.ResponseWriter, r *http.Request) {
	root, err := queryRoot(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ref, err := queryRef(r)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.fs.List(r.Context(), root, ref)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]string, len(entries))
	for i, entry := range entries {
		out[i] = map[string]string{
			"name": entry.Name,
			"key":  entry.Key.Format(cas.PrefixNode),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
