// Package handlers implements the HTTP handlers of the DepotFS API. Each
// handler is a thin translation layer: decode the request, call one core
// service, map its result or error onto the wire.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/depotfs/depotfs/internal/logger"
	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/errtypes"
)

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// writeJSON writes a JSON response with the given status code. Encoding
// goes to a buffer first so an encoding failure can still produce a clean
// 500 before any headers are sent.
func writeJSON(w http.ResponseWriter, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", "error", err)
		http.Error(w, `{"error":{"code":"INTERNAL","message":"failed to encode response"}}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeErrorCode writes an error envelope with an explicit status and code.
func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// writeError maps a core error onto its HTTP status and writes the error
// envelope. The message is the error text; structured details attached to
// an errtypes.Error are carried through.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	body := errorBody{Error: errorDetail{
		Code:    errtypes.CodeOf(err),
		Message: err.Error(),
	}}

	var typed *errtypes.Error
	if errors.As(err, &typed) && len(typed.Details) > 0 {
		body.Error.Details = typed.Details
	}

	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
		// Internal causes stay out of the response body.
		body.Error.Message = "internal error"
	}

	writeJSON(w, status, body)
}

// statusFor maps the error taxonomy onto HTTP statuses. Token errors are
// authentication failures and map to 401 rather than 403.
func statusFor(err error) int {
	switch errtypes.KindOf(err) {
	case errtypes.KindValidation:
		return http.StatusBadRequest
	case errtypes.KindNotFound:
		return http.StatusNotFound
	case errtypes.KindConflict, errtypes.KindTypeMismatch:
		return http.StatusConflict
	case errtypes.KindAuthorization:
		if errtypes.IsCode(err, delegate.CodeTokenInvalid) {
			return http.StatusUnauthorized
		}
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// maxBodyBytes caps JSON request bodies. Node and file payloads have their
// own limits enforced by the core services.
const maxBodyBytes = 8 * 1024 * 1024

// decodeJSONBody decodes the request body into dst, rejecting unknown
// fields and trailing garbage. On failure it writes the 400 response
// itself and returns false.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "malformed request body: "+err.Error())
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeErrorCode(w, http.StatusBadRequest, "INVALID_BODY", "request body must contain a single JSON object")
		return false
	}
	return true
}
