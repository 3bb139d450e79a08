package logger

import "log/slog"

// Standard field keys for structured logging. Use these keys consistently
// across all log statements for log aggregation and querying.
const (
	// Distributed tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Request identification
	KeyRequestID = "request_id"
	KeyClientIP  = "client_ip"

	// Tenancy and principals
	KeyRealm    = "realm"
	KeyDelegate = "delegate"
	KeyChain    = "chain_depth"

	// Content addressing
	KeyNode = "node"
	KeyRoot = "root"
	KeyKind = "kind"
	KeySize = "size"

	// Filesystem operations
	KeyOp      = "op"
	KeyPath    = "path"
	KeyOldPath = "old_path"
	KeyNewPath = "new_path"

	// Depots
	KeyDepot   = "depot"
	KeyVersion = "version"

	// Operation metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeySource     = "source" // cache, node_store, meta_store

	// Storage backends
	KeyStoreType = "store_type" // memory, badger, s3
	KeyBucket    = "bucket"
)

// Realm returns a slog.Attr for the tenant realm.
func Realm(realm string) slog.Attr {
	return slog.String(KeyRealm, realm)
}

// Delegate returns a slog.Attr for the acting delegate id.
func Delegate(id string) slog.Attr {
	return slog.String(KeyDelegate, id)
}

// Node returns a slog.Attr for a content key.
func Node(key string) slog.Attr {
	return slog.String(KeyNode, key)
}

// Root returns a slog.Attr for a tree root key.
func Root(key string) slog.Attr {
	return slog.String(KeyRoot, key)
}

// Op returns a slog.Attr for a filesystem operation name.
func Op(op string) slog.Attr {
	return slog.String(KeyOp, op)
}

// Path returns a slog.Attr for a filesystem path.
func Path(p string) slog.Attr {
	return slog.String(KeyPath, p)
}

// Depot returns a slog.Attr for a depot id.
func Depot(id string) slog.Attr {
	return slog.String(KeyDepot, id)
}

// Size returns a slog.Attr for a byte size.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a stable error code.
func ErrorCode(code string) slog.Attr {
	return slog.String(KeyErrorCode, code)
}

// Source returns a slog.Attr for a data source.
func Source(src string) slog.Attr {
	return slog.String(KeySource, src)
}
