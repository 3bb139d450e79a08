package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys. Generic filesystem keys use the "fs." prefix,
// domain keys their own.
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// Request attributes
	AttrRequestID = "request.id"
	AttrOperation = "fs.operation"
	AttrPath      = "fs.path"
	AttrRoot      = "fs.root"
	AttrSize      = "fs.size"
	AttrStatus    = "fs.status"

	// Tenancy attributes
	AttrRealm      = "realm"
	AttrDelegateID = "delegate.id"
	AttrDepotID    = "depot.id"
	AttrTicketID   = "ticket.id"

	// Node attributes
	AttrNodeKey  = "node.key"
	AttrNodeKind = "node.kind"

	// Cache attributes
	AttrCacheHit = "cache.hit"

	// Storage backend attributes
	AttrStoreName = "store.name"
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	SpanFSWrite   = "fs.write"
	SpanFSMkdir   = "fs.mkdir"
	SpanFSRemove  = "fs.remove"
	SpanFSMove    = "fs.move"
	SpanFSCopy    = "fs.copy"
	SpanFSRewrite = "fs.rewrite"
	SpanFSRead    = "fs.read"

	SpanDepotCommit  = "depot.commit"
	SpanDepotResolve = "depot.resolve"
	SpanClaim        = "claim.verify"
	SpanProofVerify  = "proof.verify"

	SpanNodeRead  = "node.read"
	SpanNodeWrite = "node.write"

	SpanCacheLookup = "cache.lookup"
	SpanCacheWrite  = "cache.write"
	SpanMetaLookup  = "meta.lookup"
	SpanMetaUpdate  = "meta.update"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// RequestID returns an attribute for the request id.
func RequestID(id string) attribute.KeyValue {
	return attribute.String(AttrRequestID, id)
}

// Realm returns an attribute for the tenancy realm.
func Realm(realm string) attribute.KeyValue {
	return attribute.String(AttrRealm, realm)
}

// DelegateID returns an attribute for the acting delegate.
func DelegateID(id string) attribute.KeyValue {
	return attribute.String(AttrDelegateID, id)
}

// DepotID returns an attribute for the depot.
func DepotID(id string) attribute.KeyValue {
	return attribute.String(AttrDepotID, id)
}

// NodeKey returns an attribute for a node key.
func NodeKey(key string) attribute.KeyValue {
	return attribute.String(AttrNodeKey, key)
}

// NodeKind returns an attribute for a node kind.
func NodeKind(kind string) attribute.KeyValue {
	return attribute.String(AttrNodeKind, kind)
}

// FSOperation returns an attribute for a filesystem operation name.
func FSOperation(op string) attribute.KeyValue {
	return attribute.String(AttrOperation, op)
}

// FSPath returns an attribute for a file path.
func FSPath(path string) attribute.KeyValue {
	return attribute.String(AttrPath, path)
}

// FSRoot returns an attribute for a root node key.
func FSRoot(root string) attribute.KeyValue {
	return attribute.String(AttrRoot, root)
}

// FSSize returns an attribute for a byte size.
func FSSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrSize, int64(size))
}

// CacheHit returns an attribute for cache hit indicator.
func CacheHit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrCacheHit, hit)
}

// StoreName returns an attribute for store name.
func StoreName(name string) attribute.KeyValue {
	return attribute.String(AttrStoreName, name)
}

// StoreType returns an attribute for store type.
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Bucket returns an attribute for S3 bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for S3 object key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartFSSpan starts a span for a filesystem operation.
func StartFSSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{FSOperation(operation)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "fs."+operation, trace.WithAttributes(allAttrs...))
}

// StartNodeSpan starts a span for a node store operation.
func StartNodeSpan(ctx context.Context, operation, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{NodeKey(key)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, "node."+operation, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// StartMetaSpan starts a span for a metastore operation.
func StartMetaSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "meta."+operation, trace.WithAttributes(attrs...))
}
