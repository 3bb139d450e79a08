// Package middleware provides the HTTP middleware for the DepotFS API:
// JWT delegate authentication, proof-header extraction, and request
// metrics.
package middleware

import (
	"context"

	"github.com/depotfs/depotfs/pkg/delegate"
	"github.com/depotfs/depotfs/pkg/fs"
	"github.com/depotfs/depotfs/pkg/proof"
)

type contextKey int

const (
	actorKey contextKey = iota
	delegateKey
	accessTokenKey
	proofSetKey
)

// WithActor stores the acting identity in the context.
func WithActor(ctx context.Context, actor fs.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFrom returns the acting identity stored by the auth middleware.
func ActorFrom(ctx context.Context) (fs.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(fs.Actor)
	return actor, ok
}

// WithDelegate stores the full delegate record in the context.
func WithDelegate(ctx context.Context, record *delegate.Record) context.Context {
	return context.WithValue(ctx, delegateKey, record)
}

// DelegateFrom returns the delegate record stored by the auth middleware.
func DelegateFrom(ctx context.Context) (*delegate.Record, bool) {
	record, ok := ctx.Value(delegateKey).(*delegate.Record)
	return record, ok
}

// WithAccessToken stores the raw bearer token in the context. The claim
// handler needs the exact bytes the client holds to verify possession
// proofs.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// AccessTokenFrom returns the raw bearer token for the request.
func AccessTokenFrom(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(accessTokenKey).(string)
	return token, ok
}

// WithProofSet stores the parsed proof header in the context.
func WithProofSet(ctx context.Context, set proof.Set) context.Context {
	return context.WithValue(ctx, proofSetKey, set)
}

// ProofSetFrom returns the parsed proof header, or an empty set.
func ProofSetFrom(ctx context.Context) proof.Set {
	if set, ok := ctx.Value(proofSetKey).(proof.Set); ok {
		return set
	}
	return proof.Set{}
}
