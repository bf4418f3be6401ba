// Package testutil carries helpers shared by handler and service tests.
package testutil

import (
	"context"
	"net/http"
	"time"

	id "coitrack/pkg/domain"
	"coitrack/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context, simulating
// what the auth middleware does for authenticated requests.
func WithActor(req *http.Request, party id.Party, actorID id.ActorID) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), party, actorID)
	return req.WithContext(ctx)
}

// WithTime pins the request-scoped clock.
func WithTime(req *http.Request, t time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), t)
	return req.WithContext(ctx)
}

// ActorContext builds a plain context with an authenticated actor, for
// service-level tests.
func ActorContext(party id.Party, actorID id.ActorID) context.Context {
	return requestcontext.WithActor(context.Background(), party, actorID)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
