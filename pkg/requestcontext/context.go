// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values. Middleware sets them, services read them, tests
// inject them, and none of the consumers need to import net/http.
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	actorIDKey     struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	deviceKey      struct{}
)

// ActorID retrieves the authenticated admin actor ID from the context.
func ActorID(ctx context.Context) string {
	if actor, ok := ctx.Value(actorIDKey{}).(string); ok {
		return actor
	}
	return ""
}

// WithActorID injects an actor ID into the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorIDKey{}, actorID)
}

// RequestID retrieves the correlation ID assigned by middleware.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the request timestamp when set, falling back to time.Now.
// Tests inject a fixed time with WithTime to make transitions deterministic.
func Now(ctx context.Context) time.Time {
	if ts, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return ts
	}
	return time.Now()
}

// WithTime injects a fixed request timestamp into the context.
func WithTime(ctx context.Context, ts time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, ts)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPKey{}).(string); ok {
		return ip
	}
	return ""
}

// WithClientIP injects a client IP address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

// Device retrieves the parsed operator device description ("browser/os").
func Device(ctx context.Context) string {
	if device, ok := ctx.Value(deviceKey{}).(string); ok {
		return device
	}
	return ""
}

// WithDevice injects an operator device description into the context.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, deviceKey{}, device)
}
