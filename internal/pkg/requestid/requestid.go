package requestid

import "context"

// Header is the HTTP header carrying the request ID in both directions.
const Header = "X-Request-ID"

type contextKey struct{}

// WithContext returns a context carrying id.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request ID, or "" when none is set.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
