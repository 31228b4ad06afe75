package client

import "context"

type ctxKey int

const (
	endpointKey ctxKey = iota
	requestIDKey
)

// WithEndpoint labels requests made with ctx with a resource name for
// metrics and logs. Without it the label is "unknown".
func WithEndpoint(ctx context.Context, endpoint string) context.Context {
	return context.WithValue(ctx, endpointKey, endpoint)
}

// WithRequestID attaches an X-Request-ID value to requests made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// EndpointFromContext returns the resource name attached with WithEndpoint.
func EndpointFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(endpointKey).(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// RequestIDFromContext returns the request id attached with WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}
