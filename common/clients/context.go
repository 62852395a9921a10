package clients

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	// TriggeredByKey is the context key for the actor that initiated a
	// transition (for the X-Triggered-By header).
	TriggeredByKey contextKey = "triggered-by"

	// Future context keys can be added here:
	// RequestIDKey contextKey = "request-id"
	// TraceIDKey   contextKey = "trace-id"
)

// WithTriggeredBy adds the triggering actor to the context. HTTPClient
// extracts it and adds it as an X-Triggered-By header.
func WithTriggeredBy(ctx context.Context, triggeredBy string) context.Context {
	return context.WithValue(ctx, TriggeredByKey, triggeredBy)
}

// GetTriggeredBy retrieves the triggering actor from context.
// Returns the value and true if found, empty string and false otherwise.
func GetTriggeredBy(ctx context.Context) (string, bool) {
	triggeredBy, ok := ctx.Value(TriggeredByKey).(string)
	return triggeredBy, ok && triggeredBy != ""
}
