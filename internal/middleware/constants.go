package middleware

// unknownRoute is the route label used when gin matched no route.
const unknownRoute = "unknown"

// HTTP header constants.
const (
	// HeaderRetryAfter is the Retry-After header name.
	HeaderRetryAfter = "Retry-After"

	// HeaderXRequestID is the X-Request-ID header name.
	HeaderXRequestID = "X-Request-ID"
)

// Context keys set on the gin context.
const (
	// RequestIDKey holds the request ID.
	RequestIDKey = "requestID"

	// SpanKey holds the server span.
	SpanKey = "otel-span"
)

// Error response messages.
const (
	// ErrRateLimitExceeded is the error message for rate limit exceeded.
	ErrRateLimitExceeded = "Rate limit exceeded"

	// ErrInternalServerError is the error message for recovered panics.
	ErrInternalServerError = "Internal server error"
)
