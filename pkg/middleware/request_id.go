package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/maptoposter/poster-api/pkg/log"
)

const (
	// RequestIDHeader carries the request id in and out of the service.
	RequestIDHeader = "X-Request-Id"
)

// RequestID takes the request id from the X-Request-Id header, falls back to the one
// chi generated and finally to a fresh uuid. The id is echoed in the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), requestID)))
	})
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, log.RequestIDKey, requestID)
}

// RequestIDFromContext returns an empty string when no id was attached.
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(log.RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}
