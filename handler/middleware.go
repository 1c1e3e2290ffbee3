package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"tutor-gateway/internal/auth"
	"tutor-gateway/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// CorrelationMiddleware honors an inbound correlation id or generates one,
// echoes it on the response, and logs the request with it.
func CorrelationMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(correlationHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(correlationHeader, id)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"correlationId", id,
			)
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware verifies an optional bearer credential and attaches the
// subject identity to the request context. Verification failure degrades to
// anonymous; it never rejects the request here.
func AuthMiddleware(verifier auth.Verifier) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, reason := auth.ExtractBearerToken(r.Header.Get("Authorization"))
			if reason != "" {
				next.ServeHTTP(w, r)
				return
			}
			uid, err := verifier.Verify(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), uid)))
		})
	}
}

// CORSMiddleware enforces the explicit origin allow-list. Same-origin
// requests carry no Origin header and pass through untouched; cross-origin
// requests from unlisted origins are refused at the boundary.
func CORSMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o != "" {
			allowed[o] = struct{}{}
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[origin]; !ok {
				writeJSON(w, http.StatusForbidden, errorResponse{
					Error:   string(usecase.KindProcessingFailed),
					Message: "Origin is not allowed.",
				})
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Correlation-Id")
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
