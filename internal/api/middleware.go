package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// requestLogger emits one structured line per request and feeds the
// HTTP metrics, labeled by the matched route pattern rather than the
// raw path.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		duration := time.Since(start)
		s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
		s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", duration),
			zap.String("requestID", middleware.GetReqID(r.Context())))
	})
}

// adminAuth guards the operator surface. With no admin token
// configured every request is refused.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok || s.adminToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "Missing or invalid authorization token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type ctxKey int

const botIDKey ctxKey = 0

// workerAuth validates the bearer token against the bot named in the
// path and stashes the bot id for the handler. An unknown bot and a
// bad token get the same 401.
func (s *Server) workerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "Missing or invalid authorization token")
			return
		}
		botID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "Invalid bot ID or registration token")
			return
		}
		if _, err := s.lifecycle.GetBotWithToken(r.Context(), botID, token); err != nil {
			s.writeError(w, http.StatusUnauthorized, "Invalid bot ID or registration token")
			return
		}
		ctx := context.WithValue(r.Context(), botIDKey, botID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// workerBotID returns the bot id workerAuth placed on the context.
func workerBotID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(botIDKey).(uuid.UUID)
	return id
}

// bearerToken extracts the token after the "Bearer " prefix; a
// missing header or empty token reports false.
func bearerToken(r *http.Request) (string, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
