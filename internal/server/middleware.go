package server

import (
	"context"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	RequestIDHeader = "X-PrivyLens-Request-Id"
	FacesHeader     = "X-PrivyLens-Faces"
	RegionsHeader   = "X-PrivyLens-Regions"
	DegradedHeader  = "X-PrivyLens-Degraded"
)

// RequestID tags every request with a UUID, reusing a valid incoming
// X-PrivyLens-Request-Id. The ID is readable with middleware.GetReqID.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CORSMiddleware allows cross-origin calls from allowedOrigins only. "*"
// allows every origin. Preflights from other origins are refused.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := origin != "" && (allowAll || slices.Contains(allowedOrigins, origin))
			h := w.Header()
			h.Add("Vary", "Origin")
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Cache-Control, Content-Type, "+RequestIDHeader)
				h.Set("Access-Control-Expose-Headers", strings.Join([]string{RequestIDHeader, FacesHeader, RegionsHeader, DegradedHeader}, ", "))
				h.Set("Access-Control-Max-Age", "300")
			}
			if r.Method == http.MethodOptions && origin != "" {
				if !allowed {
					writeError(w, http.StatusForbidden, "Not allowed by CORS", "")
					return
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxTrackedClients bounds the per-client limiter map.
const maxTrackedClients = 10_000

// RateLimiter enforces per-client and global request rate limits with
// token buckets. A zero rate disables that limit.
type RateLimiter struct {
	mu        sync.Mutex
	global    *rate.Limiter
	clients   map[string]*rate.Limiter
	perClient rate.Limit
	burst     int
}

// NewRateLimiter creates a limiter allowing globalRPM requests per minute
// overall and perClientRPM per client.
func NewRateLimiter(globalRPM, perClientRPM int) *RateLimiter {
	rl := &RateLimiter{
		clients:   make(map[string]*rate.Limiter),
		perClient: rate.Limit(float64(perClientRPM) / 60.0),
		burst:     max(perClientRPM, 1),
	}
	if globalRPM > 0 {
		rl.global = rate.NewLimiter(rate.Limit(float64(globalRPM)/60.0), globalRPM)
	}
	if perClientRPM <= 0 {
		rl.perClient = rate.Inf
	}
	return rl
}

// Allow reports whether a request from client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	if rl.global != nil && !rl.global.Allow() {
		return false
	}
	if rl.perClient == rate.Inf {
		return true
	}
	rl.mu.Lock()
	limiter, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			clear(rl.clients)
		}
		limiter = rate.NewLimiter(rl.perClient, rl.burst)
		rl.clients[client] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// Middleware answers 429 once the caller's IP exceeds its budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Too many requests", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
