package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"attendify-backend/internal/ratelimit"
)

// RateLimiter throttles requests per authenticated caller, falling back to the
// client address for anonymous requests.
type RateLimiter struct {
	limiter ratelimit.Limiter
	prefix  string
}

func NewRateLimiter(limiter ratelimit.Limiter, prefix string) *RateLimiter {
	return &RateLimiter{limiter: limiter, prefix: prefix}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if id := GetUserID(r.Context()); id != uuid.Nil {
			key = id.String()
		}

		ok, err := rl.limiter.Allow(r.Context(), rl.prefix+key)
		if err != nil {
			// Fail open on limiter errors.
			log.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}

		next.ServeHTTP(w, r)
	})
}
