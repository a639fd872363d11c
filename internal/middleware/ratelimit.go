package middleware

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"

	"github.com/agrisubsidy/backend/internal/services"
)

// LoginRateLimit throttles credential checks per client IP. Limiters are
// created on first sight of an address and kept for the process lifetime;
// the set stays small because the surface is a single login route.
func LoginRateLimit(r rate.Limit, burst int) func(http.Handler) http.Handler {
	var (
		mu       sync.Mutex
		limiters = make(map[string]*rate.Limiter)
	)

	limiterFor := func(addr string) *rate.Limiter {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		mu.Lock()
		defer mu.Unlock()
		limiter, ok := limiters[host]
		if !ok {
			limiter = rate.NewLimiter(r, burst)
			limiters[host] = limiter
		}
		return limiter
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiterFor(req.RemoteAddr).Allow() {
				services.SendErrorResponse(w, "Too many login attempts, slow down", http.StatusTooManyRequests, nil)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
