package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/services/bidding/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Authenticator resolves a bearer token to the user it was issued for
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (model.User, error)
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":    c.Request.Method,
		"path":      c.Request.URL.Path,
		"status":    c.Writer.Status(),
		"latency":   time.Since(start).String(),
		"client_ip": c.ClientIP(),
	}
	if userID := c.GetString(helpers.ContextUserID); userID != "" {
		fields["user_id"] = userID
	}
	utils.Info("HTTP Request", fields)
}

// AuthMiddleware requires a valid "Authorization: Bearer <token>" header and
// stores the caller's id and role on the context.
func AuthMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abort(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "authentication required")
			return
		}

		user, err := authn.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			status, message := helpers.MapErrorToHTTP(err)
			if !errors.Is(err, biddingerrors.ErrUnauthorized) {
				utils.Error("AuthMiddleware: authentication failed", map[string]any{"error": err.Error()})
			}
			abort(c, status, err, message)
			return
		}

		c.Set(helpers.ContextUserID, user.ID)
		c.Set(helpers.ContextRole, string(user.Role))
		c.Next()
	}
}

// RequireRole rejects callers whose role is not in roles. It must run after
// AuthMiddleware.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, role := helpers.CurrentUser(c)
		if !role.In(roles...) {
			abort(c, http.StatusForbidden, biddingerrors.ErrForbidden, "not allowed")
			return
		}
		c.Next()
	}
}

// KeyFunc picks the bucket a request is counted against
type KeyFunc func(c *gin.Context) string

// ByClientIP counts requests per remote address
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// ByUserOrIP counts authenticated requests per user and the rest per address
func ByUserOrIP(c *gin.Context) string {
	if userID := c.GetString(helpers.ContextUserID); userID != "" {
		return "user:" + userID
	}
	return "ip:" + c.ClientIP()
}

const visitorTTL = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type keyedRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
	done     chan struct{}
}

// newKeyedRateLimiter evicts idle visitors every visitorTTL until ctx ends
func newKeyedRateLimiter(ctx context.Context, rps float64, burst int) *keyedRateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	rl := &keyedRateLimiter{
		visitors: make(map[string]*visitor),
		rps:      limit,
		burst:    burst,
		done:     make(chan struct{}),
	}
	go rl.cleanup(ctx, visitorTTL)
	return rl
}

func (rl *keyedRateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[key]
	if !exists {
		limiter := rate.NewLimiter(rl.rps, rl.burst)
		rl.visitors[key] = &visitor{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

func (rl *keyedRateLimiter) cleanup(ctx context.Context, every time.Duration) {
	defer close(rl.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// evict drops visitors idle for longer than visitorTTL
func (rl *keyedRateLimiter) evict(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for key, v := range rl.visitors {
		if now.Sub(v.lastSeen) > visitorTTL {
			delete(rl.visitors, key)
			evicted++
		}
	}
	return evicted
}

// RateLimit limits requests per key to rps with the given burst. A
// non-positive rps disables the limit. Idle keys are forgotten until ctx
// is cancelled.
func RateLimit(ctx context.Context, rps float64, burst int, key KeyFunc) gin.HandlerFunc {
	limiter := newKeyedRateLimiter(ctx, rps, burst)

	return func(c *gin.Context) {
		k := key(c)
		if !limiter.getLimiter(k).Allow() {
			utils.Warn("RateLimit: request throttled", map[string]any{"key": k, "path": c.FullPath()})
			abort(c, http.StatusTooManyRequests, errors.New("rate limit exceeded"), "too many requests")
			return
		}
		c.Next()
	}
}

func abort(c *gin.Context, status int, err error, message string) {
	utils.JSONError(c, status, err, message)
	c.Abort()
}
