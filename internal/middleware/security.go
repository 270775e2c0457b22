package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SecurityConfig holds security middleware configuration
type SecurityConfig struct {
	MaxRequestSize    int64
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequireHTTPS      bool
}

// DefaultSecurityConfig returns default security configuration
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxRequestSize:    1 * 1024 * 1024, // 1MB
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RequireHTTPS:      false, // Set to true in production behind a TLS proxy
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipLimiter hands out one token bucket per client IP
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	every    rate.Limit
	burst    int
	idle     time.Duration
}

func newIPLimiter(requests int, window time.Duration) *ipLimiter {
	if requests <= 0 {
		requests = 1
	}
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		every:    rate.Every(window / time.Duration(requests)),
		burst:    requests,
		idle:     3 * window,
	}
}

func (l *ipLimiter) allow(ip string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, exists := l.visitors[ip]
	if !exists {
		if len(l.visitors) >= 10000 {
			l.prune(now)
		}
		v = &visitor{limiter: rate.NewLimiter(l.every, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

// prune drops visitors idle for longer than the window; callers hold mu
func (l *ipLimiter) prune(now time.Time) {
	for ip, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.idle {
			delete(l.visitors, ip)
		}
	}
}

// AuthRateLimitMiddleware applies a stricter per-IP limit to credential endpoints
func AuthRateLimitMiddleware(requests int, window time.Duration) gin.HandlerFunc {
	limiter := newIPLimiter(requests, window)

	return func(c *gin.Context) {
		if !limiter.allow(c.ClientIP(), time.Now()) {
			zap.L().Warn("auth rate limit exceeded", zap.String("ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Too many authentication attempts",
				"code":    "rate_limited",
			})
			return
		}
		c.Next()
	}
}

// SecurityMiddleware limits request size and rate, checks body content types
// and sets security headers
func SecurityMiddleware(config *SecurityConfig) gin.HandlerFunc {
	if config == nil {
		config = DefaultSecurityConfig()
	}

	limiter := newIPLimiter(config.RateLimitRequests, config.RateLimitWindow)

	validContentTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}

	return func(c *gin.Context) {
		// 1. Request size validation
		if c.Request.ContentLength > config.MaxRequestSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"success": false,
				"error":   "Request body too large",
				"code":    "request_too_large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, config.MaxRequestSize)

		// 2. Rate limiting per IP
		clientIP := c.ClientIP()
		if !limiter.allow(clientIP, time.Now()) {
			zap.L().Warn("rate limit exceeded",
				zap.String("ip", clientIP),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
			)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Rate limit exceeded",
				"code":    "rate_limited",
			})
			return
		}

		// 3. Content-Type validation for requests with a body
		if (c.Request.Method == http.MethodPost || c.Request.Method == http.MethodPut || c.Request.Method == http.MethodPatch) &&
			c.Request.ContentLength != 0 {
			contentType := c.GetHeader("Content-Type")
			isValid := false
			for _, validType := range validContentTypes {
				if strings.Contains(contentType, validType) {
					isValid = true
					break
				}
			}
			if !isValid {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
					"success": false,
					"error":   "Unsupported content type: " + contentType,
					"code":    "unsupported_media_type",
				})
				return
			}
		}

		// 4. Security headers
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy", "default-src 'self'")

		// 5. HTTPS enforcement (if enabled)
		if config.RequireHTTPS && c.Request.Header.Get("X-Forwarded-Proto") != "https" {
			c.AbortWithStatusJSON(http.StatusUpgradeRequired, gin.H{
				"success": false,
				"error":   "HTTPS required",
				"code":    "https_required",
			})
			return
		}

		c.Next()
	}
}
