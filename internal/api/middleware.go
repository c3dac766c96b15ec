package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// ipLimiters hands out one token bucket per client IP and prunes buckets
// that have gone quiet.
type ipLimiters struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	seen  map[string]*ipBucket
}

type ipBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiters(rps float64, burst int) *ipLimiters {
	l := &ipLimiters{
		limit: rate.Limit(rps),
		burst: burst,
		seen:  make(map[string]*ipBucket),
	}
	go l.prune(5 * time.Minute)
	return l
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.seen[ip]
	if !ok {
		b = &ipBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.seen[ip] = b
	}
	b.lastSeen = time.Now()
	return b.limiter
}

func (l *ipLimiters) prune(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-idle)
		l.mu.Lock()
		for ip, b := range l.seen {
			if b.lastSeen.Before(cutoff) {
				delete(l.seen, ip)
			}
		}
		l.mu.Unlock()
	}
}

// 20 req/s with burst 50 per client IP.
var apiLimiters = newIPLimiters(20, 50)

// RateLimitMiddleware rejects clients exceeding the per-IP budget.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !apiLimiters.get(ip).Allow() {
			log.Printf("[API] rate limit exceeded for %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"code": "RATE_LIMITED", "error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// CORSMiddleware answers preflights and opens the API to browser clients.
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// RequestIDMiddleware tags every request with an id, honoring one supplied by
// the client.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("RequestID", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	}
}

// TimeoutMiddleware bounds handler time; the handler runs on its own
// goroutine racing the deadline.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		panicked := make(chan any, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					panicked <- p
				}
			}()
			c.Next()
			close(done)
		}()

		select {
		case <-done:
		case p := <-panicked:
			log.Printf("[API] handler panic: %v", p)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": "INTERNAL_ERROR", "error": "internal server error"})
		case <-ctx.Done():
			log.Printf("[API] timeout: %s %s", c.Request.Method, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{"code": "REQUEST_TIMEOUT", "error": "request took too long to process"})
		}
	}
}

// RequestLogger logs method, path, status, latency and client for every
// request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Printf("[API] %s | %s %s | %d | %v | %s",
			shortID(c.GetString("RequestID")),
			method,
			path,
			c.Writer.Status(),
			time.Since(start),
			c.ClientIP(),
		)
	}
}

// shortID truncates a request id for log lines. Client-supplied ids can be
// arbitrarily short.
func shortID(id string) string {
	if id == "" {
		return "unknown"
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
