package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type windowKey struct {
	client string
	window int64
}

// RateLimiter is a fixed-window counter per client.
type RateLimiter struct {
	maxRequests    int
	windowDuration time.Duration
	now            func() time.Time

	mu            sync.Mutex
	counters      map[windowKey]int
	currentWindow int64
}

func NewRateLimiter(maxRequests int, windowDuration time.Duration) *RateLimiter {
	if windowDuration <= 0 {
		windowDuration = time.Second
	}
	return &RateLimiter{
		maxRequests:    maxRequests,
		windowDuration: windowDuration,
		now:            time.Now,
		counters:       make(map[windowKey]int),
	}
}

func (rl *RateLimiter) getClientID(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

func (rl *RateLimiter) windowOf(t time.Time) int64 {
	return t.UnixNano() / int64(rl.windowDuration)
}

func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	window := rl.windowOf(rl.now())
	// edge case: drop every counter of earlier windows once time moves on
	if window != rl.currentWindow {
		for key := range rl.counters {
			if key.window != window {
				delete(rl.counters, key)
			}
		}
		rl.currentWindow = window
	}

	key := windowKey{client: clientID, window: window}
	if rl.counters[key] >= rl.maxRequests {
		return false
	}
	rl.counters[key]++
	return true
}

func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientID := rl.getClientID(c)

		if !rl.Allow(clientID) {
			log.Warn().
				Str("client_ip", clientID).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", rl.maxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests. Please try again later.",
			})
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Window", rl.windowDuration.String())

		return c.Next()
	}
}
