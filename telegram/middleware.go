// Package telegram: middleware for rate limiting and logging.
package telegram

import (
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RateLimiter tracks the last message time per user.
type RateLimiter struct {
	mu        sync.Mutex
	lastSeen  map[int64]time.Time
	threshold time.Duration
}

// NewRateLimiter creates a rate limiter with the given minimum interval
// between messages from the same user.
func NewRateLimiter(threshold time.Duration) *RateLimiter {
	return &RateLimiter{
		lastSeen:  make(map[int64]time.Time),
		threshold: threshold,
	}
}

// Allow reports whether the user is within the rate limit and records the
// attempt when allowed.
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	lastTime, exists := rl.lastSeen[userID]
	if !exists || now.Sub(lastTime) > rl.threshold {
		rl.lastSeen[userID] = now
		return true
	}

	return false
}

// LoggingMiddleware logs every incoming message update.
func LoggingMiddleware(update *tgbotapi.Update) (bool, error) {
	if update.Message != nil {
		log.Printf("[TELEGRAM] User %d (%s), chat %d: %q",
			update.Message.From.ID,
			update.Message.From.UserName,
			update.Message.Chat.ID,
			update.Message.Text,
		)
	}
	return true, nil
}

// RateLimitMiddleware drops messages from users sending faster than the
// limiter allows.
func RateLimitMiddleware(limiter *RateLimiter) Middleware {
	return func(update *tgbotapi.Update) (bool, error) {
		if update.Message == nil {
			return true, nil
		}

		userID := update.Message.From.ID
		if !limiter.Allow(userID) {
			log.Printf("[TELEGRAM] Rate limit triggered for user %d", userID)
			return false, nil
		}
		return true, nil
	}
}
