package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters.
type Config struct {
	EnableIssueThrottle bool
	MaxIssuesPerIP      int
	IssueWindow         time.Duration
	EnablePollThrottle  bool
	MaxPollsPerTicket   int
	PollWindow          time.Duration
}

// Limiter enforces per-IP ticket issuance and per-ticket poll budgets using
// Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckIssue counts one ticket issuance for ip. Requests without an IP are
// not throttled.
func (l *Limiter) CheckIssue(ctx context.Context, ip string) error {
	if !l.config.EnableIssueThrottle || ip == "" {
		return nil
	}
	return l.hit(ctx, issueIPKey(ip), l.config.MaxIssuesPerIP, l.config.IssueWindow)
}

// CheckPoll counts one poll of ticketID.
func (l *Limiter) CheckPoll(ctx context.Context, ticketID string) error {
	if !l.config.EnablePollThrottle {
		return nil
	}
	return l.hit(ctx, pollTicketKey(ticketID), l.config.MaxPollsPerTicket, l.config.PollWindow)
}

func (l *Limiter) hit(ctx context.Context, key string, limit int, window time.Duration) error {
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(limit) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
