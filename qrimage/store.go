package qrimage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned for images that were never stored or expired.
	ErrNotFound = errors.New("qr image not found")
	// ErrStoreUnavailable wraps Redis failures.
	ErrStoreUnavailable = errors.New("qr image store unavailable")
)

// Store keeps rendered images in Redis next to their tickets.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates an image [Store]. prefix defaults to "lqi".
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "lqi"
	}
	return &Store{redis: redisClient, prefix: prefix}
}

func (s *Store) key(ticketID string) string {
	return s.prefix + ":" + ticketID
}

// Put stores png for ticketID with ttl.
func (s *Store) Put(ctx context.Context, ticketID string, png []byte, ttl time.Duration) error {
	if ttl < time.Millisecond {
		return errors.New("qr image ttl must be >= 1ms")
	}
	if err := s.redis.Set(ctx, s.key(ticketID), png, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Get loads the image for ticketID.
func (s *Store) Get(ctx context.Context, ticketID string) ([]byte, error) {
	png, err := s.redis.Get(ctx, s.key(ticketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return png, nil
}
