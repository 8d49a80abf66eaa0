package ticket

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrNotFound is returned for tickets that were never issued or whose
	// TTL elapsed. The store cannot tell the two apart: an expired key is
	// simply gone.
	ErrNotFound = errors.New("ticket not found")
	// ErrInvalidTransition is returned when the current status is not the
	// expected predecessor.
	ErrInvalidTransition = errors.New("invalid ticket transition")
	// ErrAlreadyExists is returned by Save when the ticket id is taken.
	ErrAlreadyExists = errors.New("ticket already exists")
	// ErrStoreUnavailable wraps every Redis failure.
	ErrStoreUnavailable = errors.New("ticket store unavailable")
)

// TransitionError carries the status observed when a transition was
// rejected.
type TransitionError struct {
	Expected Status
	Current  Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid ticket transition: expected %s, found %s", e.Expected, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

const (
	transitionStatusNotFound = "0"
	transitionStatusApplied  = "1"
	transitionStatusMismatch = "2"
)

const createTicketScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], unpack(ARGV, 2))
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return 1
`

var createTicketLua = redis.NewScript(createTicketScript)

const transitionTicketScript = `
local key = KEYS[1]
local expected = ARGV[1]
local next_status = ARGV[2]
local prev_field = ARGV[3]
local ts_field = ARGV[4]
local now_ms = ARGV[5]
local user_id = ARGV[6]

local current = redis.call("HGET", key, "st")
if not current then
  return {"0"}
end
if current ~= expected then
  return {"2", current}
end

local prev = redis.call("HGET", key, prev_field) or "0"
if tonumber(now_ms) < tonumber(prev) then
  now_ms = prev
end

redis.call("HSET", key, "st", next_status, ts_field, now_ms)
if user_id ~= "" then
  redis.call("HSET", key, "uid", user_id)
end

local out = {"1"}
local all = redis.call("HGETALL", key)
for i = 1, #all do
  out[#out + 1] = all[i]
end
return out
`

var transitionTicketLua = redis.NewScript(transitionTicketScript)

// Store is a Redis-backed ticket store with per-key TTL and atomic
// compare-and-set status transitions.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a ticket [Store]. prefix sets the Redis key namespace.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "lqt"
	}
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(ticketID string) string {
	return s.prefix + ":" + ticketID
}

// Save persists a new ticket with the given TTL. It never overwrites an
// existing ticket.
//
//	Performance: 1 Redis round-trip (Lua).
func (s *Store) Save(ctx context.Context, r *Record, ttl time.Duration) error {
	if r == nil || r.ID == "" {
		return errors.New("ticket id required")
	}
	if ttl < time.Millisecond {
		return errors.New("ticket ttl must be >= 1ms")
	}
	fields, err := encodeFields(r)
	if err != nil {
		return err
	}

	args := make([]interface{}, 0, len(fields)+1)
	args = append(args, ttl.Milliseconds())
	args = append(args, fields...)

	created, err := createTicketLua.Run(ctx, s.redis, []string{s.key(r.ID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if created == 0 {
		return ErrAlreadyExists
	}
	return nil
}

// Get loads a ticket. Missing and expired tickets return [ErrNotFound].
func (s *Store) Get(ctx context.Context, ticketID string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.key(ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	r, err := decodeFields(ticketID, fields)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Transition atomically moves a ticket from one status to its successor.
// at is recorded as the entry time of the new status, clamped so it is
// never earlier than the previous step. userID is bound only when non-empty.
//
// The returned record reflects the state written by this call.
//
//	Performance: 1 Redis round-trip (Lua).
func (s *Store) Transition(
	ctx context.Context,
	ticketID string,
	from Status,
	to Status,
	userID string,
	at time.Time,
) (*Record, error) {
	next, ok := from.Next()
	if !ok || next != to {
		return nil, fmt.Errorf("ticket: %s cannot move to %s", from, to)
	}
	prevField, _ := timestampField(from)
	tsField, _ := timestampField(to)

	res, err := transitionTicketLua.Run(
		ctx,
		s.redis,
		[]string{s.key(ticketID)},
		strconv.Itoa(int(from)),
		strconv.Itoa(int(to)),
		prevField,
		tsField,
		strconv.FormatInt(at.UnixMilli(), 10),
		userID,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(res) == 0 {
		return nil, ErrCorruptRecord
	}

	code, _ := res[0].(string)
	switch code {
	case transitionStatusNotFound:
		return nil, ErrNotFound
	case transitionStatusMismatch:
		current := StatusInvalid
		if len(res) > 1 {
			if raw, ok := res[1].(string); ok {
				if n, err := strconv.Atoi(raw); err == nil {
					current = Status(n)
				}
			}
		}
		return nil, &TransitionError{Expected: from, Current: current}
	case transitionStatusApplied:
		fields, err := pairsToMap(res[1:])
		if err != nil {
			return nil, err
		}
		return decodeFields(ticketID, fields)
	default:
		return nil, ErrCorruptRecord
	}
}

// RemainingTTL returns how long the ticket stays reachable.
func (s *Store) RemainingTTL(ctx context.Context, ticketID string) (time.Duration, error) {
	ttl, err := s.redis.PTTL(ctx, s.key(ticketID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// -2: missing key. -1: no expiry, which a ticket must never have.
	if ttl == -2 {
		return 0, ErrNotFound
	}
	if ttl < 0 {
		return 0, ErrCorruptRecord
	}
	return ttl, nil
}
