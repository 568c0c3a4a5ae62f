// Package otp manages the one-time-code challenges issued to logins
// from unverified origins. A challenge is keyed by (user, origin), so
// issuing a new code replaces any pending one and only a single code is
// ever actionable per pair.
package otp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsdeck/authcore/internal"
)

// ErrBackendUnavailable wraps Redis transport failures.
var ErrBackendUnavailable = errors.New("otp store backend unavailable")

const recordVersionV1 = 1

// Status is the outcome of a verification attempt.
type Status int

const (
	// StatusMissing means no challenge is pending or it has expired.
	StatusMissing Status = iota
	// StatusExhausted means the attempt budget is spent and the
	// challenge has been invalidated.
	StatusExhausted
	// StatusMismatch means the code was wrong but attempts remain.
	StatusMismatch
	// StatusOK means the code matched and the challenge is consumed.
	StatusOK
)

// VerifyResult carries the outcome and, on mismatch, the attempts left.
type VerifyResult struct {
	Status    Status
	Remaining int
}

// verifyChallengeLua consumes one attempt atomically. Check, attempt
// accounting and deletion happen in a single script so two concurrent
// submissions can never both succeed or overspend the budget.
//
// KEYS[1] challenge key
// ARGV[1] sha256 of the submitted code (raw bytes)
// ARGV[2] current unix time
//
// Returns {status, remaining}:
//
//	0 missing or expired
//	1 attempts exhausted, challenge deleted
//	2 mismatch, remaining attempts in second slot
//	3 match, challenge deleted
var verifyChallengeLua = redis.NewScript(`
local rec = redis.call('GET', KEYS[1])
if not rec then
  return {0, 0}
end

local attempts = string.byte(rec, 2)
local max = string.byte(rec, 3)

local expires = 0
for i = 4, 11 do
  expires = expires * 256 + string.byte(rec, i)
end
if expires <= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  return {0, 0}
end

if attempts >= max then
  redis.call('DEL', KEYS[1])
  return {1, 0}
end

if string.sub(rec, 12, 43) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return {3, 0}
end

attempts = attempts + 1
if attempts >= max then
  redis.call('DEL', KEYS[1])
  return {1, 0}
end

local updated = string.sub(rec, 1, 1) .. string.char(attempts) .. string.sub(rec, 3)
redis.call('SET', KEYS[1], updated, 'KEEPTTL')
return {2, max - attempts}
`)

// Store keeps pending challenges in Redis.
type Store struct {
	redis       redis.UniversalClient
	prefix      string
	ttl         time.Duration
	maxAttempts int
}

// NewStore creates a challenge [Store].
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration, maxAttempts int) *Store {
	if prefix == "" {
		prefix = "aoc"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 || maxAttempts > 255 {
		maxAttempts = 5
	}
	return &Store{redis: redisClient, prefix: prefix, ttl: ttl, maxAttempts: maxAttempts}
}

func (s *Store) key(userID, originAddress string) string {
	return s.prefix + ":" + userID + ":" + originAddress
}

// Save stores a fresh challenge for the pair, replacing any pending
// one. Only the code's sha256 is persisted.
func (s *Store) Save(ctx context.Context, userID, originAddress, code, userAgent string) error {
	record, err := encodeRecord(code, userAgent, s.maxAttempts, time.Now().Add(s.ttl))
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(userID, originAddress), record, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Verify burns one attempt against the pending challenge. Both success
// and exhaustion remove the challenge.
func (s *Store) Verify(ctx context.Context, userID, originAddress, code string) (VerifyResult, error) {
	hash := internal.HashCode(code)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	raw, err := verifyChallengeLua.Run(ctx, s.redis, []string{s.key(userID, originAddress)}, string(hash[:]), now).Int64Slice()
	if err != nil {
		return VerifyResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(raw) != 2 {
		return VerifyResult{}, errors.New("unexpected verify script reply")
	}
	return VerifyResult{Status: Status(raw[0]), Remaining: int(raw[1])}, nil
}

// Drop removes any pending challenge for the pair.
func (s *Store) Drop(ctx context.Context, userID, originAddress string) error {
	if err := s.redis.Del(ctx, s.key(userID, originAddress)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func encodeRecord(code, userAgent string, maxAttempts int, expiresAt time.Time) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	buf.WriteByte(0) // attempts used
	buf.WriteByte(byte(maxAttempts))
	if err := binary.Write(&buf, binary.BigEndian, expiresAt.Unix()); err != nil {
		return nil, err
	}
	hash := internal.HashCode(code)
	buf.Write(hash[:])
	if len(userAgent) > 65535 {
		return nil, errors.New("user agent too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(userAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(userAgent)

	return buf.Bytes(), nil
}
