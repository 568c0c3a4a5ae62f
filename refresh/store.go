// Package refresh persists opaque refresh tokens, one record per token,
// keyed by the token's sha256. Rotation marks the presented record
// revoked instead of deleting it: a revoked record must stay observable
// so a later presentation can be classified as a benign race or reuse
// of a stolen token.
package refresh

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsdeck/authcore/internal"
)

// ErrBackendUnavailable wraps Redis transport failures.
var ErrBackendUnavailable = errors.New("refresh store backend unavailable")

const recordVersionV1 = 1

// Status classifies a presented refresh token.
type Status int

const (
	// StatusNotFound means no record exists for the token.
	StatusNotFound Status = iota
	// StatusExpired means the record's lifetime has passed.
	StatusExpired
	// StatusRevoked means the token was already consumed or revoked.
	StatusRevoked
	// StatusConsumed means the token was active and has now been
	// atomically marked revoked by this call.
	StatusConsumed
)

// Record is one refresh token row.
type Record struct {
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt time.Time // zero while active
}

// Active reports whether the record is neither revoked nor expired.
func (r *Record) Active(now time.Time) bool {
	return r.RevokedAt.IsZero() && now.Before(r.ExpiresAt)
}

// ConsumeResult is the outcome of presenting a token for rotation.
type ConsumeResult struct {
	Status    Status
	UserID    string
	RevokedAt time.Time // set for StatusRevoked and StatusConsumed
}

// consumeRefreshLua is the rotation compare-and-revoke. Reading the
// record's state and stamping it revoked happen in one script, so when
// two requests present the same token concurrently exactly one observes
// it active.
//
// Record layout (fixed offsets, big endian):
//
//	[0]     version
//	[1:9]   revokedAt unix millis, 0 while active
//	[9:17]  createdAt unix millis
//	[17:25] expiresAt unix millis
//	[25:27] userID length, then userID
//	[..:..] token length, then plaintext token
//
// KEYS[1] record key
// ARGV[1] current unix millis
//
// Returns {status, userID, revokedAt}:
//
//	0 not found
//	1 expired, record deleted
//	2 already revoked
//	3 consumed by this call
var consumeRefreshLua = redis.NewScript(`
local rec = redis.call('GET', KEYS[1])
if not rec then
  return {0, '', 0}
end

local function read_be64(off)
  local v = 0
  for i = off, off + 7 do
    v = v * 256 + string.byte(rec, i)
  end
  return v
end

local function write_be64(n)
  local out = ''
  for i = 1, 8 do
    out = string.char(n % 256) .. out
    n = math.floor(n / 256)
  end
  return out
end

local now = tonumber(ARGV[1])
local revoked = read_be64(2)
local expires = read_be64(18)

if expires <= now then
  redis.call('DEL', KEYS[1])
  return {1, '', 0}
end

local idlen = string.byte(rec, 26) * 256 + string.byte(rec, 27)
local uid = string.sub(rec, 28, 27 + idlen)

if revoked ~= 0 then
  return {2, uid, revoked}
end

local updated = string.sub(rec, 1, 1) .. write_be64(now) .. string.sub(rec, 10)
redis.call('SET', KEYS[1], updated, 'KEEPTTL')
return {3, uid, now}
`)

// Store keeps refresh token records and a per-user index set.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a refresh [Store] with the given token lifetime.
func NewStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "art"
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{redis: redisClient, prefix: prefix, ttl: ttl}
}

// TTL returns the configured refresh token lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

func (s *Store) recordKey(token string) string {
	return s.prefix + ":" + internal.HashToken(token)
}

func (s *Store) userSetKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists a freshly minted token and indexes it under the user.
func (s *Store) Save(ctx context.Context, userID, token string) error {
	now := time.Now()
	record, err := encodeRecord(&Record{
		Token:     token,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	if err != nil {
		return err
	}

	key := s.recordKey(token)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, record, s.ttl)
		pipe.SAdd(ctx, s.userSetKey(userID), key)
		pipe.Expire(ctx, s.userSetKey(userID), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Consume presents a token for rotation. An active token is marked
// revoked and StatusConsumed returned; every other state is reported
// without mutation so the caller can decide between the grace window
// and reuse handling.
func (s *Store) Consume(ctx context.Context, token string) (ConsumeResult, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	raw, err := consumeRefreshLua.Run(ctx, s.redis, []string{s.recordKey(token)}, now).Slice()
	if err != nil {
		return ConsumeResult{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(raw) != 3 {
		return ConsumeResult{}, errors.New("unexpected consume script reply")
	}

	status, ok := raw[0].(int64)
	if !ok {
		return ConsumeResult{}, errors.New("unexpected consume script reply")
	}
	res := ConsumeResult{Status: Status(status)}
	if uid, ok := raw[1].(string); ok {
		res.UserID = uid
	}
	if revoked, ok := raw[2].(int64); ok && revoked != 0 {
		res.RevokedAt = time.UnixMilli(revoked)
	}
	return res, nil
}

// Get returns the record for a token, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, token string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.recordKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return decodeRecord(data)
}

// NewestActive returns the user's most recently created active record,
// or (nil, nil) when none exists. Used to resolve the rotation race:
// the loser of a concurrent refresh is handed the winner's lineage.
func (s *Store) NewestActive(ctx context.Context, userID string) (*Record, error) {
	keys, err := s.redis.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Get(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	now := time.Now()
	var newest *Record
	var stale []any
	for i, cmd := range cmds {
		data, err := cmd.Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				stale = append(stale, keys[i])
			}
			continue
		}
		rec, err := decodeRecord(data)
		if err != nil {
			continue
		}
		if !rec.Active(now) {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}

	// Drop index members whose records have expired out from under us.
	if len(stale) > 0 {
		_ = s.redis.SRem(ctx, s.userSetKey(userID), stale...).Err()
	}
	return newest, nil
}

// RevokeAllForUser destroys the user's whole refresh lineage. Reuse
// containment and global logout both land here.
func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	keys, err := s.redis.SMembers(ctx, s.userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Del(ctx, key)
		}
		pipe.Del(ctx, s.userSetKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func encodeRecord(r *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	for _, ts := range []int64{unixMilliOrZero(r.RevokedAt), r.CreatedAt.UnixMilli(), r.ExpiresAt.UnixMilli()} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}
	for _, field := range []string{r.UserID, r.Token} {
		if len(field) > 65535 {
			return nil, errors.New("record field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(field))); err != nil {
			return nil, err
		}
		buf.WriteString(field)
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid refresh record version")
	}

	var revoked, created, expires int64
	for _, dst := range []*int64{&revoked, &created, &expires} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	rec := &Record{
		CreatedAt: time.UnixMilli(created),
		ExpiresAt: time.UnixMilli(expires),
	}
	if revoked != 0 {
		rec.RevokedAt = time.UnixMilli(revoked)
	}

	for _, dst := range []*string{&rec.UserID, &rec.Token} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*dst = string(field)
	}

	return rec, nil
}

func unixMilliOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
