// Package trust keeps the per-(user, origin-address) ledger of previously
// verified access. A login from a recorded pair skips the OTP challenge.
package trust

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBackendUnavailable wraps Redis transport failures.
var ErrBackendUnavailable = errors.New("trust ledger backend unavailable")

const recordVersionV1 = 1

// Entry is one trusted-origin record. At most one entry exists per
// (user, origin) pair; re-trusting updates it in place.
type Entry struct {
	LastUsedAt time.Time
	UserAgent  string
}

// Ledger stores trusted origins as one Redis hash per user, keyed by
// origin address. Entries carry no TTL: a trusted origin stays trusted
// until the account is deleted.
type Ledger struct {
	redis  redis.UniversalClient
	prefix string
}

// NewLedger creates a trust [Ledger] with the given key namespace.
func NewLedger(redisClient redis.UniversalClient, prefix string) *Ledger {
	if prefix == "" {
		prefix = "atl"
	}
	return &Ledger{redis: redisClient, prefix: prefix}
}

func (l *Ledger) key(userID string) string {
	return l.prefix + ":" + userID
}

// IsTrusted reports whether the pair has completed OTP verification
// before. Empty origins are never trusted.
func (l *Ledger) IsTrusted(ctx context.Context, userID, originAddress string) (bool, error) {
	if userID == "" || originAddress == "" {
		return false, nil
	}

	ok, err := l.redis.HExists(ctx, l.key(userID), originAddress).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return ok, nil
}

// MarkTrusted upserts the ledger entry for the pair, refreshing
// LastUsedAt and the recorded user agent. Empty origins are silently
// ignored so an unknown address can never accumulate trust.
func (l *Ledger) MarkTrusted(ctx context.Context, userID, originAddress, userAgent string) error {
	if userID == "" || originAddress == "" {
		return nil
	}

	encoded, err := encodeEntry(&Entry{LastUsedAt: time.Now(), UserAgent: userAgent})
	if err != nil {
		return err
	}
	if err := l.redis.HSet(ctx, l.key(userID), originAddress, encoded).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Get returns the entry for the pair, or (nil, nil) when absent.
func (l *Ledger) Get(ctx context.Context, userID, originAddress string) (*Entry, error) {
	if userID == "" || originAddress == "" {
		return nil, nil
	}

	data, err := l.redis.HGet(ctx, l.key(userID), originAddress).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return decodeEntry(data)
}

// Forget removes every trusted origin for the user. Account-deletion
// cascade only; individual origins are never forgotten.
func (l *Ledger) Forget(ctx context.Context, userID string) error {
	if err := l.redis.Del(ctx, l.key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func encodeEntry(e *Entry) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(recordVersionV1)
	if err := binary.Write(&buf, binary.BigEndian, e.LastUsedAt.Unix()); err != nil {
		return nil, err
	}
	if len(e.UserAgent) > 65535 {
		return nil, errors.New("user agent too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(e.UserAgent))); err != nil {
		return nil, err
	}
	buf.WriteString(e.UserAgent)

	return buf.Bytes(), nil
}

func decodeEntry(data []byte) (*Entry, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordVersionV1 {
		return nil, errors.New("invalid trust entry version")
	}

	var lastUsed int64
	if err := binary.Read(reader, binary.BigEndian, &lastUsed); err != nil {
		return nil, err
	}

	var uaLen uint16
	if err := binary.Read(reader, binary.BigEndian, &uaLen); err != nil {
		return nil, err
	}
	ua := make([]byte, uaLen)
	if _, err := io.ReadFull(reader, ua); err != nil {
		return nil, err
	}

	return &Entry{
		LastUsedAt: time.Unix(lastUsed, 0),
		UserAgent:  string(ua),
	}, nil
}
