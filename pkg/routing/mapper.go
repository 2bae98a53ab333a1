package routing

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrIdentityUnresolvable is returned when a channel identity cannot be
// mapped to an internal user id.
var ErrIdentityUnresolvable = errors.New("identity unresolvable")

// IdentityMapper maps a channel-native sender id to an internal user id.
// Implementations must be idempotent for a given (channel, nativeID) pair.
type IdentityMapper interface {
	Resolve(ctx context.Context, channel, nativeID string) (int64, error)
}

// NativeIDLookup is implemented by mappers that can go back from an internal
// user id to the native id on a channel.
type NativeIDLookup interface {
	NativeID(ctx context.Context, userID int64, channel string) (string, bool, error)
}

// IdentityMapperFunc adapts a function to IdentityMapper.
type IdentityMapperFunc func(ctx context.Context, channel, nativeID string) (int64, error)

func (f IdentityMapperFunc) Resolve(ctx context.Context, channel, nativeID string) (int64, error) {
	return f(ctx, channel, nativeID)
}

// HashMapper is the default mapper. Numeric Telegram ids pass through; every
// other identity becomes the first 32 bits of sha256("channel:nativeID").
// Resolved pairs are remembered so replies can find the native id again.
type HashMapper struct {
	mu      sync.RWMutex
	reverse map[reverseKey]string
}

type reverseKey struct {
	userID  int64
	channel string
}

// NewHashMapper creates the default mapper.
func NewHashMapper() *HashMapper {
	return &HashMapper{reverse: make(map[reverseKey]string)}
}

// Resolve implements IdentityMapper.
func (m *HashMapper) Resolve(_ context.Context, channel, nativeID string) (int64, error) {
	if nativeID == "" {
		return 0, ErrIdentityUnresolvable
	}

	id := HashIdentity(channel, nativeID)

	m.mu.Lock()
	m.reverse[reverseKey{userID: id, channel: channel}] = nativeID
	m.mu.Unlock()

	log.Debug().Str("channel", channel).Int64("user_id", id).Msg("Mapped channel identity")
	return id, nil
}

// NativeID implements NativeIDLookup for identities resolved by this process.
func (m *HashMapper) NativeID(_ context.Context, userID int64, channel string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	native, ok := m.reverse[reverseKey{userID: userID, channel: channel}]
	return native, ok, nil
}

// hashedIDTag marks ids derived by hashing. Bit 62 keeps them positive and
// above every native Telegram id, so the two spaces never overlap.
const hashedIDTag = int64(1) << 62

// HashIdentity is the stateless mapping HashMapper applies. Numeric Telegram
// ids pass through; anything else becomes hashedIDTag plus 62 bits of
// sha256(channel + ":" + nativeID).
func HashIdentity(channel, nativeID string) int64 {
	if channel == "telegram" {
		if id, err := strconv.ParseInt(nativeID, 10, 64); err == nil {
			return id
		}
	}

	sum := sha256.Sum256([]byte(channel + ":" + nativeID))
	bits := int64(binary.BigEndian.Uint64(sum[:8]) & uint64(hashedIDTag-1))
	return hashedIDTag | bits
}
