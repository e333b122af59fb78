package shuffle

import (
	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Adithya-Monish-Kumar-K/Distributed-TFIDF-Pipeline/pkg/errors"
)

// Router maps a message to one of numPartitions reducers.
type Router interface {
	Route(msg Message, numPartitions int) (int, error)
}

// HashRouter routes data by key hash and control messages by their
// explicit target. It is stateless and safe for concurrent use.
type HashRouter struct{}

// NewHashRouter returns the default router.
func NewHashRouter() HashRouter {
	return HashRouter{}
}

// Route implements Router. A control message whose target lies outside
// [0, numPartitions) is a configuration error; it is never re-routed by hash.
func (HashRouter) Route(msg Message, numPartitions int) (int, error) {
	if numPartitions < 1 {
		return 0, apperrors.Newf(apperrors.ErrRouting, "numPartitions must be >= 1, got %d", numPartitions)
	}
	if msg.Kind == KindControl {
		if msg.Target < 0 || msg.Target >= numPartitions {
			return 0, apperrors.Newf(apperrors.ErrRouting,
				"control %q targets partition %d (valid range: 0-%d)", msg.Key, msg.Target, numPartitions-1)
		}
		return msg.Target, nil
	}
	if msg.Kind != KindData {
		return 0, apperrors.Newf(apperrors.ErrRouting, "message %q has unknown kind %d", msg.Key, msg.Kind)
	}
	return HashPartition(msg.Key, numPartitions), nil
}

// KeyHash is the stable 63-bit hash of a data key.
func KeyHash(key string) uint64 {
	return xxhash.Sum64String(key) & 0x7fffffffffffffff
}

// HashPartition returns abs(hash(key)) mod numPartitions.
func HashPartition(key string, numPartitions int) int {
	return int(KeyHash(key) % uint64(numPartitions))
}
