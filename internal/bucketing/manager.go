package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"insurego-auth/internal/config"
)

// BucketingManager assigns identifiers to stable buckets. Audit events are
// partitioned by event bucket; throttle windows use time buckets so keys
// roll over deterministically.
type BucketingManager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	bm := &BucketingManager{
		eventBuckets: cfg.Bucketing.EventBuckets,
	}

	// Pool of hash states to avoid per-call allocation on the hot path.
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetEventBucket returns a consistent bucket in [0, eventBuckets) for key.
func (bm *BucketingManager) GetEventBucket(key string) int {
	return int(bm.getHash(key) % uint64(bm.eventBuckets))
}

// GetTimeBucket returns the start of the current window of windowSeconds,
// as a Unix timestamp.
func (bm *BucketingManager) GetTimeBucket(windowSeconds int) int64 {
	return time.Now().Unix() / int64(windowSeconds) * int64(windowSeconds)
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}

// EventBuckets returns the configured number of event buckets.
func (bm *BucketingManager) EventBuckets() int {
	return bm.eventBuckets
}
