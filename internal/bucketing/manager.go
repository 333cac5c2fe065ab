package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/html-librarian/mig-catalog/internal/config"
)

// Manager assigns consistent buckets for partitioned storage. Users hash to
// a fixed bucket so their rows land on the same partition, and security
// events get a date bucket for time-series partitioning.
type Manager struct {
	userBuckets  int
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg config.BucketingConfig) *Manager {
	m := &Manager{
		userBuckets:  cfg.UserBuckets,
		eventBuckets: cfg.EventBuckets,
	}

	// Pool the hashers to avoid per-call allocation on hot paths.
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// UserBucket returns the partition bucket for a user id (0 to userBuckets-1).
func (m *Manager) UserBucket(userID uuid.UUID) int {
	return m.bucket(userID.String(), m.userBuckets)
}

// EventBucket returns the partition bucket for an event identifier.
func (m *Manager) EventBucket(identifier string) int {
	return m.bucket(identifier, m.eventBuckets)
}

// DateBucket returns the UTC date partition for time-series events.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (m *Manager) bucket(key string, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}
	return int(m.hash(key) % uint64(numBuckets))
}

func (m *Manager) hash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
