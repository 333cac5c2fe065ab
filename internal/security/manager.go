package security

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// EventSink receives security events for auditing. Implementations must not
// block the request path; delivery is best effort.
type EventSink interface {
	Record(event models.SecurityEvent)
}

// failedAttemptRecord tracks authentication failures from one source.
type failedAttemptRecord struct {
	count        int
	firstAttempt time.Time
	lastAttempt  time.Time
	endpoints    map[string]struct{}
	lockoutUntil time.Time
}

// Manager tracks failed authentication attempts per source identifier and
// enforces temporary lockouts. State lives in process memory only and is
// rebuilt from empty on restart.
type Manager struct {
	maxAttempts     int
	attemptWindow   time.Duration
	lockoutDuration time.Duration
	logger          *zap.Logger
	sink            EventSink

	mu       sync.Mutex
	attempts map[string]*failedAttemptRecord
	now      func() time.Time
}

// NewManager builds a security manager. sink may be nil.
func NewManager(cfg config.SecurityConfig, logger *zap.Logger, sink EventSink) *Manager {
	return &Manager{
		maxAttempts:     cfg.MaxFailedAttempts,
		attemptWindow:   cfg.AttemptWindow,
		lockoutDuration: cfg.LockoutDuration,
		logger:          logger,
		sink:            sink,
		attempts:        make(map[string]*failedAttemptRecord),
		now:             time.Now,
	}
}

// RecordFailure registers a failed authentication attempt from sourceID on
// endpoint. Reaching the attempt threshold within the tracked window locks
// the source out for the configured duration. A record whose first attempt
// is older than the window is reset before counting.
func (m *Manager) RecordFailure(sourceID, endpoint string) {
	now := m.now()

	m.mu.Lock()
	rec, ok := m.attempts[sourceID]
	if ok && now.Sub(rec.firstAttempt) > m.attemptWindow {
		// Stale record: the rolling window has passed, start over.
		delete(m.attempts, sourceID)
		ok = false
	}
	if !ok {
		rec = &failedAttemptRecord{
			firstAttempt: now,
			endpoints:    make(map[string]struct{}),
		}
		m.attempts[sourceID] = rec
	}

	rec.count++
	rec.lastAttempt = now
	rec.endpoints[endpoint] = struct{}{}

	locked := false
	if rec.count >= m.maxAttempts && rec.lockoutUntil.IsZero() {
		rec.lockoutUntil = now.Add(m.lockoutDuration)
		locked = true
	}
	count := rec.count
	m.mu.Unlock()

	if locked {
		m.logger.Warn("source locked out after repeated failures",
			util.String("source_id", sourceID),
			util.Int("failed_attempts", count),
			util.Duration("lockout", m.lockoutDuration))
		m.emit(models.EventLockout, sourceID, endpoint, "")
	} else {
		m.emit(models.EventAuthFailure, sourceID, endpoint, "")
	}
}

// IsLockedOut reports whether sourceID is currently locked out. Expired
// lockouts are cleaned up lazily on the first check after expiry.
func (m *Manager) IsLockedOut(sourceID string) bool {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.attempts[sourceID]
	if !ok {
		return false
	}
	if rec.lockoutUntil.IsZero() {
		if now.Sub(rec.firstAttempt) > m.attemptWindow {
			delete(m.attempts, sourceID)
		}
		return false
	}
	if now.Before(rec.lockoutUntil) {
		return true
	}

	// Lockout expired, drop the record so the source starts clean.
	delete(m.attempts, sourceID)
	return false
}

// Reset clears the failure record for a source after a successful
// authentication. An active lockout is not cleared.
func (m *Manager) Reset(sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.attempts[sourceID]
	if !ok {
		return
	}
	if !rec.lockoutUntil.IsZero() && m.now().Before(rec.lockoutUntil) {
		return
	}
	delete(m.attempts, sourceID)
}

// FailureCount returns the tracked failure count for a source. Used by the
// detailed health endpoint and by tests.
func (m *Manager) FailureCount(sourceID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.attempts[sourceID]; ok {
		return rec.count
	}
	return 0
}

func (m *Manager) emit(eventType, sourceID, endpoint, detail string) {
	if m.sink == nil {
		return
	}
	m.sink.Record(models.SecurityEvent{
		EventType:  eventType,
		SourceID:   sourceID,
		Endpoint:   endpoint,
		Detail:     detail,
		OccurredAt: m.now().UTC(),
	})
}
