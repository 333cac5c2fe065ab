package security

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/models"
)

type captureSink struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (c *captureSink) Record(event models.SecurityEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) byType(eventType string) []models.SecurityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.SecurityEvent
	for _, e := range c.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func testManager(sink EventSink) (*Manager, *time.Time) {
	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(config.SecurityConfig{
		MaxFailedAttempts: 10,
		AttemptWindow:     time.Hour,
		LockoutDuration:   15 * time.Minute,
	}, zap.NewNop(), sink)
	m.now = func() time.Time { return current }
	return m, &current
}

func TestLockoutAfterThreshold(t *testing.T) {
	m, _ := testManager(nil)

	for i := 0; i < 9; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}
	assert.False(t, m.IsLockedOut("10.0.0.1"), "9 failures must not lock out")

	m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	assert.True(t, m.IsLockedOut("10.0.0.1"), "10th failure must lock out")
}

func TestLockoutExpires(t *testing.T) {
	m, current := testManager(nil)

	for i := 0; i < 10; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}
	assert.True(t, m.IsLockedOut("10.0.0.1"))

	*current = current.Add(14 * time.Minute)
	assert.True(t, m.IsLockedOut("10.0.0.1"))

	*current = current.Add(2 * time.Minute)
	assert.False(t, m.IsLockedOut("10.0.0.1"))

	// The record was dropped, so the source starts from zero again.
	assert.Equal(t, 0, m.FailureCount("10.0.0.1"))
}

func TestStaleWindowResets(t *testing.T) {
	m, current := testManager(nil)

	for i := 0; i < 9; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}

	// The window passes; the next failure starts a fresh count.
	*current = current.Add(61 * time.Minute)
	m.RecordFailure("10.0.0.1", "/api/v1/auth/login")

	assert.Equal(t, 1, m.FailureCount("10.0.0.1"))
	assert.False(t, m.IsLockedOut("10.0.0.1"))
}

func TestSourcesAreIndependent(t *testing.T) {
	m, _ := testManager(nil)

	for i := 0; i < 10; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}

	assert.True(t, m.IsLockedOut("10.0.0.1"))
	assert.False(t, m.IsLockedOut("10.0.0.2"))
}

func TestResetClearsFailures(t *testing.T) {
	m, _ := testManager(nil)

	for i := 0; i < 5; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}
	m.Reset("10.0.0.1")
	assert.Equal(t, 0, m.FailureCount("10.0.0.1"))
}

func TestResetDoesNotClearActiveLockout(t *testing.T) {
	m, _ := testManager(nil)

	for i := 0; i < 10; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}
	m.Reset("10.0.0.1")
	assert.True(t, m.IsLockedOut("10.0.0.1"))
}

func TestEventsEmitted(t *testing.T) {
	sink := &captureSink{}
	m, _ := testManager(sink)

	for i := 0; i < 10; i++ {
		m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
	}

	assert.Len(t, sink.byType(models.EventAuthFailure), 9)
	lockouts := sink.byType(models.EventLockout)
	assert.Len(t, lockouts, 1)
	assert.Equal(t, "10.0.0.1", lockouts[0].SourceID)
	assert.Equal(t, "/api/v1/auth/login", lockouts[0].Endpoint)
}

func TestConcurrentFailuresLockOutOnce(t *testing.T) {
	sink := &captureSink{}
	m, _ := testManager(sink)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordFailure("10.0.0.1", "/api/v1/auth/login")
		}()
	}
	wg.Wait()

	assert.True(t, m.IsLockedOut("10.0.0.1"))
	assert.Len(t, sink.byType(models.EventLockout), 1)
}
