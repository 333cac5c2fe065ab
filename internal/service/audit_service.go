package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/bucketing"
	"github.com/html-librarian/mig-catalog/internal/client"
	"github.com/html-librarian/mig-catalog/internal/models"
	"github.com/html-librarian/mig-catalog/internal/util"
)

const (
	auditBatchSize     = 100
	auditFlushInterval = 5 * time.Second
	auditBufferSize    = 1024
)

// AuditService collects security events and batches them into ClickHouse.
// Record never blocks the request path: events go through a buffered channel
// and are dropped with a warning when the buffer is full.
type AuditService struct {
	clickhouse *client.ClickHouseClient
	bucketing  *bucketing.Manager
	logger     *zap.Logger

	events chan models.SecurityEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

func NewAuditService(clickhouseClient *client.ClickHouseClient, bucketingMgr *bucketing.Manager, logger *zap.Logger) *AuditService {
	s := &AuditService{
		clickhouse: clickhouseClient,
		bucketing:  bucketingMgr,
		logger:     logger,
		events:     make(chan models.SecurityEvent, auditBufferSize),
		done:       make(chan struct{}),
	}

	s.wg.Add(1)
	go s.flushLoop()

	return s
}

// Record queues a security event for the next batch.
func (s *AuditService) Record(event models.SecurityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	select {
	case s.events <- event:
	default:
		s.logger.Warn("audit buffer full, dropping event",
			util.String("event_type", event.EventType))
	}
}

func (s *AuditService) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(auditFlushInterval)
	defer ticker.Stop()

	batch := make([]models.SecurityEvent, 0, auditBatchSize)

	for {
		select {
		case event := <-s.events:
			batch = append(batch, event)
			if len(batch) >= auditBatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-s.done:
			// Drain whatever is queued before exiting.
			for {
				select {
				case event := <-s.events:
					batch = append(batch, event)
				default:
					if len(batch) > 0 {
						s.flush(batch)
					}
					return
				}
			}
		}
	}
}

func (s *AuditService) flush(batch []models.SecurityEvent) {
	if s.clickhouse == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows := make([][]interface{}, 0, len(batch))
	for _, event := range batch {
		rows = append(rows, []interface{}{
			s.bucketing.EventBucket(event.SourceID),
			s.bucketing.DateBucket(event.OccurredAt),
			event.EventType,
			event.SourceID,
			event.Endpoint,
			event.Detail,
			event.OccurredAt,
		})
	}

	query := `INSERT INTO security_events
        (event_bucket, event_date, event_type, source_id, endpoint, detail, occurred_at)`

	if err := s.clickhouse.BatchInsert(ctx, query, rows); err != nil {
		s.logger.Error("failed to flush security events",
			util.Int("count", len(batch)), util.ErrorField(err))
		return
	}

	s.logger.Debug("security events flushed", util.Int("count", len(batch)))
}

// Close stops the flush loop after draining pending events.
func (s *AuditService) Close() {
	close(s.done)
	s.wg.Wait()
}
