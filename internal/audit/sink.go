package audit

import (
	"log/slog"
	"sync/atomic"
	"time"

	"veristry/internal/platform/config"
	id "veristry/pkg/domain"
)

// Policy selects overload behavior when the queue is full.
type Policy string

const (
	// PolicyDropOldest evicts the oldest queued record to admit the new one.
	PolicyDropOldest Policy = "drop_oldest"

	// PolicyBlock waits up to the configured timeout for queue space, then
	// drops the new record.
	PolicyBlock Policy = "block"
)

// Sink accepts audit records from the request path. Record never blocks
// beyond the configured policy and never returns an error: a failure to
// record audit data is logged, not propagated.
type Sink struct {
	queue        chan Record
	policy       Policy
	blockTimeout time.Duration
	logger       *slog.Logger

	dropped atomic.Int64
}

// NewSink builds a sink with a bounded queue sized from config.
func NewSink(cfg config.AuditConfig, logger *slog.Logger) *Sink {
	size := cfg.QueueSize
	if size <= 0 {
		size = 10000
	}
	policy := Policy(cfg.Policy)
	if policy != PolicyBlock {
		policy = PolicyDropOldest
	}
	return &Sink{
		queue:        make(chan Record, size),
		policy:       policy,
		blockTimeout: cfg.BlockTimeout,
		logger:       logger,
	}
}

// Record enqueues rec. Records from one invocation must be enqueued by the
// same goroutine so the start record always precedes its terminal record.
func (s *Sink) Record(rec Record) {
	if rec.ID == (id.AuditRecordID{}) {
		rec.ID = id.NewAuditRecordID()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	select {
	case s.queue <- rec:
		return
	default:
	}

	switch s.policy {
	case PolicyBlock:
		select {
		case s.queue <- rec:
		case <-time.After(s.blockTimeout):
			s.drop(rec)
		}
	default:
		// Evict the oldest record, then retry once. Another producer may
		// win the freed slot; dropping the new record then is acceptable.
		select {
		case old := <-s.queue:
			s.drop(old)
		default:
		}
		select {
		case s.queue <- rec:
		default:
			s.drop(rec)
		}
	}
}

// Records exposes the queue to the draining worker.
func (s *Sink) Records() <-chan Record {
	return s.queue
}

// Dropped returns the total number of records lost to backpressure.
func (s *Sink) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Sink) drop(rec Record) {
	s.dropped.Add(1)
	if s.logger != nil {
		s.logger.Warn("audit record dropped",
			"request_id", rec.RequestID,
			"dependency", rec.Dependency,
			"action", rec.Action,
		)
	}
}
