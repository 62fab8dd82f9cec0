package ledger

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"meetings-backend/internal/models"
)

const sinkTimeout = 5 * time.Second

// AuditSink receives ledger entries. Append errors are logged and dropped.
type AuditSink interface {
	Name() string
	Append(ctx context.Context, entry models.LedgerEntry) error
}

// EntryAppender is satisfied by *storage.Storage.
type EntryAppender interface {
	AppendLedgerEntry(ctx context.Context, entry models.LedgerEntry) error
}

// StoreSink writes entries to the token_logs table.
type StoreSink struct {
	Store EntryAppender
}

func (s StoreSink) Name() string { return "postgres" }

func (s StoreSink) Append(ctx context.Context, entry models.LedgerEntry) error {
	return s.Store.AppendLedgerEntry(ctx, entry)
}

// Auditor fans entries out to its sinks from a single goroutine.
type Auditor struct {
	entries chan models.LedgerEntry
	sinks   []AuditSink
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
}

func NewAuditor(buffer int, logger *zap.Logger, sinks ...AuditSink) *Auditor {
	if buffer <= 0 {
		buffer = 1
	}
	return &Auditor{
		entries: make(chan models.LedgerEntry, buffer),
		sinks:   sinks,
		logger:  logger.With(zap.String("component", "audit")),
	}
}

// Record enqueues entry and reports false when the buffer is full or the
// auditor has stopped.
func (a *Auditor) Record(entry models.LedgerEntry) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.entries <- entry:
		return true
	default:
		return false
	}
}

// Run delivers entries until ctx is cancelled, then refuses new entries and
// flushes whatever is still buffered. Cancel ctx only once nothing else
// spends.
func (a *Auditor) Run(ctx context.Context) error {
	for {
		select {
		case entry := <-a.entries:
			a.deliver(entry)
		case <-ctx.Done():
			a.close()
			a.drain()
			return nil
		}
	}
}

func (a *Auditor) close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

func (a *Auditor) drain() {
	for {
		select {
		case entry := <-a.entries:
			a.deliver(entry)
		default:
			return
		}
	}
}

func (a *Auditor) deliver(entry models.LedgerEntry) {
	for _, sink := range a.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
		if err := sink.Append(ctx, entry); err != nil {
			a.logger.Warn("audit append failed",
				zap.String("sink", sink.Name()),
				zap.String("entry_id", entry.ID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
