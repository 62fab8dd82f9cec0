// Package ingest consumes the ledger stream and archives it.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"meetings-backend/internal/models"
)

const durableName = "ledger-archiver"

// errPoison marks a message that can never be processed.
var errPoison = errors.New("undecodable ledger entry")

// EntryStore persists ledger entries. Appends must be idempotent on entry id.
type EntryStore interface {
	AppendLedgerEntry(ctx context.Context, entry models.LedgerEntry) error
}

// LedgerConsumer pulls ledger entries from JetStream into token_logs.
type LedgerConsumer struct {
	js      nats.JetStreamContext
	subject string
	store   EntryStore
	logger  *zap.Logger
	sub     *nats.Subscription
}

func NewLedgerConsumer(js nats.JetStreamContext, subject string, store EntryStore, logger *zap.Logger) *LedgerConsumer {
	return &LedgerConsumer{
		js:      js,
		subject: subject,
		store:   store,
		logger:  logger.With(zap.String("component", "ledger-consumer")),
	}
}

// Run consumes until ctx is cancelled.
func (c *LedgerConsumer) Run(ctx context.Context) error {
	sub, err := c.js.PullSubscribe(
		c.subject,
		durableName,
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(5),
		nats.MaxAckPending(1000),
	)
	if err != nil {
		return err
	}
	c.sub = sub
	c.logger.Info("ledger consumer started", zap.String("subject", c.subject))

	c.consumeLoop(ctx)
	return sub.Drain()
}

func (c *LedgerConsumer) consumeLoop(ctx context.Context) {
	fetch := newFetchSizer(16, 4, 256)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(fetch.size, nats.MaxWait(5*time.Second))
		if err != nil {
			if !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
				c.logger.Warn("fetch failed", zap.Error(err))
			}
			fetch.observe(0)
			continue
		}
		fetch.observe(len(msgs))

		for _, msg := range msgs {
			err := c.handle(ctx, msg.Data)
			switch {
			case errors.Is(err, errPoison):
				c.logger.Error("terminating ledger message", zap.String("subject", msg.Subject), zap.Error(err))
				_ = msg.Term()
			case err != nil:
				c.logger.Warn("archive failed", zap.Error(err))
				_ = msg.NakWithDelay(5 * time.Second)
			default:
				_ = msg.Ack()
			}
		}
	}
}

func (c *LedgerConsumer) handle(ctx context.Context, data []byte) error {
	var entry models.LedgerEntry
	if err := msgpack.Unmarshal(data, &entry); err != nil {
		return errors.Join(errPoison, err)
	}
	if entry.ID == "" || entry.UserID == "" {
		return errPoison
	}
	return c.store.AppendLedgerEntry(ctx, entry)
}

// fetchSizer grows the batch after consecutive full fetches and shrinks it
// after consecutive empty ones.
type fetchSizer struct {
	size, min, max int
	full, empty    int
}

func newFetchSizer(start, min, max int) *fetchSizer {
	return &fetchSizer{size: start, min: min, max: max}
}

func (f *fetchSizer) observe(n int) {
	switch {
	case n == 0:
		f.empty++
		f.full = 0
		if f.empty >= 3 && f.size > f.min {
			f.size /= 2
			if f.size < f.min {
				f.size = f.min
			}
			f.empty = 0
		}
	case n == f.size:
		f.full++
		f.empty = 0
		if f.full >= 3 && f.size < f.max {
			f.size *= 2
			if f.size > f.max {
				f.size = f.max
			}
			f.full = 0
		}
	default:
		f.full = 0
		f.empty = 0
	}
}
