package natsbus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/vmihailenco/msgpack/v5"

	"meetings-backend/internal/models"
)

// Publisher is the JetStream publish call the sink uses.
type Publisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// LedgerSink publishes msgpack-encoded ledger entries on
// <prefix>.<user>.spend.
type LedgerSink struct {
	pub    Publisher
	prefix string
}

func NewLedgerSink(pub Publisher, prefix string) *LedgerSink {
	return &LedgerSink{pub: pub, prefix: prefix}
}

func (s *LedgerSink) Name() string { return "nats" }

func (s *LedgerSink) Subject(userID string) string {
	return fmt.Sprintf("%s.%s.spend", s.prefix, userID)
}

func (s *LedgerSink) Append(ctx context.Context, entry models.LedgerEntry) error {
	payload, err := msgpack.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	// The entry id doubles as the JetStream dedup id.
	if _, err := s.pub.Publish(s.Subject(entry.UserID), payload, nats.Context(ctx), nats.MsgId(entry.ID)); err != nil {
		return fmt.Errorf("publish ledger entry: %w", err)
	}
	return nil
}
