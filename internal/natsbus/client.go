package natsbus

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"meetings-backend/internal/config"
)

type Client struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	subject string
}

// Connect establishes the NATS connection and makes sure the ledger stream
// exists.
func Connect(cfg config.NATSConfig, logger *zap.Logger) (*Client, error) {
	logger = logger.With(zap.String("component", "nats"))
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	opts := []nats.Option{
		nats.Name("meetings-backend"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(1 * time.Second),
		nats.ReconnectJitter(500*time.Millisecond, 2*time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Error("NATS error", zap.Error(err))
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	logger.Info("connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	if err := ensureStream(js, cfg.Stream, cfg.Subject, logger); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return &Client{nc: nc, js: js, subject: cfg.Subject}, nil
}

// Close drains and closes the NATS connection.
func (c *Client) Close() error {
	return c.nc.Drain()
}

func (c *Client) NC() *nats.Conn {
	return c.nc
}

func (c *Client) JS() nats.JetStreamContext {
	return c.js
}

// LedgerSink returns an audit sink publishing to this client's stream.
func (c *Client) LedgerSink() *LedgerSink {
	return NewLedgerSink(c.js, c.subject)
}

// StreamSubjects is the wildcard a ledger stream captures for prefix.
func StreamSubjects(prefix string) []string {
	return []string{prefix + ".*.spend"}
}

func ensureStream(js nats.JetStreamContext, stream, prefix string, logger *zap.Logger) error {
	_, err := js.StreamInfo(stream)
	if err == nats.ErrStreamNotFound {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:       stream,
			Subjects:   StreamSubjects(prefix),
			Retention:  nats.LimitsPolicy,
			MaxAge:     30 * 24 * time.Hour,
			MaxMsgSize: 64 * 1024,
			Discard:    nats.DiscardOld,
			Storage:    nats.FileStorage,
		})
		if err != nil {
			return fmt.Errorf("create stream %s: %w", stream, err)
		}
		logger.Info("created JetStream stream", zap.String("stream", stream))
	} else if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	return nil
}
