package events

import (
	"context"
	"encoding/json"
	"fmt"

	"fairCaseServer/config"
	"fairCaseServer/logger"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors protocol events onto NATS subjects
// <prefix>.commitment, <prefix>.round and <prefix>.reveal.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(conn *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = config.DefaultNATSSubjectPrefix
	}
	return &NATSPublisher{conn: conn, prefix: prefix}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("fair-case-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("⚠️  NATS disconnected", logger.Err(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("🔌 NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

func (p *NATSPublisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

// CommitmentPublished flushes so the commitment has reached the server before
// returning.
func (p *NATSPublisher) CommitmentPublished(ctx context.Context, ev CommitmentEvent) error {
	if err := p.publish(config.NATSSubjectCommitment, ev); err != nil {
		return err
	}
	if err := p.flush(ctx); err != nil {
		return fmt.Errorf("failed to flush commitment: %w", err)
	}
	return nil
}

func (p *NATSPublisher) RoundResolved(_ context.Context, ev RoundEvent) error {
	return p.publish(config.NATSSubjectRound, ev)
}

func (p *NATSPublisher) SeedRevealed(ctx context.Context, ev RevealEvent) error {
	if err := p.publish(config.NATSSubjectReveal, ev); err != nil {
		return err
	}
	return p.flush(ctx)
}

// flush waits for the server to ack; nats requires a deadline on ctx
func (p *NATSPublisher) flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.NATSFlushTimeout)
		defer cancel()
	}
	return p.conn.FlushWithContext(ctx)
}

func (p *NATSPublisher) publish(kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", kind, err)
	}
	if err := p.conn.Publish(p.Subject(kind), data); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", kind, err)
	}
	return nil
}
