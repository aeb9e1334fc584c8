package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Message is one appointment event ready for delivery. ID is stable across
// retries so subscribers can drop duplicates.
type Message struct {
	Subject string
	ID      string
	Data    []byte
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

type natsPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(nc *nats.Conn) Publisher {
	return &natsPublisher{nc: nc}
}

// Connect dials NATS with reconnects enabled for long running relays.
func Connect(url string, log *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("counseling-notify-relay"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

func (p *natsPublisher) Publish(ctx context.Context, msg Message) error {
	m := nats.NewMsg(msg.Subject)
	m.Data = msg.Data
	m.Header.Set(nats.MsgIdHdr, msg.ID)
	if err := p.nc.PublishMsg(m); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	if err := p.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", msg.Subject, err)
	}
	return nil
}

type logPublisher struct {
	log *zap.Logger
}

// NewLogPublisher writes events to the log instead of a broker. Used when no
// NATS server is configured.
func NewLogPublisher(log *zap.Logger) Publisher {
	return &logPublisher{log: log}
}

func (p *logPublisher) Publish(_ context.Context, msg Message) error {
	p.log.Info("appointment event",
		zap.String("subject", msg.Subject),
		zap.String("msg_id", msg.ID),
		zap.ByteString("data", msg.Data),
	)
	return nil
}
