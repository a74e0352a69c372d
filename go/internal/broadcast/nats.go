package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// SubjectPrefix namespaces auction channels on the NATS server.
const SubjectPrefix = "auction.sync"

type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "auction-agent",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials the server with reconnect handling logged through
// zerolog.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSChannel publishes notices on a core NATS subject so that agents in
// separate processes sharing one repository see each other's saves.
type NATSChannel struct {
	nc      *nats.Conn
	subject string
}

func NewNATSChannel(nc *nats.Conn, name string) *NATSChannel {
	return &NATSChannel{nc: nc, subject: Subject(name)}
}

// Subject maps a channel name to its NATS subject.
func Subject(name string) string {
	return SubjectPrefix + "." + name
}

func (c *NATSChannel) Publish(ctx context.Context, n Notice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encode(n)
	if err != nil {
		return err
	}
	if err := c.nc.Publish(c.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", c.subject, err)
	}
	return nil
}

func (c *NATSChannel) Listen(fn func(Notice)) (func(), error) {
	sub, err := c.nc.Subscribe(c.subject, func(msg *nats.Msg) {
		n, err := decode(msg.Data)
		if err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Dropping malformed notice")
			return
		}
		fn(n)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", c.subject, err)
	}
	log.Info().Str("subject", c.subject).Msg("Listening for state notices")
	return func() {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", c.subject).Msg("Failed to unsubscribe")
		}
	}, nil
}
