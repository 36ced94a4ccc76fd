package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Refresher reloads one timer from storage.
type Refresher interface {
	Refresh(ctx context.Context, timerID string) error
}

type ConsumerConfig struct {
	JetStreamConfig
	MaxDeliver    int
	AckWait       time.Duration
	MaxAckPending int
}

func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		JetStreamConfig: DefaultJetStreamConfig(),
		MaxDeliver:      5,
		AckWait:         30 * time.Second,
		MaxAckPending:   100,
	}
}

// Consumer applies events published by other instances.
type Consumer struct {
	refresher Refresher
	nc        *nats.Conn
	consumer  jetstream.Consumer
	config    ConsumerConfig
}

func NewConsumer(r Refresher, cfg ConsumerConfig) (*Consumer, error) {
	nc, js, err := connect(cfg.JetStreamConfig)
	if err != nil {
		return nil, err
	}
	c := &Consumer{refresher: r, nc: nc, config: cfg}
	if err := ensureStream(context.Background(), js, cfg.JetStreamConfig); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	if err := c.ensureConsumer(context.Background(), js); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}
	return c, nil
}

// Name is the durable consumer name. Each instance needs its own so that
// every instance sees every event.
func (c *Consumer) Name() string {
	return "timer-sync-" + c.config.InstanceID
}

func (c *Consumer) ensureConsumer(ctx context.Context, js jetstream.JetStream) error {
	stream, err := js.Stream(ctx, c.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:              c.Name(),
		Durable:           c.Name(),
		Description:       "Timer sync for one device",
		FilterSubject:     c.config.SubjectPrefix + ".>",
		DeliverPolicy:     jetstream.DeliverNewPolicy,
		AckPolicy:         jetstream.AckExplicitPolicy,
		MaxDeliver:        c.config.MaxDeliver,
		AckWait:           c.config.AckWait,
		MaxAckPending:     c.config.MaxAckPending,
		InactiveThreshold: time.Hour,
	})
	if err != nil {
		return fmt.Errorf("create consumer: %w", err)
	}
	log.Info().
		Str("consumer", c.Name()).
		Str("stream", c.config.StreamName).
		Msg("using JetStream consumer")
	c.consumer = consumer
	return nil
}

// Start consumes until ctx is done.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Str("consumer", c.Name()).Msg("starting timer sync consumer")

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := c.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("timer sync consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := c.process(ctx, msg.Data()); err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to process timer event")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
				continue
			}
			if ackErr := msg.Ack(); ackErr != nil {
				log.Error().Err(ackErr).Msg("failed to ACK message")
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.InstanceID == c.config.InstanceID {
		return nil
	}
	if env.TimerID == "" {
		return fmt.Errorf("event %s has no timer id", env.EventID)
	}

	log.Debug().
		Str("event_id", env.EventID).
		Str("timer_id", env.TimerID).
		Str("event_type", env.EventType).
		Str("instance", env.InstanceID).
		Msg("applying timer event from another device")

	if err := c.refresher.Refresh(ctx, env.TimerID); err != nil {
		return fmt.Errorf("refresh timer %s: %w", env.TimerID, err)
	}
	return nil
}

func (c *Consumer) Stop() error {
	log.Info().Msg("stopping timer sync consumer")
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}
