package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Publisher sends timer events to JetStream.
type Publisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewPublisher(cfg JetStreamConfig) (*Publisher, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	p := &Publisher{nc: nc, js: js, config: cfg}
	if err := ensureStream(context.Background(), js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return p, nil
}

// Subject is where events of a type are published.
func (p *Publisher) Subject(eventType string) string {
	return fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)
}

func (p *Publisher) Publish(ctx context.Context, event TimerEvent) error {
	msg, err := p.message(event)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(event.ID.String()),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", event.ID.String()).
		Str("timer_id", event.TimerID).
		Uint64("sequence", ack.Sequence).
		Msg("published timer event")
	return nil
}

func (p *Publisher) message(event TimerEvent) (*nats.Msg, error) {
	env := Envelope{
		EventID:    event.ID.String(),
		EventType:  event.EventType,
		TimerID:    event.TimerID,
		InstanceID: p.config.InstanceID,
		Timestamp:  event.CreatedAt.UTC(),
		Payload:    json.RawMessage(event.Payload),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return &nats.Msg{
		Subject: p.Subject(event.EventType),
		Data:    data,
		Header: nats.Header{
			"Event-Type":  []string{event.EventType},
			"Timer-ID":    []string{event.TimerID},
			"Event-ID":    []string{event.ID.String()},
			"Instance-ID": []string{p.config.InstanceID},
		},
	}, nil
}

func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}
