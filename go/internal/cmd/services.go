package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/config"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/events"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/gateway"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/report"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/timer"
)

type Services struct {
	Manager     *timer.Manager
	Timers      *timer.Service
	Reports     *report.Service
	Connections *gateway.ConnectionManager

	publisher *events.Publisher
	consumer  *events.Consumer
}

func setupServices(ctx context.Context, cfg *config.Config, backend Backend) (*Services, error) {
	// Store → Manager → Service, with the gateway and JetStream hanging off the manager
	clock := clockwork.NewRealClock()
	loc, err := cfg.TimeLocation()
	if err != nil {
		return nil, err
	}

	instanceID := cfg.NATS.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()[:8]
	}

	connections := gateway.NewConnectionManager(nil, gateway.DefaultConnectionConfig())
	opts := []timer.Option{timer.WithClock(clock), timer.WithNotifier(connections)}

	s := &Services{Connections: connections}
	if cfg.NATS.URL != "" {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		jsCfg.InstanceID = instanceID

		publisher, err := events.NewPublisher(jsCfg)
		if err != nil {
			return nil, fmt.Errorf("set up event publisher: %w", err)
		}
		s.publisher = publisher
		opts = append(opts, timer.WithPublisher(publisher))
	} else {
		log.Info().Msg("NATS_URL not set, timers are not shared between devices")
	}

	s.Manager = timer.NewManager(backend, cfg.TimerSettings(), opts...)
	connections.SetViewSource(s.Manager)

	if err := s.Manager.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load timers: %w", err)
	}

	if s.publisher != nil {
		consumerCfg := events.DefaultConsumerConfig()
		consumerCfg.URL = cfg.NATS.URL
		consumerCfg.InstanceID = instanceID
		consumer, err := events.NewConsumer(s.Manager, consumerCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("set up event consumer: %w", err)
		}
		s.consumer = consumer
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("timer sync consumer stopped")
			}
		}()
	}

	go connections.Start(ctx)

	s.Timers = timer.NewService(s.Manager)
	s.Reports = report.NewService(backend, clock, loc, cfg.Timer.DefaultDurationSec)

	log.Info().Str("instance", instanceID).Msg("services ready")
	return s, nil
}

// Close stops tick tasks before the event connections they publish to.
func (s *Services) Close() {
	if s.Manager != nil {
		s.Manager.Close()
	}
	if s.consumer != nil {
		s.consumer.Stop()
	}
	if s.publisher != nil {
		s.publisher.Close()
	}
}
