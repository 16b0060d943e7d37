// Package app wires configuration into running services.
package app

import (
	"context"
	"fmt"

	"github.com/loadshift/loadshift/config"
	coremetrics "github.com/loadshift/loadshift/core/metrics"
	"github.com/loadshift/loadshift/core/schedule"
	"github.com/loadshift/loadshift/infra/carbonapi"
	"github.com/loadshift/loadshift/infra/logger"
	"github.com/loadshift/loadshift/infra/metrics"
	"github.com/loadshift/loadshift/infra/mqtt"
	"github.com/loadshift/loadshift/infra/runner"
)

// Service owns a configured scheduler and the resources behind it.
type Service struct {
	scheduler *schedule.Scheduler
	publisher *mqtt.Publisher
	closers   []interface{ Close() }
	log       logger.Logger

	promEnabled bool
	promListen  string
}

// New builds the scheduler service from the configuration. With echo, the
// task's output is copied to stdout.
func New(cfg *config.Config, echo bool) (*Service, error) {
	log := logger.New("service")

	var closers []interface{ Close() }
	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken,
			cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		if c, ok := sink.(interface{ Close() }); ok {
			closers = append(closers, c)
		}
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		p, err := mqtt.NewPublisher(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		publisher = p
	}

	var fetchSink coremetrics.FetchRecorder
	if fr, ok := sink.(coremetrics.FetchRecorder); ok {
		fetchSink = fr
	}
	fetcher := carbonapi.New(cfg.API, fetchSink, logger.New("carbonapi"))
	run := runner.New(echo, logger.New("runner"))

	var events schedule.Publisher
	if publisher != nil {
		events = publisher
	}
	sched := schedule.New(fetcher, run, sink, events, logger.New("scheduler"))

	return &Service{
		scheduler:   sched,
		publisher:   publisher,
		closers:     closers,
		log:         log,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promListen:  cfg.Metrics.PrometheusListen,
	}, nil
}

// Run schedules and executes the task, blocking until it has run or the
// context is cancelled.
func (s *Service) Run(ctx context.Context, task *schedule.Task) (schedule.Outcome, error) {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promListen); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.scheduler.Run(ctx, task)
}

// Close releases resources held by the service.
func (s *Service) Close() {
	if s.publisher != nil {
		s.publisher.Close()
	}
	for _, c := range s.closers {
		c.Close()
	}
}
