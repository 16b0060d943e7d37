package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/loadshift/loadshift/core/metrics"
	"github.com/loadshift/loadshift/infra/logger"
)

// InfluxSink writes scheduling events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails, so a broken metrics backend never
// blocks scheduling.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordEvaluation writes one scheduling cycle as a point.
func (s *InfluxSink) RecordEvaluation(ev coremetrics.EvaluationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("slot_evaluation").
		AddTag("source", ev.Source).
		AddTag("component", "scheduler").
		AddField("slot_intensity", ev.SlotIntensity).
		AddField("worst_intensity", ev.WorstIntensity).
		AddField("points_considered", ev.PointsConsidered).
		AddField("run_now", ev.RunNow).
		AddField("slot_time", ev.SlotTime.Format(time.RFC3339)).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRun writes a completed task execution.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("task_run").
		AddTag("component", "scheduler").
		AddField("command", ev.Command).
		AddField("actual_intensity", ev.ActualIntensity).
		AddField("worst_intensity", ev.WorstIntensity).
		AddField("saving_percent", ev.SavingPercent).
		AddField("run_duration_secs", ev.RunDuration.Seconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFetch writes one upstream fetch outcome.
func (s *InfluxSink) RecordFetch(ev coremetrics.FetchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("forecast_fetch").
		AddTag("source", ev.Source).
		AddTag("component", "carbonapi").
		AddField("attempts", ev.Attempts).
		AddField("success", ev.Success).
		AddField("duration_ms", float64(ev.Duration.Milliseconds())).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
