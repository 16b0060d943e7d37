package schedule

import (
	"context"
	"time"

	"github.com/loadshift/loadshift/core/forecast"
	"github.com/loadshift/loadshift/core/logger"
	"github.com/loadshift/loadshift/core/metrics"
	"github.com/loadshift/loadshift/core/timeslot"
)

// Clock abstracts time.Now so scheduling cycles can be tested.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time. The upstream API speaks UTC, so
// all scheduling arithmetic does too.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// Fetcher retrieves a forecast window for a source. The carbon intensity API
// client implements it directly; the mirror is transparent to the scheduler.
type Fetcher interface {
	Fetch(ctx context.Context, src forecast.Source, now time.Time) (forecast.Window, error)
}

// Runner executes the task's command and reports its wall-clock duration.
type Runner interface {
	Run(ctx context.Context, command string, shell bool) (time.Duration, error)
}

// Event is published on scheduling decisions and task completion.
type Event struct {
	Type            string    `json:"type"`
	Source          string    `json:"source"`
	Command         string    `json:"command,omitempty"`
	SlotTime        time.Time `json:"slot_time,omitempty"`
	SlotIntensity   int       `json:"slot_intensity,omitempty"`
	WorstIntensity  int       `json:"worst_intensity,omitempty"`
	SavingPercent   int       `json:"saving_percent,omitempty"`
	RunDurationSecs float64   `json:"run_duration_secs,omitempty"`
	Time            time.Time `json:"time"`
}

// Publisher emits scheduling events to an external channel (MQTT in the
// default wiring). A nil Publisher disables event emission.
type Publisher interface {
	Publish(Event) error
}

// Scheduler drives the evaluate/wait/run cycle for a single task.
type Scheduler struct {
	fetcher Fetcher
	runner  Runner
	sink    metrics.Sink
	events  Publisher
	log     logger.Logger

	clock Clock
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Scheduler. sink and events may be nil.
func New(fetcher Fetcher, runner Runner, sink metrics.Sink, events Publisher, log logger.Logger) *Scheduler {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Scheduler{
		fetcher: fetcher,
		runner:  runner,
		sink:    sink,
		events:  events,
		log:     log,
		clock:   RealClock{},
		sleep:   sleepContext,
	}
}

// SetClock overrides the clock, for tests.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// SetSleep overrides the inter-cycle sleep, for tests.
func (s *Scheduler) SetSleep(fn func(ctx context.Context, d time.Duration) error) { s.sleep = fn }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run evaluates the forecast every half-hour cycle until the chosen slot is
// the current one, runs the task, and returns the outcome. Fetch and parse
// failures are fatal to the whole run; recovery happens only inside the
// fetcher's retry budget.
func (s *Scheduler) Run(ctx context.Context, task *Task) (Outcome, error) {
	first := true
	for {
		if err := s.evaluate(ctx, task, first); err != nil {
			return Outcome{}, err
		}
		first = false

		if task.HasRun {
			out := task.Outcome(s.clock.Now())
			if err := s.sink.RecordRun(metrics.RunEvent{
				Command:         out.Command,
				ActualIntensity: out.ActualIntensity,
				WorstIntensity:  out.WorstIntensity,
				SavingPercent:   out.SavingPercent,
				RunDuration:     out.RunDuration,
				Time:            out.FinishedAt,
			}); err != nil {
				s.log.Errorf("record run: %v", err)
			}
			s.publish(Event{
				Type:            "task_run",
				Source:          task.Source.String(),
				Command:         task.Command,
				SlotIntensity:   task.ActualIntensity,
				WorstIntensity:  task.WorstIntensity,
				SavingPercent:   out.SavingPercent,
				RunDurationSecs: out.RunDuration.Seconds(),
				Time:            out.FinishedAt,
			})
			return out, nil
		}

		if err := s.waitNextCycle(ctx, task.Offset); err != nil {
			return Outcome{}, err
		}
	}
}

// evaluate runs one scheduling cycle: fetch, weight if the task spans a
// boundary, select, and run the task when the chosen slot is the current
// bucket.
func (s *Scheduler) evaluate(ctx context.Context, task *Task, first bool) error {
	now := s.clock.Now()
	if first && task.DueBy.Before(now) {
		// Policy: a deadline already behind us degrades to best effort. The
		// scan below keeps the window's first point, so the task runs now.
		s.log.Warnf("deadline %s has already passed; running at the current slot",
			task.DueBy.Format(time.RFC3339))
	}

	window, err := s.fetcher.Fetch(ctx, task.Source, now)
	if err != nil {
		return err
	}

	if SpansBoundary(task.Duration, task.Offset) {
		window = Weight(window, TaskWeights(task.Duration, task.Offset))
		if len(window) == 0 {
			return &forecast.ParseError{Reason: "task duration exceeds the forecast horizon"}
		}
	}

	chosen, worst := Select(window, task.DueBy, task.Tolerance, task.WorstIntensity)
	task.WorstIntensity = worst
	runNow := chosen.From.Equal(window[0].From)

	s.log.Infof("scheduled for %s @ %d gCO2/kWh (worst seen %d)",
		chosen.From.Format(time.RFC3339), chosen.Intensity, worst)
	if err := s.sink.RecordEvaluation(metrics.EvaluationEvent{
		Source:           task.Source.String(),
		SlotTime:         chosen.From,
		SlotIntensity:    chosen.Intensity,
		WorstIntensity:   worst,
		PointsConsidered: len(window),
		RunNow:           runNow,
		Time:             now,
	}); err != nil {
		s.log.Errorf("record evaluation: %v", err)
	}
	s.publish(Event{
		Type:           "evaluation",
		Source:         task.Source.String(),
		SlotTime:       chosen.From,
		SlotIntensity:  chosen.Intensity,
		WorstIntensity: worst,
		Time:           now,
	})

	if !runNow {
		return nil
	}

	task.ActualIntensity = chosen.Intensity
	s.log.Infof("running task: %s", task.Command)
	dur, err := s.runner.Run(ctx, task.Command, task.Shell)
	task.RunDuration = dur
	task.HasRun = true
	if err != nil {
		// The slot was still used; report the failure but keep the outcome.
		s.log.Warnf("task finished with error: %v", err)
	}
	return nil
}

func (s *Scheduler) waitNextCycle(ctx context.Context, offsetMinutes int) error {
	now := s.clock.Now()
	wake := timeslot.Ceil(now).Add(time.Duration(offsetMinutes) * time.Minute)
	s.log.Infof("sleeping until %s", wake.Format(time.RFC3339))
	return s.sleep(ctx, wake.Sub(now))
}

func (s *Scheduler) publish(ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ev); err != nil {
		s.log.Errorf("publish %s event: %v", ev.Type, err)
	}
}
