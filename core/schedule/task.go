package schedule

import (
	"math"
	"time"

	"github.com/loadshift/loadshift/core/forecast"
)

// Task groups everything needed to schedule, run, and report one command.
// A task is created once per process invocation and mutated only by the
// scheduler.
type Task struct {
	Command    string
	Shell      bool
	EchoOutput bool

	Source    forecast.Source
	Duration  int // scheduled duration, minutes
	Offset    int // start offset within the first interval, minutes
	Tolerance int // percent a candidate must undercut the choice by

	// DueBy is the latest permissible *start* time: the user-facing deadline
	// shifted earlier by offset+duration minutes at construction.
	DueBy time.Time

	WorstIntensity  int
	ActualIntensity int
	RunDuration     time.Duration
	HasRun          bool
}

// NewTask builds a Task, shifting the user-facing deadline so that forecast
// points are compared against the task's start time rather than its end.
func NewTask(command string, dueBy time.Time, src forecast.Source, duration, offset, tolerance int) *Task {
	return &Task{
		Command:   command,
		Source:    src,
		Duration:  duration,
		Offset:    offset,
		Tolerance: tolerance,
		DueBy:     dueBy.Add(-time.Duration(offset+duration) * time.Minute),
	}
}

// Outcome is the report handed back to the invoking environment after the
// task has run.
type Outcome struct {
	Command         string
	RunDuration     time.Duration
	ActualIntensity int
	WorstIntensity  int
	SavingPercent   int
	FinishedAt      time.Time
}

// Outcome summarises a completed task. The saving is relative to the worst
// intensity observed across all evaluated forecast points.
func (t *Task) Outcome(finished time.Time) Outcome {
	saving := 0
	if t.WorstIntensity != 0 {
		saving = int(math.Abs((float64(t.ActualIntensity)/float64(t.WorstIntensity) - 1) * 100))
	}
	return Outcome{
		Command:         t.Command,
		RunDuration:     t.RunDuration,
		ActualIntensity: t.ActualIntensity,
		WorstIntensity:  t.WorstIntensity,
		SavingPercent:   saving,
		FinishedAt:      finished,
	}
}
