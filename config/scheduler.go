package config

import (
	"fmt"

	"github.com/loadshift/loadshift/core/forecast"
)

// SchedulerConfig defines defaults for task scheduling. Command line flags
// override these per invocation.
type SchedulerConfig struct {
	// Location selects the forecast source: "0" for national, "1".."17"
	// for a region, anything else is treated as an outward postcode.
	Location string `json:"location"`
	// TolerancePercent is how much better a later slot must be to displace
	// an earlier one.
	TolerancePercent int `json:"tolerance_percent"`
	// OffsetMinutes delays the task start within its half-hour slot.
	OffsetMinutes int `json:"offset_minutes"`
	// DurationMinutes is the expected runtime of the task.
	DurationMinutes int `json:"duration_minutes"`
	// EchoOutput copies the task's output to stdout.
	EchoOutput bool `json:"echo_output"`
	// Shell runs the command through /bin/sh -c instead of splitting it.
	Shell bool `json:"shell"`
}

// SetDefaults applies sane defaults.
func (c *SchedulerConfig) SetDefaults() {
	if c.Location == "" {
		c.Location = "0"
	}
	if c.TolerancePercent == 0 {
		c.TolerancePercent = 5
	}
	if c.DurationMinutes == 0 {
		c.DurationMinutes = 10
	}
}

// Validate checks field ranges.
func (c SchedulerConfig) Validate() error {
	if _, err := forecast.ParseSource(c.Location); err != nil {
		return err
	}
	if c.TolerancePercent < 0 || c.TolerancePercent > 100 {
		return fmt.Errorf("tolerance_percent must be between 0 and 100, got %d", c.TolerancePercent)
	}
	if c.OffsetMinutes < 0 || c.OffsetMinutes > 29 {
		return fmt.Errorf("offset_minutes must be between 0 and 29, got %d", c.OffsetMinutes)
	}
	if c.DurationMinutes <= 0 {
		return fmt.Errorf("duration_minutes must be positive, got %d", c.DurationMinutes)
	}
	return nil
}
