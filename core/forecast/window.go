package forecast

import (
	"strings"
	"time"

	"github.com/loadshift/loadshift/core/timeslot"
)

// Point is one half-hour forecast sample. Intensity is the forecast value in
// gCO2/kWh, not the actual.
type Point struct {
	From      time.Time
	Intensity int
}

// Window is an ordered forecast series covering up to 48 hours ahead in
// 30-minute steps. Timestamps are non-decreasing.
type Window []Point

// apiPoint mirrors one entry of the upstream point list.
type apiPoint struct {
	From      string `json:"from"`
	Intensity struct {
		Forecast int `json:"forecast"`
	} `json:"intensity"`
}

// pointTimeLayouts covers the upstream "from" stamps with and without
// seconds, after the trailing Z is stripped.
var pointTimeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

func parsePointTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(s, "Z")
	var err error
	for _, layout := range pointTimeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}

// DecodeWindow parses an upstream response body into a Window. The upstream
// sometimes returns the previous half-hour interval as the first entry; a
// leading point strictly before Floor(now) is dropped.
func DecodeWindow(body []byte, src Source, now time.Time) (Window, error) {
	points, err := src.extract(body)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, &ParseError{Reason: "response contains no forecast points"}
	}

	win := make(Window, 0, len(points))
	for _, p := range points {
		from, err := parsePointTime(p.From)
		if err != nil {
			return nil, &ParseError{Reason: "bad point timestamp " + p.From, Err: err}
		}
		win = append(win, Point{From: from, Intensity: p.Intensity.Forecast})
	}

	if win[0].From.Before(timeslot.Floor(now)) {
		win = win[1:]
	}
	if len(win) == 0 {
		return nil, &ParseError{Reason: "forecast window is entirely in the past"}
	}
	return win, nil
}
