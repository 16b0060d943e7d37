// Package forecast models the National Grid carbon intensity forecast: the
// location variants a forecast can be requested for, the decoded time/point
// series, and the error taxonomy shared by the API client and the mirror.
package forecast

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Source identifies which forecast variant to request. The variant fixes
// both the upstream path and the JSON envelope the points are nested in.
type Source interface {
	// Path returns the upstream request path for a forecast starting at from.
	Path(from time.Time) string
	// CacheKey returns the mirror cache key for this source.
	CacheKey() string
	// String returns a short human-readable label.
	String() string

	extract(body []byte) ([]apiPoint, error)
}

// National is the country-wide forecast.
type National struct{}

// Region is a forecast for one of the 17 DNO regions.
type Region struct {
	ID int
}

// Postcode is a forecast keyed by the outward part of a UK postcode.
type Postcode struct {
	Code string
}

const pathTimeLayout = "2006-01-02T15:04"

func (National) Path(from time.Time) string {
	return fmt.Sprintf("/intensity/%sZ/fw48h", from.Format(pathTimeLayout))
}

func (r Region) Path(from time.Time) string {
	return fmt.Sprintf("/regional/intensity/%sZ/fw48h/regionid/%d", from.Format(pathTimeLayout), r.ID)
}

func (p Postcode) Path(from time.Time) string {
	return fmt.Sprintf("/regional/intensity/%sZ/fw48h/postcode/%s", from.Format(pathTimeLayout), p.Code)
}

func (National) CacheKey() string { return "0" }
func (r Region) CacheKey() string { return strconv.Itoa(r.ID) }
func (p Postcode) CacheKey() string {
	return p.Code
}

func (National) String() string { return "national" }
func (r Region) String() string { return fmt.Sprintf("region %d", r.ID) }
func (p Postcode) String() string {
	return "postcode " + p.Code
}

// nationalEnvelope is the national response shape: points under data.
type nationalEnvelope struct {
	Data []apiPoint `json:"data"`
}

// regionalEnvelope is the regional/postcode shape: points under data.data.
type regionalEnvelope struct {
	Data struct {
		Data []apiPoint `json:"data"`
	} `json:"data"`
}

func (National) extract(body []byte) ([]apiPoint, error) {
	var env nationalEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParseError{Reason: "malformed national response", Err: err}
	}
	return env.Data, nil
}

func regionalExtract(body []byte) ([]apiPoint, error) {
	var env regionalEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &ParseError{Reason: "malformed regional response", Err: err}
	}
	return env.Data.Data, nil
}

func (Region) extract(body []byte) ([]apiPoint, error)   { return regionalExtract(body) }
func (Postcode) extract(body []byte) ([]apiPoint, error) { return regionalExtract(body) }

// ParseSource resolves a location identifier to a Source. "0" selects the
// national forecast, 1..17 a DNO region, anything non-numeric is treated as
// a postcode outward code. Numeric values outside 0..17 are rejected.
func ParseSource(location string) (Source, error) {
	n, err := strconv.Atoi(location)
	if err != nil {
		return Postcode{Code: location}, nil
	}
	switch {
	case n == 0:
		return National{}, nil
	case n >= 1 && n <= 17:
		return Region{ID: n}, nil
	default:
		return nil, fmt.Errorf("region code must be between 1 and 17, got %d", n)
	}
}
