package config

import "fmt"

// MetricsConfig selects the metrics sinks. Both may be enabled at once;
// events fan out to every active sink.
type MetricsConfig struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusListen  string `json:"prometheus_listen"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// SetDefaults applies sane defaults.
func (c *MetricsConfig) SetDefaults() {
	if c.PrometheusListen == "" {
		c.PrometheusListen = ":9090"
	}
}

// Validate checks mandatory fields.
func (c MetricsConfig) Validate() error {
	if c.InfluxEnabled {
		if c.InfluxURL == "" {
			return fmt.Errorf("influx enabled but influx_url is empty")
		}
		if c.InfluxOrg == "" || c.InfluxBucket == "" {
			return fmt.Errorf("influx enabled but org or bucket is empty")
		}
	}
	return nil
}
