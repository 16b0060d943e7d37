package mirror

import "github.com/prometheus/client_golang/prometheus"

// serverMetrics counts request outcomes and tracks the cache population.
type serverMetrics struct {
	requests  *prometheus.CounterVec
	upstreams *prometheus.CounterVec
	keys      prometheus.Gauge
}

func newServerMetrics(reg prometheus.Registerer) (*serverMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_requests_total",
		Help: "Total number of mirror requests by outcome",
	}, []string{"outcome"})
	upstreams := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mirror_upstream_fetch_total",
		Help: "Total number of proxied upstream fetches",
	}, []string{"success"})
	keys := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mirror_cached_keys",
		Help: "Number of forecast windows currently cached",
	})

	collectors := []prometheus.Collector{requests, upstreams, keys}
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, err
			}
			collectors[i] = are.ExistingCollector
		}
	}

	return &serverMetrics{
		requests:  collectors[0].(*prometheus.CounterVec),
		upstreams: collectors[1].(*prometheus.CounterVec),
		keys:      collectors[2].(prometheus.Gauge),
	}, nil
}
