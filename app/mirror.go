package app

import (
	"context"
	"fmt"

	"github.com/loadshift/loadshift/config"
	"github.com/loadshift/loadshift/infra/logger"
	"github.com/loadshift/loadshift/infra/metrics"
	"github.com/loadshift/loadshift/infra/mirror"
)

// RunMirror serves the forecast cache until the context is cancelled.
func RunMirror(ctx context.Context, cfg *config.Config) error {
	log := logger.New("mirror")
	srv, err := mirror.New(cfg.Mirror, nil, log)
	if err != nil {
		return fmt.Errorf("mirror server: %w", err)
	}
	if cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, cfg.Metrics.PrometheusListen); err != nil {
				log.Errorf("prom server: %v", err)
			}
		}()
	}
	return srv.Run(ctx)
}
