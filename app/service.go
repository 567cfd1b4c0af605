// Package app wires configuration into a runnable simulator service.
package app

import (
	"context"
	"fmt"

	"github.com/openride/devicesim/config"
	coremetrics "github.com/openride/devicesim/core/metrics"
	"github.com/openride/devicesim/core/sim"
	"github.com/openride/devicesim/infra/logger"
	"github.com/openride/devicesim/infra/metrics"
	"github.com/openride/devicesim/infra/mqtt"
)

// Service runs the configured device fleet.
type Service struct {
	fleet    *sim.Fleet
	ids      []string
	log      logger.Logger
	promAddr string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}

	promAddr := ""
	for _, sc := range cfg.Metrics.Sinks {
		if sc.Type == "prometheus" {
			promAddr = cfg.Metrics.PrometheusAddr
			if promAddr == "" {
				promAddr = ":2112"
			}
		}
	}

	connector := mqtt.NewConnector(cfg.MQTT)
	ids := sim.ParseIdentities(cfg.Fleet.Devices)
	fleet := sim.NewFleet(ids, connector, cfg.Simulation, logg, sink)
	return &Service{fleet: fleet, ids: ids, log: logg, promAddr: promAddr}, nil
}

// Run starts the fleet and blocks until every device loop has returned.
func (s *Service) Run(ctx context.Context) error {
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	s.log.Infof("starting %d simulated devices", len(s.ids))
	s.fleet.Run(ctx)
	s.log.Infof("all devices stopped")
	return nil
}
