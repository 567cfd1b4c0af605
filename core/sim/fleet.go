package sim

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/openride/devicesim/core/bus"
	"github.com/openride/devicesim/core/device"
	"github.com/openride/devicesim/core/logger"
	"github.com/openride/devicesim/core/metrics"
)

// ParseIdentities splits a comma or whitespace separated device list.
func ParseIdentities(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// Fleet runs one Runner per device. Devices are fully independent: each has
// its own state, connection and command stream, and a failing device never
// affects the others.
type Fleet struct {
	runners []*Runner
	log     logger.Logger
}

// NewFleet builds the runners for the given identities. Every device gets
// its own randomness source so trajectories stay independent; with a fixed
// seed the per-device sources are derived deterministically.
func NewFleet(ids []string, connector bus.Connector, cfg Config, log logger.Logger, sink metrics.Sink, opts ...RunnerOption) *Fleet {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	runners := make([]*Runner, 0, len(ids))
	for i, id := range ids {
		rng := rand.New(rand.NewSource(seed + int64(i)))
		dev := device.New(id, rng, device.WithOrigin(device.Origin{
			Latitude:  cfg.OriginLatitude,
			Longitude: cfg.OriginLongitude,
		}))
		runners = append(runners, NewRunner(dev, connector, cfg, log, sink, opts...))
	}
	return &Fleet{runners: runners, log: log}
}

// Run starts all runners and blocks until every one of them has returned.
func (f *Fleet) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range f.runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				f.log.Errorf("%s: %v", r.dev.ID(), err)
			}
		}(r)
	}
	wg.Wait()
}
