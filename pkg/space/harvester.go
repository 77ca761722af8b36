package space

import (
	"context"
	"time"
)

// DefaultHarvestInterval is the sweep period used when none is configured.
const DefaultHarvestInterval = 30 * time.Second

// Harvester periodically evicts expired tuples and listener registrations,
// independent of read and take traffic.
type Harvester struct {
	space    *Space
	interval time.Duration
	onSweep  func(HarvestResult)
}

// NewHarvester creates a harvester for s. interval <= 0 selects
// DefaultHarvestInterval.
func NewHarvester(s *Space, interval time.Duration) *Harvester {
	if interval <= 0 {
		interval = DefaultHarvestInterval
	}
	return &Harvester{space: s, interval: interval}
}

// OnSweep registers a callback invoked after every sweep.
func (h *Harvester) OnSweep(fn func(HarvestResult)) {
	h.onSweep = fn
}

// Interval returns the sweep period.
func (h *Harvester) Interval() time.Duration { return h.interval }

// Run sweeps every interval until ctx is cancelled or the space is closed.
func (h *Harvester) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.space.logf("[Harvester] Started, interval=%s", h.interval)
	for {
		select {
		case <-ctx.Done():
			h.space.logf("[Harvester] Stopping")
			return ctx.Err()
		case <-ticker.C:
			if h.space.closed.Load() {
				return ErrClosed
			}
			res := h.space.Harvest()
			if res.Tuples > 0 || res.Listeners > 0 {
				h.space.logf("[Harvester] Evicted %d tuples, cancelled %d listeners", res.Tuples, res.Listeners)
			}
			if h.onSweep != nil {
				h.onSweep(res)
			}
		}
	}
}
