// internal/poller/runner.go
package poller

import (
	"context"
	"time"
)

// Run starts the ticker loop and emits TickResult on out when it is not nil.
// One goroutine per serial bus. No overlap between ticks.
func (p *Poller) Run(ctx context.Context, out chan<- TickResult) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Info().Dur("interval", p.cfg.Interval).Int("devices", p.devices.Len()).Msg("polling started")
	defer p.log.Info().Msg("polling stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res := p.PollOnce()
			if out == nil {
				continue
			}

			select {
			case out <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}
