package advert

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Advertiser re-advertises on a fixed period so peers reconverge after lost
// or rejected advertisements.
type Advertiser struct {
	p        *Protocol
	interval time.Duration
}

func NewAdvertiser(p *Protocol, interval time.Duration) *Advertiser {
	return &Advertiser{p: p, interval: interval}
}

// Run blocks until ctx is done. A non-positive interval disables it.
func (a *Advertiser) Run(ctx context.Context) error {
	if a.interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(a.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n := a.p.Broadcast(nil)
			zap.L().Debug("periodic route advert", zap.Int("peers", n))
		}
	}
}
