package collector

import (
	"context"
	"time"
)

const fuserPollInterval = time.Millisecond

// YieldTicks returns a channel of fused Ticks and starts a background
// merger goroutine that wakes roughly every millisecond, looks for
// symbols whose kline and depth caches are both populated, atomically
// takes and clears each side, and enqueues a Tick stamped with the
// current loop clock. A kline or depth update that arrives before the
// merger has taken the previous one overwrites it in the cache, so only
// the latest snapshot of each side is fused. Ticks already on the
// returned channel (one buffer of 256 shared by all symbols) are never
// replaced; when that buffer is full the merger blocks until the
// consumer reads.
//
// Cancelling ctx stops the merger and closes the returned channel.
func (c *Client) YieldTicks(ctx context.Context) <-chan Tick {
	out := make(chan Tick, 256)

	go func() {
		defer close(out)
		ticker := time.NewTicker(fuserPollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, sym := range c.ReadySymbols() {
					kl, dp, ok := c.TakeAndClear(sym)
					if !ok {
						continue
					}
					tick := Tick{Symbol: sym, Kline: kl, Depth: dp, Ts: c.now()}
					select {
					case out <- tick:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return out
}
