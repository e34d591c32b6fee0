// ABOUTME: Journal retention loop that prunes recorded calls older than database.retention
// ABOUTME: Runs while the gateway is started; stopped before the journal closes

package gateway

import (
	"context"
	"time"
)

// pruner is implemented by journals that can drop old calls.
type pruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retentionInterval is how often the journal is pruned.
var retentionInterval = time.Hour

// startRetention prunes once and then every retentionInterval until
// stopRetention is called. Caller must hold g.mu.
func (g *Gateway) startRetention() {
	retention := g.config.Database.Retention
	p, ok := g.journal.(pruner)
	if retention <= 0 || !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	g.stopPrune = func() {
		cancel()
		<-done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			g.prune(ctx, p, retention)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

func (g *Gateway) prune(ctx context.Context, p pruner, retention time.Duration) {
	if _, err := p.PruneBefore(ctx, time.Now().Add(-retention)); err != nil && ctx.Err() == nil {
		g.logger.Warn("pruning journal failed", "error", err)
	}
}

// stopRetention stops the prune loop and waits for it. Caller must hold g.mu.
func (g *Gateway) stopRetention() {
	if g.stopPrune != nil {
		g.stopPrune()
		g.stopPrune = nil
	}
}
