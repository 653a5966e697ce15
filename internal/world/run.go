package world

import (
	"context"
	"time"
)

// Run drives the manager's control loop at the configured tick rate until
// ctx is cancelled, then shuts the worker pools down and flushes dirty
// chunks. Observer updates, cross-thread edits, and stats requests are
// consumed here so that all mutation stays on this one goroutine.
func (m *Manager) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(m.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Shutdown()
			return nil
		case c := <-m.observerCh:
			m.SetObserver(c)
		case edits := <-m.editCh:
			m.ApplyEdits(edits)
		case resp := <-m.statsCh:
			resp <- m.Stats()
		case <-ticker.C:
			m.Tick()
		}
	}
}

// UpdateObserver feeds a new observer chunk position from any goroutine.
// Only the latest position matters, so under load the oldest queued update
// is discarded rather than blocking the caller.
func (m *Manager) UpdateObserver(c ChunkCoord) {
	for {
		select {
		case m.observerCh <- c:
			return
		default:
		}
		select {
		case <-m.observerCh:
		default:
		}
	}
}

// SubmitEdits queues a batch of edits from any goroutine. Returns false
// when the edit queue is saturated; callers may retry next frame.
func (m *Manager) SubmitEdits(edits []TileEdit) bool {
	select {
	case m.editCh <- edits:
		return true
	default:
		return false
	}
}

// RequestStats fetches a stats snapshot from the control loop.
func (m *Manager) RequestStats(ctx context.Context) (Stats, error) {
	resp := make(chan Stats, 1)
	select {
	case m.statsCh <- resp:
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}
