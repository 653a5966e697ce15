package world

import (
	"fmt"
	"sync"
	"time"
)

// bakeJob is one light computation unit: a coordinate plus fully owned
// snapshots gathered on the world loop thread (workers never see live
// chunks). epoch is the chunk's relight epoch at gather time; a result
// whose epoch no longer matches is stale and must not be installed.
type bakeJob struct {
	coord     ChunkCoord
	propagate bool
	epoch     uint64
	in        ComputeInput
}

// bakeResult is one completed light computation.
type bakeResult struct {
	coord     ChunkCoord
	propagate bool
	epoch     uint64
	light     []LightCell
}

// lightBaker runs ComputeLight on background workers, mirroring the
// generation scheduler: one mutex, worker chaining, a completed queue the
// world loop drains in bounded batches. Bakes have no priority ordering;
// the request set is already deduplicated by the manager.
type lightBaker struct {
	props        TileProps
	workers      int
	maxCompleted int

	mu           sync.Mutex
	pending      []bakeJob
	completed    []bakeResult
	active       int
	shuttingDown bool
	wg           sync.WaitGroup
}

func newLightBaker(props TileProps, workers, maxCompleted int) *lightBaker {
	if workers < 1 {
		workers = 1
	}
	if maxCompleted < 2 {
		maxCompleted = 2
	}
	return &lightBaker{props: props, workers: workers, maxCompleted: maxCompleted}
}

func (b *lightBaker) Submit(jobs []bakeJob) {
	if len(jobs) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shuttingDown {
		return
	}
	b.pending = append(b.pending, jobs...)
	b.launchLocked()
}

func (b *lightBaker) launchLocked() {
	for b.active < b.workers && len(b.pending) > 0 && len(b.completed) < b.maxCompleted && !b.shuttingDown {
		next := b.pending[0]
		b.pending = append(b.pending[:0], b.pending[1:]...)
		b.active++
		b.wg.Add(1)
		go b.run(next)
	}
}

func (b *lightBaker) Collect(limit int) []bakeResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || len(b.completed) == 0 {
		return nil
	}
	n := limit
	if n > len(b.completed) {
		n = len(b.completed)
	}
	out := make([]bakeResult, n)
	copy(out, b.completed[:n])
	b.completed = append(b.completed[:0], b.completed[n:]...)
	b.launchLocked()
	return out
}

func (b *lightBaker) Shutdown(timeout time.Duration) error {
	b.mu.Lock()
	b.shuttingDown = true
	b.pending = nil
	b.completed = nil
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("light bake shutdown timed out after %v", timeout)
	}
}

func (b *lightBaker) run(job bakeJob) {
	defer b.wg.Done()
	for {
		light := ComputeLight(b.props, job.in)
		var ok bool
		job, ok = b.publishAndNext(job, light)
		if !ok {
			return
		}
	}
}

func (b *lightBaker) publishAndNext(job bakeJob, light []LightCell) (bakeJob, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.shuttingDown {
		b.active--
		return bakeJob{}, false
	}
	b.completed = append(b.completed, bakeResult{coord: job.coord, propagate: job.propagate, epoch: job.epoch, light: light})
	if len(b.pending) == 0 || len(b.completed) >= b.maxCompleted {
		b.active--
		return bakeJob{}, false
	}
	next := b.pending[0]
	b.pending = append(b.pending[:0], b.pending[1:]...)
	return next, true
}

func (b *lightBaker) debugCounts() (pending, completed, active int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending), len(b.completed), b.active
}
