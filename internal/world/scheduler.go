package world

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// PopulateFunc produces terrain for a chunk coordinate. It must not touch
// engine state and must be callable from any goroutine.
type PopulateFunc func(ChunkCoord) []TileCell

// GenResult is one completed generation unit.
type GenResult struct {
	Coord ChunkCoord
	Tiles []TileCell
}

type genRequest struct {
	coord ChunkCoord
	dist2 int
}

// GenerationScheduler turns requested chunk coordinates into populated
// terrain buffers on background workers. Requests are served nearest-first
// relative to a cached observer chunk; completed results queue up until the
// world loop collects them. When the completed queue grows past its
// threshold the scheduler stops launching workers (backpressure) until the
// queue drains below half.
//
// All state lives behind one mutex, held only for queue operations, never
// across a populate call.
type GenerationScheduler struct {
	populate     PopulateFunc
	workers      int
	maxCompleted int
	logger       *log.Logger

	mu           sync.Mutex
	queue        []genRequest
	inflight     map[ChunkCoord]struct{}
	completed    []GenResult
	observer     ChunkCoord
	active       int
	backpressure bool
	shuttingDown bool
	wg           sync.WaitGroup
}

func NewGenerationScheduler(populate PopulateFunc, workers, maxCompleted int, logger *log.Logger) *GenerationScheduler {
	if workers < 1 {
		workers = 1
	}
	if maxCompleted < 2 {
		maxCompleted = 2
	}
	return &GenerationScheduler{
		populate:     populate,
		workers:      workers,
		maxCompleted: maxCompleted,
		logger:       logger,
		inflight:     map[ChunkCoord]struct{}{},
	}
}

// Request merges coords into the queue, skipping any coordinate already
// queued or in flight, re-sorts by squared distance to the observer chunk,
// and launches workers up to the configured parallelism.
func (s *GenerationScheduler) Request(coords []ChunkCoord, observer ChunkCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		return
	}
	s.observer = observer

	seen := make(map[ChunkCoord]struct{}, len(s.queue)+len(s.inflight))
	for _, r := range s.queue {
		seen[r.coord] = struct{}{}
	}
	for c := range s.inflight {
		seen[c] = struct{}{}
	}
	added := false
	for _, c := range coords {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		s.queue = append(s.queue, genRequest{coord: c})
		added = true
	}
	if added || len(s.queue) > 0 {
		s.sortQueueLocked()
	}
	s.launchLocked()
}

// Reprioritize re-sorts the request queue and the completed queue for a new
// observer chunk. A no-op when the observer has not actually moved, since
// the re-sort dominates cost at large queue sizes.
func (s *GenerationScheduler) Reprioritize(observer ChunkCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if observer == s.observer {
		return
	}
	s.observer = observer
	s.sortQueueLocked()
	sort.SliceStable(s.completed, func(i, j int) bool {
		return s.completed[i].Coord.dist2(observer) < s.completed[j].Coord.dist2(observer)
	})
}

// CollectCompleted pops up to limit completed results, nearest-first as of
// the last reprioritize, FIFO within equal priority. Draining below half of
// the backpressure threshold resumes worker launches.
func (s *GenerationScheduler) CollectCompleted(limit int) []GenResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || len(s.completed) == 0 {
		return nil
	}
	n := limit
	if n > len(s.completed) {
		n = len(s.completed)
	}
	out := make([]GenResult, n)
	copy(out, s.completed[:n])
	s.completed = append(s.completed[:0], s.completed[n:]...)
	if s.backpressure && len(s.completed) <= s.maxCompleted/2 {
		s.backpressure = false
		s.launchLocked()
	}
	return out
}

// MarkDone releases the in-flight markers for results the world loop has
// consumed, allowing those coordinates to be requested again later (for
// example after eviction).
func (s *GenerationScheduler) MarkDone(coords []ChunkCoord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range coords {
		delete(s.inflight, c)
	}
}

// Shutdown stops accepting work, clears the queues, and waits for in-flight
// workers to observe the flag and exit. On timeout it returns an error and
// the caller proceeds anyway; any result published after shutdown is never
// consumed, so correctness is unaffected.
func (s *GenerationScheduler) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.queue = nil
	s.completed = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("generation shutdown timed out after %v", timeout)
	}
}

func (s *GenerationScheduler) sortQueueLocked() {
	for i := range s.queue {
		s.queue[i].dist2 = s.queue[i].coord.dist2(s.observer)
	}
	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.queue[i].dist2 < s.queue[j].dist2
	})
}

// launchLocked starts workers while capacity allows. Each worker chains
// into the next queued unit itself, so the world loop never has to poll to
// keep parallelism saturated.
func (s *GenerationScheduler) launchLocked() {
	for s.active < s.workers && !s.backpressure && !s.shuttingDown && len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = append(s.queue[:0], s.queue[1:]...)
		s.inflight[next.coord] = struct{}{}
		s.active++
		s.wg.Add(1)
		go s.run(next.coord)
	}
}

func (s *GenerationScheduler) run(coord ChunkCoord) {
	defer s.wg.Done()
	for {
		tiles := s.populate(coord)
		var ok bool
		coord, ok = s.publishAndNext(coord, tiles)
		if !ok {
			return
		}
	}
}

// publishAndNext appends a finished result and pulls the next unit for this
// worker, or retires the worker when shutting down, backpressured, or idle.
// The in-flight marker for the finished coordinate stays set until MarkDone;
// that is what keeps a coordinate in at most one of {queue, in-flight}.
func (s *GenerationScheduler) publishAndNext(coord ChunkCoord, tiles []TileCell) (ChunkCoord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shuttingDown {
		s.active--
		return ChunkCoord{}, false
	}
	s.completed = append(s.completed, GenResult{Coord: coord, Tiles: tiles})
	if len(s.completed) >= s.maxCompleted && !s.backpressure {
		s.backpressure = true
		if s.logger != nil {
			s.logger.Printf("generation backpressure: %d completed results pending", len(s.completed))
		}
	}
	if s.backpressure || len(s.queue) == 0 {
		s.active--
		return ChunkCoord{}, false
	}
	next := s.queue[0]
	s.queue = append(s.queue[:0], s.queue[1:]...)
	s.inflight[next.coord] = struct{}{}
	return next.coord, true
}

// debugCounts returns queue depths for the stats snapshot.
func (s *GenerationScheduler) debugCounts() (queued, inflight, completed, active int, backpressure bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), len(s.inflight), len(s.completed), s.active, s.backpressure
}
