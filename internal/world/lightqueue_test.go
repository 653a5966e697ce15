package world

import (
	"testing"
	"time"
)

func TestLightBaker_ComputesSubmittedJobs(t *testing.T) {
	b := newLightBaker(testProps{}, 2, 16)
	jobs := []bakeJob{
		{coord: ChunkCoord{X: 0, Y: 0}, propagate: true, in: ComputeInput{Terrain: airTerrain()}},
		{coord: ChunkCoord{X: 1, Y: 0}, in: ComputeInput{Terrain: terrainOf(1)}},
	}
	b.Submit(jobs)

	got := map[ChunkCoord]bakeResult{}
	waitUntil(t, "both bakes", func() bool {
		for _, r := range b.Collect(8) {
			got[r.coord] = r
		}
		return len(got) == 2
	})

	open := got[ChunkCoord{X: 0, Y: 0}]
	if !open.propagate {
		t.Fatalf("propagate flag lost")
	}
	if open.light[cellIndex(5, 5)].Sky != MaxLight {
		t.Fatalf("air chunk bake: sky %d want %d", open.light[cellIndex(5, 5)].Sky, MaxLight)
	}
	sealed := got[ChunkCoord{X: 1, Y: 0}]
	if sealed.light[cellIndex(5, 5)].Sky != 0 {
		t.Fatalf("stone interior bake: sky %d want 0", sealed.light[cellIndex(5, 5)].Sky)
	}
	if err := b.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

// The completed queue caps worker launches until the world loop drains it.
func TestLightBaker_CompletedQueueThrottles(t *testing.T) {
	const maxCompleted = 2
	b := newLightBaker(testProps{}, 2, maxCompleted)
	jobs := make([]bakeJob, 10)
	for i := range jobs {
		jobs[i] = bakeJob{coord: ChunkCoord{X: i}, in: ComputeInput{Terrain: airTerrain()}}
	}
	b.Submit(jobs)

	waitUntil(t, "workers idle at cap", func() bool {
		p, c, a := b.debugCounts()
		return p > 0 && c >= maxCompleted && a == 0
	})

	seen := map[ChunkCoord]struct{}{}
	waitUntil(t, "all bakes drained", func() bool {
		for _, r := range b.Collect(2) {
			seen[r.coord] = struct{}{}
		}
		return len(seen) == len(jobs)
	})
	if err := b.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
