package world

import "github.com/BerkZerker/Substrata-Game-sub000/internal/mathx"

const (
	// ChunkSide is the tile width and height of one chunk.
	ChunkSide = 32
	// ChunkArea is the cell count of one chunk.
	ChunkArea = ChunkSide * ChunkSide
	// RegionSize groups chunks into square regions so "near the observer"
	// checks happen at region granularity instead of per chunk.
	RegionSize = 4
	// MaxLight is the brightest value a light channel can hold.
	MaxLight = 80

	// cascadeDepth bounds cross-chunk light cascades per bake cycle. Light
	// attenuates at least 1 per tile, so it cannot cross more chunks than
	// this in a single pass.
	cascadeDepth = (MaxLight + ChunkSide - 1) / ChunkSide
)

// ChunkCoord identifies a chunk in chunk-grid space (not tile space).
// Y grows downward; the chunk above C is {C.X, C.Y - 1}.
type ChunkCoord struct {
	X int
	Y int
}

func (c ChunkCoord) Region() RegionCoord {
	return RegionCoord{
		X: mathx.FloorDiv(c.X, RegionSize),
		Y: mathx.FloorDiv(c.Y, RegionSize),
	}
}

// Above returns the coordinate of the chunk directly above.
func (c ChunkCoord) Above() ChunkCoord {
	return ChunkCoord{X: c.X, Y: c.Y - 1}
}

func (c ChunkCoord) dist2(o ChunkCoord) int {
	dx := c.X - o.X
	dy := c.Y - o.Y
	return dx*dx + dy*dy
}

// RegionCoord identifies a RegionSize x RegionSize block of chunks.
type RegionCoord struct {
	X int
	Y int
}

// Dist returns the Chebyshev distance between two regions, the metric used
// for the generation radius and the removal buffer.
func (r RegionCoord) Dist(o RegionCoord) int {
	return mathx.MaxInt(mathx.AbsInt(r.X-o.X), mathx.AbsInt(r.Y-o.Y))
}

// TilePos is a position in world tile space. Y grows downward; sky light
// enters from negative Y.
type TilePos struct {
	X int
	Y int
}

func (p TilePos) Chunk() ChunkCoord {
	return ChunkCoord{
		X: mathx.FloorDiv(p.X, ChunkSide),
		Y: mathx.FloorDiv(p.Y, ChunkSide),
	}
}

// Local returns the cell coordinates of p within its owning chunk.
func (p TilePos) Local() (int, int) {
	return mathx.Mod(p.X, ChunkSide), mathx.Mod(p.Y, ChunkSide)
}

func cellIndex(x, y int) int {
	// x fastest, then y
	return x + y*ChunkSide
}

func inChunk(x, y int) bool {
	return x >= 0 && x < ChunkSide && y >= 0 && y < ChunkSide
}
