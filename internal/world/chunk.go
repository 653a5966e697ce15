package world

import (
	"crypto/sha256"
	"fmt"
	"sync"
)

// TileCell is one terrain cell. Tile 0 is air; Aux is generator-defined
// (cluster ids, growth counters) and opaque to this package.
type TileCell struct {
	Tile uint8
	Aux  uint8
}

// LightCell is one light cell. Sky and Block are independent channels in
// [0, MaxLight]; the rendered brightness of a cell is the larger of the two.
type LightCell struct {
	Sky   uint8
	Block uint8
}

// Level returns the effective brightness of the cell.
func (l LightCell) Level() uint8 {
	if l.Block > l.Sky {
		return l.Block
	}
	return l.Sky
}

// CellChange is one entry of a batched write.
type CellChange struct {
	X    int
	Y    int
	Cell TileCell
}

// CellPos is one entry of a batched read.
type CellPos struct {
	X int
	Y int
}

// Chunk owns one ChunkSide x ChunkSide terrain array and a parallel light
// array. One mutex covers both so readers always see terrain and light from
// the same snapshot. Chunks are recycled through a ChunkPool; Reset detaches
// the contents but keeps the backing arrays.
type Chunk struct {
	mu    sync.Mutex
	coord ChunkCoord
	tiles []TileCell // len ChunkArea, x fastest then y
	light []LightCell

	dirty  bool // terrain differs from what the store last saw
	hash   [32]byte
	hashOK bool
}

func NewChunk() *Chunk {
	return &Chunk{
		tiles: make([]TileCell, ChunkArea),
		light: make([]LightCell, ChunkArea),
	}
}

// Coord returns the chunk-grid position this chunk currently holds. Only
// meaningful while the chunk is resident.
func (c *Chunk) Coord() ChunkCoord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coord
}

// Adopt installs freshly generated or loaded terrain and binds the chunk to
// a coordinate. Light starts dark; a bake fills it in afterwards.
func (c *Chunk) Adopt(coord ChunkCoord, tiles []TileCell) error {
	if len(tiles) != ChunkArea {
		return fmt.Errorf("adopt %v: terrain has %d cells, want %d", coord, len(tiles), ChunkArea)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coord = coord
	copy(c.tiles, tiles)
	for i := range c.light {
		c.light[i] = LightCell{}
	}
	c.dirty = false
	c.hashOK = false
	return nil
}

// ReadCell returns the cell at (x, y), or the empty cell when the position
// is outside the chunk. Callers routinely probe across chunk edges, so
// out-of-range is not an error. The bounds check and the access share one
// lock acquisition; checking outside the lock would race with Reset on a
// pooled chunk.
func (c *Chunk) ReadCell(x, y int) TileCell {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !inChunk(x, y) {
		return TileCell{}
	}
	return c.tiles[cellIndex(x, y)]
}

// ReadCells reads a batch of positions under one lock acquisition.
// Out-of-range positions yield the empty cell.
func (c *Chunk) ReadCells(positions []CellPos) []TileCell {
	out := make([]TileCell, len(positions))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range positions {
		if inChunk(p.X, p.Y) {
			out[i] = c.tiles[cellIndex(p.X, p.Y)]
		}
	}
	return out
}

// WriteCells applies a batch of changes under one lock acquisition and
// returns the previous value of every position. Out-of-range changes are
// skipped and report the empty cell. The chunk is marked dirty only when a
// cell actually changed.
func (c *Chunk) WriteCells(changes []CellChange) []TileCell {
	prev := make([]TileCell, len(changes))
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range changes {
		if !inChunk(ch.X, ch.Y) {
			continue
		}
		idx := cellIndex(ch.X, ch.Y)
		prev[i] = c.tiles[idx]
		if c.tiles[idx] == ch.Cell {
			continue
		}
		c.tiles[idx] = ch.Cell
		c.dirty = true
		c.hashOK = false
	}
	return prev
}

// SnapshotTerrain returns an owned copy of the terrain array.
func (c *Chunk) SnapshotTerrain() []TileCell {
	out := make([]TileCell, ChunkArea)
	c.mu.Lock()
	copy(out, c.tiles)
	c.mu.Unlock()
	return out
}

// SnapshotLight returns an owned copy of the light array.
func (c *Chunk) SnapshotLight() []LightCell {
	out := make([]LightCell, ChunkArea)
	c.mu.Lock()
	copy(out, c.light)
	c.mu.Unlock()
	return out
}

// InstallLight replaces the light array with a freshly computed one.
func (c *Chunk) InstallLight(light []LightCell) error {
	if len(light) != ChunkArea {
		return fmt.Errorf("install light: %d cells, want %d", len(light), ChunkArea)
	}
	c.mu.Lock()
	copy(c.light, light)
	c.mu.Unlock()
	return nil
}

// LightAt returns the light cell at (x, y), or a dark cell out of range.
func (c *Chunk) LightAt(x, y int) LightCell {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !inChunk(x, y) {
		return LightCell{}
	}
	return c.light[cellIndex(x, y)]
}

// Dirty reports whether the terrain changed since Adopt or MarkSaved.
func (c *Chunk) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// MarkSaved clears the dirty flag after a successful persist.
func (c *Chunk) MarkSaved() {
	c.mu.Lock()
	c.dirty = false
	c.mu.Unlock()
}

// Reset clears the chunk for pool reuse.
func (c *Chunk) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coord = ChunkCoord{}
	for i := range c.tiles {
		c.tiles[i] = TileCell{}
	}
	for i := range c.light {
		c.light[i] = LightCell{}
	}
	c.dirty = false
	c.hashOK = false
}

// Digest returns a sha256 over the terrain cells, cached until the next
// write. Used by stats and to skip rewriting unchanged chunks.
func (c *Chunk) Digest() [32]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hashOK {
		h := sha256.New()
		var tmp [2]byte
		for _, cell := range c.tiles {
			tmp[0] = cell.Tile
			tmp[1] = cell.Aux
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.hashOK = true
	}
	return c.hash
}

// MarshalTerrain encodes terrain cells row-major, two bytes per cell
// (tile id, aux id). This is the persisted chunk payload layout.
func MarshalTerrain(cells []TileCell) []byte {
	out := make([]byte, 0, len(cells)*2)
	for _, c := range cells {
		out = append(out, c.Tile, c.Aux)
	}
	return out
}

// UnmarshalTerrain decodes a persisted chunk payload. Payloads of the wrong
// length are rejected rather than silently truncated.
func UnmarshalTerrain(b []byte) ([]TileCell, error) {
	if len(b) != ChunkArea*2 {
		return nil, fmt.Errorf("terrain payload: %d bytes, want %d", len(b), ChunkArea*2)
	}
	cells := make([]TileCell, ChunkArea)
	for i := range cells {
		cells[i] = TileCell{Tile: b[i*2], Aux: b[i*2+1]}
	}
	return cells, nil
}
