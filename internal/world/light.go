package world

// TileProps exposes the per-tile attributes the light engine needs. The
// table is read-only here and injected by constructor, never read from a
// global registry.
type TileProps interface {
	Solid(tile uint8) bool
	LightFilter(tile uint8) uint8
	LightEmission(tile uint8) uint8
}

// Direction indexes the four chunk edges.
type Direction int

const (
	DirWest Direction = iota
	DirEast
	DirNorth
	DirSouth
)

var dirNames = [4]string{"west", "east", "north", "south"}

func (d Direction) String() string { return dirNames[d] }

// Opposite returns the edge facing d from the neighbor's side.
func (d Direction) Opposite() Direction {
	switch d {
	case DirWest:
		return DirEast
	case DirEast:
		return DirWest
	case DirNorth:
		return DirSouth
	default:
		return DirNorth
	}
}

// Offset returns the chunk-grid delta toward d.
func (d Direction) Offset() (int, int) {
	switch d {
	case DirWest:
		return -1, 0
	case DirEast:
		return 1, 0
	case DirNorth:
		return 0, -1
	default:
		return 0, 1
	}
}

// BorderSnapshot holds the light values along the four edges of a chunk,
// each ChunkSide long. When passed into ComputeLight, each field instead
// carries the facing edge of the neighbor on that side (the west field is
// the west neighbor's east column), or nil when that neighbor is absent.
type BorderSnapshot struct {
	West  []LightCell
	East  []LightCell
	North []LightCell
	South []LightCell
}

// Edge returns the slice for direction d.
func (b BorderSnapshot) Edge(d Direction) []LightCell {
	switch d {
	case DirWest:
		return b.West
	case DirEast:
		return b.East
	case DirNorth:
		return b.North
	default:
		return b.South
	}
}

func (b *BorderSnapshot) setEdge(d Direction, e []LightCell) {
	switch d {
	case DirWest:
		b.West = e
	case DirEast:
		b.East = e
	case DirNorth:
		b.North = e
	default:
		b.South = e
	}
}

// Borders extracts owned copies of a light array's four edges.
func Borders(light []LightCell) BorderSnapshot {
	b := BorderSnapshot{
		West:  make([]LightCell, ChunkSide),
		East:  make([]LightCell, ChunkSide),
		North: make([]LightCell, ChunkSide),
		South: make([]LightCell, ChunkSide),
	}
	for i := 0; i < ChunkSide; i++ {
		b.West[i] = light[cellIndex(0, i)]
		b.East[i] = light[cellIndex(ChunkSide-1, i)]
		b.North[i] = light[cellIndex(i, 0)]
		b.South[i] = light[cellIndex(i, ChunkSide-1)]
	}
	return b
}

// edgeDecreased reports whether any value along direction d dropped from
// old to cur. A nil old edge (chunk was never lit) never counts as a drop.
func edgeDecreased(old, cur BorderSnapshot, d Direction) bool {
	o, c := old.Edge(d), cur.Edge(d)
	if o == nil || c == nil {
		return false
	}
	for i := range o {
		if c[i].Sky < o[i].Sky || c[i].Block < o[i].Block {
			return true
		}
	}
	return false
}

// edgeChanged reports whether any value along direction d differs.
func edgeChanged(old, cur BorderSnapshot, d Direction) bool {
	o, c := old.Edge(d), cur.Edge(d)
	if o == nil || c == nil {
		return o != nil || c != nil
	}
	for i := range o {
		if o[i] != c[i] {
			return true
		}
	}
	return false
}

// ComputeInput is everything a full light computation needs, all owned
// copies so the call is safe off the world loop thread.
type ComputeInput struct {
	Terrain []TileCell
	// Above is the terrain of the chunk directly above, or nil when that
	// chunk is absent and the column opens to sky.
	Above []TileCell
	// Borders carries the facing edges of already-lit neighbors; see
	// BorderSnapshot.
	Borders BorderSnapshot
}

// ComputeLight computes a chunk's light from scratch: sky seeding per
// column, emissive block seeding, neighbor border imports, then one
// breadth-first flood fill per channel. Pure; callable on any goroutine.
//
// Sky seeding walks each column from the top, granting full MaxLight
// through open air and onto the first solid cell, then stops, so interior
// cells start dark. Columns under a present Above chunk are seeded only
// when that chunk's column is fully open.
func ComputeLight(props TileProps, in ComputeInput) []LightCell {
	light := make([]LightCell, ChunkArea)
	var skySeeds, blockSeeds []int

	for x := 0; x < ChunkSide; x++ {
		if !columnOpen(props, in.Above, x) {
			continue
		}
		for y := 0; y < ChunkSide; y++ {
			idx := cellIndex(x, y)
			light[idx].Sky = MaxLight
			skySeeds = append(skySeeds, idx)
			if props.Solid(in.Terrain[idx].Tile) {
				break
			}
		}
	}

	for idx := range in.Terrain {
		if e := props.LightEmission(in.Terrain[idx].Tile); e > 0 {
			if e > MaxLight {
				e = MaxLight
			}
			if e > light[idx].Block {
				light[idx].Block = e
				blockSeeds = append(blockSeeds, idx)
			}
		}
	}

	for d := DirWest; d <= DirSouth; d++ {
		if border := in.Borders.Edge(d); border != nil {
			ss, bs := ImportBorder(props, light, in.Terrain, d, border)
			skySeeds = append(skySeeds, ss...)
			blockSeeds = append(blockSeeds, bs...)
		}
	}

	flood(props, light, in.Terrain, skySeeds, channelSky)
	flood(props, light, in.Terrain, blockSeeds, channelBlock)
	return light
}

// ContinueLight re-runs only the flood-fill step from the given seed cells,
// for the case where only border values changed and a full recompute would
// be wasted. The fill only ever raises values, so repeated calls are
// idempotent and order-independent. Modifies light in place and returns it.
func ContinueLight(props TileProps, light []LightCell, terrain []TileCell, skySeeds, blockSeeds []int) []LightCell {
	flood(props, light, terrain, skySeeds, channelSky)
	flood(props, light, terrain, blockSeeds, channelBlock)
	return light
}

// ImportBorder folds one neighbor edge into light, attenuating each value
// by 1 plus the destination tile's filter (that attenuation has not been
// applied while the value sat on the neighbor's edge). Returns the indices
// whose values rose, as flood seeds.
func ImportBorder(props TileProps, light []LightCell, terrain []TileCell, d Direction, border []LightCell) (skySeeds, blockSeeds []int) {
	for i := 0; i < ChunkSide && i < len(border); i++ {
		var idx int
		switch d {
		case DirWest:
			idx = cellIndex(0, i)
		case DirEast:
			idx = cellIndex(ChunkSide-1, i)
		case DirNorth:
			idx = cellIndex(i, 0)
		default:
			idx = cellIndex(i, ChunkSide-1)
		}
		att := 1 + int(props.LightFilter(terrain[idx].Tile))
		if v := int(border[i].Sky) - att; v > 0 && v > int(light[idx].Sky) {
			light[idx].Sky = uint8(v)
			skySeeds = append(skySeeds, idx)
		}
		if v := int(border[i].Block) - att; v > 0 && v > int(light[idx].Block) {
			light[idx].Block = uint8(v)
			blockSeeds = append(blockSeeds, idx)
		}
	}
	return skySeeds, blockSeeds
}

type lightChannel int

const (
	channelSky lightChannel = iota
	channelBlock
)

func (c lightChannel) get(l LightCell) uint8 {
	if c == channelSky {
		return l.Sky
	}
	return l.Block
}

func (c lightChannel) set(l *LightCell, v uint8) {
	if c == channelSky {
		l.Sky = v
	} else {
		l.Block = v
	}
}

// flood runs a 4-neighbor BFS from the seeds. A step into a neighbor cell
// costs 1 plus that cell's tile filter; propagation stops when the value
// would reach zero or would not exceed the cell's current value.
func flood(props TileProps, light []LightCell, terrain []TileCell, seeds []int, ch lightChannel) {
	queue := append([]int(nil), seeds...)
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		v := int(ch.get(light[idx]))
		if v <= 1 {
			continue
		}
		x := idx % ChunkSide
		y := idx / ChunkSide
		for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
			if !inChunk(n[0], n[1]) {
				continue
			}
			nIdx := cellIndex(n[0], n[1])
			nv := v - 1 - int(props.LightFilter(terrain[nIdx].Tile))
			if nv <= 0 || nv <= int(ch.get(light[nIdx])) {
				continue
			}
			ch.set(&light[nIdx], uint8(nv))
			queue = append(queue, nIdx)
		}
	}
}

// columnOpen reports whether column x of the above terrain admits sky, that
// is the column is entirely non-solid (or there is no chunk above at all).
func columnOpen(props TileProps, above []TileCell, x int) bool {
	if above == nil {
		return true
	}
	for y := 0; y < ChunkSide; y++ {
		if props.Solid(above[cellIndex(x, y)].Tile) {
			return false
		}
	}
	return true
}
