package world

import "github.com/BerkZerker/Substrata-Game-sub000/internal/mathx"

// TerrainGen is the default deterministic generator: a height-mapped ground
// line with dirt over stone, cluster-carved caves, cluster-placed ores, and
// the occasional emissive glowshroom inside caves. Aux carries the cluster
// cell id for ore tiles so consumers can group veins.
type TerrainGen struct {
	Seed         int64
	SurfaceLevel int // world y of the mean ground line (y grows downward)
	SurfaceAmp   int // surface variation in tiles

	// Palette ids for core tiles.
	Air        uint8
	Dirt       uint8
	Stone      uint8
	Gravel     uint8
	CoalOre    uint8
	IronOre    uint8
	CrystalOre uint8
	Glowshroom uint8

	OreProbScalePermille  int
	CaveProbScalePermille int
}

// Generate satisfies the Generator signature. Pure: same coordinate, same
// seed, same output.
func (g TerrainGen) Generate(coord ChunkCoord) []TileCell {
	cells := make([]TileCell, ChunkArea)
	for y := 0; y < ChunkSide; y++ {
		for x := 0; x < ChunkSide; x++ {
			wx := coord.X*ChunkSide + x
			wy := coord.Y*ChunkSide + y
			cells[cellIndex(x, y)] = g.cellAt(wx, wy)
		}
	}
	return cells
}

func (g TerrainGen) cellAt(wx, wy int) TileCell {
	depth := wy - g.surfaceAt(wx)
	if depth < 0 {
		return TileCell{Tile: g.Air}
	}

	// Caves cut through everything below the topsoil. Glowshrooms grow on a
	// sparse roll inside them so deep caves carry their own light seeds.
	if depth >= 3 {
		if carved, _ := clusterAt(g.Seed+7, wx, wy, 28, 6, scalePermille(500, g.CaveProbScalePermille)); carved {
			if mathx.Hash2(g.Seed+8, wx, wy)%1000 < 14 {
				return TileCell{Tile: g.Glowshroom}
			}
			return TileCell{Tile: g.Air}
		}
	}

	// Precedence order: rare ores > common ores > plain strata.
	switch {
	case depth >= 40:
		if ok, id := clusterAt(g.Seed+101, wx, wy, 160, 3, scalePermille(250, g.OreProbScalePermille)); ok {
			return TileCell{Tile: g.CrystalOre, Aux: id}
		}
	case depth >= 16:
		if ok, id := clusterAt(g.Seed+102, wx, wy, 96, 4, scalePermille(450, g.OreProbScalePermille)); ok {
			return TileCell{Tile: g.IronOre, Aux: id}
		}
	}
	if depth >= 8 {
		if ok, id := clusterAt(g.Seed+103, wx, wy, 64, 4, scalePermille(600, g.OreProbScalePermille)); ok {
			return TileCell{Tile: g.CoalOre, Aux: id}
		}
	}

	switch {
	case depth < 4:
		return TileCell{Tile: g.Dirt}
	case depth < 8:
		if ok, id := clusterAt(g.Seed+104, wx, wy, 48, 3, scalePermille(350, 0)); ok {
			return TileCell{Tile: g.Gravel, Aux: id}
		}
		return TileCell{Tile: g.Dirt}
	default:
		return TileCell{Tile: g.Stone}
	}
}

// surfaceAt returns the ground-line y for a column, a hash-based value
// noise with linear interpolation between 16-tile control points.
func (g TerrainGen) surfaceAt(wx int) int {
	amp := g.SurfaceAmp
	if amp <= 0 {
		amp = 1
	}
	const step = 16
	gx := mathx.FloorDiv(wx, step)
	h0 := int(mathx.Hash2(g.Seed, gx, 0) % uint64(amp))
	h1 := int(mathx.Hash2(g.Seed, gx+1, 0) % uint64(amp))
	t := mathx.Mod(wx, step)
	return g.SurfaceLevel + h0 + (h1-h0)*t/step
}

// clusterAt reports whether (x, y) falls inside a deterministically placed
// disc cluster, and if so returns a stable per-cluster id for the Aux
// channel. Clusters are seeded one-per-grid-cell with the given probability.
func clusterAt(seed int64, x, y, grid, radius int, probPermille uint64) (bool, uint8) {
	if grid <= 0 || radius <= 0 || probPermille == 0 {
		return false, 0
	}
	gx := mathx.FloorDiv(x, grid)
	gy := mathx.FloorDiv(y, grid)
	r2 := radius * radius

	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			cgx := gx + dx
			cgy := gy + dy
			h := mathx.Hash2(seed, cgx, cgy)
			if h%1000 >= probPermille {
				continue
			}

			ox := int((h >> 10) % uint64(grid))
			oy := int((h >> 20) % uint64(grid))
			cx := cgx*grid + ox
			cy := cgy*grid + oy

			ddx := x - cx
			ddy := y - cy
			if ddx*ddx+ddy*ddy <= r2 {
				id := uint8(h >> 32)
				if id == 0 {
					id = 1
				}
				return true, id
			}
		}
	}
	return false, 0
}

func scalePermille(base uint64, scale int) uint64 {
	if scale <= 0 {
		scale = 1000
	}
	scaled := (base*uint64(scale) + 500) / 1000
	if scaled > 1000 {
		return 1000
	}
	return scaled
}
