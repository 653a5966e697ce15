package world

import "testing"

// testProps is a minimal tile table for engine tests.
// 0 air, 1 stone (opaque solid), 2 lamp (emissive), 3 glass (clear solid),
// 4 murk (translucent, filter 9).
type testProps struct{}

func (testProps) Solid(tile uint8) bool {
	return tile == 1 || tile == 3
}

func (testProps) LightFilter(tile uint8) uint8 {
	switch tile {
	case 1:
		return 79
	case 4:
		return 9
	default:
		return 0
	}
}

func (testProps) LightEmission(tile uint8) uint8 {
	if tile == 2 {
		return 56
	}
	return 0
}

func airTerrain() []TileCell {
	return make([]TileCell, ChunkArea)
}

func terrainOf(tile uint8) []TileCell {
	cells := make([]TileCell, ChunkArea)
	for i := range cells {
		cells[i].Tile = tile
	}
	return cells
}

func TestComputeLight_OpenColumnsFullySkylit(t *testing.T) {
	light := ComputeLight(testProps{}, ComputeInput{Terrain: airTerrain()})
	for i, l := range light {
		if l.Sky != MaxLight {
			t.Fatalf("cell %d: sky %d want %d", i, l.Sky, MaxLight)
		}
		if l.Block != 0 {
			t.Fatalf("cell %d: block %d want 0", i, l.Block)
		}
	}
}

func TestComputeLight_SkyStopsAtFirstSolid(t *testing.T) {
	terrain := airTerrain()
	for y := 5; y < ChunkSide; y++ {
		for x := 0; x < ChunkSide; x++ {
			terrain[cellIndex(x, y)].Tile = 1
		}
	}
	light := ComputeLight(testProps{}, ComputeInput{Terrain: terrain})

	if got := light[cellIndex(10, 4)].Sky; got != MaxLight {
		t.Fatalf("air above surface: sky %d want %d", got, MaxLight)
	}
	// The first solid cell under open sky is fully lit.
	if got := light[cellIndex(10, 5)].Sky; got != MaxLight {
		t.Fatalf("surface cell: sky %d want %d", got, MaxLight)
	}
	if got := light[cellIndex(10, 6)].Sky; got != 0 {
		t.Fatalf("cell below surface: sky %d want 0", got)
	}
}

func TestComputeLight_CoveredColumnsGetNoSky(t *testing.T) {
	light := ComputeLight(testProps{}, ComputeInput{
		Terrain: airTerrain(),
		Above:   terrainOf(1),
	})
	for i, l := range light {
		if l.Sky != 0 {
			t.Fatalf("cell %d: sky %d want 0 under a solid roof", i, l.Sky)
		}
	}
}

func TestComputeLight_PartiallyOpenAboveSeedsPerColumn(t *testing.T) {
	above := airTerrain()
	above[cellIndex(7, 20)].Tile = 1 // blocks column 7 only
	light := ComputeLight(testProps{}, ComputeInput{Terrain: terrainOf(3), Above: above})

	if got := light[cellIndex(6, 0)].Sky; got != MaxLight {
		t.Fatalf("open column: sky %d want %d", got, MaxLight)
	}
	// Column 7 gets no direct seed; the glass surface row floods sideways
	// into it at one step of attenuation.
	if got := light[cellIndex(7, 0)].Sky; got != MaxLight-1 {
		t.Fatalf("blocked column surface: sky %d want %d", got, MaxLight-1)
	}
}

func TestComputeLight_EmissionFloodsFromSource(t *testing.T) {
	terrain := airTerrain()
	terrain[cellIndex(16, 16)].Tile = 2
	light := ComputeLight(testProps{}, ComputeInput{Terrain: terrain})

	if got := light[cellIndex(16, 16)].Block; got != 56 {
		t.Fatalf("source: block %d want 56", got)
	}
	if got := light[cellIndex(20, 16)].Block; got != 52 {
		t.Fatalf("4 steps away: block %d want 52", got)
	}
	if got := light[cellIndex(16, 16)].Sky; got != MaxLight {
		t.Fatalf("sky channel must be independent: got %d want %d", got, MaxLight)
	}
}

func TestImportBorder_AttenuatesByDestinationFilter(t *testing.T) {
	terrain := terrainOf(1)
	terrain[cellIndex(0, 10)].Tile = 4 // murk, filter 9
	terrain[cellIndex(0, 11)].Tile = 0 // air
	light := make([]LightCell, ChunkArea)

	border := make([]LightCell, ChunkSide)
	border[10] = LightCell{Sky: 50}
	border[11] = LightCell{Sky: 50, Block: 1}
	border[12] = LightCell{Sky: 50} // lands on stone, filter 79

	skySeeds, blockSeeds := ImportBorder(testProps{}, light, terrain, DirWest, border)
	if got := light[cellIndex(0, 10)].Sky; got != 40 {
		t.Fatalf("murk cell: sky %d want 40 (50 - 1 - 9)", got)
	}
	if got := light[cellIndex(0, 11)].Sky; got != 49 {
		t.Fatalf("air cell: sky %d want 49", got)
	}
	if got := light[cellIndex(0, 12)].Sky; got != 0 {
		t.Fatalf("opaque cell: sky %d want 0", got)
	}
	if len(skySeeds) != 2 {
		t.Fatalf("sky seeds: got %d want 2", len(skySeeds))
	}
	// Block value 1 dies in the crossing (1 - 1 = 0), no seed.
	if len(blockSeeds) != 0 {
		t.Fatalf("block seeds: got %d want 0", len(blockSeeds))
	}
}

func TestContinueLight_IsIdempotent(t *testing.T) {
	terrain := airTerrain()
	terrain[cellIndex(3, 3)].Tile = 4
	in := ComputeInput{Terrain: terrain, Above: terrainOf(1)}
	base := ComputeLight(testProps{}, in)

	border := make([]LightCell, ChunkSide)
	for i := range border {
		border[i] = LightCell{Sky: uint8(20 + i)}
	}
	run := func(light []LightCell) []LightCell {
		ss, bs := ImportBorder(testProps{}, light, terrain, DirWest, border)
		return ContinueLight(testProps{}, light, terrain, ss, bs)
	}
	once := run(append([]LightCell(nil), base...))
	twice := run(append([]LightCell(nil), once...))
	for i := range once {
		if once[i] != twice[i] {
			t.Fatalf("cell %d: second pass changed %+v to %+v", i, once[i], twice[i])
		}
	}
}

func TestContinueLight_OnlyRaisesValues(t *testing.T) {
	terrain := airTerrain()
	for i := 0; i < ChunkArea; i += 7 {
		terrain[i].Tile = 4
	}
	in := ComputeInput{Terrain: terrain}
	base := ComputeLight(testProps{}, in)

	light := append([]LightCell(nil), base...)
	border := make([]LightCell, ChunkSide)
	for i := range border {
		border[i] = LightCell{Sky: MaxLight, Block: 30}
	}
	ss, bs := ImportBorder(testProps{}, light, terrain, DirNorth, border)
	ContinueLight(testProps{}, light, terrain, ss, bs)

	for i := range light {
		if light[i].Sky < base[i].Sky || light[i].Block < base[i].Block {
			t.Fatalf("cell %d: value decreased from %+v to %+v", i, base[i], light[i])
		}
	}
}

func TestBorders_ExtractsOwnedEdges(t *testing.T) {
	light := make([]LightCell, ChunkArea)
	light[cellIndex(0, 4)] = LightCell{Sky: 11}
	light[cellIndex(ChunkSide-1, 4)] = LightCell{Sky: 22}
	light[cellIndex(4, 0)] = LightCell{Sky: 33}
	light[cellIndex(4, ChunkSide-1)] = LightCell{Sky: 44}

	b := Borders(light)
	if b.West[4].Sky != 11 || b.East[4].Sky != 22 || b.North[4].Sky != 33 || b.South[4].Sky != 44 {
		t.Fatalf("edges: west %d east %d north %d south %d", b.West[4].Sky, b.East[4].Sky, b.North[4].Sky, b.South[4].Sky)
	}

	b.West[4].Sky = 99
	if light[cellIndex(0, 4)].Sky != 11 {
		t.Fatalf("edges must be owned copies")
	}
}

func TestEdgeDecreased(t *testing.T) {
	old := BorderSnapshot{West: make([]LightCell, ChunkSide)}
	cur := BorderSnapshot{West: make([]LightCell, ChunkSide)}
	old.West[3] = LightCell{Sky: 10}
	cur.West[3] = LightCell{Sky: 10}
	if edgeDecreased(old, cur, DirWest) {
		t.Fatalf("equal edges reported as decreased")
	}
	cur.West[3].Sky = 9
	if !edgeDecreased(old, cur, DirWest) {
		t.Fatalf("drop not detected")
	}
	if edgeDecreased(BorderSnapshot{}, cur, DirWest) {
		t.Fatalf("nil old edge must never count as a drop")
	}
}

func TestDirection_OppositeAndOffset(t *testing.T) {
	for d := DirWest; d <= DirSouth; d++ {
		if d.Opposite().Opposite() != d {
			t.Fatalf("%v: opposite is not an involution", d)
		}
		dx, dy := d.Offset()
		ox, oy := d.Opposite().Offset()
		if dx+ox != 0 || dy+oy != 0 {
			t.Fatalf("%v: offsets do not cancel", d)
		}
	}
}
