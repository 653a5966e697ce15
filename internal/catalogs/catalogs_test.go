package catalogs

import (
	"strings"
	"testing"
)

const sampleTiles = `[
  {"id": "STONE", "solid": true, "light_filter": 79},
  {"id": "AIR"},
  {"id": "LAMP", "solid": true, "light_filter": 79, "light_emission": 80},
  {"id": "WATER", "light_filter": 6}
]`

func TestParse_AirIsAlwaysZero(t *testing.T) {
	c, err := Parse([]byte(sampleTiles))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.Palette[0] != "AIR" {
		t.Fatalf("palette[0]: got %q want AIR", c.Palette[0])
	}
	if id, _ := c.IDOf("AIR"); id != 0 {
		t.Fatalf("AIR id: got %d want 0", id)
	}
	// The rest is sorted for digest stability.
	rest := c.Palette[1:]
	for i := 1; i < len(rest); i++ {
		if rest[i-1] > rest[i] {
			t.Fatalf("palette not sorted after AIR: %v", c.Palette)
		}
	}
}

func TestParse_PropertyTables(t *testing.T) {
	c, err := Parse([]byte(sampleTiles))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	stone, err := c.MustID("STONE")
	if err != nil {
		t.Fatalf("MustID: %v", err)
	}
	if !c.Solid(stone) || c.LightFilter(stone) != 79 || c.LightEmission(stone) != 0 {
		t.Fatalf("stone properties: solid=%v filter=%d emission=%d", c.Solid(stone), c.LightFilter(stone), c.LightEmission(stone))
	}
	lamp, _ := c.IDOf("LAMP")
	if c.LightEmission(lamp) != 80 {
		t.Fatalf("lamp emission: got %d want 80", c.LightEmission(lamp))
	}
	water, _ := c.IDOf("WATER")
	if c.Solid(water) || c.LightFilter(water) != 6 {
		t.Fatalf("water properties: solid=%v filter=%d", c.Solid(water), c.LightFilter(water))
	}
	if c.Solid(0) || c.LightFilter(0) != 0 {
		t.Fatalf("air must be passable and clear")
	}
	// Ids never handed out behave like air.
	if c.Solid(200) || c.LightFilter(200) != 0 || c.LightEmission(200) != 0 {
		t.Fatalf("unknown id should resolve to air-like defaults")
	}
}

func TestParse_Digests(t *testing.T) {
	c1, err := Parse([]byte(sampleTiles))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	c2, _ := Parse([]byte(sampleTiles))
	if c1.PaletteDigest != c2.PaletteDigest || c1.DefsDigest != c2.DefsDigest {
		t.Fatalf("digests not stable across parses")
	}
	if len(c1.PaletteDigest) != 64 {
		t.Fatalf("palette digest: got %d hex chars want 64", len(c1.PaletteDigest))
	}
	altered := strings.Replace(sampleTiles, `"light_filter": 6`, `"light_filter": 7`, 1)
	c3, err := Parse([]byte(altered))
	if err != nil {
		t.Fatalf("parse altered: %v", err)
	}
	if c3.DefsDigest == c1.DefsDigest {
		t.Fatalf("defs digest should change with tile properties")
	}
	if c3.PaletteDigest != c1.PaletteDigest {
		t.Fatalf("palette digest should not change when only properties change")
	}
}

func TestParse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing air", `[{"id": "STONE", "solid": true}]`},
		{"duplicate id", `[{"id": "AIR"}, {"id": "STONE"}, {"id": "STONE"}]`},
		{"empty id", `[{"id": "AIR"}, {"id": ""}]`},
		{"bad json", `{`},
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c.raw)); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestMustID_Unknown(t *testing.T) {
	c, err := Parse([]byte(sampleTiles))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := c.MustID("BEDROCK"); err == nil {
		t.Fatalf("expected error for unknown tile")
	}
}

func TestLoad_ShippedCatalog(t *testing.T) {
	c, err := Load("../../configs")
	if err != nil {
		t.Fatalf("load shipped catalog: %v", err)
	}
	if c.Palette[0] != "AIR" {
		t.Fatalf("shipped palette[0]: got %q", c.Palette[0])
	}
	for _, name := range []string{"DIRT", "STONE", "GRAVEL", "COAL_ORE", "IRON_ORE", "CRYSTAL_ORE", "GLOWSHROOM"} {
		if _, err := c.MustID(name); err != nil {
			t.Fatalf("shipped catalog: %v", err)
		}
	}
}
