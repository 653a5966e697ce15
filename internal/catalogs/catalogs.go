package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// TileDef describes one tile material. LightFilter is the extra attenuation
// light pays to enter a cell of this tile; LightEmission seeds block light.
type TileDef struct {
	ID            string `json:"id"`
	Solid         bool   `json:"solid"`
	LightFilter   uint8  `json:"light_filter"`
	LightEmission uint8  `json:"light_emission"`
}

// TileCatalog is the read-only tile property table. It is handed to the
// components that need it by constructor injection, never read as a global,
// so background workers can use it freely.
type TileCatalog struct {
	Palette []string
	Index   map[string]uint8
	Defs    map[string]TileDef

	PaletteDigest string
	DefsDigest    string

	// Dense tables indexed by tile id for hot-path lookups. Unknown ids
	// resolve to air-like defaults.
	solid    [256]bool
	filter   [256]uint8
	emission [256]uint8
}

// Load reads tiles.json from configDir. AIR must exist and is forced to
// palette id 0; the rest of the palette is sorted for a stable digest.
func Load(configDir string) (*TileCatalog, error) {
	raw, err := os.ReadFile(filepath.Join(configDir, "tiles.json"))
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse builds a catalog from raw tiles.json bytes.
func Parse(raw []byte) (*TileCatalog, error) {
	var defs []TileDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("tiles.json: %w", err)
	}

	c := &TileCatalog{
		Defs:       map[string]TileDef{},
		DefsDigest: sha256Hex(raw),
	}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("tiles.json: empty id")
		}
		if _, dup := c.Defs[d.ID]; dup {
			return nil, fmt.Errorf("tiles.json: duplicate id %q", d.ID)
		}
		c.Defs[d.ID] = d
	}
	if _, ok := c.Defs["AIR"]; !ok {
		return nil, fmt.Errorf("tiles.json: missing AIR")
	}

	ids := make([]string, 0, len(c.Defs))
	for id := range c.Defs {
		if id != "AIR" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	ids = append([]string{"AIR"}, ids...)
	if len(ids) > 256 {
		return nil, fmt.Errorf("tiles.json: %d tiles, palette is limited to 256", len(ids))
	}

	c.Palette = ids
	c.Index = make(map[string]uint8, len(ids))
	for i, id := range ids {
		c.Index[id] = uint8(i)
		d := c.Defs[id]
		c.solid[i] = d.Solid
		c.filter[i] = d.LightFilter
		c.emission[i] = d.LightEmission
	}
	palJSON, _ := json.Marshal(ids)
	c.PaletteDigest = sha256Hex(palJSON)
	return c, nil
}

// IDOf resolves a tile name to its palette id.
func (c *TileCatalog) IDOf(name string) (uint8, bool) {
	id, ok := c.Index[name]
	return id, ok
}

// MustID resolves a tile name or returns an error naming it; used when
// wiring the generator palette at startup.
func (c *TileCatalog) MustID(name string) (uint8, error) {
	id, ok := c.Index[name]
	if !ok {
		return 0, fmt.Errorf("tile catalog: unknown tile %q", name)
	}
	return id, nil
}

func (c *TileCatalog) Solid(tile uint8) bool          { return c.solid[tile] }
func (c *TileCatalog) LightFilter(tile uint8) uint8   { return c.filter[tile] }
func (c *TileCatalog) LightEmission(tile uint8) uint8 { return c.emission[tile] }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
