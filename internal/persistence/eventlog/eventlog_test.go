package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

func TestWriter_AppendsReadableEntries(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	w.ChunkLoaded(world.ChunkCoord{X: 1, Y: -2})
	w.TileChanged(world.TilePos{X: 33, Y: 16}, world.TileCell{}, world.TileCell{Tile: 3})
	w.LightChanged(world.ChunkCoord{X: 1, Y: -2})
	w.ChunkUnloaded(world.ChunkCoord{X: 1, Y: -2})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.Errors() != 0 {
		t.Fatalf("write errors: %d", w.Errors())
	}

	matches, err := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("log files: %v (err %v)", matches, err)
	}
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var kinds []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e struct {
			TS   string `json:"ts"`
			Kind string `json:"kind"`
		}
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		if e.TS == "" {
			t.Fatalf("entry without timestamp: %q", sc.Text())
		}
		kinds = append(kinds, e.Kind)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"chunk_loaded", "tile_changed", "light_changed", "chunk_unloaded"}
	if len(kinds) != len(want) {
		t.Fatalf("entries: got %v want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("entry %d: got %q want %q", i, kinds[i], want[i])
		}
	}
}

func TestWriter_TileChangeFields(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	w.TileChanged(world.TilePos{X: -5, Y: 7}, world.TileCell{Tile: 2}, world.TileCell{Tile: 0})
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "events-*.jsonl.zst"))
	f, err := os.Open(matches[0])
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	if !sc.Scan() {
		t.Fatalf("no entries written")
	}
	var e struct {
		X       *int   `json:"x"`
		Y       *int   `json:"y"`
		OldTile *uint8 `json:"old_tile"`
		NewTile *uint8 `json:"new_tile"`
	}
	if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.X == nil || *e.X != -5 || e.Y == nil || *e.Y != 7 {
		t.Fatalf("position: %q", sc.Text())
	}
	if e.OldTile == nil || *e.OldTile != 2 {
		t.Fatalf("old tile: %q", sc.Text())
	}
	// new_tile is zero and therefore omitted from the JSON.
	if e.NewTile != nil && *e.NewTile != 0 {
		t.Fatalf("new tile: %q", sc.Text())
	}
}
