package chunkdb

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "world", "chunks.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func samplePayload() []byte {
	cells := make([]world.TileCell, world.ChunkArea)
	for i := range cells {
		cells[i] = world.TileCell{Tile: uint8(i % 7), Aux: uint8(i % 3)}
	}
	return world.MarshalTerrain(cells)
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := openTemp(t)
	coord := world.ChunkCoord{X: -3, Y: 12}
	payload := samplePayload()

	if err := s.Save(coord, payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := s.Load(coord)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("load: chunk not found")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: %d bytes vs %d", len(got), len(payload))
	}
	cells, err := world.UnmarshalTerrain(got)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cells[5].Tile != 5 {
		t.Fatalf("cell 5: got tile %d want 5", cells[5].Tile)
	}
}

func TestStore_MissingChunk(t *testing.T) {
	s := openTemp(t)
	_, ok, err := s.Load(world.ChunkCoord{X: 1, Y: 1})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("load reported a chunk that was never saved")
	}
	exists, err := s.Exists(world.ChunkCoord{X: 1, Y: 1})
	if err != nil || exists {
		t.Fatalf("exists: got %v, %v", exists, err)
	}
}

func TestStore_UpsertOverwrites(t *testing.T) {
	s := openTemp(t)
	coord := world.ChunkCoord{}
	if err := s.Save(coord, samplePayload()); err != nil {
		t.Fatalf("save: %v", err)
	}
	second := bytes.Repeat([]byte{9, 9}, world.ChunkArea)
	if err := s.Save(coord, second); err != nil {
		t.Fatalf("save again: %v", err)
	}
	got, ok, err := s.Load(coord)
	if err != nil || !ok {
		t.Fatalf("load: %v ok=%v", err, ok)
	}
	if !bytes.Equal(got, second) {
		t.Fatalf("upsert did not replace payload")
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("count after upsert: got %d want 1", n)
	}
}

func TestStore_ConcurrentLoadsDuringSaves(t *testing.T) {
	s := openTemp(t)
	coord := world.ChunkCoord{X: 4, Y: 4}
	if err := s.Save(coord, samplePayload()); err != nil {
		t.Fatalf("save: %v", err)
	}
	done := make(chan error, 1)
	go func() {
		for i := 0; i < 50; i++ {
			if _, _, err := s.Load(coord); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	for i := 0; i < 50; i++ {
		if err := s.Save(coord, samplePayload()); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("concurrent load: %v", err)
	}
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	coord := world.ChunkCoord{X: 7, Y: -7}
	if err := s.Save(coord, samplePayload()); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	_, ok, err := s2.Load(coord)
	if err != nil || !ok {
		t.Fatalf("load after reopen: %v ok=%v", err, ok)
	}
}
