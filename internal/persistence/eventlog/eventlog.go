// Package eventlog appends world change events to hourly-rotated,
// zstd-compressed JSONL files for offline replay and debugging.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

type entry struct {
	TS      string `json:"ts"`
	Kind    string `json:"kind"`
	CX      *int   `json:"cx,omitempty"`
	CY      *int   `json:"cy,omitempty"`
	X       *int   `json:"x,omitempty"`
	Y       *int   `json:"y,omitempty"`
	OldTile *uint8 `json:"old_tile,omitempty"`
	NewTile *uint8 `json:"new_tile,omitempty"`
}

// Writer implements world.Notifier. Write failures are counted, not
// surfaced; the world loop must never stall on the log.
type Writer struct {
	baseDir string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
	errs    int
}

func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

func (l *Writer) ChunkLoaded(c world.ChunkCoord) {
	l.write(entry{Kind: "chunk_loaded", CX: &c.X, CY: &c.Y})
}

func (l *Writer) ChunkUnloaded(c world.ChunkCoord) {
	l.write(entry{Kind: "chunk_unloaded", CX: &c.X, CY: &c.Y})
}

func (l *Writer) TileChanged(p world.TilePos, old, new world.TileCell) {
	l.write(entry{Kind: "tile_changed", X: &p.X, Y: &p.Y, OldTile: &old.Tile, NewTile: &new.Tile})
}

func (l *Writer) LightChanged(c world.ChunkCoord) {
	l.write(entry{Kind: "light_changed", CX: &c.X, CY: &c.Y})
}

// Errors returns the count of dropped writes.
func (l *Writer) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errs
}

func (l *Writer) write(e entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	e.TS = now.Format(time.RFC3339Nano)
	hour := now.Format("2006-01-02-15")
	if hour != l.curHour {
		if err := l.rotateLocked(hour); err != nil {
			l.errs++
			return
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		l.errs++
		return
	}
	if _, err := l.w.Write(b); err != nil {
		l.errs++
		return
	}
	if err := l.w.WriteByte('\n'); err != nil {
		l.errs++
	}
}

func (l *Writer) rotateLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.baseDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.baseDir, fmt.Sprintf("events-%s.jsonl.zst", hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 64*1024)
	l.curHour = hour
	return nil
}

func (l *Writer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Writer) closeLocked() error {
	var err1 error
	if l.w != nil {
		_ = l.w.Flush()
	}
	if l.enc != nil {
		err1 = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.w = nil
	return err1
}
