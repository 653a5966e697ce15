package observer

import (
	"sync"

	"github.com/BerkZerker/Substrata-Game-sub000/internal/observerproto"
	"github.com/BerkZerker/Substrata-Game-sub000/internal/world"
)

// Hub fans world notifications out to connected observer sessions. It
// implements world.Notifier and is called from the world loop, so delivery
// is strictly non-blocking: a session whose buffer is full loses events and
// the drop is counted against it.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]chan observerproto.Event
	nextID  uint64
	dropped uint64
}

func NewHub() *Hub {
	return &Hub{subs: map[uint64]chan observerproto.Event{}}
}

func (h *Hub) subscribe(buf int) (uint64, <-chan observerproto.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	ch := make(chan observerproto.Event, buf)
	h.subs[id] = ch
	return id, ch
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Dropped returns the total number of events lost to slow sessions.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

func (h *Hub) publish(e observerproto.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped++
		}
	}
}

func (h *Hub) ChunkLoaded(c world.ChunkCoord) {
	ck := [2]int{c.X, c.Y}
	h.publish(observerproto.Event{Kind: "chunk_loaded", Chunk: &ck})
}

func (h *Hub) ChunkUnloaded(c world.ChunkCoord) {
	ck := [2]int{c.X, c.Y}
	h.publish(observerproto.Event{Kind: "chunk_unloaded", Chunk: &ck})
}

func (h *Hub) TileChanged(p world.TilePos, old, new world.TileCell) {
	pos := [2]int{p.X, p.Y}
	ot, nt := old.Tile, new.Tile
	h.publish(observerproto.Event{Kind: "tile_changed", Pos: &pos, OldTile: &ot, NewTile: &nt})
}

func (h *Hub) LightChanged(c world.ChunkCoord) {
	ck := [2]int{c.X, c.Y}
	h.publish(observerproto.Event{Kind: "light_changed", Chunk: &ck})
}
