// Package observerproto defines the JSON messages of the observer feed:
// the channel a presentation layer uses to follow the streamed world and
// report the observer's position. This is a local consumer surface, not a
// multiplayer protocol.
package observerproto

import "github.com/BerkZerker/Substrata-Game-sub000/internal/world"

const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypePosition  = "POSITION"
	TypeWelcome   = "WELCOME"
	TypeEvents    = "EVENTS"
	TypeStats     = "STATS"
)

// Client -> Server. First message on the connection; may be re-sent to
// change settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// StatsEveryTicks requests periodic stats snapshots; 0 disables them.
	StatsEveryTicks int `json:"stats_every_ticks,omitempty"`
}

// Client -> Server. The observer's current chunk coordinate. Conversion
// from a raw world position is the client's one-line floor division.
type PositionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Chunk           [2]int `json:"chunk"`
}

// Server -> Client. Sent once after a valid SUBSCRIBE.
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	WorldParams     WorldParams `json:"world_params"`
	TilePalette     []string    `json:"tile_palette"`
	PaletteDigest   string      `json:"palette_digest"`
}

type WorldParams struct {
	TickRateHz int   `json:"tick_rate_hz"`
	ChunkSide  int   `json:"chunk_side"`
	RegionSize int   `json:"region_size"`
	MaxLight   int   `json:"max_light"`
	Seed       int64 `json:"seed"`
}

// Server -> Client. A batch of world change events.
type EventBatchMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Events          []Event `json:"events"`
}

// Event is one world change. Kind selects which fields are set:
// chunk_loaded, chunk_unloaded, and light_changed carry Chunk;
// tile_changed carries Pos, OldTile, and NewTile.
type Event struct {
	Kind    string  `json:"kind"`
	Chunk   *[2]int `json:"chunk,omitempty"`
	Pos     *[2]int `json:"pos,omitempty"`
	OldTile *uint8  `json:"old_tile,omitempty"`
	NewTile *uint8  `json:"new_tile,omitempty"`
}

// Server -> Client. Periodic debug/metrics snapshot.
type StatsMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Stats           world.Stats `json:"stats"`
}
