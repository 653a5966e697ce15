package world

// Notifier receives world change notifications from the manager's control
// thread. Implementations must not block; slow consumers should buffer and
// drop on their own side.
type Notifier interface {
	ChunkLoaded(coord ChunkCoord)
	ChunkUnloaded(coord ChunkCoord)
	TileChanged(pos TilePos, old, new TileCell)
	LightChanged(coord ChunkCoord)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) ChunkLoaded(ChunkCoord)                 {}
func (NopNotifier) ChunkUnloaded(ChunkCoord)               {}
func (NopNotifier) TileChanged(TilePos, TileCell, TileCell) {}
func (NopNotifier) LightChanged(ChunkCoord)                {}

// NotifierList fans notifications out to several consumers.
type NotifierList []Notifier

func (l NotifierList) ChunkLoaded(c ChunkCoord) {
	for _, n := range l {
		n.ChunkLoaded(c)
	}
}

func (l NotifierList) ChunkUnloaded(c ChunkCoord) {
	for _, n := range l {
		n.ChunkUnloaded(c)
	}
}

func (l NotifierList) TileChanged(p TilePos, old, new TileCell) {
	for _, n := range l {
		n.TileChanged(p, old, new)
	}
}

func (l NotifierList) LightChanged(c ChunkCoord) {
	for _, n := range l {
		n.LightChanged(c)
	}
}
