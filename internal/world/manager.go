package world

import (
	"log"
	"sort"
	"time"
)

// Generator produces terrain for one chunk. Pure, callable from any
// goroutine, no access to engine state.
type Generator func(ChunkCoord) []TileCell

// Store persists chunk terrain payloads (row-major ChunkArea*2 bytes).
// Implementations must be safe for concurrent use: Load runs on generation
// workers, Save on the world loop.
type Store interface {
	Save(coord ChunkCoord, payload []byte) error
	Load(coord ChunkCoord) ([]byte, bool, error)
	Exists(coord ChunkCoord) (bool, error)
}

// Config holds the streaming budgets and geometry knobs.
type Config struct {
	GenerationRadius int // regions around the observer's region to keep resident
	RemovalBuffer    int // extra regions of hysteresis before eviction
	BuildsPerTick    int
	RemovalsPerTick  int
	BakesPerTick     int
	GenWorkers       int
	LightWorkers     int
	MaxBuildQueue    int // completed-generation backpressure threshold
	PoolCapacity     int
	TickRateHz       int
	ShutdownTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.GenerationRadius <= 0 {
		c.GenerationRadius = 1
	}
	if c.RemovalBuffer <= 0 {
		c.RemovalBuffer = 1
	}
	if c.BuildsPerTick <= 0 {
		c.BuildsPerTick = 8
	}
	if c.RemovalsPerTick <= 0 {
		c.RemovalsPerTick = 8
	}
	if c.BakesPerTick <= 0 {
		c.BakesPerTick = 8
	}
	if c.GenWorkers <= 0 {
		c.GenWorkers = 4
	}
	if c.LightWorkers <= 0 {
		c.LightWorkers = 2
	}
	if c.MaxBuildQueue <= 0 {
		c.MaxBuildQueue = 64
	}
	if c.PoolCapacity <= 0 {
		side := (2*(c.GenerationRadius+c.RemovalBuffer) + 1) * RegionSize
		c.PoolCapacity = side * side
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 30
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	return c
}

// TileEdit is one cell of a batched edit, in world tile space.
type TileEdit struct {
	Pos  TilePos
	Cell TileCell
}

// Stats is the debug/metrics snapshot other subsystems consume.
type Stats struct {
	Tick            uint64 `json:"tick"`
	Resident        int    `json:"resident"`
	PoolIdle        int    `json:"pool_idle"`
	PoolAllocated   int    `json:"pool_allocated"`
	GenQueued       int    `json:"gen_queued"`
	GenInflight     int    `json:"gen_inflight"`
	GenCompleted    int    `json:"gen_completed"`
	GenActive       int    `json:"gen_active"`
	GenBackpressure bool   `json:"gen_backpressure"`
	BakeRequested   int    `json:"bake_requested"`
	BakeQueued      int    `json:"bake_queued"`
	BakeCompleted   int    `json:"bake_completed"`
	BakeActive      int    `json:"bake_active"`
	Removals        int    `json:"removals"`
}

// Manager is the streaming orchestrator. One controlling goroutine owns the
// resident map, removal queue, pool, border cache, and bake request set;
// background workers see only owned copies passed through the scheduler and
// baker queues. All exported methods except the channel feeders in run.go
// must be called from that controlling goroutine.
type Manager struct {
	cfg      Config
	props    TileProps
	gen      Generator
	store    Store // may be nil
	notifier Notifier
	logger   *log.Logger

	sched *GenerationScheduler
	baker *lightBaker
	pool  *ChunkPool

	resident     map[ChunkCoord]*Chunk
	borderCache  map[ChunkCoord]BorderSnapshot
	pendingBakes map[ChunkCoord]bool // coord -> propagate, "propagate wins"
	removals     []ChunkCoord
	removalSet   map[ChunkCoord]struct{}

	// relightEpoch advances whenever a chunk's light is rewritten on the
	// control thread itself: on install and on every edit-driven relight.
	// Bake results are stamped at gather time; a result carrying an older
	// epoch was computed from snapshots that predate such a rewrite and
	// must not be installed over it. Entries survive eviction so a result
	// in flight across an evict-and-reload of the same coordinate stays
	// stale too.
	relightEpoch map[ChunkCoord]uint64

	observerChunk  ChunkCoord
	observerRegion RegionCoord
	started        bool
	tick           uint64

	observerCh chan ChunkCoord
	editCh     chan []TileEdit
	statsCh    chan chan Stats
}

func NewManager(cfg Config, props TileProps, gen Generator, store Store, notifier Notifier, logger *log.Logger) *Manager {
	cfg = cfg.withDefaults()
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		cfg:          cfg,
		props:        props,
		gen:          gen,
		store:        store,
		notifier:     notifier,
		logger:       logger,
		pool:         NewChunkPool(cfg.PoolCapacity, cfg.PoolCapacity/2),
		resident:     map[ChunkCoord]*Chunk{},
		borderCache:  map[ChunkCoord]BorderSnapshot{},
		pendingBakes: map[ChunkCoord]bool{},
		removalSet:   map[ChunkCoord]struct{}{},
		relightEpoch: map[ChunkCoord]uint64{},
		observerCh:   make(chan ChunkCoord, 16),
		editCh:       make(chan []TileEdit, 64),
		statsCh:      make(chan chan Stats, 4),
	}
	m.sched = NewGenerationScheduler(m.populate, cfg.GenWorkers, cfg.MaxBuildQueue, logger)
	m.baker = newLightBaker(props, cfg.LightWorkers, cfg.MaxBuildQueue)
	return m
}

// populate is the scheduler's work function: saved terrain when the store
// has a valid payload, generated terrain otherwise. Bad payloads degrade to
// regeneration, never to an error.
func (m *Manager) populate(coord ChunkCoord) []TileCell {
	if m.store != nil {
		b, ok, err := m.store.Load(coord)
		if err != nil {
			m.logger.Printf("load chunk %v: %v", coord, err)
		} else if ok {
			cells, err := UnmarshalTerrain(b)
			if err == nil {
				return cells
			}
			m.logger.Printf("chunk %v: discarding saved payload: %v", coord, err)
		}
	}
	if m.gen != nil {
		cells := m.gen(coord)
		if len(cells) == ChunkArea {
			return cells
		}
		m.logger.Printf("generator returned %d cells for %v, want %d; using air", len(cells), coord, ChunkArea)
	}
	return make([]TileCell, ChunkArea)
}

// SetObserver records a new observer chunk position. A move within the
// current region only reprioritizes the scheduler queues; a region change
// marks out-of-range chunks for removal first, then requests the missing
// in-range chunks, so nothing generates for a position already left behind.
func (m *Manager) SetObserver(c ChunkCoord) {
	region := c.Region()
	if m.started && region == m.observerRegion {
		if c != m.observerChunk {
			m.observerChunk = c
			m.sched.Reprioritize(c)
		}
		return
	}
	m.started = true
	m.observerChunk = c
	m.observerRegion = region
	m.markRemovals()
	m.requestMissing()
}

func (m *Manager) markRemovals() {
	limit := m.cfg.GenerationRadius + m.cfg.RemovalBuffer
	for cc := range m.resident {
		if cc.Region().Dist(m.observerRegion) <= limit {
			continue
		}
		if _, queued := m.removalSet[cc]; queued {
			continue
		}
		m.removalSet[cc] = struct{}{}
		m.removals = append(m.removals, cc)
	}
}

func (m *Manager) requestMissing() {
	r := m.cfg.GenerationRadius
	var want []ChunkCoord
	for ry := m.observerRegion.Y - r; ry <= m.observerRegion.Y+r; ry++ {
		for rx := m.observerRegion.X - r; rx <= m.observerRegion.X+r; rx++ {
			for cy := ry * RegionSize; cy < (ry+1)*RegionSize; cy++ {
				for cx := rx * RegionSize; cx < (rx+1)*RegionSize; cx++ {
					cc := ChunkCoord{X: cx, Y: cy}
					if _, ok := m.resident[cc]; ok {
						// Back in range before its eviction ran.
						delete(m.removalSet, cc)
						continue
					}
					want = append(want, cc)
				}
			}
		}
	}
	m.sched.Request(want, m.observerChunk)
}

// Tick runs one frame of streaming work under the configured budgets. It
// never blocks on worker completion; every stage polls a bounded batch and
// returns.
func (m *Manager) Tick() {
	m.tick++
	m.applyBuilds()
	m.processRemovals()
	m.submitBakes()
	m.applyBakes()
}

func (m *Manager) applyBuilds() {
	results := m.sched.CollectCompleted(m.cfg.BuildsPerTick)
	if len(results) == 0 {
		return
	}
	limit := m.cfg.GenerationRadius + m.cfg.RemovalBuffer
	done := make([]ChunkCoord, 0, len(results))
	for _, r := range results {
		done = append(done, r.Coord)
		if _, ok := m.resident[r.Coord]; ok {
			continue
		}
		if !m.started || r.Coord.Region().Dist(m.observerRegion) > limit {
			// Observer moved away while this chunk was generating.
			continue
		}
		ch := m.pool.Acquire()
		if err := ch.Adopt(r.Coord, r.Tiles); err != nil {
			m.logger.Printf("install chunk: %v", err)
			m.pool.Release(ch)
			continue
		}
		m.resident[r.Coord] = ch
		m.relightEpoch[r.Coord]++
		m.queueBake(r.Coord, true)
		m.notifier.ChunkLoaded(r.Coord)
	}
	m.sched.MarkDone(done)
}

func (m *Manager) processRemovals() {
	budget := m.cfg.RemovalsPerTick
	for budget > 0 && len(m.removals) > 0 {
		cc := m.removals[0]
		m.removals = m.removals[1:]
		if _, ok := m.removalSet[cc]; !ok {
			continue // cancelled; does not consume budget
		}
		delete(m.removalSet, cc)
		ch := m.resident[cc]
		if ch == nil {
			continue
		}
		m.persistIfDirty(cc, ch)
		delete(m.resident, cc)
		delete(m.borderCache, cc)
		delete(m.pendingBakes, cc)
		m.pool.Release(ch)
		m.notifier.ChunkUnloaded(cc)
		budget--
	}
}

func (m *Manager) persistIfDirty(cc ChunkCoord, ch *Chunk) {
	if m.store == nil || !ch.Dirty() {
		return
	}
	if err := m.store.Save(cc, MarshalTerrain(ch.SnapshotTerrain())); err != nil {
		m.logger.Printf("save chunk %v: %v", cc, err)
		return
	}
	ch.MarkSaved()
}

// queueBake adds a coordinate to the light-bake request set. A propagating
// request is never downgraded by a later non-propagating one.
func (m *Manager) queueBake(cc ChunkCoord, propagate bool) {
	m.pendingBakes[cc] = m.pendingBakes[cc] || propagate
}

// submitBakes gathers owned snapshots for every requested coordinate and
// hands them to the bake workers. Gathering must happen here, on the
// controlling goroutine, because it reads the live resident map.
func (m *Manager) submitBakes() {
	if len(m.pendingBakes) == 0 {
		return
	}
	jobs := make([]bakeJob, 0, len(m.pendingBakes))
	for cc, propagate := range m.pendingBakes {
		if _, ok := m.resident[cc]; !ok {
			continue
		}
		jobs = append(jobs, bakeJob{coord: cc, propagate: propagate, epoch: m.relightEpoch[cc], in: m.gatherInput(cc)})
	}
	m.pendingBakes = map[ChunkCoord]bool{}
	m.baker.Submit(jobs)
}

func (m *Manager) applyBakes() {
	for _, r := range m.baker.Collect(m.cfg.BakesPerTick) {
		m.applyBakeResult(r)
	}
}

// gatherInput snapshots everything a light computation needs: the chunk's
// terrain, the terrain above it, and the facing border light of already-lit
// neighbors from the border cache.
func (m *Manager) gatherInput(cc ChunkCoord) ComputeInput {
	in := ComputeInput{
		Terrain: m.resident[cc].SnapshotTerrain(),
		Above:   m.aboveTerrain(cc),
	}
	for d := DirWest; d <= DirSouth; d++ {
		dx, dy := d.Offset()
		nc := ChunkCoord{X: cc.X + dx, Y: cc.Y + dy}
		if cache, ok := m.borderCache[nc]; ok {
			in.Borders.setEdge(d, cache.Edge(d.Opposite()))
		}
	}
	return in
}

func (m *Manager) aboveTerrain(cc ChunkCoord) []TileCell {
	if ch, ok := m.resident[cc.Above()]; ok {
		return ch.SnapshotTerrain()
	}
	return nil
}

func (m *Manager) applyBakeResult(r bakeResult) {
	ch := m.resident[r.coord]
	if ch == nil {
		return // evicted while baking; stale result, not an error
	}
	if r.epoch != m.relightEpoch[r.coord] {
		// The input snapshots predate a relight of this chunk (an edit,
		// or a reload onto a recycled buffer). The chunk is still wanted,
		// so re-bake from fresh state instead of installing over it.
		m.queueBake(r.coord, r.propagate)
		return
	}
	old := m.borderCache[r.coord]
	if err := ch.InstallLight(r.light); err != nil {
		m.logger.Printf("install light: %v", err)
		return
	}
	m.borderCache[r.coord] = Borders(r.light)
	m.notifier.LightChanged(r.coord)
	if r.propagate {
		m.cascadeFrom(map[ChunkCoord]BorderSnapshot{r.coord: old})
	}
}

type cascadeHop struct {
	coord ChunkCoord
	depth int
}

// cascadeFrom propagates a light change outward across chunk boundaries.
// initial maps each freshly relit chunk to the border snapshot it had
// before this cycle (zero-value when it was never lit).
//
// Two passes, both breadth-first over chunk coordinates and both bounded to
// cascadeDepth. The darkness pass fully recomputes any neighbor sitting
// behind a decreased border, because stale too-bright values cannot be
// lowered by the monotonic flood fill. The brightness pass then pushes
// light into every neighbor of every touched chunk with a seeded
// continuation, which is cheap and idempotent.
func (m *Manager) cascadeFrom(initial map[ChunkCoord]BorderSnapshot) {
	touched := map[ChunkCoord]struct{}{}
	var dq []cascadeHop
	for cc, old := range initial {
		touched[cc] = struct{}{}
		cur := m.borderCache[cc]
		for d := DirWest; d <= DirSouth; d++ {
			if !edgeDecreased(old, cur, d) {
				continue
			}
			dx, dy := d.Offset()
			nc := ChunkCoord{X: cc.X + dx, Y: cc.Y + dy}
			if _, ok := m.resident[nc]; ok {
				dq = append(dq, cascadeHop{coord: nc, depth: 1})
			}
		}
	}

	recomputed := map[ChunkCoord]struct{}{}
	for len(dq) > 0 {
		h := dq[0]
		dq = dq[1:]
		if _, seen := recomputed[h.coord]; seen {
			continue
		}
		if _, ok := m.resident[h.coord]; !ok {
			continue
		}
		recomputed[h.coord] = struct{}{}
		old := m.borderCache[h.coord]
		light := ComputeLight(m.props, m.gatherInput(h.coord))
		_ = m.resident[h.coord].InstallLight(light)
		m.relightEpoch[h.coord]++
		cur := Borders(light)
		m.borderCache[h.coord] = cur
		m.notifier.LightChanged(h.coord)
		touched[h.coord] = struct{}{}
		if h.depth >= cascadeDepth {
			continue
		}
		for d := DirWest; d <= DirSouth; d++ {
			if !edgeDecreased(old, cur, d) {
				continue
			}
			dx, dy := d.Offset()
			nc := ChunkCoord{X: h.coord.X + dx, Y: h.coord.Y + dy}
			if _, ok := m.resident[nc]; ok {
				dq = append(dq, cascadeHop{coord: nc, depth: h.depth + 1})
			}
		}
	}

	var bq []cascadeHop
	for cc := range touched {
		bq = append(bq, cascadeHop{coord: cc})
	}
	for len(bq) > 0 {
		h := bq[0]
		bq = bq[1:]
		src, ok := m.borderCache[h.coord]
		if !ok {
			continue
		}
		for d := DirWest; d <= DirSouth; d++ {
			dx, dy := d.Offset()
			nc := ChunkCoord{X: h.coord.X + dx, Y: h.coord.Y + dy}
			nch := m.resident[nc]
			if nch == nil {
				continue
			}
			terrain := nch.SnapshotTerrain()
			light := nch.SnapshotLight()
			ss, bs := ImportBorder(m.props, light, terrain, d.Opposite(), src.Edge(d))
			if len(ss) == 0 && len(bs) == 0 {
				continue
			}
			ContinueLight(m.props, light, terrain, ss, bs)
			old := m.borderCache[nc]
			_ = nch.InstallLight(light)
			m.relightEpoch[nc]++
			cur := Borders(light)
			m.borderCache[nc] = cur
			m.notifier.LightChanged(nc)
			if h.depth < cascadeDepth && bordersChanged(old, cur) {
				bq = append(bq, cascadeHop{coord: nc, depth: h.depth + 1})
			}
		}
	}
}

func bordersChanged(old, cur BorderSnapshot) bool {
	for d := DirWest; d <= DirSouth; d++ {
		if edgeChanged(old, cur, d) {
			return true
		}
	}
	return false
}

// ApplyEdits applies a batch of tile edits: grouped by owning chunk, one
// batched write per chunk (which also captures the old values), then a
// combined relight of the touched set, then one TileChanged notification
// per cell that actually changed. Edits on non-resident chunks are dropped.
func (m *Manager) ApplyEdits(edits []TileEdit) {
	if len(edits) == 0 {
		return
	}
	type pendingNote struct {
		pos      TilePos
		old, new TileCell
	}
	byChunk := map[ChunkCoord][]CellChange{}
	positions := map[ChunkCoord][]TilePos{}
	var order []ChunkCoord
	for _, e := range edits {
		cc := e.Pos.Chunk()
		if _, ok := m.resident[cc]; !ok {
			continue
		}
		lx, ly := e.Pos.Local()
		if _, seen := byChunk[cc]; !seen {
			order = append(order, cc)
		}
		byChunk[cc] = append(byChunk[cc], CellChange{X: lx, Y: ly, Cell: e.Cell})
		positions[cc] = append(positions[cc], e.Pos)
	}

	var notes []pendingNote
	touched := map[ChunkCoord]struct{}{}
	for _, cc := range order {
		changes := byChunk[cc]
		prev := m.resident[cc].WriteCells(changes)
		for i := range changes {
			if prev[i] == changes[i].Cell {
				continue
			}
			notes = append(notes, pendingNote{pos: positions[cc][i], old: prev[i], new: changes[i].Cell})
			touched[cc] = struct{}{}
		}
	}

	if len(touched) > 0 {
		m.relightEdited(touched)
	}
	for _, n := range notes {
		m.notifier.TileChanged(n.pos, n.old, n.new)
	}
}

// relightEdited recomputes light for an edited chunk set. Base light for
// every touched chunk is computed first, without neighbor imports; imports
// are folded in only once the whole set has fresh bases, so edited siblings
// see each other's new values instead of stale intermediates. The cascade
// then settles everything that crossed chunk boundaries.
func (m *Manager) relightEdited(touched map[ChunkCoord]struct{}) {
	terrains := map[ChunkCoord][]TileCell{}
	base := map[ChunkCoord][]LightCell{}
	for cc := range touched {
		terrain := m.resident[cc].SnapshotTerrain()
		terrains[cc] = terrain
		base[cc] = ComputeLight(m.props, ComputeInput{Terrain: terrain, Above: m.aboveTerrain(cc)})
	}

	initial := map[ChunkCoord]BorderSnapshot{}
	for cc := range touched {
		light := base[cc]
		terrain := terrains[cc]
		var ss, bs []int
		for d := DirWest; d <= DirSouth; d++ {
			dx, dy := d.Offset()
			nc := ChunkCoord{X: cc.X + dx, Y: cc.Y + dy}
			var edge []LightCell
			if nb, isTouched := base[nc]; isTouched {
				edge = Borders(nb).Edge(d.Opposite())
			} else if cache, ok := m.borderCache[nc]; ok {
				edge = cache.Edge(d.Opposite())
			}
			if edge == nil {
				continue
			}
			s2, b2 := ImportBorder(m.props, light, terrain, d, edge)
			ss = append(ss, s2...)
			bs = append(bs, b2...)
		}
		ContinueLight(m.props, light, terrain, ss, bs)
		initial[cc] = m.borderCache[cc]
		_ = m.resident[cc].InstallLight(light)
		m.relightEpoch[cc]++
		m.borderCache[cc] = Borders(light)
		m.notifier.LightChanged(cc)
	}
	m.cascadeFrom(initial)
}

// TileAt returns the cell at a world position; the empty cell when the
// owning chunk is not resident.
func (m *Manager) TileAt(pos TilePos) TileCell {
	ch, ok := m.resident[pos.Chunk()]
	if !ok {
		return TileCell{}
	}
	lx, ly := pos.Local()
	return ch.ReadCell(lx, ly)
}

// IsSolidAt reports whether the tile at a world position is solid.
func (m *Manager) IsSolidAt(pos TilePos) bool {
	return m.props.Solid(m.TileAt(pos).Tile)
}

// LightAt returns the effective brightness at a world position; dark when
// the owning chunk is not resident.
func (m *Manager) LightAt(pos TilePos) uint8 {
	ch, ok := m.resident[pos.Chunk()]
	if !ok {
		return 0
	}
	lx, ly := pos.Local()
	return ch.LightAt(lx, ly).Level()
}

// ChunkAt returns the resident chunk at coord, if any.
func (m *Manager) ChunkAt(coord ChunkCoord) (*Chunk, bool) {
	ch, ok := m.resident[coord]
	return ch, ok
}

// Stats assembles the debug/metrics snapshot.
func (m *Manager) Stats() Stats {
	gq, gi, gc, ga, bp := m.sched.debugCounts()
	bq, bc, ba := m.baker.debugCounts()
	return Stats{
		Tick:            m.tick,
		Resident:        len(m.resident),
		PoolIdle:        m.pool.Idle(),
		PoolAllocated:   m.pool.Allocated(),
		GenQueued:       gq,
		GenInflight:     gi,
		GenCompleted:    gc,
		GenActive:       ga,
		GenBackpressure: bp,
		BakeRequested:   len(m.pendingBakes),
		BakeQueued:      bq,
		BakeCompleted:   bc,
		BakeActive:      ba,
		Removals:        len(m.removals),
	}
}

// Shutdown stops the workers, waits up to the configured timeout for each
// pool, and flushes dirty resident chunks to the store. Timeouts are logged
// and shutdown proceeds; late results are simply never consumed.
func (m *Manager) Shutdown() {
	if err := m.sched.Shutdown(m.cfg.ShutdownTimeout); err != nil {
		m.logger.Printf("warning: %v", err)
	}
	if err := m.baker.Shutdown(m.cfg.ShutdownTimeout); err != nil {
		m.logger.Printf("warning: %v", err)
	}
	m.flush()
}

func (m *Manager) flush() {
	if m.store == nil {
		return
	}
	coords := make([]ChunkCoord, 0, len(m.resident))
	for cc := range m.resident {
		coords = append(coords, cc)
	}
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].X != coords[j].X {
			return coords[i].X < coords[j].X
		}
		return coords[i].Y < coords[j].Y
	})
	for _, cc := range coords {
		m.persistIfDirty(cc, m.resident[cc])
	}
}
