package world

// ChunkPool recycles Chunk instances so steady-state streaming does not
// churn allocations. Accessed only from the world loop goroutine.
type ChunkPool struct {
	capacity int
	idle     []*Chunk

	allocated int // lifetime allocations, for stats
}

// NewChunkPool creates a pool that retains up to capacity idle chunks and
// preallocates prealloc of them up front. Capacity should cover the maximum
// simultaneously resident set; undersizing falls back to runtime allocation
// but stays correct.
func NewChunkPool(capacity, prealloc int) *ChunkPool {
	if capacity < 1 {
		capacity = 1
	}
	if prealloc > capacity {
		prealloc = capacity
	}
	p := &ChunkPool{
		capacity: capacity,
		idle:     make([]*Chunk, 0, capacity),
	}
	for i := 0; i < prealloc; i++ {
		p.idle = append(p.idle, NewChunk())
		p.allocated++
	}
	return p
}

// Acquire returns an idle chunk, allocating a fresh one when the pool is
// empty.
func (p *ChunkPool) Acquire() *Chunk {
	if n := len(p.idle); n > 0 {
		ch := p.idle[n-1]
		p.idle[n-1] = nil
		p.idle = p.idle[:n-1]
		return ch
	}
	p.allocated++
	return NewChunk()
}

// Release resets the chunk and returns it to the pool. Chunks beyond
// capacity are dropped for the GC.
func (p *ChunkPool) Release(ch *Chunk) {
	ch.Reset()
	if len(p.idle) >= p.capacity {
		return
	}
	p.idle = append(p.idle, ch)
}

// Idle returns the number of chunks currently parked in the pool.
func (p *ChunkPool) Idle() int { return len(p.idle) }

// Allocated returns the lifetime allocation count.
func (p *ChunkPool) Allocated() int { return p.allocated }
