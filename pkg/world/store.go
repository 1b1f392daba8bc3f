package world

import (
	"sync"
	"time"

	"github.com/stonehollow/craftd/pkg/log"
	"github.com/stonehollow/craftd/pkg/worker"
)

// evictionsPerPass bounds how many chunks one cleanup pass unloads.
const evictionsPerPass = 10

// StoreOptions configures a chunk store.
type StoreOptions struct {
	Generator    Generator
	Persistence  *RegionManager // nil disables persistence
	Pool         *worker.Pool
	Log          *log.Logger
	MaxLoaded    int
	UnloadAfter  time.Duration
}

// Store is the concurrent chunk map. Membership changes take the store
// mutex; block-level work takes only the per-chunk lock, so operations on
// different chunks run independently.
type Store struct {
	mu      sync.Mutex
	chunks  map[ChunkPos]*Chunk
	pending map[ChunkPos]struct{}

	gen     Generator
	persist *RegionManager
	pool    *worker.Pool
	log     *log.Logger

	maxLoaded   int
	unloadAfter time.Duration
}

// NewStore returns an empty chunk store.
func NewStore(opts StoreOptions) *Store {
	return &Store{
		chunks:      make(map[ChunkPos]*Chunk),
		pending:     make(map[ChunkPos]struct{}),
		gen:         opts.Generator,
		persist:     opts.Persistence,
		pool:        opts.Pool,
		log:         opts.Log,
		maxLoaded:   opts.MaxLoaded,
		unloadAfter: opts.UnloadAfter,
	}
}

// Get returns the loaded chunk at pos, refreshing its access timestamp.
func (s *Store) Get(pos ChunkPos) (*Chunk, bool) {
	s.mu.Lock()
	c, ok := s.chunks[pos]
	s.mu.Unlock()
	if ok {
		c.Touch()
	}
	return c, ok
}

// Load returns the chunk if it is already resident. Otherwise it marks the
// coordinate pending, submits an asynchronous generation job and reports
// not-ready; callers retry on a later tick.
func (s *Store) Load(pos ChunkPos) (*Chunk, bool) {
	s.mu.Lock()
	if c, ok := s.chunks[pos]; ok {
		s.mu.Unlock()
		c.Touch()
		return c, true
	}
	if _, inFlight := s.pending[pos]; inFlight {
		s.mu.Unlock()
		return nil, false
	}
	s.pending[pos] = struct{}{}
	s.mu.Unlock()

	job := func() { s.generate(pos) }
	if s.pool == nil {
		job()
	} else if err := s.pool.Submit(job); err != nil {
		s.mu.Lock()
		delete(s.pending, pos)
		s.mu.Unlock()
	}
	return nil, false
}

// generate runs on the worker pool: load from disk when stored, else run the
// generator, then publish the chunk and trigger a cleanup pass.
func (s *Store) generate(pos ChunkPos) {
	var c *Chunk

	if s.persist != nil {
		stored, err := s.persist.Load(pos)
		if err != nil {
			s.log.Errorf("load chunk %d,%d: %v", pos.X, pos.Z, err)
		} else {
			c = stored
		}
	}
	if c == nil {
		c = NewChunk(pos)
		s.gen.Generate(c)
	}

	s.mu.Lock()
	s.chunks[pos] = c
	delete(s.pending, pos)
	s.mu.Unlock()

	s.cleanup()
}

// Unload removes the chunk from the map; dirty chunks are persisted
// asynchronously before being dropped.
func (s *Store) Unload(pos ChunkPos) {
	s.mu.Lock()
	c, ok := s.chunks[pos]
	if ok {
		delete(s.chunks, pos)
	}
	s.mu.Unlock()

	if !ok || !c.Dirty() || s.persist == nil {
		return
	}

	save := func() {
		if err := s.persist.Save(c); err != nil {
			s.log.Errorf("save chunk %d,%d: %v", pos.X, pos.Z, err)
		}
	}
	if s.pool == nil {
		save()
	} else if err := s.pool.Submit(save); err != nil {
		save()
	}
}

// cleanup evicts aged chunks once the resident count exceeds the limit, at
// most evictionsPerPass per call.
func (s *Store) cleanup() {
	now := time.Now().UnixMilli()

	s.mu.Lock()
	if len(s.chunks) <= s.maxLoaded {
		s.mu.Unlock()
		return
	}
	var victims []ChunkPos
	for pos, c := range s.chunks {
		if now-c.LastAccess() > s.unloadAfter.Milliseconds() {
			victims = append(victims, pos)
			if len(victims) == evictionsPerPass {
				break
			}
		}
	}
	s.mu.Unlock()

	for _, pos := range victims {
		s.Unload(pos)
	}
}

// BlockAt resolves a block position to its chunk and reads the block.
// Unloaded chunks read as air with ok=false.
func (s *Store) BlockAt(x, y, z int32) (BlockID, bool) {
	c, ok := s.Get(BlockToChunk(x, z))
	if !ok {
		return Air, false
	}
	return c.Block(x&15, y, z&15), true
}

// SetBlockAt writes a block, requesting a load when the chunk is absent. The
// write is dropped until the chunk is resident.
func (s *Store) SetBlockAt(x, y, z int32, id BlockID) bool {
	pos := BlockToChunk(x, z)
	c, ok := s.Get(pos)
	if !ok {
		c, ok = s.Load(pos)
		if !ok {
			return false
		}
	}
	c.SetBlock(x&15, y, z&15, id)
	return true
}

// LoadedCount returns the number of resident chunks.
func (s *Store) LoadedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// PendingCount returns the number of generations in flight.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Snapshot returns the resident chunks. Used by save sweeps.
func (s *Store) Snapshot() []*Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	return out
}

// SaveAll persists every dirty resident chunk synchronously. Returns the
// number of chunks written.
func (s *Store) SaveAll() int {
	if s.persist == nil {
		return 0
	}
	saved := 0
	for _, c := range s.Snapshot() {
		if !c.Dirty() {
			continue
		}
		if err := s.persist.Save(c); err != nil {
			s.log.Errorf("save chunk %d,%d: %v", c.Pos().X, c.Pos().Z, err)
			continue
		}
		saved++
	}
	return saved
}
