package world

import (
	"testing"
	"time"

	"github.com/stonehollow/craftd/pkg/log"
)

// newTestStore runs generation jobs inline (no pool), which makes Load's
// second call deterministic in tests.
func newTestStore(t *testing.T, persist *RegionManager) *Store {
	t.Helper()
	return NewStore(StoreOptions{
		Generator:   NewGenerator("flat", 0),
		Persistence: persist,
		Log:         log.Discard(),
		MaxLoaded:   1000,
		UnloadAfter: 5 * time.Minute,
	})
}

func TestStoreLoadLifecycle(t *testing.T) {
	s := newTestStore(t, nil)
	pos := ChunkPos{X: 2, Z: -3}

	if _, ok := s.Get(pos); ok {
		t.Fatal("Get found a chunk in an empty store")
	}

	// First Load kicks generation; with an inline pool the chunk is resident
	// immediately, but the call itself reports not-ready.
	if _, ready := s.Load(pos); ready {
		t.Error("first Load reported ready")
	}
	c, ok := s.Get(pos)
	if !ok {
		t.Fatal("chunk not resident after generation")
	}
	if !c.Loaded() {
		t.Error("chunk not marked loaded")
	}
	if c.Block(8, SurfaceY, 8) != GrassBlock {
		t.Error("generated chunk has no surface")
	}

	// Second Load returns it directly.
	c2, ready := s.Load(pos)
	if !ready || c2 != c {
		t.Error("second Load did not return the resident chunk")
	}

	if s.LoadedCount() != 1 || s.PendingCount() != 0 {
		t.Errorf("counts = (%d, %d), want (1, 0)", s.LoadedCount(), s.PendingCount())
	}
}

func TestStoreBlockConvenience(t *testing.T) {
	s := newTestStore(t, nil)

	// Reads of unloaded chunks report not-present.
	if _, ok := s.BlockAt(100, 64, 100); ok {
		t.Error("BlockAt reported presence for an unloaded chunk")
	}

	// SetBlockAt auto-loads; with inline generation the retry succeeds.
	if !s.SetBlockAt(100, 70, 100, Cobblestone) {
		// First call scheduled the load; a retry lands the write.
		if !s.SetBlockAt(100, 70, 100, Cobblestone) {
			t.Fatal("SetBlockAt failed with chunk resident")
		}
	}

	got, ok := s.BlockAt(100, 70, 100)
	if !ok || got != Cobblestone {
		t.Errorf("BlockAt = (%d, %v), want (Cobblestone, true)", got, ok)
	}

	// Negative coordinates decompose into the right chunk and locals.
	s.SetBlockAt(-1, 70, -1, Stone)
	s.SetBlockAt(-1, 70, -1, Stone)
	got, ok = s.BlockAt(-1, 70, -1)
	if !ok || got != Stone {
		t.Errorf("BlockAt(-1,70,-1) = (%d, %v), want (Stone, true)", got, ok)
	}
	if c, ok := s.Get(ChunkPos{X: -1, Z: -1}); !ok {
		t.Error("negative chunk not loaded")
	} else if c.Block(15, 70, 15) != Stone {
		t.Error("negative block landed at wrong local coordinates")
	}
}

func TestStoreEviction(t *testing.T) {
	s := NewStore(StoreOptions{
		Generator:   NewGenerator("flat", 0),
		Log:         log.Discard(),
		MaxLoaded:   5,
		UnloadAfter: -time.Second, // every chunk is immediately stale
	})

	for i := int32(0); i < 20; i++ {
		s.Load(ChunkPos{X: i, Z: 0})
	}

	// Each generation triggered a cleanup pass bounded at 10 evictions, so
	// the store converged back towards the limit.
	if got := s.LoadedCount(); got > 15 {
		t.Errorf("LoadedCount = %d after eviction passes, want <= 15", got)
	}
}

func TestStoreEvictionRespectsTimeout(t *testing.T) {
	s := NewStore(StoreOptions{
		Generator:   NewGenerator("flat", 0),
		Log:         log.Discard(),
		MaxLoaded:   1,
		UnloadAfter: time.Hour, // nothing is old enough to evict
	})

	for i := int32(0); i < 5; i++ {
		s.Load(ChunkPos{X: i, Z: 0})
	}
	if got := s.LoadedCount(); got != 5 {
		t.Errorf("LoadedCount = %d, want 5 (no chunk aged out)", got)
	}
}

func TestStoreUnloadPersistsDirty(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	s := newTestStore(t, m)
	pos := ChunkPos{X: 0, Z: 0}
	s.Load(pos)
	s.SetBlockAt(3, 70, 3, Cobblestone)

	s.Unload(pos)
	if _, ok := s.Get(pos); ok {
		t.Fatal("chunk still resident after Unload")
	}

	// A later load must come back from disk with the write intact.
	s.Load(pos)
	got, ok := s.BlockAt(3, 70, 3)
	if !ok || got != Cobblestone {
		t.Errorf("BlockAt after reload = (%d, %v), want (Cobblestone, true)", got, ok)
	}
}

func TestStoreSaveAll(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	s := newTestStore(t, m)
	s.Load(ChunkPos{X: 0, Z: 0})
	s.Load(ChunkPos{X: 1, Z: 0})

	if saved := s.SaveAll(); saved != 2 {
		t.Errorf("SaveAll = %d, want 2", saved)
	}
	// Everything clean now; a second sweep writes nothing.
	if saved := s.SaveAll(); saved != 0 {
		t.Errorf("second SaveAll = %d, want 0", saved)
	}
}
