package world

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestRegionSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatalf("NewRegionManager: %v", err)
	}

	c := NewChunk(ChunkPos{X: 3, Z: -2})
	NewGenerator("flat", 0).Generate(c)
	c.SetBlock(5, 70, 5, Cobblestone)
	c.SetBlockLightAt(5, 70, 5, 9)

	if err := m.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if c.Dirty() {
		t.Error("chunk still dirty after save")
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen, as after a restart.
	m2, err := NewRegionManager(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer m2.Close()

	got, err := m2.Load(ChunkPos{X: 3, Z: -2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned not-stored for a saved chunk")
	}
	if got.Dirty() {
		t.Error("loaded chunk is dirty")
	}
	if !got.Loaded() {
		t.Error("loaded chunk is not marked loaded")
	}

	for _, p := range []struct {
		x, y, z int32
		want    BlockID
	}{
		{8, WorldMinY, 8, Bedrock},
		{8, 30, 8, Stone},
		{8, SurfaceY, 8, GrassBlock},
		{5, 70, 5, Cobblestone},
		{5, 200, 5, Air},
	} {
		if b := got.Block(p.x, p.y, p.z); b != p.want {
			t.Errorf("Block(%d,%d,%d) = %d, want %d", p.x, p.y, p.z, b, p.want)
		}
	}
	if lv := got.BlockLightAt(5, 70, 5); lv != 9 {
		t.Errorf("block light = %d, want 9", lv)
	}
	if got.BlockCount() != c.BlockCount() {
		t.Errorf("block count = %d, want %d", got.BlockCount(), c.BlockCount())
	}
}

func TestRegionEmptyChunkRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	// An all-air chunk: dirty so it persists, but with no sections.
	c := NewChunk(ChunkPos{X: 0, Z: 0})
	c.SetDirty(true)
	if err := m.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load(ChunkPos{X: 0, Z: 0})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("empty chunk was not stored")
	}
	if got.Dirty() {
		t.Error("loaded chunk is dirty")
	}
	if got.Block(0, 0, 0) != Air || got.Block(15, SurfaceY, 15) != Air {
		t.Error("empty chunk did not load as all air")
	}
}

func TestRegionNotStored(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	got, err := m.Load(ChunkPos{X: 9, Z: 9})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Error("Load invented a chunk that was never saved")
	}
	if m.Has(ChunkPos{X: 9, Z: 9}) {
		t.Error("Has reported an unsaved chunk")
	}
}

func TestRegionFileLayout(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatal(err)
	}

	c := NewChunk(ChunkPos{X: 1, Z: 1})
	NewGenerator("flat", 0).Generate(c)
	if err := m.Save(c); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m.Close()

	path := filepath.Join(dir, "region", "r.0.0.mca")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("region file missing: %v", err)
	}

	// 8 KiB header and 4 KiB aligned payloads.
	if len(data) <= headerSize {
		t.Fatalf("file too small: %d bytes", len(data))
	}
	if len(data)%sectorSize != 0 {
		t.Errorf("file size %d is not sector aligned", len(data))
	}

	// Chunk (1,1) sits at table index (1<<5)|1 = 33; the entry must point at
	// sector 2 (right after the header), big-endian (offset:24 | count:8).
	entry := binary.BigEndian.Uint32(data[33*4:])
	if entry>>8 != 2 {
		t.Errorf("sector offset = %d, want 2", entry>>8)
	}
	if entry&0xFF == 0 {
		t.Error("sector count is zero")
	}

	// Other entries stay zero: not stored.
	if binary.BigEndian.Uint32(data[0:]) != 0 {
		t.Error("unrelated location entry is non-zero")
	}

	// Timestamp table entry is populated.
	ts := binary.BigEndian.Uint32(data[sectorSize+33*4:])
	if ts == 0 {
		t.Error("timestamp entry is zero")
	}
}

func TestRegionOverwriteKeepsLatest(t *testing.T) {
	dir := t.TempDir()
	m, err := NewRegionManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	c := NewChunk(ChunkPos{X: 0, Z: 0})
	c.SetBlock(0, 0, 0, Stone)
	if err := m.Save(c); err != nil {
		t.Fatal(err)
	}

	c.SetBlock(0, 0, 0, Cobblestone)
	if err := m.Save(c); err != nil {
		t.Fatal(err)
	}

	got, err := m.Load(ChunkPos{X: 0, Z: 0})
	if err != nil {
		t.Fatal(err)
	}
	if b := got.Block(0, 0, 0); b != Cobblestone {
		t.Errorf("Block = %d, want Cobblestone after overwrite", b)
	}
}
