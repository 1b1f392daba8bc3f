package world

import "testing"

func TestBlockToChunk(t *testing.T) {
	tests := []struct {
		x, z   int32
		cx, cz int32
	}{
		{0, 0, 0, 0},
		{15, 15, 0, 0},
		{16, 16, 1, 1},
		{-1, -1, -1, -1},
		{-16, -16, -1, -1},
		{-17, -17, -2, -2},
		{100, -100, 6, -7},
	}
	for _, tt := range tests {
		got := BlockToChunk(tt.x, tt.z)
		if got.X != tt.cx || got.Z != tt.cz {
			t.Errorf("BlockToChunk(%d, %d) = (%d, %d), want (%d, %d)",
				tt.x, tt.z, got.X, got.Z, tt.cx, tt.cz)
		}
	}
}

func TestSectionBlockCount(t *testing.T) {
	s := NewSection()
	if !s.Empty() {
		t.Fatal("new section is not empty")
	}

	s.SetBlock(0, 0, 0, Stone)
	s.SetBlock(1, 0, 0, Dirt)
	if s.BlockCount() != 2 {
		t.Errorf("BlockCount = %d, want 2", s.BlockCount())
	}

	// Replacing a block with another block does not change the count.
	s.SetBlock(0, 0, 0, GrassBlock)
	if s.BlockCount() != 2 {
		t.Errorf("BlockCount after replace = %d, want 2", s.BlockCount())
	}

	// Setting air on air is a no-op for the count.
	s.SetBlock(5, 5, 5, Air)
	if s.BlockCount() != 2 {
		t.Errorf("BlockCount after air-on-air = %d, want 2", s.BlockCount())
	}

	s.SetBlock(0, 0, 0, Air)
	s.SetBlock(1, 0, 0, Air)
	if !s.Empty() {
		t.Errorf("BlockCount = %d, want 0", s.BlockCount())
	}
}

func TestSectionLightNibbles(t *testing.T) {
	s := NewSection()

	// New sections are fully sky lit and dark for block light.
	if got := s.SkyLightAt(3, 3, 3); got != 15 {
		t.Errorf("initial sky light = %d, want 15", got)
	}
	if got := s.BlockLightAt(3, 3, 3); got != 0 {
		t.Errorf("initial block light = %d, want 0", got)
	}

	// Adjacent indices share a byte; writes must not clobber neighbours.
	s.SetBlockLightAt(0, 0, 0, 7)
	s.SetBlockLightAt(1, 0, 0, 12)
	if got := s.BlockLightAt(0, 0, 0); got != 7 {
		t.Errorf("block light (0,0,0) = %d, want 7", got)
	}
	if got := s.BlockLightAt(1, 0, 0); got != 12 {
		t.Errorf("block light (1,0,0) = %d, want 12", got)
	}

	s.SetSkyLightAt(2, 0, 0, 3)
	if got := s.SkyLightAt(2, 0, 0); got != 3 {
		t.Errorf("sky light = %d, want 3", got)
	}
	if got := s.SkyLightAt(3, 0, 0); got != 15 {
		t.Errorf("neighbour sky light clobbered: %d, want 15", got)
	}
}

func TestChunkBlocksAcrossSections(t *testing.T) {
	c := NewChunk(ChunkPos{X: 0, Z: 0})

	positions := []struct{ x, y, z int32 }{
		{0, WorldMinY, 0},
		{15, -1, 15},
		{8, 0, 8},
		{8, 64, 8},
		{0, WorldMaxY - 1, 0},
	}
	for _, p := range positions {
		c.SetBlock(p.x, p.y, p.z, Stone)
		if got := c.Block(p.x, p.y, p.z); got != Stone {
			t.Errorf("Block(%d,%d,%d) = %d, want Stone", p.x, p.y, p.z, got)
		}
	}
	if got := c.BlockCount(); got != len(positions) {
		t.Errorf("BlockCount = %d, want %d", got, len(positions))
	}

	// Out-of-range Y reads as air and writes are ignored.
	c.SetBlock(0, WorldMaxY, 0, Stone)
	if got := c.Block(0, WorldMaxY, 0); got != Air {
		t.Errorf("Block above world = %d, want Air", got)
	}
	c.SetBlock(0, WorldMinY-1, 0, Stone)
	if got := c.BlockCount(); got != len(positions) {
		t.Errorf("BlockCount after out-of-range writes = %d, want %d", got, len(positions))
	}
}

func TestChunkDirtyFlag(t *testing.T) {
	c := NewChunk(ChunkPos{X: 1, Z: 2})
	if c.Dirty() {
		t.Fatal("new chunk is dirty")
	}

	c.SetBlock(0, 0, 0, Stone)
	if !c.Dirty() {
		t.Error("SetBlock did not mark the chunk dirty")
	}

	c.SetDirty(false)
	c.SetBlockLightAt(0, 0, 0, 5)
	if !c.Dirty() {
		t.Error("light write did not mark the chunk dirty")
	}
}

func TestChunkBlockCountInvariant(t *testing.T) {
	c := NewChunk(ChunkPos{})

	// An arbitrary write sequence keeps block_count equal to the number of
	// non-air blocks.
	writes := []struct {
		x, y, z int32
		id      BlockID
	}{
		{0, 0, 0, Stone},
		{0, 0, 0, Dirt},
		{0, 0, 0, Air},
		{1, 64, 1, GrassBlock},
		{2, 64, 2, Stone},
		{1, 64, 1, Air},
		{3, -60, 3, Bedrock},
	}
	for _, w := range writes {
		c.SetBlock(w.x, w.y, w.z, w.id)
	}

	nonAir := 0
	for y := int32(WorldMinY); y < WorldMaxY; y++ {
		for x := int32(0); x < ChunkSize; x++ {
			for z := int32(0); z < ChunkSize; z++ {
				if c.Block(x, y, z) != Air {
					nonAir++
				}
			}
		}
	}
	if got := c.BlockCount(); got != nonAir {
		t.Errorf("BlockCount = %d, want %d (counted)", got, nonAir)
	}
}

func TestBlockRegistry(t *testing.T) {
	reg := NewBlockRegistry()

	info, ok := reg.Info(Stone)
	if !ok {
		t.Fatal("stone not registered")
	}
	if info.Name != "minecraft:stone" || !info.Solid {
		t.Errorf("stone info = %+v", info)
	}

	if id := reg.IDByName("minecraft:dirt"); id != Dirt {
		t.Errorf("IDByName(dirt) = %d, want %d", id, Dirt)
	}
	if id := reg.IDByName("minecraft:not_a_block"); id != Air {
		t.Errorf("IDByName(unknown) = %d, want Air", id)
	}
	if reg.Valid(9999) {
		t.Error("Valid(9999) = true")
	}
	if lv := reg.LightLevel(Lava); lv != 15 {
		t.Errorf("LightLevel(Lava) = %d, want 15", lv)
	}
}

func TestFlatGenerator(t *testing.T) {
	c := NewChunk(ChunkPos{X: 3, Z: -2})
	NewGenerator("flat", 0).Generate(c)

	if !c.Loaded() || !c.Dirty() {
		t.Error("generated chunk must be loaded and dirty")
	}
	if got := c.Block(8, WorldMinY, 8); got != Bedrock {
		t.Errorf("floor = %d, want Bedrock", got)
	}
	if got := c.Block(8, 30, 8); got != Stone {
		t.Errorf("y=30 = %d, want Stone", got)
	}
	if got := c.Block(8, 62, 8); got != Dirt {
		t.Errorf("y=62 = %d, want Dirt", got)
	}
	if got := c.Block(8, SurfaceY, 8); got != GrassBlock {
		t.Errorf("surface = %d, want GrassBlock", got)
	}
	if got := c.Block(8, SurfaceY+1, 8); got != Air {
		t.Errorf("above surface = %d, want Air", got)
	}
}
