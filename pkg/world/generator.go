package world

// Generator produces terrain for freshly created chunks.
type Generator interface {
	Generate(c *Chunk)
}

// FlatGenerator builds the classic superflat column: bedrock floor, stone up
// to y=60, dirt to 63, grass at 64.
type FlatGenerator struct {
	Seed int64
}

// NewGenerator resolves a generator by config name. Only "flat" is
// implemented; unknown names fall back to it.
func NewGenerator(name string, seed int64) Generator {
	return &FlatGenerator{Seed: seed}
}

// SurfaceY is the top solid layer produced by the flat generator.
const SurfaceY = 64

func (g *FlatGenerator) Generate(c *Chunk) {
	for x := int32(0); x < ChunkSize; x++ {
		for z := int32(0); z < ChunkSize; z++ {
			c.SetBlock(x, WorldMinY, z, Bedrock)
			for y := int32(WorldMinY + 1); y <= 60; y++ {
				c.SetBlock(x, y, z, Stone)
			}
			for y := int32(61); y <= 63; y++ {
				c.SetBlock(x, y, z, Dirt)
			}
			c.SetBlock(x, SurfaceY, z, GrassBlock)
		}
	}
	c.SetLoaded(true)
	c.SetDirty(true)
}
