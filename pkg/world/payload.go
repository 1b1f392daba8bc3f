package world

import "github.com/stonehollow/craftd/pkg/protocol"

// NetworkPayload serializes the chunk into the data field of a ChunkData
// packet: per section an i16 block count (0 for absent or empty sections)
// followed by a direct-palette header (15 bits per entry, no palette
// entries), the raw block grid, lighting,
// and finally the biome grid.
func (c *Chunk) NetworkPayload() []byte {
	buf := protocol.NewBuffer(64 * 1024)

	c.withSections(func(sections *[SectionsPerChunk]*Section) {
		for _, s := range sections {
			if s == nil || s.Empty() {
				buf.WriteInt16(0)
				continue
			}
			buf.WriteInt16(s.BlockCount())

			// Palette: bits-per-entry 15, no indirect palette entries.
			buf.WriteUint8(15)
			buf.WriteVarInt(0)

			buf.WriteVarInt(BlocksPerSection)
			for i := int32(0); i < BlocksPerSection; i++ {
				y := (i / 256) % 16
				z := (i / 16) % 16
				x := i % 16
				buf.WriteUint64(uint64(s.Block(x, y, z)))
			}

			buf.WriteBytes(s.SkyLight[:])
			buf.WriteBytes(s.BlockLight[:])
		}
	})

	// Biome grid: 4x4x4 cells per section, all plains.
	for i := 0; i < 1024; i++ {
		buf.WriteVarInt(1)
	}

	return buf.Bytes()
}
