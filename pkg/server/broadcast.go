package server

import (
	"github.com/stonehollow/craftd/pkg/protocol"
	"github.com/stonehollow/craftd/pkg/world"
)

// SetBlock writes a block into the world and announces it to every player
// currently viewing the affected chunk.
func (s *Server) SetBlock(x, y, z int32, id world.BlockID) {
	if !s.blocks.Valid(id) {
		return
	}
	if !s.store.SetBlockAt(x, y, z, id) {
		// Chunk still generating; the write was dropped.
		return
	}
	s.BroadcastBlockChange(x, y, z, id)
}

// BroadcastBlockChange sends a BlockChange to the viewers of the chunk
// containing the position.
func (s *Server) BroadcastBlockChange(x, y, z int32, id world.BlockID) {
	pos := world.BlockToChunk(x, z)
	pkt := &protocol.BlockChange{X: x, Y: y, Z: z, BlockState: int32(id)}

	for _, p := range s.players.Online() {
		if p.Sees(pos) {
			p.conn.Send(pkt)
		}
	}
}

// SectionChange is one block mutation within a section, in world
// coordinates.
type SectionChange struct {
	X, Y, Z int32
	Block   world.BlockID
}

// BroadcastSectionChanges groups the changes of one chunk section into a
// MultiBlockChange for every viewer of that chunk.
func (s *Server) BroadcastSectionChanges(pos world.ChunkPos, sectionY int32, changes []SectionChange) {
	if len(changes) == 0 {
		return
	}

	pkt := &protocol.MultiBlockChange{
		ChunkX:   pos.X,
		ChunkZ:   pos.Z,
		SectionY: sectionY,
		Records:  make([]protocol.BlockRecord, 0, len(changes)),
	}
	for _, ch := range changes {
		pkt.Records = append(pkt.Records, protocol.BlockRecord{
			X:          ch.X & 15,
			Y:          (ch.Y%16 + 16) % 16,
			Z:          ch.Z & 15,
			BlockState: int32(ch.Block),
		})
	}

	for _, p := range s.players.Online() {
		if p.Sees(pos) {
			p.conn.Send(pkt)
		}
	}
}
