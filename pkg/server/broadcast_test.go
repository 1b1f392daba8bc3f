package server

import (
	"net"
	"testing"
	"time"

	"github.com/stonehollow/craftd/pkg/protocol"
	"github.com/stonehollow/craftd/pkg/world"
)

// capturingConn returns a Conn plus a channel of decoded frame ids/bodies
// read back from the peer side.
func capturingConn(t *testing.T, srv *Server) (*Conn, <-chan capturedFrame) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	frames := make(chan capturedFrame, 64)
	go func() {
		var acc []byte
		buf := make([]byte, 4096)
		for {
			n, err := client.Read(buf)
			if err != nil {
				close(frames)
				return
			}
			acc = append(acc, buf[:n]...)
			for {
				length, prefix, err := protocol.PeekVarInt(acc)
				if err != nil || len(acc) < prefix+int(length) {
					break
				}
				frame := acc[prefix : prefix+int(length)]
				body := protocol.BufferFrom(append([]byte(nil), frame...))
				id, _ := body.ReadVarInt()
				frames <- capturedFrame{id: id, body: body}
				acc = acc[prefix+int(length):]
			}
		}
	}()

	return newConn(srv, server, "127.0.0.1", 0), frames
}

type capturedFrame struct {
	id   int32
	body *protocol.Buffer
}

func expectCaptured(t *testing.T, frames <-chan capturedFrame, wantID int32) *protocol.Buffer {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatalf("connection closed before frame 0x%02X", wantID)
		}
		if f.id != wantID {
			t.Fatalf("frame id = 0x%02X, want 0x%02X", f.id, wantID)
		}
		return f.body
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for frame 0x%02X", wantID)
	}
	return nil
}

func addViewer(t *testing.T, srv *Server, name string, sees world.ChunkPos) (*Player, <-chan capturedFrame) {
	t.Helper()
	conn, frames := capturingConn(t, srv)

	p, err := srv.players.Create(conn, GameProfile{UUID: OfflineUUID(name), Username: name}, Location{X: 8, Y: 65, Z: 8}, GameModeSurvival, 10)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	conn.entityID.Store(p.EntityID())

	p.chunksMu.Lock()
	p.loadedChunks[sees] = struct{}{}
	p.chunksMu.Unlock()
	return p, frames
}

func TestBroadcastBlockChangeToViewers(t *testing.T) {
	srv := newBareServer(t)

	_, viewerFrames := addViewer(t, srv, "Viewer", world.ChunkPos{X: 0, Z: 0})
	_, farFrames := addViewer(t, srv, "Faraway", world.ChunkPos{X: 50, Z: 50})

	srv.BroadcastBlockChange(5, 70, 5, world.Cobblestone)

	body := expectCaptured(t, viewerFrames, 0x0C)
	x, y, z, err := body.ReadPosition()
	if err != nil || x != 5 || y != 70 || z != 5 {
		t.Errorf("position = (%d,%d,%d,%v), want (5,70,5)", x, y, z, err)
	}
	state, err := body.ReadVarInt()
	if err != nil || state != int32(world.Cobblestone) {
		t.Errorf("state = (%d, %v), want %d", state, err, world.Cobblestone)
	}

	// The player viewing a distant chunk hears nothing.
	select {
	case f := <-farFrames:
		t.Errorf("far viewer received frame 0x%02X", f.id)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBroadcastSectionChanges(t *testing.T) {
	srv := newBareServer(t)

	pos := world.ChunkPos{X: -1, Z: 2}
	_, frames := addViewer(t, srv, "Viewer", pos)

	srv.BroadcastSectionChanges(pos, 8, []SectionChange{
		{X: -3, Y: 70, Z: 35, Block: world.Stone},
		{X: -1, Y: 64, Z: 47, Block: world.Dirt},
	})

	body := expectCaptured(t, frames, 0x10)
	var pkt protocol.MultiBlockChange
	if err := pkt.Decode(body); err != nil {
		t.Fatalf("decode MultiBlockChange: %v", err)
	}
	if pkt.ChunkX != -1 || pkt.ChunkZ != 2 || pkt.SectionY != 8 {
		t.Errorf("section = (%d, %d, %d), want (-1, 2, 8)", pkt.ChunkX, pkt.ChunkZ, pkt.SectionY)
	}
	if len(pkt.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(pkt.Records))
	}
	if pkt.Records[0].BlockState != int32(world.Stone) {
		t.Errorf("record 0 state = %d", pkt.Records[0].BlockState)
	}
	// Locals are masked into 0..15.
	for _, r := range pkt.Records {
		if r.X < 0 || r.X > 15 || r.Y < 0 || r.Y > 15 || r.Z < 0 || r.Z > 15 {
			t.Errorf("record out of section range: %+v", r)
		}
	}
}

func TestSetBlockRejectsUnknownBlock(t *testing.T) {
	srv := newBareServer(t)
	// 9999 is not a registered block id; the write is refused.
	srv.SetBlock(0, 64, 0, world.BlockID(9999))
	if _, ok := srv.store.BlockAt(0, 64, 0); ok {
		t.Error("unknown block id loaded a chunk")
	}
}
