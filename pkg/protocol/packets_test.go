package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, reg *Registry, p Packet) Packet {
	t.Helper()

	b := NewBuffer(256)
	p.Encode(b)

	got, err := reg.Decode(p.Phase(), p.Direction(), p.ID(), BufferFrom(b.Bytes()))
	if err != nil {
		t.Fatalf("decode %T: %v", p, err)
	}
	return got
}

func TestPacketRoundTrip(t *testing.T) {
	reg := NewRegistry()

	packets := []Packet{
		&Handshake{ProtocolVersion: 763, ServerAddress: "localhost", ServerPort: 25565, NextState: 1},
		&StatusRequest{},
		&StatusResponse{JSON: `{"version":{"name":"1.20.1","protocol":763}}`},
		&PingRequest{Payload: 42},
		&PingResponse{Payload: -42},
		&LoginStart{Username: "Alex", UUID: [16]byte{1, 2, 3}},
		&LoginSuccess{UUID: [16]byte{0xAA, 0xBB}, Username: "Alex"},
		&KeepAliveClientbound{KeepAliveID: 1234567890},
		&KeepAliveServerbound{KeepAliveID: 1234567890},
		&JoinGame{
			EntityID:            7,
			Hardcore:            true,
			GameMode:            1,
			PreviousGameMode:    0,
			WorldNames:          []string{"minecraft:overworld"},
			DimensionType:       "minecraft:overworld",
			DimensionName:       "minecraft:overworld",
			HashedSeed:          12345,
			MaxPlayers:          100,
			ViewDistance:        10,
			SimulationDistance:  10,
			EnableRespawnScreen: true,
			IsFlat:              true,
		},
		&PlayerPosition{X: 8.5, Y: 65, Z: -8.5, OnGround: true},
		&PlayerPositionAndLook{X: 1, Y: 2, Z: 3, Yaw: 90, Pitch: -45, Flags: 0, TeleportID: 1},
		&ChunkData{ChunkX: -3, ChunkZ: 7, Data: []byte{1, 2, 3, 4}, BlockEntities: []uint64{99}},
		&UnloadChunk{ChunkX: -2, ChunkZ: 1},
		&UpdateViewPosition{ChunkX: 1, ChunkZ: 0},
		&BlockChange{X: 100, Y: -60, Z: -100, BlockState: 4},
		&MultiBlockChange{
			ChunkX:   -5,
			ChunkZ:   12,
			SectionY: 4,
			Records: []BlockRecord{
				{X: 0, Y: 15, Z: 3, BlockState: 1},
				{X: 15, Y: 0, Z: 15, BlockState: 7},
			},
		},
	}

	for _, p := range packets {
		got := roundTrip(t, reg, p)
		if !reflect.DeepEqual(got, p) {
			t.Errorf("%T round trip = %+v, want %+v", p, got, p)
		}
	}
}

func TestRegistryInjective(t *testing.T) {
	// The registry panics on duplicate registration; constructing it twice
	// also exercises that tables are rebuilt cleanly.
	reg := NewRegistry()
	_ = NewRegistry()

	if p := reg.Lookup(PhasePlay, Serverbound, 0x12); p == nil {
		t.Error("Lookup(PLAY, SB, 0x12) = nil, want KeepAliveServerbound")
	} else if _, ok := p.(*KeepAliveServerbound); !ok {
		t.Errorf("Lookup(PLAY, SB, 0x12) = %T", p)
	}

	// Same id, different phase or direction, different packet kind.
	if p := reg.Lookup(PhaseStatus, Serverbound, 0x00); p == nil {
		t.Error("Lookup(STATUS, SB, 0x00) = nil")
	} else if _, ok := p.(*StatusRequest); !ok {
		t.Errorf("Lookup(STATUS, SB, 0x00) = %T, want StatusRequest", p)
	}
	if p := reg.Lookup(PhaseStatus, Clientbound, 0x00); p == nil {
		t.Error("Lookup(STATUS, CB, 0x00) = nil")
	} else if _, ok := p.(*StatusResponse); !ok {
		t.Errorf("Lookup(STATUS, CB, 0x00) = %T, want StatusResponse", p)
	}
}

func TestRegistryUnknown(t *testing.T) {
	reg := NewRegistry()

	if p := reg.Lookup(PhasePlay, Serverbound, 0x7E); p != nil {
		t.Errorf("Lookup unknown id = %T, want nil", p)
	}

	_, err := reg.Decode(PhasePlay, Serverbound, 0x7E, BufferFrom(nil))
	if !errors.Is(err, ErrUnknownPacket) {
		t.Errorf("Decode unknown id error = %v, want ErrUnknownPacket", err)
	}
}

func TestEncodeFrame(t *testing.T) {
	// Handshake from the boundary scenario: protocol=763, host="localhost",
	// port=25565, next=1 frames to exactly these bytes.
	p := &Handshake{ProtocolVersion: 763, ServerAddress: "localhost", ServerPort: 25565, NextState: 1}
	expected := []byte{
		0x10, 0x00, 0xFB, 0x05, 0x09,
		'l', 'o', 'c', 'a', 'l', 'h', 'o', 's', 't',
		0x63, 0xDD, 0x01,
	}
	if got := EncodeFrame(p); !bytes.Equal(got, expected) {
		t.Errorf("EncodeFrame(Handshake) = % X, want % X", got, expected)
	}

	// PingRequest payload=42 frames to 09 01 00...2A.
	ping := &PingRequest{Payload: 42}
	expectedPing := []byte{0x09, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x2A}
	if got := EncodeFrame(ping); !bytes.Equal(got, expectedPing) {
		t.Errorf("EncodeFrame(PingRequest) = % X, want % X", got, expectedPing)
	}
}

func TestMultiBlockChangeEncoding(t *testing.T) {
	// Chunk (1,-2), section 4, one record: local (x=5, y=9, z=3) becoming
	// state 7. The section coordinate packs into a big-endian u64; the record
	// is a single VarInt of (state << 12) | (x<<8 | z<<4 | y):
	// (7 << 12) | 0x539 = 30009 -> B9 EA 01.
	p := &MultiBlockChange{
		ChunkX:   1,
		ChunkZ:   -2,
		SectionY: 4,
		Records:  []BlockRecord{{X: 5, Y: 9, Z: 3, BlockState: 7}},
	}

	b := NewBuffer(16)
	p.Encode(b)

	expected := []byte{
		0x00, 0x00, 0x07, 0xFF, 0xFF, 0xE0, 0x00, 0x04, // section coordinate
		0x01,             // record count
		0xB9, 0xEA, 0x01, // VarInt(30009)
	}
	if !bytes.Equal(b.Bytes(), expected) {
		t.Fatalf("MultiBlockChange encoding = % X, want % X", b.Bytes(), expected)
	}

	var got MultiBlockChange
	if err := got.Decode(BufferFrom(expected)); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(&got, p) {
		t.Errorf("Decode = %+v, want %+v", &got, p)
	}
}

func TestFrameConsumesWholeBody(t *testing.T) {
	// After decoding, the read cursor must sit at the frame end.
	p := &PlayerPosition{X: 1, Y: 2, Z: 3, OnGround: true}
	b := NewBuffer(64)
	p.Encode(b)

	r := BufferFrom(b.Bytes())
	var got PlayerPosition
	if err := got.Decode(r); err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("decode left %d unread bytes", r.Len())
	}
}
