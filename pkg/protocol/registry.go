package protocol

import (
	"errors"
	"fmt"
)

// ErrUnknownPacket is returned by Registry.Decode for an id with no entry in
// the active (phase, direction) table. Connections drop such packets instead
// of closing, to stay compatible with harmless packets we do not implement.
var ErrUnknownPacket = errors.New("unknown packet")

// Registry maps (phase, direction, id) to a packet constructor. It is
// populated once at startup; lookups after that are pure reads.
type Registry struct {
	factories map[Phase]map[Direction]map[int32]func() Packet
}

// NewRegistry returns a registry holding every packet the server speaks.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Phase]map[Direction]map[int32]func() Packet)}

	r.register(func() Packet { return &Handshake{} })
	r.register(func() Packet { return &StatusRequest{} })
	r.register(func() Packet { return &StatusResponse{} })
	r.register(func() Packet { return &PingRequest{} })
	r.register(func() Packet { return &PingResponse{} })
	r.register(func() Packet { return &LoginStart{} })
	r.register(func() Packet { return &LoginSuccess{} })
	r.register(func() Packet { return &KeepAliveClientbound{} })
	r.register(func() Packet { return &KeepAliveServerbound{} })
	r.register(func() Packet { return &JoinGame{} })
	r.register(func() Packet { return &PlayerPosition{} })
	r.register(func() Packet { return &PlayerPositionAndLook{} })
	r.register(func() Packet { return &ChunkData{} })
	r.register(func() Packet { return &UnloadChunk{} })
	r.register(func() Packet { return &UpdateViewPosition{} })
	r.register(func() Packet { return &BlockChange{} })
	r.register(func() Packet { return &MultiBlockChange{} })

	return r
}

func (r *Registry) register(factory func() Packet) {
	sample := factory()
	phase, dir, id := sample.Phase(), sample.Direction(), sample.ID()

	byDir, ok := r.factories[phase]
	if !ok {
		byDir = make(map[Direction]map[int32]func() Packet)
		r.factories[phase] = byDir
	}
	byID, ok := byDir[dir]
	if !ok {
		byID = make(map[int32]func() Packet)
		byDir[dir] = byID
	}
	if _, dup := byID[id]; dup {
		panic(fmt.Sprintf("duplicate packet registration: %v/%v/0x%02X", phase, dir, id))
	}
	byID[id] = factory
}

// Lookup returns a fresh packet for the given table entry, or nil if none is
// registered.
func (r *Registry) Lookup(phase Phase, dir Direction, id int32) Packet {
	if byDir, ok := r.factories[phase]; ok {
		if byID, ok := byDir[dir]; ok {
			if factory, ok := byID[id]; ok {
				return factory()
			}
		}
	}
	return nil
}

// Decode looks up the packet for (phase, dir, id) and decodes its body from
// b. It returns ErrUnknownPacket when no entry exists.
func (r *Registry) Decode(phase Phase, dir Direction, id int32, b *Buffer) (Packet, error) {
	p := r.Lookup(phase, dir, id)
	if p == nil {
		return nil, fmt.Errorf("%w: %v/%v/0x%02X", ErrUnknownPacket, phase, dir, id)
	}
	if err := p.Decode(b); err != nil {
		return nil, fmt.Errorf("decode %v/%v/0x%02X: %w", phase, dir, id, err)
	}
	return p, nil
}
