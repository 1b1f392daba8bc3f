package protocol

// Handshake opens every connection and routes it to STATUS or LOGIN.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	NextState       int32
}

func (*Handshake) ID() int32            { return 0x00 }
func (*Handshake) Phase() Phase         { return PhaseHandshaking }
func (*Handshake) Direction() Direction { return Serverbound }

func (p *Handshake) Encode(b *Buffer) {
	b.WriteVarInt(p.ProtocolVersion)
	b.WriteString(p.ServerAddress)
	b.WriteUint16(p.ServerPort)
	b.WriteVarInt(p.NextState)
}

func (p *Handshake) Decode(b *Buffer) error {
	var err error
	if p.ProtocolVersion, err = b.ReadVarInt(); err != nil {
		return err
	}
	if p.ServerAddress, err = b.ReadString(); err != nil {
		return err
	}
	if p.ServerPort, err = b.ReadUint16(); err != nil {
		return err
	}
	p.NextState, err = b.ReadVarInt()
	return err
}

type StatusRequest struct{}

func (*StatusRequest) ID() int32            { return 0x00 }
func (*StatusRequest) Phase() Phase         { return PhaseStatus }
func (*StatusRequest) Direction() Direction { return Serverbound }
func (*StatusRequest) Encode(*Buffer)       {}
func (*StatusRequest) Decode(*Buffer) error { return nil }

type StatusResponse struct {
	JSON string
}

func (*StatusResponse) ID() int32            { return 0x00 }
func (*StatusResponse) Phase() Phase         { return PhaseStatus }
func (*StatusResponse) Direction() Direction { return Clientbound }

func (p *StatusResponse) Encode(b *Buffer) { b.WriteString(p.JSON) }

func (p *StatusResponse) Decode(b *Buffer) error {
	var err error
	p.JSON, err = b.ReadString()
	return err
}

type PingRequest struct {
	Payload int64
}

func (*PingRequest) ID() int32            { return 0x01 }
func (*PingRequest) Phase() Phase         { return PhaseStatus }
func (*PingRequest) Direction() Direction { return Serverbound }

func (p *PingRequest) Encode(b *Buffer) { b.WriteInt64(p.Payload) }

func (p *PingRequest) Decode(b *Buffer) error {
	var err error
	p.Payload, err = b.ReadInt64()
	return err
}

type PingResponse struct {
	Payload int64
}

func (*PingResponse) ID() int32            { return 0x01 }
func (*PingResponse) Phase() Phase         { return PhaseStatus }
func (*PingResponse) Direction() Direction { return Clientbound }

func (p *PingResponse) Encode(b *Buffer) { b.WriteInt64(p.Payload) }

func (p *PingResponse) Decode(b *Buffer) error {
	var err error
	p.Payload, err = b.ReadInt64()
	return err
}

type LoginStart struct {
	Username string
	UUID     [16]byte
}

func (*LoginStart) ID() int32            { return 0x00 }
func (*LoginStart) Phase() Phase         { return PhaseLogin }
func (*LoginStart) Direction() Direction { return Serverbound }

func (p *LoginStart) Encode(b *Buffer) {
	b.WriteString(p.Username)
	b.WriteUUID(p.UUID)
}

func (p *LoginStart) Decode(b *Buffer) error {
	var err error
	if p.Username, err = b.ReadString(); err != nil {
		return err
	}
	p.UUID, err = b.ReadUUID()
	return err
}

type LoginSuccess struct {
	UUID     [16]byte
	Username string
}

func (*LoginSuccess) ID() int32            { return 0x02 }
func (*LoginSuccess) Phase() Phase         { return PhaseLogin }
func (*LoginSuccess) Direction() Direction { return Clientbound }

func (p *LoginSuccess) Encode(b *Buffer) {
	b.WriteUUID(p.UUID)
	b.WriteString(p.Username)
	b.WriteVarInt(0) // no profile properties
}

func (p *LoginSuccess) Decode(b *Buffer) error {
	var err error
	if p.UUID, err = b.ReadUUID(); err != nil {
		return err
	}
	if p.Username, err = b.ReadString(); err != nil {
		return err
	}
	_, err = b.ReadVarInt()
	return err
}

// KeepAliveClientbound carries the server's monotonic millisecond timestamp;
// the client must echo it back as KeepAliveServerbound.
type KeepAliveClientbound struct {
	KeepAliveID int64
}

func (*KeepAliveClientbound) ID() int32            { return 0x21 }
func (*KeepAliveClientbound) Phase() Phase         { return PhasePlay }
func (*KeepAliveClientbound) Direction() Direction { return Clientbound }

func (p *KeepAliveClientbound) Encode(b *Buffer) { b.WriteInt64(p.KeepAliveID) }

func (p *KeepAliveClientbound) Decode(b *Buffer) error {
	var err error
	p.KeepAliveID, err = b.ReadInt64()
	return err
}

type KeepAliveServerbound struct {
	KeepAliveID int64
}

func (*KeepAliveServerbound) ID() int32            { return 0x12 }
func (*KeepAliveServerbound) Phase() Phase         { return PhasePlay }
func (*KeepAliveServerbound) Direction() Direction { return Serverbound }

func (p *KeepAliveServerbound) Encode(b *Buffer) { b.WriteInt64(p.KeepAliveID) }

func (p *KeepAliveServerbound) Decode(b *Buffer) error {
	var err error
	p.KeepAliveID, err = b.ReadInt64()
	return err
}

type JoinGame struct {
	EntityID            int32
	Hardcore            bool
	GameMode            uint8
	PreviousGameMode    uint8
	WorldNames          []string
	DimensionType       string
	DimensionName       string
	HashedSeed          int64
	MaxPlayers          int32
	ViewDistance        int32
	SimulationDistance  int32
	ReducedDebugInfo    bool
	EnableRespawnScreen bool
	IsDebug             bool
	IsFlat              bool
	HasDeathLocation    bool
}

func (*JoinGame) ID() int32            { return 0x26 }
func (*JoinGame) Phase() Phase         { return PhasePlay }
func (*JoinGame) Direction() Direction { return Clientbound }

func (p *JoinGame) Encode(b *Buffer) {
	b.WriteInt32(p.EntityID)
	b.WriteBool(p.Hardcore)
	b.WriteUint8(p.GameMode)
	b.WriteUint8(p.PreviousGameMode)
	b.WriteVarInt(int32(len(p.WorldNames)))
	for _, w := range p.WorldNames {
		b.WriteString(w)
	}
	b.WriteString(p.DimensionType)
	b.WriteString(p.DimensionName)
	b.WriteInt64(p.HashedSeed)
	b.WriteVarInt(p.MaxPlayers)
	b.WriteVarInt(p.ViewDistance)
	b.WriteVarInt(p.SimulationDistance)
	b.WriteBool(p.ReducedDebugInfo)
	b.WriteBool(p.EnableRespawnScreen)
	b.WriteBool(p.IsDebug)
	b.WriteBool(p.IsFlat)
	b.WriteBool(p.HasDeathLocation)
}

func (p *JoinGame) Decode(b *Buffer) error {
	var err error
	if p.EntityID, err = b.ReadInt32(); err != nil {
		return err
	}
	if p.Hardcore, err = b.ReadBool(); err != nil {
		return err
	}
	if p.GameMode, err = b.ReadUint8(); err != nil {
		return err
	}
	if p.PreviousGameMode, err = b.ReadUint8(); err != nil {
		return err
	}
	count, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	p.WorldNames = make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		w, err := b.ReadString()
		if err != nil {
			return err
		}
		p.WorldNames = append(p.WorldNames, w)
	}
	if p.DimensionType, err = b.ReadString(); err != nil {
		return err
	}
	if p.DimensionName, err = b.ReadString(); err != nil {
		return err
	}
	if p.HashedSeed, err = b.ReadInt64(); err != nil {
		return err
	}
	if p.MaxPlayers, err = b.ReadVarInt(); err != nil {
		return err
	}
	if p.ViewDistance, err = b.ReadVarInt(); err != nil {
		return err
	}
	if p.SimulationDistance, err = b.ReadVarInt(); err != nil {
		return err
	}
	if p.ReducedDebugInfo, err = b.ReadBool(); err != nil {
		return err
	}
	if p.EnableRespawnScreen, err = b.ReadBool(); err != nil {
		return err
	}
	if p.IsDebug, err = b.ReadBool(); err != nil {
		return err
	}
	if p.IsFlat, err = b.ReadBool(); err != nil {
		return err
	}
	p.HasDeathLocation, err = b.ReadBool()
	return err
}

// PlayerPosition is the serverbound movement update.
type PlayerPosition struct {
	X, Y, Z  float64
	OnGround bool
}

func (*PlayerPosition) ID() int32            { return 0x14 }
func (*PlayerPosition) Phase() Phase         { return PhasePlay }
func (*PlayerPosition) Direction() Direction { return Serverbound }

func (p *PlayerPosition) Encode(b *Buffer) {
	b.WriteFloat64(p.X)
	b.WriteFloat64(p.Y)
	b.WriteFloat64(p.Z)
	b.WriteBool(p.OnGround)
}

func (p *PlayerPosition) Decode(b *Buffer) error {
	var err error
	if p.X, err = b.ReadFloat64(); err != nil {
		return err
	}
	if p.Y, err = b.ReadFloat64(); err != nil {
		return err
	}
	if p.Z, err = b.ReadFloat64(); err != nil {
		return err
	}
	p.OnGround, err = b.ReadBool()
	return err
}

type PlayerPositionAndLook struct {
	X, Y, Z    float64
	Yaw, Pitch float32
	Flags      uint8
	TeleportID int32
	Dismount   bool
}

func (*PlayerPositionAndLook) ID() int32            { return 0x3C }
func (*PlayerPositionAndLook) Phase() Phase         { return PhasePlay }
func (*PlayerPositionAndLook) Direction() Direction { return Clientbound }

func (p *PlayerPositionAndLook) Encode(b *Buffer) {
	b.WriteFloat64(p.X)
	b.WriteFloat64(p.Y)
	b.WriteFloat64(p.Z)
	b.WriteFloat32(p.Yaw)
	b.WriteFloat32(p.Pitch)
	b.WriteUint8(p.Flags)
	b.WriteVarInt(p.TeleportID)
	b.WriteBool(p.Dismount)
}

func (p *PlayerPositionAndLook) Decode(b *Buffer) error {
	var err error
	if p.X, err = b.ReadFloat64(); err != nil {
		return err
	}
	if p.Y, err = b.ReadFloat64(); err != nil {
		return err
	}
	if p.Z, err = b.ReadFloat64(); err != nil {
		return err
	}
	if p.Yaw, err = b.ReadFloat32(); err != nil {
		return err
	}
	if p.Pitch, err = b.ReadFloat32(); err != nil {
		return err
	}
	if p.Flags, err = b.ReadUint8(); err != nil {
		return err
	}
	if p.TeleportID, err = b.ReadVarInt(); err != nil {
		return err
	}
	p.Dismount, err = b.ReadBool()
	return err
}

type ChunkData struct {
	ChunkX        int32
	ChunkZ        int32
	Data          []byte
	BlockEntities []uint64
}

func (*ChunkData) ID() int32            { return 0x24 }
func (*ChunkData) Phase() Phase         { return PhasePlay }
func (*ChunkData) Direction() Direction { return Clientbound }

func (p *ChunkData) Encode(b *Buffer) {
	b.WriteInt32(p.ChunkX)
	b.WriteInt32(p.ChunkZ)
	b.WriteVarInt(int32(len(p.Data)))
	b.WriteBytes(p.Data)
	b.WriteVarInt(int32(len(p.BlockEntities)))
	for _, be := range p.BlockEntities {
		b.WriteUint64(be)
	}
}

func (p *ChunkData) Decode(b *Buffer) error {
	var err error
	if p.ChunkX, err = b.ReadInt32(); err != nil {
		return err
	}
	if p.ChunkZ, err = b.ReadInt32(); err != nil {
		return err
	}
	size, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	if size < 0 {
		return ErrUnderflow
	}
	data, err := b.ReadBytes(int(size))
	if err != nil {
		return err
	}
	p.Data = append([]byte(nil), data...)
	count, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	p.BlockEntities = make([]uint64, 0, count)
	for i := int32(0); i < count; i++ {
		be, err := b.ReadUint64()
		if err != nil {
			return err
		}
		p.BlockEntities = append(p.BlockEntities, be)
	}
	return nil
}

type UnloadChunk struct {
	ChunkX int32
	ChunkZ int32
}

func (*UnloadChunk) ID() int32            { return 0x1D }
func (*UnloadChunk) Phase() Phase         { return PhasePlay }
func (*UnloadChunk) Direction() Direction { return Clientbound }

func (p *UnloadChunk) Encode(b *Buffer) {
	b.WriteInt32(p.ChunkX)
	b.WriteInt32(p.ChunkZ)
}

func (p *UnloadChunk) Decode(b *Buffer) error {
	var err error
	if p.ChunkX, err = b.ReadInt32(); err != nil {
		return err
	}
	p.ChunkZ, err = b.ReadInt32()
	return err
}

type UpdateViewPosition struct {
	ChunkX int32
	ChunkZ int32
}

func (*UpdateViewPosition) ID() int32            { return 0x4E }
func (*UpdateViewPosition) Phase() Phase         { return PhasePlay }
func (*UpdateViewPosition) Direction() Direction { return Clientbound }

func (p *UpdateViewPosition) Encode(b *Buffer) {
	b.WriteVarInt(p.ChunkX)
	b.WriteVarInt(p.ChunkZ)
}

func (p *UpdateViewPosition) Decode(b *Buffer) error {
	var err error
	if p.ChunkX, err = b.ReadVarInt(); err != nil {
		return err
	}
	p.ChunkZ, err = b.ReadVarInt()
	return err
}

type BlockChange struct {
	X, Y, Z    int32
	BlockState int32
}

func (*BlockChange) ID() int32            { return 0x0C }
func (*BlockChange) Phase() Phase         { return PhasePlay }
func (*BlockChange) Direction() Direction { return Clientbound }

func (p *BlockChange) Encode(b *Buffer) {
	b.WritePosition(p.X, p.Y, p.Z)
	b.WriteVarInt(p.BlockState)
}

func (p *BlockChange) Decode(b *Buffer) error {
	var err error
	if p.X, p.Y, p.Z, err = b.ReadPosition(); err != nil {
		return err
	}
	p.BlockState, err = b.ReadVarInt()
	return err
}

// BlockRecord is one entry of a MultiBlockChange: local coordinates within a
// chunk section plus the new block state.
type BlockRecord struct {
	X, Y, Z    int32 // 0..15 within the section
	BlockState int32
}

type MultiBlockChange struct {
	ChunkX   int32
	ChunkZ   int32
	SectionY int32
	Records  []BlockRecord
}

func (*MultiBlockChange) ID() int32            { return 0x10 }
func (*MultiBlockChange) Phase() Phase         { return PhasePlay }
func (*MultiBlockChange) Direction() Direction { return Clientbound }

func (p *MultiBlockChange) Encode(b *Buffer) {
	section := uint64(p.ChunkX&0x3FFFFF)<<42 | uint64(p.ChunkZ&0x3FFFFF)<<20 | uint64(p.SectionY&0xFFFFF)
	b.WriteUint64(section)
	b.WriteVarInt(int32(len(p.Records)))
	for _, r := range p.Records {
		// One VarInt per record: block state in the high bits, packed local
		// position (x<<8 | z<<4 | y) in the low 12.
		local := (r.X&0xF)<<8 | (r.Z&0xF)<<4 | (r.Y & 0xF)
		b.WriteVarInt(r.BlockState<<12 | local)
	}
}

func (p *MultiBlockChange) Decode(b *Buffer) error {
	section, err := b.ReadUint64()
	if err != nil {
		return err
	}
	p.ChunkX = int32(section >> 42)
	p.ChunkZ = int32((section >> 20) & 0x3FFFFF)
	p.SectionY = int32(section & 0xFFFFF)
	if p.ChunkX >= 1<<21 {
		p.ChunkX -= 1 << 22
	}
	if p.ChunkZ >= 1<<21 {
		p.ChunkZ -= 1 << 22
	}
	count, err := b.ReadVarInt()
	if err != nil {
		return err
	}
	p.Records = make([]BlockRecord, 0, count)
	for i := int32(0); i < count; i++ {
		record, err := b.ReadVarInt()
		if err != nil {
			return err
		}
		p.Records = append(p.Records, BlockRecord{
			X:          (record >> 8) & 0xF,
			Z:          (record >> 4) & 0xF,
			Y:          record & 0xF,
			BlockState: record >> 12,
		})
	}
	return nil
}
