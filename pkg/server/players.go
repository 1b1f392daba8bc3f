package server

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stonehollow/craftd/pkg/protocol"
	"github.com/stonehollow/craftd/pkg/world"
)

// Registry admission errors.
var (
	ErrServerFull = errors.New("server is full")
	ErrDuplicate  = errors.New("player already online")
)

// GameProfile is the player identity attached to a connection after login.
type GameProfile struct {
	UUID     uuid.UUID
	Username string
}

// Stats are the player vitals.
type Stats struct {
	Health             float32
	MaxHealth          float32
	FoodLevel          int32
	FoodSaturation     float32
	ExperienceLevel    int32
	ExperienceProgress float32
}

// NewStats returns full-health defaults.
func NewStats() Stats {
	return Stats{Health: 20, MaxHealth: 20, FoodLevel: 20, FoodSaturation: 5}
}

// Player is one play session. The connection link goes one way: the session
// holds the connection, and connections find their session through the
// registry by entity id.
type Player struct {
	conn     *Conn
	profile  GameProfile
	entityID int32

	locMu    sync.Mutex
	loc      Location
	spawnLoc Location

	statsMu sync.Mutex
	stats   Stats

	gameMode     GameMode
	inventory    *Inventory
	selectedSlot atomic.Int32

	viewDistance int

	viewMu       sync.Mutex // serializes UpdateChunkView runs
	chunksMu     sync.Mutex
	loadedChunks map[world.ChunkPos]struct{}
	lastCenter   world.ChunkPos
	hasView      bool

	online       atomic.Bool
	viewReady    atomic.Bool
	joinTime     atomic.Int64
	lastActivity atomic.Int64
}

func newPlayer(conn *Conn, profile GameProfile, entityID int32, spawn Location, mode GameMode, viewDistance int) *Player {
	p := &Player{
		conn:         conn,
		profile:      profile,
		entityID:     entityID,
		loc:          spawn,
		spawnLoc:     spawn,
		stats:        NewStats(),
		gameMode:     mode,
		inventory:    NewInventory(PlayerInventorySize),
		viewDistance: clampViewDistance(viewDistance),
		loadedChunks: make(map[world.ChunkPos]struct{}),
	}
	p.online.Store(true)
	now := time.Now().UnixMilli()
	p.joinTime.Store(now)
	p.lastActivity.Store(now)
	return p
}

func clampViewDistance(d int) int {
	if d < 2 {
		return 2
	}
	if d > 32 {
		return 32
	}
	return d
}

// Profile returns the player identity.
func (p *Player) Profile() GameProfile { return p.profile }

// EntityID returns the session's entity id.
func (p *Player) EntityID() int32 { return p.entityID }

// Location returns the current location.
func (p *Player) Location() Location {
	p.locMu.Lock()
	defer p.locMu.Unlock()
	return p.loc
}

// SetLocation moves the player and refreshes the activity timestamp.
func (p *Player) SetLocation(loc Location) {
	p.locMu.Lock()
	p.loc = loc
	p.locMu.Unlock()
	p.TouchActivity()
}

// SpawnLocation returns where the player respawns.
func (p *Player) SpawnLocation() Location {
	p.locMu.Lock()
	defer p.locMu.Unlock()
	return p.spawnLoc
}

// GameMode returns the session game mode.
func (p *Player) GameMode() GameMode { return p.gameMode }

// Inventory returns the player inventory.
func (p *Player) Inventory() *Inventory { return p.inventory }

// SelectedSlot returns the held hotbar slot.
func (p *Player) SelectedSlot() int32 { return p.selectedSlot.Load() }

// SetSelectedSlot clamps and stores the held hotbar slot.
func (p *Player) SetSelectedSlot(slot int32) {
	if slot < 0 {
		slot = 0
	}
	if slot > 8 {
		slot = 8
	}
	p.selectedSlot.Store(slot)
}

// Stats returns a copy of the vitals.
func (p *Player) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// Damage lowers health, clamped at zero.
func (p *Player) Damage(amount float32) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Health -= amount
	if p.stats.Health < 0 {
		p.stats.Health = 0
	}
}

// Heal raises health, clamped at the cap.
func (p *Player) Heal(amount float32) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.stats.Health += amount
	if p.stats.Health > p.stats.MaxHealth {
		p.stats.Health = p.stats.MaxHealth
	}
}

// ViewDistance returns the session view distance.
func (p *Player) ViewDistance() int { return p.viewDistance }

// Online reports whether the session still has a live connection.
func (p *Player) Online() bool {
	return p.online.Load() && p.conn != nil && !p.conn.Closed()
}

// Disconnect closes the session's connection.
func (p *Player) Disconnect() {
	p.online.Store(false)
	if p.conn != nil {
		p.conn.Close()
	}
}

// JoinTime returns when the session entered PLAY, unix milliseconds.
func (p *Player) JoinTime() int64 { return p.joinTime.Load() }

// LastActivity returns the last activity timestamp, unix milliseconds.
func (p *Player) LastActivity() int64 { return p.lastActivity.Load() }

// TouchActivity refreshes the activity timestamp.
func (p *Player) TouchActivity() { p.lastActivity.Store(time.Now().UnixMilli()) }

// LoadedChunks returns a copy of the streamed chunk set.
func (p *Player) LoadedChunks() map[world.ChunkPos]struct{} {
	p.chunksMu.Lock()
	defer p.chunksMu.Unlock()
	out := make(map[world.ChunkPos]struct{}, len(p.loadedChunks))
	for pos := range p.loadedChunks {
		out[pos] = struct{}{}
	}
	return out
}

// Sees reports whether pos is currently streamed to the client.
func (p *Player) Sees(pos world.ChunkPos) bool {
	p.chunksMu.Lock()
	defer p.chunksMu.Unlock()
	_, ok := p.loadedChunks[pos]
	return ok
}

// neededChunks is the disc of radius r around center: dx²+dz² <= r².
func neededChunks(center world.ChunkPos, r int) map[world.ChunkPos]struct{} {
	needed := make(map[world.ChunkPos]struct{})
	for dx := -r; dx <= r; dx++ {
		for dz := -r; dz <= r; dz++ {
			if dx*dx+dz*dz <= r*r {
				needed[world.ChunkPos{X: center.X + int32(dx), Z: center.Z + int32(dz)}] = struct{}{}
			}
		}
	}
	return needed
}

// UpdateChunkView diffs the needed disc against the streamed set: drops get
// UnloadChunk, additions get ChunkData in order of increasing distance from
// the centre. Chunks not yet resident are requested from the store and
// retried on the next tick. The first update (and every centre change)
// leads with UpdateViewPosition.
func (p *Player) UpdateChunkView(store *world.Store) {
	// No chunk traffic before the join sequence has gone out.
	if !p.viewReady.Load() {
		return
	}

	p.viewMu.Lock()
	defer p.viewMu.Unlock()

	center := p.Location().ChunkPos()
	needed := neededChunks(center, p.viewDistance)

	p.chunksMu.Lock()
	centerChanged := !p.hasView || center != p.lastCenter
	p.lastCenter = center
	p.hasView = true

	var toDrop []world.ChunkPos
	for pos := range p.loadedChunks {
		if _, ok := needed[pos]; !ok {
			toDrop = append(toDrop, pos)
		}
	}
	for _, pos := range toDrop {
		delete(p.loadedChunks, pos)
	}

	var toSend []world.ChunkPos
	for pos := range needed {
		if _, ok := p.loadedChunks[pos]; !ok {
			toSend = append(toSend, pos)
		}
	}
	p.chunksMu.Unlock()

	if centerChanged {
		p.conn.Send(&protocol.UpdateViewPosition{ChunkX: center.X, ChunkZ: center.Z})
	}

	sort.Slice(toSend, func(i, j int) bool {
		di := sqDist(toSend[i], center)
		dj := sqDist(toSend[j], center)
		return di < dj
	})

	for _, pos := range toSend {
		chunk, ready := store.Get(pos)
		if !ready {
			store.Load(pos)
			continue
		}
		p.conn.Send(&protocol.ChunkData{
			ChunkX: pos.X,
			ChunkZ: pos.Z,
			Data:   chunk.NetworkPayload(),
		})
		p.chunksMu.Lock()
		p.loadedChunks[pos] = struct{}{}
		p.chunksMu.Unlock()
	}

	for _, pos := range toDrop {
		p.conn.Send(&protocol.UnloadChunk{ChunkX: pos.X, ChunkZ: pos.Z})
	}
}

func sqDist(a, b world.ChunkPos) int64 {
	dx := int64(a.X - b.X)
	dz := int64(a.Z - b.Z)
	return dx*dx + dz*dz
}

// offlineRetention is how long a disconnected session stays in the registry.
const offlineRetention = 10 * time.Minute

// PlayerRegistry indexes sessions by UUID (authoritative), username and
// entity id. One mutex guards all three maps.
type PlayerRegistry struct {
	mu     sync.Mutex
	byUUID map[uuid.UUID]*Player
	byName map[string]*Player
	byEID  map[int32]*Player

	nextEID    atomic.Int32
	maxPlayers int
}

// NewPlayerRegistry returns a registry capped at maxPlayers online sessions.
func NewPlayerRegistry(maxPlayers int) *PlayerRegistry {
	r := &PlayerRegistry{
		byUUID:     make(map[uuid.UUID]*Player),
		byName:     make(map[string]*Player),
		byEID:      make(map[int32]*Player),
		maxPlayers: maxPlayers,
	}
	r.nextEID.Store(1)
	return r
}

// Create admits a new session. It fails with ErrServerFull at the player cap
// and ErrDuplicate when an online session holds the UUID; a retained offline
// session with that UUID is replaced.
func (r *PlayerRegistry) Create(conn *Conn, profile GameProfile, spawn Location, mode GameMode, viewDistance int) (*Player, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	online := 0
	for _, p := range r.byUUID {
		if p.Online() {
			online++
		}
	}
	if online >= r.maxPlayers {
		return nil, ErrServerFull
	}
	if prev, ok := r.byUUID[profile.UUID]; ok {
		if prev.Online() {
			return nil, ErrDuplicate
		}
		// A returning player replaces their retained offline session.
		delete(r.byUUID, profile.UUID)
		delete(r.byName, prev.profile.Username)
		delete(r.byEID, prev.entityID)
	}

	eid := r.nextEID.Add(1) - 1
	p := newPlayer(conn, profile, eid, spawn, mode, viewDistance)
	r.byUUID[profile.UUID] = p
	r.byName[profile.Username] = p
	r.byEID[eid] = p
	return p, nil
}

// Remove erases a session from all three maps.
func (r *PlayerRegistry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byUUID[id]
	if !ok {
		return
	}
	delete(r.byUUID, id)
	delete(r.byName, p.profile.Username)
	delete(r.byEID, p.entityID)
}

// ByUUID returns the session for id.
func (r *PlayerRegistry) ByUUID(id uuid.UUID) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byUUID[id]
	return p, ok
}

// ByName returns the session for a username.
func (r *PlayerRegistry) ByName(name string) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	return p, ok
}

// ByEntityID returns the session for an entity id.
func (r *PlayerRegistry) ByEntityID(eid int32) (*Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byEID[eid]
	return p, ok
}

// Online returns the sessions with live connections.
func (r *PlayerRegistry) Online() []*Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Player
	for _, p := range r.byUUID {
		if p.Online() {
			out = append(out, p)
		}
	}
	return out
}

// OnlineCount returns the number of live sessions.
func (r *PlayerRegistry) OnlineCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, p := range r.byUUID {
		if p.Online() {
			n++
		}
	}
	return n
}

// Count returns all registered sessions, online or not.
func (r *PlayerRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byUUID)
}

// CleanupOffline drops sessions that have been offline longer than the
// retention window.
func (r *PlayerRegistry) CleanupOffline() {
	cutoff := time.Now().Add(-offlineRetention).UnixMilli()

	r.mu.Lock()
	var stale []uuid.UUID
	for id, p := range r.byUUID {
		if !p.Online() && p.LastActivity() < cutoff {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.Remove(id)
	}
}

// UpdateAllChunkViews runs the per-player view diff. Invoked once per tick.
func (r *PlayerRegistry) UpdateAllChunkViews(store *world.Store) {
	for _, p := range r.Online() {
		p.UpdateChunkView(store)
	}
}
