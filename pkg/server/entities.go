package server

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/stonehollow/craftd/pkg/world"
)

// Location is a position plus view angles.
type Location struct {
	X, Y, Z    float64
	Yaw, Pitch float32
}

// ChunkPos returns the chunk containing the location.
func (l Location) ChunkPos() world.ChunkPos {
	return world.BlockToChunk(int32(math.Floor(l.X)), int32(math.Floor(l.Z)))
}

// DistanceTo returns the Euclidean distance to other.
func (l Location) DistanceTo(other Location) float64 {
	dx := l.X - other.X
	dy := l.Y - other.Y
	dz := l.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// EntityKind identifies the entity type on the wire.
type EntityKind uint32

const (
	KindPlayer   EntityKind = 0
	KindItem     EntityKind = 1
	KindXPOrb    EntityKind = 2
	KindCreeper  EntityKind = 50
	KindSkeleton EntityKind = 51
	KindZombie   EntityKind = 54
	KindArrow    EntityKind = 60
	KindPig      EntityKind = 90
	KindSheep    EntityKind = 91
	KindCow      EntityKind = 92
)

// Entity is a tickable world object.
type Entity interface {
	ID() uint32
	Kind() EntityKind
	Location() Location
	SetLocation(Location)
	Velocity() Location
	SetVelocity(Location)
	Tick()
	ShouldRemove() bool
	Dirty() bool
	ClearDirty()
}

// BaseEntity implements the shared entity state and kinematics.
type BaseEntity struct {
	id   uint32
	kind EntityKind

	mu       sync.Mutex
	loc      Location
	vel      Location
	onGround bool

	noGravity atomic.Bool
	dirty     atomic.Bool
}

// NewBaseEntity returns an entity at the given location.
func NewBaseEntity(id uint32, kind EntityKind, loc Location) *BaseEntity {
	return &BaseEntity{id: id, kind: kind, loc: loc}
}

func (e *BaseEntity) ID() uint32       { return e.id }
func (e *BaseEntity) Kind() EntityKind { return e.kind }

func (e *BaseEntity) Location() Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loc
}

func (e *BaseEntity) SetLocation(loc Location) {
	e.mu.Lock()
	e.loc = loc
	e.mu.Unlock()
	e.dirty.Store(true)
}

func (e *BaseEntity) Velocity() Location {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.vel
}

func (e *BaseEntity) SetVelocity(vel Location) {
	e.mu.Lock()
	e.vel = vel
	e.mu.Unlock()
	e.dirty.Store(true)
}

// SetNoGravity disables the gravity term of Tick.
func (e *BaseEntity) SetNoGravity(v bool) { e.noGravity.Store(v) }

func (e *BaseEntity) Dirty() bool { return e.dirty.Load() }
func (e *BaseEntity) ClearDirty() { e.dirty.Store(false) }

// Tick advances trivial kinematics: gravity with vertical drag, position
// integration, horizontal decay, and a snap-to-zero below 0.01.
func (e *BaseEntity) Tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.noGravity.Load() {
		e.vel.Y = (e.vel.Y - 0.08) * 0.98
	}

	e.loc.X += e.vel.X
	e.loc.Y += e.vel.Y
	e.loc.Z += e.vel.Z

	e.vel.X *= 0.91
	e.vel.Z *= 0.91

	if math.Abs(e.vel.X) < 0.01 {
		e.vel.X = 0
	}
	if math.Abs(e.vel.Y) < 0.01 {
		e.vel.Y = 0
	}
	if math.Abs(e.vel.Z) < 0.01 {
		e.vel.Z = 0
	}

	e.dirty.Store(true)
}

// ShouldRemove is false for plain entities.
func (e *BaseEntity) ShouldRemove() bool { return false }

// LivingEntity adds health and hurt/death timers. It becomes removable 20
// ticks after death.
type LivingEntity struct {
	*BaseEntity

	statsMu   sync.Mutex
	health    float32
	maxHealth float32
	hurtTime  int32
	deathTime int32
}

// NewLivingEntity returns a living entity at full health.
func NewLivingEntity(id uint32, kind EntityKind, loc Location, maxHealth float32) *LivingEntity {
	return &LivingEntity{
		BaseEntity: NewBaseEntity(id, kind, loc),
		health:     maxHealth,
		maxHealth:  maxHealth,
	}
}

// Health returns the current health.
func (e *LivingEntity) Health() float32 {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.health
}

// MaxHealth returns the health cap.
func (e *LivingEntity) MaxHealth() float32 { return e.maxHealth }

// Damage reduces health and starts the hurt timer.
func (e *LivingEntity) Damage(amount float32) {
	if amount <= 0 {
		return
	}
	e.statsMu.Lock()
	e.health -= amount
	if e.health < 0 {
		e.health = 0
	}
	e.hurtTime = 10
	e.statsMu.Unlock()
	e.dirty.Store(true)
}

// Heal raises health up to the cap.
func (e *LivingEntity) Heal(amount float32) {
	if amount <= 0 {
		return
	}
	e.statsMu.Lock()
	e.health += amount
	if e.health > e.maxHealth {
		e.health = e.maxHealth
	}
	e.statsMu.Unlock()
	e.dirty.Store(true)
}

// Alive reports health above zero.
func (e *LivingEntity) Alive() bool { return e.Health() > 0 }

// Tick runs base kinematics, then advances the hurt and death timers.
func (e *LivingEntity) Tick() {
	e.BaseEntity.Tick()

	e.statsMu.Lock()
	if e.hurtTime > 0 {
		e.hurtTime--
	}
	if e.health <= 0 && e.deathTime < 20 {
		e.deathTime++
	}
	e.statsMu.Unlock()
}

// ShouldRemove reports a finished death animation.
func (e *LivingEntity) ShouldRemove() bool {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()
	return e.health <= 0 && e.deathTime >= 20
}

// firstEntityID is where non-player entity ids start. Id 0 is the "none"
// sentinel.
const firstEntityID = 10000

// EntityTable stores entities by id with a secondary index by chunk.
type EntityTable struct {
	mu       sync.Mutex
	entities map[uint32]Entity
	byChunk  map[world.ChunkPos][]uint32

	nextID      atomic.Uint32
	maxEntities int
}

// NewEntityTable returns a table capped at maxEntities.
func NewEntityTable(maxEntities int) *EntityTable {
	t := &EntityTable{
		entities:    make(map[uint32]Entity),
		byChunk:     make(map[world.ChunkPos][]uint32),
		maxEntities: maxEntities,
	}
	t.nextID.Store(firstEntityID)
	return t
}

// NextID allocates a fresh entity id.
func (t *EntityTable) NextID() uint32 {
	return t.nextID.Add(1) - 1
}

// Spawn registers the entity, returning its id or 0 when the table is full.
func (t *EntityTable) Spawn(e Entity) uint32 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.entities) >= t.maxEntities {
		return 0
	}
	id := e.ID()
	t.entities[id] = e
	pos := e.Location().ChunkPos()
	t.byChunk[pos] = append(t.byChunk[pos], id)
	return id
}

// Remove drops an entity and its chunk-index entry.
func (t *EntityTable) Remove(id uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(id)
}

func (t *EntityTable) removeLocked(id uint32) {
	e, ok := t.entities[id]
	if !ok {
		return
	}
	delete(t.entities, id)

	pos := e.Location().ChunkPos()
	ids := t.byChunk[pos]
	for i, other := range ids {
		if other == id {
			t.byChunk[pos] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(t.byChunk[pos]) == 0 {
		delete(t.byChunk, pos)
	}
}

// Get returns the entity with id.
func (t *EntityTable) Get(id uint32) (Entity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entities[id]
	return e, ok
}

// InChunk returns the entities indexed under pos.
func (t *EntityTable) InChunk(pos world.ChunkPos) []Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entity
	for _, id := range t.byChunk[pos] {
		if e, ok := t.entities[id]; ok {
			out = append(out, e)
		}
	}
	return out
}

// InRange returns entities within radius of center.
func (t *EntityTable) InRange(center Location, radius float64) []Entity {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entity
	for _, e := range t.entities {
		if e.Location().DistanceTo(center) <= radius {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of live entities.
func (t *EntityTable) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entities)
}

// TickAll snapshots the entity set, ticks every entity outside the lock,
// removes the ones done dying and rebuilds the chunk index.
func (t *EntityTable) TickAll() {
	t.mu.Lock()
	snapshot := make([]Entity, 0, len(t.entities))
	for _, e := range t.entities {
		snapshot = append(snapshot, e)
	}
	t.mu.Unlock()

	var toRemove []uint32
	for _, e := range snapshot {
		e.Tick()
		if e.ShouldRemove() {
			toRemove = append(toRemove, e.ID())
		}
	}

	t.mu.Lock()
	for _, id := range toRemove {
		t.removeLocked(id)
	}
	t.byChunk = make(map[world.ChunkPos][]uint32, len(t.entities))
	for id, e := range t.entities {
		pos := e.Location().ChunkPos()
		t.byChunk[pos] = append(t.byChunk[pos], id)
	}
	t.mu.Unlock()
}
