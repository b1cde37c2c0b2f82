// Package world is the authoritative physical simulation: a table of
// circular objects attracting each other pairwise, up to
// rules.MaxObjectsPerPlayer objects per player, stepped on a fixed
// timestep and replicated out in small batches.
//
// On a host or in single-player, a World is authoritative: it owns a
// physics.World and actually integrates motion. On a client, a World is a
// mirror: Step is never called: ApplyReplication is the only way its
// object table changes, driven by GameObjectSync packets off the wire.
package world

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/novaarena/core/internal/physics"
	"github.com/novaarena/core/internal/player"
	"github.com/novaarena/core/internal/rules"
	"github.com/novaarena/core/internal/wire"
)

// Object is one circular body owned by a player.
type Object struct {
	PlayerID  uint16
	ObjectID  uint16
	Radius    float64
	Value     int
	CreatedAt time.Time
	ExpiresAt time.Time

	// AnchorX/AnchorY record the position the object was created at. Only
	// exercised when the object ends up owned by the system slot:
	// applyGravityLocked pulls such a body back toward its anchor every
	// step, regardless of which player originally placed it.
	AnchorX, AnchorY float64

	// LastSyncID is the replication epoch this object was last confirmed
	// present in, stamped on every ApplyReplication. Garbage collection on
	// an epoch transition does not read it; it keys off the membership of
	// the transition packet instead.
	LastSyncID uint32

	body *physics.Body // nil on a non-authoritative (client) World

	// mirror* hold the last replicated position/velocity for objects on a
	// non-authoritative World, which has no physics body to ask instead.
	mirrorPX, mirrorPY, mirrorVX, mirrorVY float64
}

// World holds the object table and, when authoritative, the physics engine
// backing it.
type World struct {
	mu   sync.Mutex
	objs [rules.MaxPlayers][rules.MaxObjectsPerPlayer]*Object

	authoritative bool
	phys          *physics.World
	players       *player.Manager

	pendingMerges []physics.ContactPair
	syncSeq       uint32

	// lastSyncID is the most recently adopted replication epoch on a mirror
	// World, used to detect epoch transitions in ApplyReplication.
	lastSyncID uint32

	lastHighscoreAt time.Time
}

// NewAuthoritative returns a World that runs its own physics and merge
// detection — used in single-player and by the host.
func NewAuthoritative(players *player.Manager) *World {
	w := &World{
		authoritative: true,
		phys:          physics.NewWorld(rules.Step.Seconds()),
		players:       players,
	}
	w.phys.SetBeginContactHandler(func(p physics.ContactPair) {
		w.mu.Lock()
		w.pendingMerges = append(w.pendingMerges, p)
		w.mu.Unlock()
	})
	return w
}

// NewMirror returns a non-authoritative World that only ever changes in
// response to ApplyReplication — used by a network client.
func NewMirror() *World {
	return &World{authoritative: false}
}

// bodyRef is the UserData attached to every physics body so a contact
// callback can identify which table slot collided.
type bodyRef struct {
	PlayerID uint16
	ObjectID uint16
}

// AddGameObject creates a new object owned by playerID at the requested
// position and velocity, clamping radius into the creation range and
// deriving lifetime from it (§ rules.Duration). The owner is charged
// min(requested_value(radius), player.score); the object keeps whatever
// remainder the player's balance couldn't cover.
func (w *World) AddGameObject(playerID uint16, radius, px, py, vx, vy float64) (Object, error) {
	if int(playerID) >= rules.MaxPlayers {
		return Object{}, fmt.Errorf("world: player id %d out of range", playerID)
	}
	if !rules.InArena(px, py) {
		return Object{}, fmt.Errorf("world: position (%.2f,%.2f) outside arena", px, py)
	}
	radius = rules.ClampCreationRadius(radius)

	w.mu.Lock()
	obj, err := w.addRawLocked(playerID, radius, px, py, vx, vy, time.Now())
	w.mu.Unlock()
	if err != nil {
		return Object{}, err
	}

	charged := 0
	if w.players != nil {
		charged = w.players.ChargeScore(playerID, rules.RequestedValue(radius))
	}

	w.mu.Lock()
	obj.Value = charged
	out := *obj
	w.mu.Unlock()
	return out, nil
}

// addRawLocked constructs an object at the lowest free slot for playerID
// with no score interaction — used both by AddGameObject (which charges
// separately, after release) and by mergeObjects (whose value comes from
// accrual, never from a fresh charge). Called with w.mu held.
func (w *World) addRawLocked(playerID uint16, radius, px, py, vx, vy float64, createdAt time.Time) (*Object, error) {
	slotID, ok := w.freeSlotLocked(playerID)
	if !ok {
		return nil, fmt.Errorf("world: player %d has no free object slot", playerID)
	}
	return w.newObjectLocked(playerID, slotID, radius, px, py, vx, vy, createdAt), nil
}

// newObjectLocked builds and stores an object at an explicit slot. Called
// with w.mu held.
func (w *World) newObjectLocked(playerID, objectID uint16, radius, px, py, vx, vy float64, createdAt time.Time) *Object {
	obj := &Object{
		PlayerID:  playerID,
		ObjectID:  objectID,
		Radius:    radius,
		AnchorX:   px,
		AnchorY:   py,
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(rules.Duration(radius)),
	}
	if w.authoritative {
		obj.body = w.phys.CreateCircleBody(px, py, radius, rules.Density, rules.Friction, rules.Restitution,
			bodyRef{PlayerID: playerID, ObjectID: objectID})
		obj.body.SetVelocity(vx, vy)
	}
	w.objs[playerID][objectID] = obj
	return obj
}

func (w *World) freeSlotLocked(playerID uint16) (uint16, bool) {
	for id := 0; id < rules.MaxObjectsPerPlayer; id++ {
		if w.objs[playerID][id] == nil {
			return uint16(id), true
		}
	}
	return 0, false
}

// RemoveGameObject destroys and vacates a slot.
func (w *World) RemoveGameObject(playerID, objectID uint16) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.removeLocked(playerID, objectID)
}

func (w *World) removeLocked(playerID, objectID uint16) error {
	if int(playerID) >= rules.MaxPlayers || int(objectID) >= rules.MaxObjectsPerPlayer {
		return fmt.Errorf("world: id out of range")
	}
	obj := w.objs[playerID][objectID]
	if obj == nil {
		return fmt.Errorf("world: object (%d,%d) does not exist", playerID, objectID)
	}
	if w.authoritative && obj.body != nil {
		obj.body.Destroy(w.phys)
	}
	w.objs[playerID][objectID] = nil
	return nil
}

// RemovePlayerGameObjects bulk-removes every object owned by playerID, with
// no score side effects. The host wires this to a session's timeout so a
// dropped client's bodies don't linger forever.
func (w *World) RemovePlayerGameObjects(playerID uint16) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if int(playerID) >= rules.MaxPlayers {
		return
	}
	for id := range w.objs[playerID] {
		if w.objs[playerID][id] != nil {
			w.removeLocked(playerID, uint16(id))
		}
	}
}

// RemoveNearMouse removes every object within radius (or within its own
// radius, whichever is larger) of (mx,my) that requesterID owns — or, if
// requesterID is the system slot, every such object regardless of owner.
// Each removed object credits its owner half its value.
func (w *World) RemoveNearMouse(requesterID uint16, mx, my, radius float64) {
	type hit struct {
		playerID uint16
		value    int
	}
	var hits []hit

	w.mu.Lock()
	for p := range w.objs {
		for id, obj := range w.objs[p] {
			if obj == nil {
				continue
			}
			if obj.PlayerID != requesterID && requesterID != rules.SystemPlayerID {
				continue
			}
			ox, oy := obj.Position()
			dx, dy := ox-mx, oy-my
			dist := math.Sqrt(dx*dx + dy*dy)
			if dist < radius || dist < obj.Radius {
				hits = append(hits, hit{obj.PlayerID, obj.Value})
				w.removeLocked(obj.PlayerID, uint16(id))
			}
		}
	}
	w.mu.Unlock()

	if w.players == nil {
		return
	}
	for _, h := range hits {
		w.players.AddScore(h.playerID, h.value/2)
	}
}

// SwitchPlayer migrates every object owned by old onto new. A collision
// with an already-occupied (new, objectID) slot is an assertion failure
// and panics; callers (the router's /player command included) do not
// check the target's object slots beforehand. Each migrated
// object's creation is bumped 2*SyncRate into the future, suppressing
// client render glitches the same way a freshly merged object does.
func (w *World) SwitchPlayer(old, new uint16) error {
	if int(old) >= rules.MaxPlayers || int(new) >= rules.MaxPlayers {
		return fmt.Errorf("world: id out of range")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for id := 0; id < rules.MaxObjectsPerPlayer; id++ {
		obj := w.objs[old][id]
		if obj == nil {
			continue
		}
		if w.objs[new][id] != nil {
			panic(fmt.Sprintf("world: SwitchPlayer(%d,%d) collided on occupied object slot %d", old, new, id))
		}
		obj.PlayerID = new
		obj.CreatedAt = time.Now().Add(2 * rules.SyncRate)
		if w.authoritative && obj.body != nil {
			obj.body.SetUserData(bodyRef{PlayerID: new, ObjectID: uint16(id)})
		}
		w.objs[new][id] = obj
		w.objs[old][id] = nil
	}
	return nil
}

// gravityConstant is G in the non-Newtonian law F = G*m1*m2/|dp|^2 where dp
// is the raw (non-normalized) position delta: no inverse-square falloff
// softening, and direction comes from atan2 on dp rather than dp/|dp|.
const gravityConstant = rules.Gravity

// Step advances the simulation by one fixed tick: applies the pairwise
// gravity law and the system-slot anchor spring, integrates physics,
// resolves merges discovered during integration, and expires objects whose
// lifetime ran out. It panics if called on a non-authoritative (mirror)
// World.
func (w *World) Step() {
	if !w.authoritative {
		panic("world: Step called on a non-authoritative World")
	}

	w.mu.Lock()
	w.applyGravityLocked()
	w.mu.Unlock()

	w.phys.Step()

	w.mu.Lock()
	merges := w.pendingMerges
	w.pendingMerges = nil
	w.mu.Unlock()

	for _, m := range merges {
		w.resolveContact(m)
	}

	w.expire()
}

// applyGravityLocked applies the custom non-Newtonian attraction between
// every pair of authoritative bodies, then pulls every system-slot (owner
// 0) body back toward its anchor with an unscaled spring force. Called
// with w.mu held.
func (w *World) applyGravityLocked() {
	var bodies []*physics.Body
	var masses []float64
	for p := range w.objs {
		for _, obj := range w.objs[p] {
			if obj == nil || obj.body == nil {
				continue
			}
			bodies = append(bodies, obj.body)
			masses = append(masses, obj.body.Mass())
		}
	}

	for i := 0; i < len(bodies); i++ {
		xi, yi := bodies[i].Position()
		for j := i + 1; j < len(bodies); j++ {
			xj, yj := bodies[j].Position()
			dx := xj - xi
			dy := yj - yi

			// Deliberately not normalized: direction comes from the raw
			// delta via atan2, magnitude from the raw squared distance,
			// not the conventional inverse-square-of-distance with a
			// unit direction vector.
			distSq := dx*dx + dy*dy
			if distSq < 1e-6 {
				continue
			}
			angle := math.Atan2(dy, dx)
			mag := gravityConstant * masses[i] * masses[j] / distSq

			fx := mag * math.Cos(angle)
			fy := mag * math.Sin(angle)
			bodies[i].ApplyForce(fx, fy)
			bodies[j].ApplyForce(-fx, -fy)
		}
	}

	for p := range w.objs {
		for _, obj := range w.objs[p] {
			if obj == nil || obj.body == nil || obj.PlayerID != rules.SystemPlayerID {
				continue
			}
			px, py := obj.body.Position()
			obj.body.ApplyForce(obj.AnchorX-px, obj.AnchorY-py)
		}
	}
}

// resolveContact turns a box2d contact into a merge if the pair still
// qualifies; it may no longer exist if an earlier contact in the same
// batch already consumed one of the two bodies.
func (w *World) resolveContact(pair physics.ContactPair) {
	refA, okA := pair.A.(bodyRef)
	refB, okB := pair.B.(bodyRef)
	if !okA || !okB {
		return
	}

	w.mu.Lock()
	a := w.objs[refA.PlayerID][refA.ObjectID]
	b := w.objs[refB.PlayerID][refB.ObjectID]
	if a == nil || b == nil || a == b {
		w.mu.Unlock()
		return
	}

	avx, avy := a.body.Velocity()
	bvx, bvy := b.body.Velocity()
	aSq := avx*avx + avy*avy
	bSq := bvx*bvx + bvy*bvy
	if aSq < rules.MergeVelocityThresholdSq && bSq < rules.MergeVelocityThresholdSq {
		w.mu.Unlock()
		return
	}

	newRadius := math.Sqrt(a.Radius*a.Radius + b.Radius*b.Radius)
	if newRadius > rules.MaxSize {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.mergeObjects(a, b, newRadius)
}

// mergeObjects absorbs a and b into a freshly created object of newRadius,
// following gameworld/GameWorld.cpp's mergeGameObjects: mass-weighted
// centroid for position and velocity, ScaleThreshold-gated owner selection
// with system-slot orphaning when neither original dominates, and value
// accrual on the new object rather than an immediate score credit. A
// similar-sized merge between two non-system owners debits the accrued
// value from the system slot's score instead.
func (w *World) mergeObjects(a, b *Object, newRadius float64) {
	w.mu.Lock()

	ma := 1.0
	if a.body != nil {
		ma = a.body.Mass()
	}
	mb := 1.0
	if b.body != nil {
		mb = b.body.Mass()
	}
	massFrac := 1 / (ma + mb)

	pax, pay := a.Position()
	pbx, pby := b.Position()
	var vax, vay, vbx, vby float64
	if a.body != nil {
		vax, vay = a.body.Velocity()
	}
	if b.body != nil {
		vbx, vby = b.body.Velocity()
	}
	px := (pax*ma + pbx*mb) * massFrac
	py := (pay*ma + pby*mb) * massFrac
	vx := (vax*ma + vbx*mb) * massFrac
	vy := (vay*ma + vby*mb) * massFrac

	var owner uint16
	switch {
	case a.PlayerID == b.PlayerID:
		owner = a.PlayerID
	case a.Radius >= b.Radius*rules.ScaleThreshold:
		owner = a.PlayerID
	case b.Radius >= a.Radius*rules.ScaleThreshold:
		owner = b.PlayerID
	default:
		owner = rules.SystemPlayerID
	}

	value := a.Value + b.Value + rules.MergeBonus
	sameOwner := owner == a.PlayerID || owner == b.PlayerID
	orphan := !sameOwner && a.PlayerID != rules.SystemPlayerID && b.PlayerID != rules.SystemPlayerID

	if sameOwner {
		w.removeLocked(a.PlayerID, a.ObjectID)
		w.removeLocked(b.PlayerID, b.ObjectID)
	}

	newObj, err := w.addRawLocked(owner, newRadius, px, py, vx, vy, time.Now())
	if err == nil {
		newObj.Value = value
		newObj.CreatedAt = newObj.CreatedAt.Add(2 * rules.SyncRate)
	}
	if !sameOwner && err == nil {
		w.removeLocked(a.PlayerID, a.ObjectID)
		w.removeLocked(b.PlayerID, b.ObjectID)
	}
	w.mu.Unlock()

	if err == nil && orphan && w.players != nil {
		w.players.AddScore(rules.SystemPlayerID, -value)
	}
}

// expire removes every object whose lifetime has elapsed, crediting its
// owner with its accrued value plus the expiration bonus.
func (w *World) expire() {
	now := time.Now()
	var expired []*Object

	w.mu.Lock()
	for p := range w.objs {
		for id, obj := range w.objs[p] {
			if obj != nil && now.After(obj.ExpiresAt) {
				expired = append(expired, obj)
				w.removeLocked(obj.PlayerID, uint16(id))
			}
		}
	}
	w.mu.Unlock()

	if w.players == nil {
		return
	}
	for _, obj := range expired {
		w.players.AddScore(obj.PlayerID, obj.Value+rules.ExpirationBonus)
	}
}

// MaybeHighscore returns a fresh score snapshot once rules.HighscoreSyncRate
// has elapsed since the last one was taken, and false otherwise.
func (w *World) MaybeHighscore() (wire.Highscore, bool) {
	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.lastHighscoreAt) < rules.HighscoreSyncRate {
		w.mu.Unlock()
		return wire.Highscore{}, false
	}
	w.lastHighscoreAt = now
	w.mu.Unlock()

	var hs wire.Highscore
	if w.players == nil {
		return hs, true
	}
	for id := uint16(0); id < rules.MaxPlayers; id++ {
		if p, ok := w.players.GetPlayer(id); ok {
			hs.Scores[id] = int32(p.Score)
		}
	}
	return hs, true
}

// Snapshot returns every live object as a slice, for tests and rendering.
// RemoveNearMouse and RemovePlayerGameObjects walk the table directly.
func (w *World) Snapshot() []Object {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Object
	for p := range w.objs {
		for _, obj := range w.objs[p] {
			if obj != nil {
				out = append(out, *obj)
			}
		}
	}
	return out
}

// eligibleSnapshot is like Snapshot but excludes objects whose creation is
// still in the future (the sync-visibility delay applied by mergeObjects
// and SwitchPlayer).
func (w *World) eligibleSnapshot(now time.Time) []Object {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Object
	for p := range w.objs {
		for _, obj := range w.objs[p] {
			if obj != nil && !obj.CreatedAt.After(now) {
				out = append(out, *obj)
			}
		}
	}
	return out
}

// BuildSync packs up to rules.MaxPerSync sync-eligible objects into a
// GameObjectSync and returns the offset to resume from. All batches
// belonging to one full sweep of the table share the same sync id; the id
// only advances when a new sweep starts (offset 0), matching the original
// GameObjectSyncRequest handler's one-id-per-round contract. Callers
// covering the whole table call repeatedly, feeding each returned offset
// back in, until it comes back 0.
func (w *World) BuildSync(offset int) (wire.GameObjectSync, int) {
	all := w.eligibleSnapshot(time.Now())

	w.mu.Lock()
	if offset == 0 {
		w.syncSeq++
	}
	seq := w.syncSeq
	w.mu.Unlock()

	if offset >= len(all) {
		return wire.GameObjectSync{SyncID: seq}, 0
	}

	end := offset + rules.MaxPerSync
	if end > len(all) {
		end = len(all)
	}
	states := make([]wire.State, 0, end-offset)
	for _, obj := range all[offset:end] {
		var px, py, vx, vy float64
		if obj.body != nil {
			px, py = obj.body.Position()
			vx, vy = obj.body.Velocity()
		}
		states = append(states, wire.State{
			PlayerID: obj.PlayerID,
			ObjectID: obj.ObjectID,
			PX:       float32(px),
			PY:       float32(py),
			Radius:   float32(obj.Radius),
			VX:       float32(vx),
			VY:       float32(vy),
		})
	}

	next := end
	if next >= len(all) {
		next = 0
	}
	return wire.GameObjectSync{SyncID: seq, States: states}, next
}

// ApplyReplication updates a mirror World's object table from an incoming
// sync batch. On a sync_id transition it first garbage-collects every
// local object this packet doesn't mention — objects the host silently
// dropped between the previous epoch and this one — then adopts the new
// id. Within the batch, a known object only has its position overwritten
// when the positional error exceeds a quarter of the reported velocity's
// magnitude squared (damping jitter); velocity and radius always update,
// and an unknown object is created as a score-free placeholder.
func (w *World) ApplyReplication(sync wire.GameObjectSync) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if sync.SyncID != w.lastSyncID {
		keep := make(map[bodyRef]bool, len(sync.States))
		for _, s := range sync.States {
			keep[bodyRef{PlayerID: s.PlayerID, ObjectID: s.ObjectID}] = true
		}
		w.removeUnsyncedLocked(keep)
		w.lastSyncID = sync.SyncID
	}

	for _, s := range sync.States {
		if int(s.PlayerID) >= rules.MaxPlayers || int(s.ObjectID) >= rules.MaxObjectsPerPlayer {
			continue
		}
		obj := w.objs[s.PlayerID][s.ObjectID]
		if obj == nil {
			obj = &Object{
				PlayerID: s.PlayerID,
				ObjectID: s.ObjectID,
				mirrorPX: float64(s.PX),
				mirrorPY: float64(s.PY),
			}
			w.objs[s.PlayerID][s.ObjectID] = obj
		} else {
			dx := float64(s.PX) - obj.mirrorPX
			dy := float64(s.PY) - obj.mirrorPY
			velSq := float64(s.VX)*float64(s.VX) + float64(s.VY)*float64(s.VY)
			if dx*dx+dy*dy > 0.25*velSq {
				obj.mirrorPX, obj.mirrorPY = float64(s.PX), float64(s.PY)
			}
		}
		obj.Radius = float64(s.Radius)
		obj.mirrorVX, obj.mirrorVY = float64(s.VX), float64(s.VY)
		obj.LastSyncID = sync.SyncID
	}
}

// removeUnsyncedLocked drops every local object not present in keep: the
// membership of the packet that triggered an epoch transition. Called
// with w.mu held.
func (w *World) removeUnsyncedLocked(keep map[bodyRef]bool) {
	for p := range w.objs {
		for id, obj := range w.objs[p] {
			if obj == nil {
				continue
			}
			if !keep[bodyRef{PlayerID: obj.PlayerID, ObjectID: uint16(id)}] {
				w.removeLocked(obj.PlayerID, uint16(id))
			}
		}
	}
}

// Position returns a mirror object's last-known replicated position, or an
// authoritative object's live physics position.
func (o Object) Position() (float64, float64) {
	if o.body != nil {
		return o.body.Position()
	}
	return o.mirrorPX, o.mirrorPY
}
