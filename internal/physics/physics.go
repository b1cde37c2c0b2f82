// Package physics wraps box2d for the one shape the core ever simulates:
// circular dynamic bodies under externally-applied forces. Box2D's own
// uniform gravity is left at zero — gravity here is a per-pair force the
// caller computes and applies every step, not a world constant.
package physics

import (
	"github.com/ByteArena/box2d"
)

// World is a box2d world configured for circular bodies with no built-in
// gravity field and no friction/restitution beyond what each body requests.
type World struct {
	world              box2d.B2World
	timeStep           float64
	velocityIterations int
	positionIterations int
	listener           *contactAdapter
}

// Body is a single circular dynamic body. UserData carries whatever the
// caller needs to identify it again from a contact callback (e.g. a
// player/object id pair) without walking back through box2d internals.
type Body struct {
	body *box2d.B2Body
}

// NewWorld creates a world with zero ambient gravity; all motion comes from
// forces applied explicitly each step.
func NewWorld(timeStep float64) *World {
	w := box2d.MakeB2World(box2d.MakeB2Vec2(0, 0))
	return &World{
		world:              w,
		timeStep:           timeStep,
		velocityIterations: 8,
		positionIterations: 3,
	}
}

// Step advances the simulation by one fixed timestep. Callers must have
// already applied any per-body forces for this step.
func (w *World) Step() {
	w.world.Step(w.timeStep, w.velocityIterations, w.positionIterations)
}

// CreateCircleBody spawns a dynamic circular body at (x, y) with the given
// radius and density. Box2D derives mass from the fixture automatically.
func (w *World) CreateCircleBody(x, y, radius, density, friction, restitution float64, userData any) *Body {
	def := box2d.MakeB2BodyDef()
	def.Type = box2d.B2BodyType.B2_dynamicBody
	def.Position.Set(x, y)
	def.LinearDamping = 0
	def.AngularDamping = 0

	b2body := w.world.CreateBody(&def)
	b2body.SetUserData(userData)

	shape := box2d.MakeB2CircleShape()
	shape.M_radius = radius

	fixture := box2d.MakeB2FixtureDef()
	fixture.Shape = &shape
	fixture.Density = density
	fixture.Friction = friction
	fixture.Restitution = restitution
	b2body.CreateFixtureFromDef(&fixture)

	return &Body{body: b2body}
}

// Destroy removes the body from its world.
func (b *Body) Destroy(w *World) {
	w.world.DestroyBody(b.body)
}

// Position returns the body's center.
func (b *Body) Position() (x, y float64) {
	p := b.body.GetPosition()
	return p.X, p.Y
}

// SetPosition teleports the body, preserving its current angle.
func (b *Body) SetPosition(x, y float64) {
	b.body.SetTransform(box2d.MakeB2Vec2(x, y), b.body.GetAngle())
}

// Velocity returns the body's linear velocity.
func (b *Body) Velocity() (vx, vy float64) {
	v := b.body.GetLinearVelocity()
	return v.X, v.Y
}

// SetVelocity overwrites the body's linear velocity.
func (b *Body) SetVelocity(vx, vy float64) {
	b.body.SetLinearVelocity(box2d.MakeB2Vec2(vx, vy))
}

// Mass returns the body's simulated mass, derived from radius and density.
func (b *Body) Mass() float64 {
	return b.body.GetMass()
}

// ApplyForce applies a force at the body's center of mass, waking it if
// asleep.
func (b *Body) ApplyForce(fx, fy float64) {
	b.body.ApplyForceToCenter(box2d.MakeB2Vec2(fx, fy), true)
}

// UserData returns whatever identifier was attached at creation.
func (b *Body) UserData() any {
	return b.body.GetUserData()
}

// SetUserData replaces the identifier attached to the body, used when an
// object's owning player or slot changes without recreating the body.
func (b *Body) SetUserData(data any) {
	b.body.SetUserData(data)
}

// SetRadius resizes the body's single circle fixture in place — used when a
// merge changes an object's radius without destroying and recreating the
// box2d body (which would lose velocity continuity).
func (b *Body) SetRadius(radius, density float64) {
	fixture := b.body.GetFixtureList()
	if fixture == nil {
		return
	}
	if shape, ok := fixture.GetShape().(*box2d.B2CircleShape); ok {
		shape.M_radius = radius
	}
	fixture.M_density = density
	b.body.ResetMassData()
}

// ContactPair identifies the two bodies box2d reports as touching, by their
// UserData.
type ContactPair struct {
	A, B any
}

// SetBeginContactHandler installs a callback invoked once per new contact.
// The callback must not create or destroy bodies — box2d forbids mutating
// the world from inside a contact callback — it should instead record the
// pair for the caller to process after Step returns.
func (w *World) SetBeginContactHandler(fn func(ContactPair)) {
	w.listener = &contactAdapter{onBegin: fn}
	w.world.SetContactListener(w.listener)
}

// contactAdapter satisfies box2d's B2ContactListenerInterface, forwarding
// only BeginContact; the others are no-ops because the core never needs
// continuous contact (EndContact) or manifold tuning (PreSolve/PostSolve).
type contactAdapter struct {
	onBegin func(ContactPair)
}

func (c *contactAdapter) BeginContact(contact box2d.B2ContactInterface) {
	if c.onBegin == nil {
		return
	}
	fa := contact.GetFixtureA()
	fb := contact.GetFixtureB()
	if fa == nil || fb == nil {
		return
	}
	c.onBegin(ContactPair{A: fa.GetBody().GetUserData(), B: fb.GetBody().GetUserData()})
}

func (c *contactAdapter) EndContact(contact box2d.B2ContactInterface) {}
func (c *contactAdapter) PreSolve(contact box2d.B2ContactInterface, oldManifold *box2d.B2Manifold) {
}
func (c *contactAdapter) PostSolve(contact box2d.B2ContactInterface, impulse *box2d.B2ContactImpulse) {
}
