// Package window names the contract a rendering/input surface must satisfy
// to sit on the other side of the Router from the network. No
// implementation lives here — rendering and input capture are out of scope
// for the core — this is the interface a real window would implement.
package window

import "github.com/novaarena/core/internal/world"

// InputEvent is a single user action the core's Router needs to know
// about: a create-object gesture, a removal-near-point gesture, or a chat
// line.
type InputEvent struct {
	// Kind is "create_object", "remove_near_mouse", or "chat".
	Kind string

	// Populated for Kind == "create_object": radius, position, velocity.
	// Populated for Kind == "remove_near_mouse": PX/PY is the query point
	// and Radius is the query radius.
	Radius, PX, PY, VX, VY float64

	// Populated for Kind == "chat".
	Text string
}

// Window is the render/input collaborator a Router drives. A concrete
// implementation owns its own event loop and translates platform input
// into InputEvent values pushed through PollInput.
type Window interface {
	// PollInput drains any input collected since the last call.
	PollInput() []InputEvent

	// Render draws the current frame given a read-only view of the world.
	Render(snapshot []world.Object)

	// ShowMessage surfaces a chat line or system notice to the player.
	ShowMessage(playerID uint16, text string)

	// Close releases any platform resources.
	Close() error
}
