// Package player owns the registry of connected and local players. It is
// the one piece of state shared across every component (§3.2, §5): a
// single mutex, O(MAX_PLAYERS) methods, and no other lock held while
// waiting on it.
package player

import (
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/novaarena/core/internal/rules"
)

// ErrFull is returned when no player slot is available.
var ErrFull = errors.New("player: no free slot")

// ErrLocalAlreadyRegistered is returned when a second local player is
// requested for this process.
var ErrLocalAlreadyRegistered = errors.New("player: local player already registered")

// ErrNotFound is returned by operations addressing a slot that is empty.
var ErrNotFound = errors.New("player: not found")

// Player is a single registry entry. Fields are copied out of the manager
// by value; callers never get a pointer into manager-owned state.
type Player struct {
	ID            uint16
	Color         color.RGBA
	LastUpdated   time.Time
	Score         int
	SessionHandle any // nil for non-network (local/system) players
}

// Manager is the PlayerManager of §4.5: a fixed [MAX_PLAYERS] table behind
// one mutex.
type Manager struct {
	mu      sync.Mutex
	slots   [rules.MaxPlayers]*Player
	localID int // -1 when no local player is registered
}

// New returns an empty manager with the system slot (0) reserved but unset.
func New() *Manager {
	return &Manager{localID: -1}
}

// AddPlayer allocates the lowest free slot, excluding the reserved system
// slot 0, and returns a fresh Player with score 0.
func (m *Manager) AddPlayer() (Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := 1; id < rules.MaxPlayers; id++ {
		if m.slots[id] == nil {
			p := &Player{ID: uint16(id), Color: colorFor(uint16(id)), LastUpdated: time.Now()}
			m.slots[id] = p
			return *p, nil
		}
	}
	return Player{}, ErrFull
}

// AddLocalPlayer pins a slot as the process's local player. If id is -1 the
// lowest free slot is chosen, the system slot 0 included, so on a freshly
// reset manager (single-player and host modes) the local player is the
// system slot. At most one local player may exist per process.
func (m *Manager) AddLocalPlayer(id int) (Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.localID != -1 {
		return Player{}, ErrLocalAlreadyRegistered
	}

	if id < 0 {
		for candidate := 0; candidate < rules.MaxPlayers; candidate++ {
			if m.slots[candidate] == nil {
				id = candidate
				break
			}
		}
		if id < 0 {
			return Player{}, ErrFull
		}
	} else if id >= rules.MaxPlayers {
		return Player{}, fmt.Errorf("player: id %d out of range", id)
	} else if m.slots[id] != nil {
		return Player{}, fmt.Errorf("player: slot %d already occupied", id)
	}

	p := &Player{ID: uint16(id), Color: colorFor(uint16(id)), LastUpdated: time.Now()}
	m.slots[id] = p
	m.localID = id
	return *p, nil
}

// RemovePlayer frees a slot. Removing the local player's slot clears local
// tracking.
func (m *Manager) RemovePlayer(id uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= rules.MaxPlayers || m.slots[id] == nil {
		return ErrNotFound
	}
	m.slots[id] = nil
	if m.localID == int(id) {
		m.localID = -1
	}
	return nil
}

// SwitchPlayer moves old's session handle, last-updated timestamp, and
// score onto new, vacating old. If new was occupied, its prior occupant is
// discarded (the World enforces the `(new, *)` collision-is-fatal
// invariant on the object table; the player table has no such objects to
// collide on).
func (m *Manager) SwitchPlayer(old, new uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(old) >= rules.MaxPlayers || int(new) >= rules.MaxPlayers {
		return fmt.Errorf("player: id out of range")
	}
	src := m.slots[old]
	if src == nil {
		return ErrNotFound
	}

	moved := &Player{
		ID:            new,
		Color:         colorFor(new),
		LastUpdated:   src.LastUpdated,
		Score:         src.Score,
		SessionHandle: src.SessionHandle,
	}
	m.slots[new] = moved
	m.slots[old] = nil

	if m.localID == int(old) {
		m.localID = int(new)
	}
	return nil
}

// FindPlayer returns the player whose opaque session handle matches h.
func (m *Manager) FindPlayer(h any) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.slots {
		if p != nil && p.SessionHandle != nil && p.SessionHandle == h {
			return *p, true
		}
	}
	return Player{}, false
}

// GetPlayer returns the player occupying id, if any.
func (m *Manager) GetPlayer(id uint16) (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= rules.MaxPlayers || m.slots[id] == nil {
		return Player{}, false
	}
	return *m.slots[id], true
}

// LocalPlayer returns the process's local player, if one is registered.
func (m *Manager) LocalPlayer() (Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.localID == -1 {
		return Player{}, false
	}
	return *m.slots[m.localID], true
}

// SetSessionHandle attaches a session handle to a player (used once a
// network session is admitted).
func (m *Manager) SetSessionHandle(id uint16, handle any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= rules.MaxPlayers || m.slots[id] == nil {
		return ErrNotFound
	}
	m.slots[id].SessionHandle = handle
	m.slots[id].LastUpdated = time.Now()
	return nil
}

// AddScore adds (possibly negative) delta to a player's score and touches
// LastUpdated. Adding to an empty slot creates it first, since merge/expiry
// bookkeeping may target the system slot before any local or remote player
// has ever occupied it. An out-of-range id is a no-op.
func (m *Manager) AddScore(id uint16, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= rules.MaxPlayers {
		return
	}
	if m.slots[id] == nil {
		m.slots[id] = &Player{ID: id, Color: colorFor(id), LastUpdated: time.Now()}
	}
	m.slots[id].Score += delta
	m.slots[id].LastUpdated = time.Now()
}

// ChargeScore deducts up to cost from a player's score, never taking it
// negative, and returns the amount actually charged. A slot with no prior
// score charges 0 and is still created, mirroring AddScore's auto-create
// behavior so the system slot can be charged before anyone has funded it.
func (m *Manager) ChargeScore(id uint16, cost int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(id) >= rules.MaxPlayers {
		return 0
	}
	if m.slots[id] == nil {
		m.slots[id] = &Player{ID: id, Color: colorFor(id), LastUpdated: time.Now()}
	}
	charged := cost
	if charged > m.slots[id].Score {
		charged = m.slots[id].Score
	}
	if charged < 0 {
		charged = 0
	}
	m.slots[id].Score -= charged
	m.slots[id].LastUpdated = time.Now()
	return charged
}

// HasFreeSlot reports whether AddPlayer would succeed.
func (m *Manager) HasFreeSlot() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := 1; id < rules.MaxPlayers; id++ {
		if m.slots[id] == nil {
			return true
		}
	}
	return false
}

// Reset clears every slot and local tracking, used on GameMode transitions
// (§4.1 SetMode).
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.slots {
		m.slots[i] = nil
	}
	m.localID = -1
}

// colorFor derives a stable display color from a player id by walking
// evenly spaced points around the HSV color wheel.
func colorFor(id uint16) color.RGBA {
	const hues = 12
	hue := float64(int(id)%hues) / hues
	r, g, b := hsvToRGB(hue, 0.65, 0.95)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hsvToRGB(h, s, v float64) (byte, byte, byte) {
	i := int(h * 6)
	f := h*6 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return byte(r * 255), byte(g * 255), byte(b * 255)
}
