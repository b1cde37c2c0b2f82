// Package wire implements the little-endian, tightly packed binary codec
// exchanged between NetworkServer and NetworkClient. It mirrors the
// hand-rolled encoding/binary framing used by the UDP game servers in the
// retrieval pack (fixed type tag + concatenated fields) rather than gob or
// JSON, so every packet fits inside rules.MaxPacketSize.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/novaarena/core/internal/rules"
)

// EventType is a 32-bit hash of an event's symbolic name, used as the wire
// type tag. Both peers compute it the same way, so no registry needs to be
// transmitted.
type EventType uint32

func hashName(name string) EventType {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return EventType(h.Sum32())
}

// Type tags, one per event the wire format knows about.
var (
	TypeHello            = hashName("Hello")
	TypePing             = hashName("Ping")
	TypeConnected        = hashName("Connected")
	TypeDisconnected     = hashName("Disconnected")
	TypeSwitchPlayer     = hashName("SwitchPlayer")
	TypeMessage          = hashName("Message")
	TypeAddGameObject    = hashName("AddGameObject")
	TypeRemoveGameObject = hashName("RemoveGameObject")
	TypeGameObjectSync   = hashName("GameObjectSync")
	TypeHighscore        = hashName("Highscore")
)

// DisconnectReason is the wire representation of why a session ended.
type DisconnectReason int32

const (
	ReasonNone DisconnectReason = iota
	ReasonCompatibility
	ReasonServerFull
	ReasonServerClosed
	ReasonTimeout
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonCompatibility:
		return "This version is not compatible with the server"
	case ReasonServerFull:
		return "Server full"
	case ReasonServerClosed:
		return "Server closed"
	case ReasonTimeout:
		return "Connection timed out"
	default:
		return "unknown"
	}
}

// Hello is the handshake candidate packet; only this type is accepted from
// an unknown source address.
type Hello struct {
	BuildHash uint64
}

// Ping is a type-only keepalive; it carries no payload and is never routed
// to the Router.
type Ping struct{}

// Connected confirms admission and announces the assigned player slot.
type Connected struct {
	PlayerID uint16
}

// Disconnected carries the reason a session is ending or was refused.
type Disconnected struct {
	Reason DisconnectReason
}

// SwitchPlayer moves one player's identity (and by extension its objects)
// from Old to New.
type SwitchPlayer struct {
	Old uint16
	New uint16
}

// Message is a chat line, encoded as UTF-32 code units per §9 ("deliberate
// wire choice independent of any language's native string type").
type Message struct {
	PlayerID uint16
	Text     string
}

// AddGameObject requests creation of a new circular body.
type AddGameObject struct {
	Radius   float32
	PX, PY   float32
	VX, VY   float32
	PlayerID uint16
}

// RemoveGameObject requests destruction of a specific owned object.
type RemoveGameObject struct {
	PlayerID uint16
	ObjectID uint16
}

// State is one object's transform inside a GameObjectSync batch.
type State struct {
	PlayerID uint16
	ObjectID uint16
	PX, PY   float32
	Radius   float32
	VX, VY   float32
}

// stateWireSize is the packed byte size of one State: 2×u16 + 5×f32.
const stateWireSize = 2 + 2 + 4*5

// GameObjectSync is a replication batch stamped with the epoch it belongs to.
type GameObjectSync struct {
	SyncID uint32
	States []State
}

// Highscore is a periodic snapshot of every player slot's score, indexed by
// player id.
type Highscore struct {
	Scores [rules.MaxPlayers]int32
}

// Encode serializes an event together with its 4-byte type tag. It returns
// an error if the result would exceed rules.MaxPacketSize, matching the
// startup assertion the spec requires on every serialized struct.
func Encode(event any) ([]byte, error) {
	buf := new(bytes.Buffer)
	var tag EventType
	var err error

	switch e := event.(type) {
	case Hello:
		tag = TypeHello
		err = binary.Write(buf, binary.LittleEndian, e.BuildHash)
	case Ping:
		tag = TypePing
	case Connected:
		tag = TypeConnected
		err = binary.Write(buf, binary.LittleEndian, e.PlayerID)
	case Disconnected:
		tag = TypeDisconnected
		err = binary.Write(buf, binary.LittleEndian, e.Reason)
	case SwitchPlayer:
		tag = TypeSwitchPlayer
		if err = binary.Write(buf, binary.LittleEndian, e.Old); err == nil {
			err = binary.Write(buf, binary.LittleEndian, e.New)
		}
	case Message:
		tag = TypeMessage
		if err = binary.Write(buf, binary.LittleEndian, e.PlayerID); err == nil {
			err = writeUTF32String(buf, e.Text)
		}
	case AddGameObject:
		tag = TypeAddGameObject
		for _, f := range []float32{e.Radius, e.PX, e.PY, e.VX, e.VY} {
			if err = binary.Write(buf, binary.LittleEndian, f); err != nil {
				break
			}
		}
		if err == nil {
			err = binary.Write(buf, binary.LittleEndian, e.PlayerID)
		}
	case RemoveGameObject:
		tag = TypeRemoveGameObject
		if err = binary.Write(buf, binary.LittleEndian, e.PlayerID); err == nil {
			err = binary.Write(buf, binary.LittleEndian, e.ObjectID)
		}
	case GameObjectSync:
		tag = TypeGameObjectSync
		if err = binary.Write(buf, binary.LittleEndian, e.SyncID); err == nil {
			err = binary.Write(buf, binary.LittleEndian, uint32(len(e.States)))
		}
		for i := 0; err == nil && i < len(e.States); i++ {
			err = writeState(buf, e.States[i])
		}
	case Highscore:
		tag = TypeHighscore
		for i := 0; err == nil && i < len(e.Scores); i++ {
			err = binary.Write(buf, binary.LittleEndian, e.Scores[i])
		}
	default:
		return nil, fmt.Errorf("wire: unknown event type %T", event)
	}
	if err != nil {
		return nil, fmt.Errorf("wire: encode %T: %w", event, err)
	}

	out := make([]byte, 4+buf.Len())
	binary.LittleEndian.PutUint32(out[:4], uint32(tag))
	copy(out[4:], buf.Bytes())

	if len(out) > rules.MaxPacketSize {
		return nil, fmt.Errorf("wire: encoded %T is %d bytes, exceeds MaxPacketSize %d", event, len(out), rules.MaxPacketSize)
	}
	return out, nil
}

// init asserts at startup that a full GameObjectSync batch of
// rules.MaxPerSync states fits inside rules.MaxPacketSize.
func init() {
	if _, err := Encode(GameObjectSync{States: make([]State, rules.MaxPerSync)}); err != nil {
		panic(fmt.Sprintf("wire: full sync batch does not fit in a packet: %v", err))
	}
}

func writeState(buf *bytes.Buffer, s State) error {
	if err := binary.Write(buf, binary.LittleEndian, s.PlayerID); err != nil {
		return err
	}
	if err := binary.Write(buf, binary.LittleEndian, s.ObjectID); err != nil {
		return err
	}
	for _, f := range []float32{s.PX, s.PY, s.Radius, s.VX, s.VY} {
		if err := binary.Write(buf, binary.LittleEndian, f); err != nil {
			return err
		}
	}
	return nil
}

func readState(r *bytes.Reader) (State, error) {
	var s State
	if err := binary.Read(r, binary.LittleEndian, &s.PlayerID); err != nil {
		return s, err
	}
	if err := binary.Read(r, binary.LittleEndian, &s.ObjectID); err != nil {
		return s, err
	}
	fields := []*float32{&s.PX, &s.PY, &s.Radius, &s.VX, &s.VY}
	for _, f := range fields {
		if err := binary.Read(r, binary.LittleEndian, f); err != nil {
			return s, err
		}
	}
	return s, nil
}

// writeUTF32String encodes a Go (UTF-8) string as a u32 code-point count
// followed by that many 4-byte UTF-32 code units.
func writeUTF32String(buf *bytes.Buffer, s string) error {
	runes := []rune(s)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(runes))); err != nil {
		return err
	}
	for _, r := range runes {
		if err := binary.Write(buf, binary.LittleEndian, uint32(r)); err != nil {
			return err
		}
	}
	return nil
}

// maxStringCodePoints bounds untrusted length-prefixed reads so a malformed
// packet cannot trigger an enormous allocation.
const maxStringCodePoints = rules.MaxPacketSize / 4

func readUTF32String(r *bytes.Reader) (string, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return "", err
	}
	if count > maxStringCodePoints {
		return "", fmt.Errorf("wire: string length %d exceeds packet bound", count)
	}
	runes := make([]rune, count)
	for i := range runes {
		var cp uint32
		if err := binary.Read(r, binary.LittleEndian, &cp); err != nil {
			return "", err
		}
		runes[i] = rune(cp)
	}
	return string(runes), nil
}

// maxSyncStates bounds an untrusted GameObjectSync count the same way.
const maxSyncStates = rules.MaxPacketSize / stateWireSize

// Decode reads the type tag and dispatches to the matching decoder. The
// returned value is one of the event structs declared above.
func Decode(data []byte) (any, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("wire: packet too short for a type tag")
	}
	tag := EventType(binary.LittleEndian.Uint32(data[:4]))
	r := bytes.NewReader(data[4:])

	switch tag {
	case TypeHello:
		var e Hello
		if err := binary.Read(r, binary.LittleEndian, &e.BuildHash); err != nil {
			return nil, err
		}
		return e, nil
	case TypePing:
		return Ping{}, nil
	case TypeConnected:
		var e Connected
		if err := binary.Read(r, binary.LittleEndian, &e.PlayerID); err != nil {
			return nil, err
		}
		return e, nil
	case TypeDisconnected:
		var e Disconnected
		if err := binary.Read(r, binary.LittleEndian, &e.Reason); err != nil {
			return nil, err
		}
		return e, nil
	case TypeSwitchPlayer:
		var e SwitchPlayer
		if err := binary.Read(r, binary.LittleEndian, &e.Old); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &e.New); err != nil {
			return nil, err
		}
		return e, nil
	case TypeMessage:
		var e Message
		if err := binary.Read(r, binary.LittleEndian, &e.PlayerID); err != nil {
			return nil, err
		}
		text, err := readUTF32String(r)
		if err != nil {
			return nil, err
		}
		e.Text = text
		return e, nil
	case TypeAddGameObject:
		var e AddGameObject
		fields := []*float32{&e.Radius, &e.PX, &e.PY, &e.VX, &e.VY}
		for _, f := range fields {
			if err := binary.Read(r, binary.LittleEndian, f); err != nil {
				return nil, err
			}
		}
		if err := binary.Read(r, binary.LittleEndian, &e.PlayerID); err != nil {
			return nil, err
		}
		return e, nil
	case TypeRemoveGameObject:
		var e RemoveGameObject
		if err := binary.Read(r, binary.LittleEndian, &e.PlayerID); err != nil {
			return nil, err
		}
		if err := binary.Read(r, binary.LittleEndian, &e.ObjectID); err != nil {
			return nil, err
		}
		return e, nil
	case TypeGameObjectSync:
		var e GameObjectSync
		if err := binary.Read(r, binary.LittleEndian, &e.SyncID); err != nil {
			return nil, err
		}
		var count uint32
		if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
			return nil, err
		}
		if count > maxSyncStates {
			return nil, fmt.Errorf("wire: state count %d exceeds packet bound", count)
		}
		e.States = make([]State, count)
		for i := range e.States {
			s, err := readState(r)
			if err != nil {
				return nil, err
			}
			e.States[i] = s
		}
		return e, nil
	case TypeHighscore:
		var e Highscore
		for i := range e.Scores {
			if err := binary.Read(r, binary.LittleEndian, &e.Scores[i]); err != nil {
				return nil, err
			}
		}
		return e, nil
	default:
		return nil, fmt.Errorf("wire: unknown event type tag %08x", uint32(tag))
	}
}

// PlayerIDOf returns the player_id carried by events that have one, and
// false for events that don't (those are accepted unconditionally from an
// admitted session per §4.3.1).
func PlayerIDOf(event any) (uint16, bool) {
	switch e := event.(type) {
	case Message:
		return e.PlayerID, true
	case AddGameObject:
		return e.PlayerID, true
	case RemoveGameObject:
		return e.PlayerID, true
	default:
		return 0, false
	}
}

// BuildHash computes the deterministic wire-compatibility fingerprint: a
// FNV-1a/64 fold over the app name, every arena and gameplay constant,
// every EventType tag (fixed order), and the encoded size of each
// serialized struct. Any change to a constant or to the schema changes it.
func BuildHash() uint64 {
	h := fnv.New64a()
	write := func(v any) { fmt.Fprintf(h, "%v|", v) }

	write(rules.AppName)
	write(rules.MaxPlayers)
	write(rules.MaxObjectsPerPlayer)
	write(rules.WorldW)
	write(rules.WorldH)
	write(rules.Step)
	write(rules.Gravity)
	write(rules.MinSize)
	write(rules.MaxCreationSize)
	write(rules.MaxSize)
	write(rules.MinDuration)
	write(rules.MaxDuration)
	write(rules.MinValue)
	write(rules.MaxValue)
	write(rules.MergeVelocityThresholdSq)
	write(rules.ScaleThreshold)
	write(rules.MergeBonus)
	write(rules.ExpirationBonus)
	write(rules.MaxPacketSize)
	write(rules.MaxPerSync)
	write(rules.SyncRate)
	write(rules.PingRate)
	write(rules.ConnectionTimeout)
	write(rules.HighscoreSyncRate)

	for _, tag := range []EventType{
		TypeHello, TypePing, TypeConnected, TypeDisconnected, TypeSwitchPlayer,
		TypeMessage, TypeAddGameObject, TypeRemoveGameObject, TypeGameObjectSync,
		TypeHighscore,
	} {
		write(uint32(tag))
	}

	for _, size := range schemaSizes() {
		write(size)
	}

	return h.Sum64()
}

// schemaSizes returns the encoded byte length of each struct's
// representative (zero-length-variable-field) encoding, used by BuildHash.
func schemaSizes() []int {
	sizes := make([]int, 0, 10)
	encodeOrPanic := func(e any) int {
		b, err := Encode(e)
		if err != nil {
			panic(fmt.Sprintf("wire: schemaSizes: %v", err))
		}
		return len(b)
	}
	sizes = append(sizes,
		encodeOrPanic(Hello{}),
		encodeOrPanic(Ping{}),
		encodeOrPanic(Connected{}),
		encodeOrPanic(Disconnected{}),
		encodeOrPanic(SwitchPlayer{}),
		encodeOrPanic(Message{}),
		encodeOrPanic(AddGameObject{}),
		encodeOrPanic(RemoveGameObject{}),
		encodeOrPanic(GameObjectSync{}),
		encodeOrPanic(Highscore{}),
	)
	return sizes
}
