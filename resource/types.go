package resource

import "fmt"

// Handle is a registry reference key. Keys at or below zero (RefNil, NoRef)
// are never live.
type Handle int

// Kind is the kind of VM value a reference holds.
type Kind uint8

const (
	KindValue Kind = iota
	KindTable
	KindUserData
	KindFunction
	KindThread
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindTable:
		return "table"
	case KindUserData:
		return "userdata"
	case KindFunction:
		return "function"
	case KindThread:
		return "thread"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// EventType is the kind of lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
	// EventInvalidated is sent for every live reference when the arena is
	// closed together with its VM.
	EventInvalidated
)

// Event represents a reference lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Kind   Kind
	Type   EventType
}

// Observer receives notifications about reference lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Dropper is optionally implemented by tracked values that need cleanup
// once their reference is released or invalidated.
type Dropper interface {
	Drop()
}
