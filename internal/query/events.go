package query

// EventType describes what happened to a cached key.
type EventType int

const (
	// EventUpdated is sent after a fetch stored a new value.
	EventUpdated EventType = iota + 1

	// EventInvalidated is sent when the entry was marked stale by
	// Invalidate or by a write.
	EventInvalidated

	// EventEvicted is sent when the entry was removed.
	EventEvicted

	// EventFetchFailed is sent when a fetch for the key failed. Any
	// previous entry is kept.
	EventFetchFailed
)

// String returns a lower-case name for the event type.
func (t EventType) String() string {
	switch t {
	case EventUpdated:
		return "updated"
	case EventInvalidated:
		return "invalidated"
	case EventEvicted:
		return "evicted"
	case EventFetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// Event is delivered to subscribers of a key.
type Event struct {
	Type EventType
	Key  Key

	// Value is set for EventUpdated.
	Value any

	// Err is set for EventFetchFailed.
	Err error
}

// Listener receives events for a subscribed key. Listeners run on the
// goroutine that caused the event, outside the client's lock, and must not
// block for long.
type Listener func(Event)

type subscription struct {
	id int64
	fn Listener
}
