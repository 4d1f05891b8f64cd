package zxmit

import (
	"time"
)

// Callbacks provides hooks for transfer events.
// All callbacks are optional - nil callbacks use default behavior.
type Callbacks struct {
	// OnFileStart is called once the short name is known, before connecting.
	OnFileStart func(filename, shortName string, size int64)

	// OnProgress is called as frames are acknowledged, at most once per
	// ProgressInterval and always for the final frame.
	// rate: wire bytes per second since the previous call
	OnProgress func(p Progress, rate float64)

	// OnFileComplete is called when every frame has been acknowledged.
	// sent: wire bytes including headers
	OnFileComplete func(filename string, sent int64, duration time.Duration)

	// OnError is called when a transfer fails.
	// context: description of where the error occurred
	OnError func(err error, context string)

	// OnEvent is called for protocol events (debugging/logging).
	OnEvent func(event Event)
}

// Event represents a protocol event for logging/debugging.
type Event struct {
	Type      EventType
	Message   string
	Seq       int
	Timestamp time.Time
}

// EventType categorizes protocol events.
type EventType int

const (
	EventConnected EventType = iota
	EventFrameSent
	EventFrameAcked
	EventStaleAck
	EventFileStart
	EventFileComplete
	EventError
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventFrameSent:
		return "frame sent"
	case EventFrameAcked:
		return "frame acked"
	case EventStaleAck:
		return "stale ack"
	case EventFileStart:
		return "file start"
	case EventFileComplete:
		return "file complete"
	case EventError:
		return "error"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// defaultCallbacks returns a set of callbacks with default implementations.
func defaultCallbacks() *Callbacks {
	return &Callbacks{
		OnFileStart:    func(string, string, int64) {},
		OnProgress:     func(Progress, float64) {},
		OnFileComplete: func(string, int64, time.Duration) {},
		OnError:        func(error, string) {},
		OnEvent:        func(Event) {},
	}
}

// mergeCallbacks merges user callbacks with defaults.
// User callbacks override defaults, nil callbacks use defaults.
func mergeCallbacks(user *Callbacks) *Callbacks {
	result := defaultCallbacks()
	if user == nil {
		return result
	}

	if user.OnFileStart != nil {
		result.OnFileStart = user.OnFileStart
	}
	if user.OnProgress != nil {
		result.OnProgress = user.OnProgress
	}
	if user.OnFileComplete != nil {
		result.OnFileComplete = user.OnFileComplete
	}
	if user.OnError != nil {
		result.OnError = user.OnError
	}
	if user.OnEvent != nil {
		result.OnEvent = user.OnEvent
	}

	return result
}

// emit sends an event with the current time.
func (c *Callbacks) emit(t EventType, seq int, message string) {
	c.OnEvent(Event{
		Type:      t,
		Message:   message,
		Seq:       seq,
		Timestamp: time.Now(),
	})
}
