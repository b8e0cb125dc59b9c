package transfer

type EventKind string

const (
	EventWaiting    EventKind = "waiting"
	EventConnecting EventKind = "connecting"
	EventProgress   EventKind = "progress"
	EventCompleted  EventKind = "completed"
	EventFailed     EventKind = "failed"
)

// Event is one transfer notification. Everything is a snapshot; the
// transfer goroutine never hands out its own mutable state.
type Event struct {
	Kind        EventKind
	Key         Key
	Direction   Direction
	PeerNick    string
	FileName    string
	Size        int64
	Transferred int64
	Percent     int
	Speed       int64
	Detail      string
}
