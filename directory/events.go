package directory

type EventKind string

const (
	EventPeerJoined     EventKind = "peer_joined"
	EventPeerLeft       EventKind = "peer_left"
	EventPeerRenamed    EventKind = "peer_renamed"
	EventAwayChanged    EventKind = "away_changed"
	EventWritingChanged EventKind = "writing_changed"
	EventTopicChanged   EventKind = "topic_changed"
	EventChatMessage    EventKind = "chat_message"
	EventPrivateMessage EventKind = "private_message"
)

// Event is one accepted state change, published for the UI collaborator.
// User is a snapshot taken at publish time.
type Event struct {
	Kind  EventKind
	User  User
	Topic Topic
	Text  string
	Color int
}
