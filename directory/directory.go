// Package directory maintains the set of known peers and the shared topic.
// It is the single writer of that state: the receive loop and the local
// command surface both mutate through it, readers get copies. Duplicate and
// reordered control messages are tolerated by making every mutation
// idempotent and every conflict resolution deterministic.
package directory

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/arnvik/lanchat/logger"
)

var (
	ErrNickTaken   = errors.New("nickname already in use")
	ErrInvalidNick = errors.New("invalid nickname")
	ErrUserIsAway  = errors.New("not allowed while away")
)

// User is one known participant. Fields are mutated only by the Directory;
// callers get value copies.
type User struct {
	Code            int
	Nick            string
	Addr            *net.UDPAddr
	Client          string
	OperatingSystem string
	PrivateChatPort int
	TCPChatPort     int

	Away     bool
	AwayMsg  string
	Writing  bool
	LastSeen time.Time

	NewMsg     bool
	NewPrivMsg bool
}

// Topic is the shared chat-room subject. The entry with the newest Time
// wins; peers converge by re-broadcasting the newest one they have seen.
type Topic struct {
	Text string
	Nick string
	Time int64
}

func (t Topic) Empty() bool {
	return t.Text == "" && t.Nick == ""
}

// Responder is the outbound half the directory needs: re-announcements
// triggered by incoming traffic. Implemented by the client.
type Responder interface {
	SendExposing()
	SendClientInfo()
	SendNick(newNick string)
	SendNickCrash(nick string)
	SendTopic(topic Topic)
}

type Directory struct {
	me      *User
	respond Responder
	log     logger.Logger

	mu     sync.RWMutex
	users  map[int]*User
	topic  Topic
	events chan Event
}

func New(me *User, respond Responder, log logger.Logger) *Directory {
	return &Directory{
		me:      me,
		respond: respond,
		log:     log,
		users:   make(map[int]*User),
		events:  make(chan Event, 128),
	}
}

// Events is the presence stream consumed by the UI collaborator. Events
// are dropped, not blocked on, if the consumer falls behind.
func (d *Directory) Events() <-chan Event {
	return d.events
}

// Me returns a copy of the local user.
func (d *Directory) Me() User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return *d.me
}

// Users returns copies of all known remote peers, sorted by nick.
func (d *Directory) Users() []User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	users := make([]User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, *u)
	}

	sort.Slice(users, func(i, j int) bool {
		return users[i].Nick < users[j].Nick
	})
	return users
}

// Lookup returns a copy of the peer with the given code.
func (d *Directory) Lookup(code int) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[code]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (d *Directory) Topic() Topic {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.topic
}

// NickTaken reports whether nick belongs to any online user other than the
// one with exceptCode.
func (d *Directory) NickTaken(nick string, exceptCode int) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.nickTakenLocked(nick, exceptCode)
}

func (d *Directory) nickTakenLocked(nick string, exceptCode int) bool {
	if d.me.Code != exceptCode && d.me.Nick == nick {
		return true
	}
	for code, u := range d.users {
		if code != exceptCode && u.Nick == nick {
			return true
		}
	}
	return false
}

// ChangeNick renames the local user and announces the change. Away users
// may not rename themselves.
func (d *Directory) ChangeNick(newNick string) error {
	if newNick == "" {
		return ErrInvalidNick
	}

	d.mu.Lock()
	if d.me.Away {
		d.mu.Unlock()
		return ErrUserIsAway
	}
	if d.nickTakenLocked(newNick, d.me.Code) {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNickTaken, newNick)
	}
	d.me.Nick = newNick
	d.mu.Unlock()

	d.respond.SendNick(newNick)
	return nil
}

// SetAway marks the local user away. An empty reason means coming back.
func (d *Directory) SetAway(reason string) {
	d.mu.Lock()
	d.me.Away = reason != ""
	d.me.AwayMsg = reason
	me := *d.me
	d.mu.Unlock()

	d.publish(Event{Kind: EventAwayChanged, User: me})
}

// ChangeTopic stamps and stores a locally set topic, then broadcasts it.
func (d *Directory) ChangeTopic(text string) error {
	d.mu.Lock()
	if d.me.Away {
		d.mu.Unlock()
		return ErrUserIsAway
	}
	topic := Topic{
		Text: text,
		Nick: d.me.Nick,
		Time: time.Now().UnixMilli(),
	}
	d.topic = topic
	d.mu.Unlock()

	d.respond.SendTopic(topic)
	d.publish(Event{Kind: EventTopicChanged, Topic: topic})
	return nil
}

// Touch refreshes a peer's last-seen timestamp. Any traffic counts.
func (d *Directory) Touch(code int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[code]; ok {
		u.LastSeen = time.Now()
	}
}

// SweepTimedOut drops every peer without traffic inside the window. A peer
// that crashed without a LOGOFF is detected here.
func (d *Directory) SweepTimedOut(window time.Duration) {
	cutoff := time.Now().Add(-window)

	d.mu.Lock()
	var gone []User
	for code, u := range d.users {
		if u.LastSeen.Before(cutoff) {
			gone = append(gone, *u)
			delete(d.users, code)
		}
	}
	d.mu.Unlock()

	for _, u := range gone {
		d.log.WithStr("nick", u.Nick).WithInt("code", u.Code).Info("peer timed out")
		d.publish(Event{Kind: EventPeerLeft, User: u, Text: "timed out"})
	}
}

// MarkRead clears the unread flags on a peer.
func (d *Directory) MarkRead(code int, private bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[code]; ok {
		if private {
			u.NewPrivMsg = false
		} else {
			u.NewMsg = false
		}
	}
}

func (d *Directory) publish(e Event) {
	select {
	case d.events <- e:
	default:
		d.log.WithStr("kind", string(e.Kind)).Warn("event dropped, consumer too slow")
	}
}
