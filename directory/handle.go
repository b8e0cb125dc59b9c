package directory

import (
	"fmt"
	"net"
	"time"

	"github.com/arnvik/lanchat/protocol"
)

// HandleMessage applies one decoded control message to the peer set.
// Unknown-code references are treated as stale or duplicate traffic and
// dropped; only LOGON and EXPOSING may introduce a new peer.
func (d *Directory) HandleMessage(msg *protocol.Message, from *net.UDPAddr) {
	switch msg.Type {
	case protocol.TypeLogon, protocol.TypeExposing:
		d.ensureUser(msg.Code, msg.Nick, from)

	case protocol.TypeExpose:
		d.Touch(msg.Code)
		d.respond.SendExposing()
		d.respond.SendClientInfo()

	case protocol.TypeLogoff:
		d.removeUser(msg.Code, "logged off")

	case protocol.TypeNick:
		d.handleNickChange(msg.Code, msg.Nick)

	case protocol.TypeNickCrash:
		d.Touch(msg.Code)
		d.handleNickCrash(msg.Payload)

	case protocol.TypeAway:
		d.setRemoteAway(msg.Code, true, msg.Payload)

	case protocol.TypeBack:
		d.setRemoteAway(msg.Code, false, "")

	case protocol.TypeWriting:
		d.setWriting(msg.Code, true)

	case protocol.TypeStoppedWriting:
		d.setWriting(msg.Code, false)

	case protocol.TypeIdle:
		d.Touch(msg.Code)

	case protocol.TypeTopic:
		d.Touch(msg.Code)
		d.handleTopic(msg.Payload)

	case protocol.TypeGetTopic:
		d.Touch(msg.Code)
		if topic := d.Topic(); !topic.Empty() {
			d.respond.SendTopic(topic)
		}

	case protocol.TypeMsg:
		d.handleChat(msg.Code, msg.Payload)

	case protocol.TypePrivMsg:
		d.handlePrivateChat(msg.Code, msg.Payload)

	case protocol.TypeClient:
		d.handleClientInfo(msg.Code, msg.Payload)

	default:
		// File transfer control is routed elsewhere; it still proves the
		// peer is alive.
		d.Touch(msg.Code)
	}
}

// ensureUser adds a peer on its first LOGON/EXPOSING and resolves nick
// collisions. The collision tie-break is deterministic on every observer:
// of two claimants the numerically larger code loses and gets its own code
// appended to the nick. Re-announcements make repeated calls idempotent.
func (d *Directory) ensureUser(code int, nick string, from *net.UDPAddr) {
	d.mu.Lock()

	if u, ok := d.users[code]; ok {
		u.LastSeen = time.Now()
		d.mu.Unlock()
		return
	}

	loserRenamed, crashNick, announceNick := d.resolveCollisionLocked(code, &nick)

	u := &User{
		Code:     code,
		Nick:     nick,
		Addr:     from,
		LastSeen: time.Now(),
	}
	d.users[code] = u
	joined := *u
	d.mu.Unlock()

	if crashNick != "" {
		d.respond.SendNickCrash(crashNick)
	}
	if announceNick != "" {
		d.respond.SendNick(announceNick)
	}
	if loserRenamed != nil {
		d.publish(Event{Kind: EventPeerRenamed, User: *loserRenamed})
	}

	d.log.WithStr("nick", joined.Nick).WithInt("code", code).Info("peer joined")
	d.publish(Event{Kind: EventPeerJoined, User: joined})
}

// resolveCollisionLocked settles a claim on *nick by the peer with the
// given code. If the claimant loses, *nick is rewritten with its suffix.
// If an existing holder loses, it is renamed in place. Returns the renamed
// holder snapshot, the nick to broadcast a NICKCRASH for (remote loser),
// and the nick to re-announce as our own (local loser). The announcements
// are the caller's job, after the lock is released.
func (d *Directory) resolveCollisionLocked(code int, nick *string) (renamed *User, crash, announce string) {
	claimed := *nick

	if d.me.Nick == claimed && d.me.Code != code {
		if code > d.me.Code {
			// Claimant loses against us; it will rename itself when it
			// sees the crash message, we pre-render the same suffix.
			*nick = suffixNick(claimed, code)
			return nil, claimed, ""
		}
		// We lose. Rename and re-announce.
		d.me.Nick = suffixNick(claimed, d.me.Code)
		me := *d.me
		return &me, "", d.me.Nick
	}

	for _, holder := range d.users {
		if holder.Nick != claimed || holder.Code == code {
			continue
		}
		if code > holder.Code {
			*nick = suffixNick(claimed, code)
			return nil, "", ""
		}
		holder.Nick = suffixNick(claimed, holder.Code)
		h := *holder
		return &h, "", ""
	}

	return nil, "", ""
}

func suffixNick(nick string, code int) string {
	return fmt.Sprintf("%s%d", nick, code)
}

func (d *Directory) handleNickChange(code int, newNick string) {
	d.mu.Lock()
	u, ok := d.users[code]
	if !ok || newNick == "" {
		d.mu.Unlock()
		return
	}

	u.LastSeen = time.Now()
	if u.Nick == newNick {
		d.mu.Unlock()
		return
	}

	loserRenamed, crashNick, announceNick := d.resolveCollisionLocked(code, &newNick)
	u.Nick = newNick
	changed := *u
	d.mu.Unlock()

	if crashNick != "" {
		d.respond.SendNickCrash(crashNick)
	}
	if announceNick != "" {
		d.respond.SendNick(announceNick)
	}
	if loserRenamed != nil {
		d.publish(Event{Kind: EventPeerRenamed, User: *loserRenamed})
	}
	d.publish(Event{Kind: EventPeerRenamed, User: changed})
}

// handleNickCrash reacts to a remote peer telling the group that a nick
// collided. We only care when it names our own nick and we hold the larger
// code on record.
func (d *Directory) handleNickCrash(crashedNick string) {
	d.mu.Lock()
	if d.me.Nick != crashedNick {
		d.mu.Unlock()
		return
	}

	d.me.Nick = suffixNick(crashedNick, d.me.Code)
	me := *d.me
	d.mu.Unlock()

	d.log.WithStr("nick", me.Nick).Warn("nick collision lost, renamed")
	d.respond.SendNick(me.Nick)
	d.publish(Event{Kind: EventPeerRenamed, User: me})
}

func (d *Directory) removeUser(code int, reason string) {
	d.mu.Lock()
	u, ok := d.users[code]
	if !ok {
		d.mu.Unlock()
		return
	}
	gone := *u
	delete(d.users, code)
	d.mu.Unlock()

	d.log.WithStr("nick", gone.Nick).WithInt("code", code).Info("peer left")
	d.publish(Event{Kind: EventPeerLeft, User: gone, Text: reason})
}

func (d *Directory) setRemoteAway(code int, away bool, reason string) {
	d.mu.Lock()
	u, ok := d.users[code]
	if !ok {
		d.mu.Unlock()
		return
	}
	u.LastSeen = time.Now()
	if u.Away == away && u.AwayMsg == reason {
		d.mu.Unlock()
		return
	}
	u.Away = away
	u.AwayMsg = reason
	changed := *u
	d.mu.Unlock()

	d.publish(Event{Kind: EventAwayChanged, User: changed})
}

func (d *Directory) setWriting(code int, writing bool) {
	d.mu.Lock()
	u, ok := d.users[code]
	if !ok {
		d.mu.Unlock()
		return
	}
	u.LastSeen = time.Now()
	if u.Writing == writing {
		d.mu.Unlock()
		return
	}
	u.Writing = writing
	changed := *u
	d.mu.Unlock()

	d.publish(Event{Kind: EventWritingChanged, User: changed})
}

// handleTopic adopts an incoming topic only when strictly newer than the
// one held, which makes adoption idempotent and monotonic under duplicated
// or reordered datagrams.
func (d *Directory) handleTopic(payload string) {
	p, err := protocol.ParseTopic(payload)
	if err != nil {
		d.log.WithErr(err).Debug("dropped topic message")
		return
	}

	d.mu.Lock()
	if p.Time <= d.topic.Time {
		d.mu.Unlock()
		return
	}
	topic := Topic{Text: p.Text, Nick: p.Nick, Time: p.Time}
	d.topic = topic
	d.mu.Unlock()

	d.publish(Event{Kind: EventTopicChanged, Topic: topic})
}

func (d *Directory) handleChat(code int, payload string) {
	p, err := protocol.ParseChat(payload)
	if err != nil {
		d.log.WithErr(err).Debug("dropped chat message")
		return
	}

	d.mu.Lock()
	u, ok := d.users[code]
	if !ok {
		d.mu.Unlock()
		return
	}
	u.LastSeen = time.Now()
	u.NewMsg = true
	sender := *u
	d.mu.Unlock()

	d.publish(Event{Kind: EventChatMessage, User: sender, Text: p.Text, Color: p.Color})
}

func (d *Directory) handlePrivateChat(code int, payload string) {
	p, err := protocol.ParsePrivateChat(payload)
	if err != nil {
		d.log.WithErr(err).Debug("dropped private message")
		return
	}

	d.mu.Lock()
	if p.TargetCode != d.me.Code {
		d.mu.Unlock()
		return
	}
	u, ok := d.users[code]
	if !ok {
		d.mu.Unlock()
		return
	}
	u.LastSeen = time.Now()
	u.NewPrivMsg = true
	sender := *u
	d.mu.Unlock()

	d.publish(Event{Kind: EventPrivateMessage, User: sender, Text: p.Text, Color: p.Color})
}

func (d *Directory) handleClientInfo(code int, payload string) {
	p, err := protocol.ParseClientInfo(payload)
	if err != nil {
		d.log.WithErr(err).Debug("dropped client info")
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[code]
	if !ok {
		return
	}
	u.LastSeen = time.Now()
	u.Client = p.Client
	u.OperatingSystem = p.OperatingSystem
	u.PrivateChatPort = p.PrivateChatPort
	u.TCPChatPort = p.TCPChatPort
}
