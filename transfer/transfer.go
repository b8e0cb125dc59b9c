// Package transfer drives file transfers over dedicated TCP connections.
// The multicast channel only carries the offer/accept/abort control
// messages; once a receiver advertises a port, the sender connects and
// streams the file. Each transfer runs on its own goroutine so transfers
// never block each other or the control channel.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arnvik/lanchat/logger"
)

type State string

const (
	StateWaiting      State = "waiting"
	StateConnecting   State = "connecting"
	StateTransferring State = "transferring"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

const (
	chunkSize        = 32 * 1024
	progressInterval = 250 * time.Millisecond
	acceptTimeout    = 30 * time.Second
	connectTimeout   = 10 * time.Second
)

var (
	ErrNotWaiting = errors.New("transfer is not waiting")
	ErrTerminal   = errors.New("transfer already finished")
)

// Key correlates control messages with a transfer. The hash alone is not
// unique across unrelated files, and one sender may run two offers at
// once, so the peer code and file name are part of the key.
type Key struct {
	Code int
	Hash int
	Name string
}

// Transfer is one file move between exactly two peers. It is owned by the
// side that created it; listeners only see snapshots through events.
type Transfer struct {
	key       Key
	direction Direction
	peerNick  string
	size      int64
	path      string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	conn      net.Conn
	ln        net.Listener
	announced bool
	abortSent bool
	failCause string

	transferred atomic.Int64
	speed       speedometer

	events      func(Event)
	notifyAbort func(key Key)
	log         logger.Logger

	lastProgress time.Time
}

func newTransfer(key Key, direction Direction, peerNick, path string, size int64, events func(Event), notifyAbort func(Key), log logger.Logger) *Transfer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Transfer{
		key:         key,
		direction:   direction,
		peerNick:    peerNick,
		size:        size,
		path:        path,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateWaiting,
		speed:       newSpeedometer(),
		events:      events,
		notifyAbort: notifyAbort,
		log:         log,
	}
}

func (t *Transfer) Key() Key             { return t.key }
func (t *Transfer) Direction() Direction { return t.direction }
func (t *Transfer) PeerNick() string     { return t.peerNick }
func (t *Transfer) FileName() string     { return t.key.Name }
func (t *Transfer) Size() int64          { return t.size }

func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transferred may be read while the transfer goroutine writes it; the
// counter only ever grows, a torn read is at worst slightly stale.
func (t *Transfer) Transferred() int64 {
	return t.transferred.Load()
}

// Percent is transferred/total clamped to [0,100].
func (t *Transfer) Percent() int {
	if t.size <= 0 {
		return 100
	}
	p := int(t.Transferred() * 100 / t.size)
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Speed is the current throughput in bytes per second, computed over a
// short trailing window rather than the whole transfer's average.
func (t *Transfer) Speed() int64 {
	return t.speed.bytesPerSecond()
}

// markAnnounced records that the offer went on the wire, so a later
// cancellation must tell the other side.
func (t *Transfer) markAnnounced() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.announced = true
}

// beginConnecting claims a waiting transfer for exactly one accept.
// Only the first caller wins; a replayed accept datagram loses the swap
// and is dropped.
func (t *Transfer) beginConnecting() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != StateWaiting {
		return ErrNotWaiting
	}
	t.state = StateConnecting
	return nil
}

// Cancel moves the transfer to its terminal failed state from any
// non-terminal state, closing any socket to unblock pending I/O. If the
// transfer was announced to the peer, exactly one abort notification goes
// out. Cancelling twice, or after completion, is a no-op.
func (t *Transfer) Cancel() {
	t.fail("cancelled", true)
}

// abortedByPeer is the inbound half: the other side gave up, so no abort
// goes back out.
func (t *Transfer) abortedByPeer() {
	t.fail("aborted by peer", false)
}

func (t *Transfer) fail(cause string, tellPeer bool) {
	t.mu.Lock()
	if t.state == StateCompleted || t.state == StateFailed {
		t.mu.Unlock()
		return
	}
	t.state = StateFailed
	t.failCause = cause
	sendAbort := tellPeer && t.announced && !t.abortSent
	if sendAbort {
		t.abortSent = true
	}
	conn, ln := t.conn, t.ln
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		conn.Close()
	}
	if ln != nil {
		ln.Close()
	}

	if sendAbort {
		t.notifyAbort(t.key)
	}

	t.log.WithStr("file", t.key.Name).WithStr("cause", cause).Info("transfer failed")
	t.publish(EventFailed, cause)
}

func (t *Transfer) complete() {
	t.mu.Lock()
	if t.state == StateCompleted || t.state == StateFailed {
		t.mu.Unlock()
		return
	}
	t.state = StateCompleted
	conn := t.conn
	t.mu.Unlock()

	t.cancel()
	if conn != nil {
		conn.Close()
	}

	t.log.WithStr("file", t.key.Name).WithInt64("bytes", t.Transferred()).Info("transfer completed")
	t.publish(EventCompleted, "")
}

// setState advances through the non-terminal states. It refuses to leave
// a terminal state.
func (t *Transfer) setState(s State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateCompleted || t.state == StateFailed {
		return ErrTerminal
	}
	t.state = s
	return nil
}

// advance accounts for n more bytes and emits a progress event at a
// bounded rate so listeners are not flooded on every chunk.
func (t *Transfer) advance(n int64) {
	total := t.transferred.Add(n)
	t.speed.update(total)

	t.mu.Lock()
	emit := time.Since(t.lastProgress) >= progressInterval
	if emit {
		t.lastProgress = time.Now()
	}
	t.mu.Unlock()

	if emit {
		t.publish(EventProgress, "")
	}
}

func (t *Transfer) publish(kind EventKind, detail string) {
	if t.events == nil {
		return
	}
	t.events(Event{
		Kind:        kind,
		Key:         t.key,
		Direction:   t.direction,
		PeerNick:    t.peerNick,
		FileName:    t.key.Name,
		Size:        t.size,
		Transferred: t.Transferred(),
		Percent:     t.Percent(),
		Speed:       t.Speed(),
		Detail:      detail,
	})
}

// Fingerprint computes the numeric file hash carried in transfer control
// messages. It only has to be stable for the lifetime of one offer;
// correlation additionally keys on sender code and file name, so a
// collision across unrelated files is harmless.
func Fingerprint(name string, size int64) int {
	h := fnv.New32a()
	h.Write([]byte(name))
	fmt.Fprintf(h, "/%d", size)
	return int(int32(h.Sum32()))
}
