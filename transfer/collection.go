package transfer

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/arnvik/lanchat/logger"
	"github.com/arnvik/lanchat/protocol"
)

var (
	ErrUnknownTransfer = errors.New("no matching transfer")
	ErrNotAFile        = errors.New("not a regular file")
)

// Collection owns every live transfer and routes control messages to the
// matching one by its composite key. Terminal transfers are dropped from
// the map once their final event is out.
type Collection struct {
	destDir string
	log     logger.Logger

	// abort broadcasts a SENDFILEABORT for the given key; wired by the
	// client.
	abort func(key Key)

	mu        sync.Mutex
	transfers map[Key]*Transfer

	events chan Event
}

func NewCollection(destDir string, log logger.Logger) *Collection {
	return &Collection{
		destDir:   destDir,
		log:       log,
		transfers: make(map[Key]*Transfer),
		events:    make(chan Event, 256),
	}
}

// Events is the transfer notification stream for the UI collaborator.
func (c *Collection) Events() <-chan Event {
	return c.events
}

// SetAbortNotifier wires the outbound abort broadcast. Must be set before
// any transfer is created.
func (c *Collection) SetAbortNotifier(abort func(key Key)) {
	c.abort = abort
}

// Active returns snapshots of all live transfer keys and states.
func (c *Collection) Active() map[Key]State {
	c.mu.Lock()
	defer c.mu.Unlock()

	active := make(map[Key]State, len(c.transfers))
	for key, t := range c.transfers {
		active[key] = t.State()
	}
	return active
}

// OfferSend creates the sender side of a transfer in its waiting state.
// The caller broadcasts the SENDFILE message using the returned transfer's
// key and size.
func (c *Collection) OfferSend(peerCode int, peerNick, path string) (*Transfer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	name := filepath.Base(path)
	key := Key{
		Code: peerCode,
		Hash: Fingerprint(name, info.Size()),
		Name: name,
	}

	t := newTransfer(key, DirectionSend, peerNick, path, info.Size(), c.publish, c.notifyAbort, c.log)
	t.markAnnounced()

	c.mu.Lock()
	c.transfers[key] = t
	c.mu.Unlock()

	t.publish(EventWaiting, "")
	return t, nil
}

// HandleOffer creates the receiver side for an incoming SENDFILE. The
// destination (user or auto-accept policy) then calls Accept or Reject.
func (c *Collection) HandleOffer(senderCode int, senderNick string, offer *protocol.FileOfferPayload) *Transfer {
	key := Key{Code: senderCode, Hash: offer.Hash, Name: offer.Name}

	c.mu.Lock()
	if existing, ok := c.transfers[key]; ok {
		// Duplicate offer datagram.
		c.mu.Unlock()
		return existing
	}
	t := newTransfer(key, DirectionReceive, senderNick, "", offer.Size, c.publish, c.notifyAbort, c.log)
	// The offer was on the wire, so the sender holds a waiting entry; any
	// local cancellation from here on must free it.
	t.markAnnounced()
	c.transfers[key] = t
	c.mu.Unlock()

	t.publish(EventWaiting, "")
	return t
}

// Accept opens the listening port for a waiting inbound offer and returns
// the port to advertise in the SENDFILEACCEPT broadcast.
func (c *Collection) Accept(key Key) (int, error) {
	t, ok := c.find(key)
	if !ok || t.Direction() != DirectionReceive {
		return 0, fmt.Errorf("%w: %v", ErrUnknownTransfer, key)
	}

	port, err := t.accept(c.destDir)
	if err != nil {
		return 0, err
	}
	return port, nil
}

// Reject declines a waiting inbound offer. The sender is told via an
// explicit abort so its waiting entry frees immediately instead of timing
// out.
func (c *Collection) Reject(key Key) error {
	t, ok := c.find(key)
	if !ok || t.Direction() != DirectionReceive {
		return fmt.Errorf("%w: %v", ErrUnknownTransfer, key)
	}

	t.fail("rejected", true)
	return nil
}

// Cancel cancels any live transfer, local side.
func (c *Collection) Cancel(key Key) error {
	t, ok := c.find(key)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownTransfer, key)
	}

	t.Cancel()
	return nil
}

// HandleAccept matches a SENDFILEACCEPT to the waiting sender-side
// transfer and starts streaming to the advertised port. The transfer is
// claimed before the send goroutine spawns, so a duplicated accept
// datagram loses the swap and is dropped instead of dialing a second
// connection.
func (c *Collection) HandleAccept(senderCode int, peerIP net.IP, p *protocol.FileAcceptPayload) {
	key := Key{Code: senderCode, Hash: p.Hash, Name: p.Name}

	t, ok := c.find(key)
	if !ok || t.Direction() != DirectionSend || t.beginConnecting() != nil {
		c.log.WithInt("code", senderCode).WithStr("file", p.Name).Debug("unmatched file accept")
		return
	}

	go t.runSend(net.JoinHostPort(peerIP.String(), fmt.Sprintf("%d", p.Port)))
}

// HandleAbort matches a SENDFILEABORT to a live transfer on either side.
func (c *Collection) HandleAbort(senderCode int, p *protocol.FileAbortPayload) {
	key := Key{Code: senderCode, Hash: p.Hash, Name: p.Name}

	t, ok := c.find(key)
	if !ok {
		return
	}

	t.abortedByPeer()
}

func (c *Collection) find(key Key) (*Transfer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.transfers[key]
	return t, ok
}

func (c *Collection) notifyAbort(key Key) {
	if c.abort != nil {
		c.abort(key)
	}
}

// publish forwards a transfer event to listeners and reaps transfers that
// just went terminal.
func (c *Collection) publish(e Event) {
	if e.Kind == EventCompleted || e.Kind == EventFailed {
		c.mu.Lock()
		delete(c.transfers, e.Key)
		c.mu.Unlock()
	}

	select {
	case c.events <- e:
	default:
		c.log.WithStr("kind", string(e.Kind)).Warn("transfer event dropped, consumer too slow")
	}
}
