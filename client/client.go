// Package client wires the transport, directory and transfer subsystems
// together and exposes the command surface the UI collaborator drives.
package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/arnvik/lanchat/config"
	"github.com/arnvik/lanchat/directory"
	"github.com/arnvik/lanchat/logger"
	"github.com/arnvik/lanchat/protocol"
	"github.com/arnvik/lanchat/transfer"
	"github.com/arnvik/lanchat/transport"
)

const (
	ClientName = "LanChat"
	Version    = "1.0.0"
)

// wire is the outbound half of the transport, split out so tests can
// record what goes on the network.
type wire interface {
	SendToGroup(raw string) error
	SendToPeer(raw string, addr *net.UDPAddr) error
	UnicastPort() int
}

type Client struct {
	cfg *config.Config
	log logger.Logger

	dir       *directory.Directory
	transfers *transfer.Collection
	service   *transport.Service
	wire      wire

	logonTime time.Time
}

func New(cfg *config.Config, log logger.Logger) *Client {
	me := &directory.User{
		Code:            newCode(),
		Nick:            cfg.Nick,
		PrivateChatPort: cfg.PrivateChatPort,
	}
	if me.Nick == "" {
		me.Nick = fallbackNick()
	}

	c := &Client{
		cfg:       cfg,
		log:       log,
		transfers: transfer.NewCollection(cfg.DownloadsDir, log),
	}
	c.dir = directory.New(me, c, log)
	c.service = transport.New(cfg.GroupAddr(), cfg.PrivateChatPort, me.Code, log)
	c.wire = c.service

	c.transfers.SetAbortNotifier(func(key transfer.Key) {
		c.sendToGroup(protocol.TypeSendFileAbort, (&protocol.FileAbortPayload{
			TargetCode: key.Code,
			Hash:       key.Hash,
			Name:       key.Name,
		}).Encoded())
	})
	c.service.RegisterHandler(c.handleMessage)

	return c
}

// Run starts the transport, performs the logon handshake and keeps the
// periodic announcements going until the context is cancelled, then logs
// off cleanly.
func (c *Client) Run(ctx context.Context) error {
	if err := c.service.Start(ctx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}

	c.logOn()

	idle := time.NewTicker(c.cfg.IdleInterval)
	sweep := time.NewTicker(c.cfg.SweepInterval)
	defer idle.Stop()
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logOff()
			return nil
		case <-idle.C:
			c.sendToGroup(protocol.TypeIdle, "")
		case <-sweep.C:
			c.dir.SweepTimedOut(c.cfg.PeerTimeout)
		}
	}
}

// logOn announces presence and asks the group for its current state, the
// same sequence a freshly started peer needs to converge: who is here,
// what is the topic, what clients are they running.
func (c *Client) logOn() {
	c.logonTime = time.Now()

	c.sendToGroup(protocol.TypeLogon, "")
	c.sendToGroup(protocol.TypeExpose, "")
	c.sendToGroup(protocol.TypeGetTopic, "")
	c.SendClientInfo()
}

func (c *Client) logOff() {
	c.sendToGroup(protocol.TypeLogoff, "")
}

// PresenceEvents is the directory's stream for the UI.
func (c *Client) PresenceEvents() <-chan directory.Event {
	return c.dir.Events()
}

// TransferEvents is the transfer stream for the UI.
func (c *Client) TransferEvents() <-chan transfer.Event {
	return c.transfers.Events()
}

func (c *Client) Me() directory.User      { return c.dir.Me() }
func (c *Client) Users() []directory.User { return c.dir.Users() }
func (c *Client) Topic() directory.Topic  { return c.dir.Topic() }

// handleMessage is the transport fan-out target: transfer control is
// routed to the collection, everything else to the directory.
func (c *Client) handleMessage(msg *protocol.Message, from *net.UDPAddr) {
	switch msg.Type {
	case protocol.TypeSendFile:
		c.handleFileOffer(msg, from)

	case protocol.TypeSendFileAccept:
		c.dir.Touch(msg.Code)
		p, err := protocol.ParseFileAccept(msg.Payload)
		if err != nil {
			c.log.WithErr(err).Debug("dropped file accept")
			return
		}
		if p.TargetCode != c.dir.Me().Code {
			return
		}
		c.transfers.HandleAccept(msg.Code, from.IP, p)

	case protocol.TypeSendFileAbort:
		c.dir.Touch(msg.Code)
		p, err := protocol.ParseFileAbort(msg.Payload)
		if err != nil {
			c.log.WithErr(err).Debug("dropped file abort")
			return
		}
		if p.TargetCode != c.dir.Me().Code {
			return
		}
		c.transfers.HandleAbort(msg.Code, p)

	default:
		c.dir.HandleMessage(msg, from)
	}
}

func (c *Client) handleFileOffer(msg *protocol.Message, from *net.UDPAddr) {
	c.dir.Touch(msg.Code)

	p, err := protocol.ParseFileOffer(msg.Payload)
	if err != nil {
		c.log.WithErr(err).Debug("dropped file offer")
		return
	}
	if p.TargetCode != c.dir.Me().Code {
		return
	}

	sender, ok := c.dir.Lookup(msg.Code)
	if !ok {
		// Offer from a peer we have never seen; stale traffic.
		return
	}

	t := c.transfers.HandleOffer(msg.Code, sender.Nick, p)

	if c.cfg.AutoAccept {
		if err := c.AcceptFile(t.Key()); err != nil {
			c.log.WithErr(err).Warn("auto-accept failed")
		}
	}
}

func (c *Client) sendToGroup(msgType protocol.MessageType, payload string) error {
	me := c.dir.Me()
	return c.wire.SendToGroup(protocol.Encode(me.Code, msgType, me.Nick, payload))
}

func newCode() int {
	return 10000000 + rand.IntN(89999999)
}

func fallbackNick() string {
	return fmt.Sprintf("unknown-%s", uuid.NewString()[:8])
}

func operatingSystem() string {
	return runtime.GOOS
}
