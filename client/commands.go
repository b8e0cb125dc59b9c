package client

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/arnvik/lanchat/directory"
	"github.com/arnvik/lanchat/protocol"
	"github.com/arnvik/lanchat/transfer"
)

var (
	ErrEmptyMessage  = errors.New("empty message")
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrPeerIsAway    = errors.New("peer is away")
	ErrNoPrivatePort = errors.New("peer accepts no private messages")
)

// SendChat broadcasts a chat message. Text that does not fit one datagram
// is split on rune boundaries across several.
func (c *Client) SendChat(text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if c.dir.Me().Away {
		return directory.ErrUserIsAway
	}

	room := c.chatRoom()
	for _, part := range protocol.SplitText(text, room) {
		payload := (&protocol.ChatPayload{Color: c.cfg.OwnColor, Text: part}).Encoded()
		if err := c.sendToGroup(protocol.TypeMsg, payload); err != nil {
			return fmt.Errorf("failed to send chat message: %w", err)
		}
	}
	return nil
}

// SendPrivate sends a private message straight to one peer's unicast
// socket.
func (c *Client) SendPrivate(targetCode int, text string) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if c.dir.Me().Away {
		return directory.ErrUserIsAway
	}

	peer, ok := c.dir.Lookup(targetCode)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownPeer, targetCode)
	}
	if peer.Away {
		return fmt.Errorf("%w: %s", ErrPeerIsAway, peer.Nick)
	}
	if peer.Addr == nil || peer.PrivateChatPort == 0 {
		return fmt.Errorf("%w: %s", ErrNoPrivatePort, peer.Nick)
	}

	me := c.dir.Me()
	payload := (&protocol.PrivateChatPayload{
		TargetCode: targetCode,
		Color:      c.cfg.OwnColor,
		Text:       text,
	}).Encoded()
	raw := protocol.Encode(me.Code, protocol.TypePrivMsg, me.Nick, payload)

	addr := &net.UDPAddr{IP: peer.Addr.IP, Port: peer.PrivateChatPort}
	if err := c.wire.SendToPeer(raw, addr); err != nil {
		return fmt.Errorf("failed to send private message: %w", err)
	}
	return nil
}

// ChangeNick renames the local user; the directory validates and
// announces.
func (c *Client) ChangeNick(newNick string) error {
	return c.dir.ChangeNick(newNick)
}

// ChangeTopic sets a new topic; an empty text clears it.
func (c *Client) ChangeTopic(text string) error {
	return c.dir.ChangeTopic(text)
}

// SetAway marks the local user away with a reason.
func (c *Client) SetAway(reason string) error {
	if reason == "" {
		return ErrEmptyMessage
	}

	if err := c.sendToGroup(protocol.TypeAway, reason); err != nil {
		return err
	}
	c.dir.SetAway(reason)
	return nil
}

// SetBack clears the away state.
func (c *Client) SetBack() error {
	if err := c.sendToGroup(protocol.TypeBack, ""); err != nil {
		return err
	}
	c.dir.SetAway("")
	return nil
}

// SetWriting tells the group whether the local user is typing.
func (c *Client) SetWriting(writing bool) error {
	if writing {
		return c.sendToGroup(protocol.TypeWriting, "")
	}
	return c.sendToGroup(protocol.TypeStoppedWriting, "")
}

// OfferFile announces a file transfer to one peer and leaves the new
// transfer waiting for the accept.
func (c *Client) OfferFile(targetCode int, path string) (*transfer.Transfer, error) {
	if c.dir.Me().Away {
		return nil, directory.ErrUserIsAway
	}

	peer, ok := c.dir.Lookup(targetCode)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownPeer, targetCode)
	}
	if peer.Away {
		return nil, fmt.Errorf("%w: %s", ErrPeerIsAway, peer.Nick)
	}

	t, err := c.transfers.OfferSend(targetCode, peer.Nick, path)
	if err != nil {
		return nil, err
	}

	payload := (&protocol.FileOfferPayload{
		TargetCode: targetCode,
		Size:       t.Size(),
		Hash:       t.Key().Hash,
		Name:       t.FileName(),
	}).Encoded()
	if err := c.sendToGroup(protocol.TypeSendFile, payload); err != nil {
		t.Cancel()
		return nil, fmt.Errorf("failed to announce file offer: %w", err)
	}

	return t, nil
}

// AcceptFile accepts a waiting inbound offer, advertising the bound port.
func (c *Client) AcceptFile(key transfer.Key) error {
	port, err := c.transfers.Accept(key)
	if err != nil {
		return err
	}

	payload := (&protocol.FileAcceptPayload{
		TargetCode: key.Code,
		Port:       port,
		Hash:       key.Hash,
		Name:       key.Name,
	}).Encoded()
	return c.sendToGroup(protocol.TypeSendFileAccept, payload)
}

// RejectFile declines a waiting inbound offer.
func (c *Client) RejectFile(key transfer.Key) error {
	return c.transfers.Reject(key)
}

// CancelTransfer cancels a live transfer on either side.
func (c *Client) CancelTransfer(key transfer.Key) error {
	return c.transfers.Cancel(key)
}

// CancelTransferByName cancels the live transfer matching a file name,
// the handle users have at the prompt.
func (c *Client) CancelTransferByName(name string) error {
	for key := range c.transfers.Active() {
		if key.Name == name {
			return c.transfers.Cancel(key)
		}
	}
	return fmt.Errorf("%w: no transfer for %s", transfer.ErrUnknownTransfer, name)
}

// Responder implementation: re-announcements the directory triggers off
// incoming traffic.

func (c *Client) SendExposing() {
	c.sendToGroup(protocol.TypeExposing, "")
}

func (c *Client) SendClientInfo() {
	payload := (&protocol.ClientInfoPayload{
		Client:          fmt.Sprintf("%s v%s", ClientName, Version),
		TimeSinceLogon:  time.Since(c.logonTime).Milliseconds(),
		OperatingSystem: operatingSystem(),
		PrivateChatPort: c.privateChatPort(),
		TCPChatPort:     0,
	}).Encoded()
	c.sendToGroup(protocol.TypeClient, payload)
}

// privateChatPort is the port peers should send private messages to: the
// unicast socket's actual bound port. Configuring 0 binds an ephemeral
// port, so the configured value alone is not enough to advertise.
func (c *Client) privateChatPort() int {
	if port := c.wire.UnicastPort(); port != 0 {
		return port
	}
	return c.cfg.PrivateChatPort
}

func (c *Client) SendNick(newNick string) {
	// The directory has already applied the rename, so the envelope's
	// nick field carries the new nick.
	c.sendToGroup(protocol.TypeNick, "")
}

func (c *Client) SendNickCrash(nick string) {
	c.sendToGroup(protocol.TypeNickCrash, nick)
}

func (c *Client) SendTopic(topic directory.Topic) {
	payload := (&protocol.TopicPayload{
		Nick: topic.Nick,
		Time: topic.Time,
		Text: topic.Text,
	}).Encoded()
	c.sendToGroup(protocol.TypeTopic, payload)
}

// chatRoom is how much chat text fits one datagram next to the envelope
// and payload framing.
func (c *Client) chatRoom() int {
	me := c.dir.Me()
	overhead := len(protocol.Encode(me.Code, protocol.TypeMsg, me.Nick,
		(&protocol.ChatPayload{Color: c.cfg.OwnColor}).Encoded()))

	room := protocol.MaxDatagramSize - overhead
	if room < 1 {
		room = 1
	}
	return room
}
