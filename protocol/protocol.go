// Package protocol implements the text wire format exchanged over the
// multicast control channel.
//
// Every datagram is a single envelope of the form
//
//	<code>!<TYPE>#<nick>:<payload>
//
// where code is the sender's numeric identity, TYPE is one of a fixed
// vocabulary and payload follows a per-type grammar (see payload.go).
// Free text at the end of a payload is never escaped, so a literal '!',
// '#' or ':' ahead of the payload boundary is taken as the separator.
// This is a known limitation of the wire format, kept for compatibility.
package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type MessageType string

const (
	TypeLogon          MessageType = "LOGON"
	TypeLogoff         MessageType = "LOGOFF"
	TypeExpose         MessageType = "EXPOSE"
	TypeExposing       MessageType = "EXPOSING"
	TypeNick           MessageType = "NICK"
	TypeNickCrash      MessageType = "NICKCRASH"
	TypeAway           MessageType = "AWAY"
	TypeBack           MessageType = "BACK"
	TypeMsg            MessageType = "MSG"
	TypePrivMsg        MessageType = "PRIVMSG"
	TypeTopic          MessageType = "TOPIC"
	TypeGetTopic       MessageType = "GETTOPIC"
	TypeWriting        MessageType = "WRITING"
	TypeStoppedWriting MessageType = "STOPPEDWRITING"
	TypeIdle           MessageType = "IDLE"
	TypeClient         MessageType = "CLIENT"
	TypeSendFile       MessageType = "SENDFILE"
	TypeSendFileAccept MessageType = "SENDFILEACCEPT"
	TypeSendFileAbort  MessageType = "SENDFILEABORT"
)

// MaxDatagramSize is the largest envelope the transport will put on the
// wire. Chat text longer than the remaining room is split by the caller.
const MaxDatagramSize = 512

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrUnknownType      = errors.New("unknown message type")

	validTypes = map[MessageType]bool{
		TypeLogon:          true,
		TypeLogoff:         true,
		TypeExpose:         true,
		TypeExposing:       true,
		TypeNick:           true,
		TypeNickCrash:      true,
		TypeAway:           true,
		TypeBack:           true,
		TypeMsg:            true,
		TypePrivMsg:        true,
		TypeTopic:          true,
		TypeGetTopic:       true,
		TypeWriting:        true,
		TypeStoppedWriting: true,
		TypeIdle:           true,
		TypeClient:         true,
		TypeSendFile:       true,
		TypeSendFileAccept: true,
		TypeSendFileAbort:  true,
	}
)

// Message is one decoded envelope. The nick is whatever the sender put in
// the envelope at send time and may be stale for some types.
type Message struct {
	Code    int
	Type    MessageType
	Nick    string
	Payload string
}

// Encode formats an envelope. It is pure formatting and never fails.
func Encode(code int, msgType MessageType, nick, payload string) string {
	return fmt.Sprintf("%d!%s#%s:%s", code, msgType, nick, payload)
}

// Decode parses an envelope. The first '!', the first '#' after it and the
// first ':' after that are taken as the separators. A missing separator or
// a non-numeric code yields ErrMalformedMessage; a well-formed envelope
// with a type outside the vocabulary yields ErrUnknownType so the caller
// can drop it without treating it as corruption.
func Decode(raw string) (*Message, error) {
	bang := strings.Index(raw, "!")
	if bang < 1 {
		return nil, fmt.Errorf("%w: missing code separator", ErrMalformedMessage)
	}

	code, err := strconv.Atoi(raw[:bang])
	if err != nil {
		return nil, fmt.Errorf("%w: bad sender code %q", ErrMalformedMessage, raw[:bang])
	}

	rest := raw[bang+1:]
	hash := strings.Index(rest, "#")
	if hash < 0 {
		return nil, fmt.Errorf("%w: missing nick separator", ErrMalformedMessage)
	}

	msgType := MessageType(rest[:hash])

	rest = rest[hash+1:]
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return nil, fmt.Errorf("%w: missing payload separator", ErrMalformedMessage)
	}

	if !validTypes[msgType] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, string(msgType))
	}

	return &Message{
		Code:    code,
		Type:    msgType,
		Nick:    rest[:colon],
		Payload: rest[colon+1:],
	}, nil
}

// SplitText chops s into pieces of at most max bytes without breaking a
// rune. Used to fit long chat messages into the datagram size limit.
func SplitText(s string, max int) []string {
	if max <= 0 || len(s) <= max {
		return []string{s}
	}

	var parts []string
	current := strings.Builder{}

	for _, r := range s {
		if current.Len()+len(string(r)) > max {
			parts = append(parts, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
