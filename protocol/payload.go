package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// Payload grammars. Fixed fields come first, free text (chat text, topic
// text, file name) last and unescaped:
//
//	MSG            [color]text
//	PRIVMSG        (targetCode)[color]text
//	TOPIC          (nick)[time]text
//	SENDFILE       (targetCode)[size]{hash}name
//	SENDFILEACCEPT (targetCode)[port]{hash}name
//	SENDFILEABORT  (targetCode){hash}name
//	CLIENT         (client)[timeSinceLogon]{os}<privateChatPort>/tcpChatPort\

type ChatPayload struct {
	Color int
	Text  string
}

type PrivateChatPayload struct {
	TargetCode int
	Color      int
	Text       string
}

type TopicPayload struct {
	Nick string
	Time int64
	Text string
}

type FileOfferPayload struct {
	TargetCode int
	Size       int64
	Hash       int
	Name       string
}

type FileAcceptPayload struct {
	TargetCode int
	Port       int
	Hash       int
	Name       string
}

type FileAbortPayload struct {
	TargetCode int
	Hash       int
	Name       string
}

type ClientInfoPayload struct {
	Client          string
	TimeSinceLogon  int64
	OperatingSystem string
	PrivateChatPort int
	TCPChatPort     int
}

func (p *ChatPayload) Encoded() string {
	return fmt.Sprintf("[%d]%s", p.Color, p.Text)
}

func ParseChat(payload string) (*ChatPayload, error) {
	color, rest, err := bracketField(payload)
	if err != nil {
		return nil, err
	}

	colorInt, err := strconv.Atoi(color)
	if err != nil {
		return nil, fmt.Errorf("%w: bad color %q", ErrMalformedMessage, color)
	}

	return &ChatPayload{Color: colorInt, Text: rest}, nil
}

func (p *PrivateChatPayload) Encoded() string {
	return fmt.Sprintf("(%d)[%d]%s", p.TargetCode, p.Color, p.Text)
}

func ParsePrivateChat(payload string) (*PrivateChatPayload, error) {
	target, rest, err := parenIntField(payload)
	if err != nil {
		return nil, err
	}

	color, rest, err := bracketIntField(rest)
	if err != nil {
		return nil, err
	}

	return &PrivateChatPayload{TargetCode: target, Color: color, Text: rest}, nil
}

func (p *TopicPayload) Encoded() string {
	return fmt.Sprintf("(%s)[%d]%s", p.Nick, p.Time, p.Text)
}

func ParseTopic(payload string) (*TopicPayload, error) {
	nick, rest, err := parenField(payload)
	if err != nil {
		return nil, err
	}

	timeField, rest, err := bracketField(rest)
	if err != nil {
		return nil, err
	}

	timeInt, err := strconv.ParseInt(timeField, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad topic time %q", ErrMalformedMessage, timeField)
	}

	return &TopicPayload{Nick: nick, Time: timeInt, Text: rest}, nil
}

func (p *FileOfferPayload) Encoded() string {
	return fmt.Sprintf("(%d)[%d]{%d}%s", p.TargetCode, p.Size, p.Hash, p.Name)
}

func ParseFileOffer(payload string) (*FileOfferPayload, error) {
	target, rest, err := parenIntField(payload)
	if err != nil {
		return nil, err
	}

	size, rest, err := bracketField(rest)
	if err != nil {
		return nil, err
	}

	sizeInt, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad file size %q", ErrMalformedMessage, size)
	}

	hash, rest, err := braceIntField(rest)
	if err != nil {
		return nil, err
	}

	return &FileOfferPayload{TargetCode: target, Size: sizeInt, Hash: hash, Name: rest}, nil
}

func (p *FileAcceptPayload) Encoded() string {
	return fmt.Sprintf("(%d)[%d]{%d}%s", p.TargetCode, p.Port, p.Hash, p.Name)
}

func ParseFileAccept(payload string) (*FileAcceptPayload, error) {
	target, rest, err := parenIntField(payload)
	if err != nil {
		return nil, err
	}

	port, rest, err := bracketIntField(rest)
	if err != nil {
		return nil, err
	}

	hash, rest, err := braceIntField(rest)
	if err != nil {
		return nil, err
	}

	return &FileAcceptPayload{TargetCode: target, Port: port, Hash: hash, Name: rest}, nil
}

func (p *FileAbortPayload) Encoded() string {
	return fmt.Sprintf("(%d){%d}%s", p.TargetCode, p.Hash, p.Name)
}

func ParseFileAbort(payload string) (*FileAbortPayload, error) {
	target, rest, err := parenIntField(payload)
	if err != nil {
		return nil, err
	}

	hash, rest, err := braceIntField(rest)
	if err != nil {
		return nil, err
	}

	return &FileAbortPayload{TargetCode: target, Hash: hash, Name: rest}, nil
}

func (p *ClientInfoPayload) Encoded() string {
	return fmt.Sprintf("(%s)[%d]{%s}<%d>/%d\\",
		p.Client, p.TimeSinceLogon, p.OperatingSystem, p.PrivateChatPort, p.TCPChatPort)
}

func ParseClientInfo(payload string) (*ClientInfoPayload, error) {
	client, rest, err := parenField(payload)
	if err != nil {
		return nil, err
	}

	timeField, rest, err := bracketField(rest)
	if err != nil {
		return nil, err
	}

	timeInt, err := strconv.ParseInt(timeField, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad logon time %q", ErrMalformedMessage, timeField)
	}

	osField, rest, err := delimitedField(rest, "{", "}")
	if err != nil {
		return nil, err
	}

	portField, rest, err := delimitedField(rest, "<", ">")
	if err != nil {
		return nil, err
	}

	privatePort, err := strconv.Atoi(portField)
	if err != nil {
		return nil, fmt.Errorf("%w: bad private chat port %q", ErrMalformedMessage, portField)
	}

	if !strings.HasPrefix(rest, "/") || !strings.HasSuffix(rest, "\\") || len(rest) < 2 {
		return nil, fmt.Errorf("%w: bad tcp chat port field %q", ErrMalformedMessage, rest)
	}

	tcpPort, err := strconv.Atoi(rest[1 : len(rest)-1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad tcp chat port %q", ErrMalformedMessage, rest)
	}

	return &ClientInfoPayload{
		Client:          client,
		TimeSinceLogon:  timeInt,
		OperatingSystem: osField,
		PrivateChatPort: privatePort,
		TCPChatPort:     tcpPort,
	}, nil
}

func delimitedField(s, open, close string) (field, rest string, err error) {
	if !strings.HasPrefix(s, open) {
		return "", "", fmt.Errorf("%w: expected %q in %q", ErrMalformedMessage, open, s)
	}

	end := strings.Index(s, close)
	if end < 0 {
		return "", "", fmt.Errorf("%w: unterminated %q field in %q", ErrMalformedMessage, open, s)
	}

	return s[len(open):end], s[end+len(close):], nil
}

func parenField(s string) (string, string, error) {
	return delimitedField(s, "(", ")")
}

func bracketField(s string) (string, string, error) {
	return delimitedField(s, "[", "]")
}

func parenIntField(s string) (int, string, error) {
	field, rest, err := parenField(s)
	if err != nil {
		return 0, "", err
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad numeric field %q", ErrMalformedMessage, field)
	}

	return n, rest, nil
}

func bracketIntField(s string) (int, string, error) {
	field, rest, err := bracketField(s)
	if err != nil {
		return 0, "", err
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad numeric field %q", ErrMalformedMessage, field)
	}

	return n, rest, nil
}

func braceIntField(s string) (int, string, error) {
	field, rest, err := delimitedField(s, "{", "}")
	if err != nil {
		return 0, "", err
	}

	n, err := strconv.Atoi(field)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad numeric field %q", ErrMalformedMessage, field)
	}

	return n, rest, nil
}
