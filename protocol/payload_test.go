package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChat(t *testing.T) {
	p, err := ParseChat("[-15987646]Some chat message")
	require.NoError(t, err)

	assert.Equal(t, -15987646, p.Color)
	assert.Equal(t, "Some chat message", p.Text)
}

func TestParseChatInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"missing color", "no brackets here"},
		{"unterminated color", "[123no close"},
		{"non numeric color", "[abc]text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseChat(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestParsePrivateChat(t *testing.T) {
	p, err := ParsePrivateChat("(435435)[-15987646]this is a private message")
	require.NoError(t, err)

	assert.Equal(t, 435435, p.TargetCode)
	assert.Equal(t, -15987646, p.Color)
	assert.Equal(t, "this is a private message", p.Text)
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    TopicPayload
	}{
		{
			name:    "changed topic",
			payload: "(Snoopy)[2132321323]Interesting changed topic",
			want:    TopicPayload{Nick: "Snoopy", Time: 2132321323, Text: "Interesting changed topic"},
		},
		{
			name:    "empty topic clears",
			payload: "(Snoopy)[66532345]",
			want:    TopicPayload{Nick: "Snoopy", Time: 66532345, Text: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseTopic(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *p)
		})
	}
}

func TestParseFileOffer(t *testing.T) {
	p, err := ParseFileOffer("(1234)[80800]{37563645}a_file.txt")
	require.NoError(t, err)

	assert.Equal(t, 1234, p.TargetCode)
	assert.Equal(t, int64(80800), p.Size)
	assert.Equal(t, 37563645, p.Hash)
	assert.Equal(t, "a_file.txt", p.Name)
}

func TestParseFileAccept(t *testing.T) {
	p, err := ParseFileAccept("(4321)[20103]{8578765}some_file.txt")
	require.NoError(t, err)

	assert.Equal(t, 4321, p.TargetCode)
	assert.Equal(t, 20103, p.Port)
	assert.Equal(t, 8578765, p.Hash)
	assert.Equal(t, "some_file.txt", p.Name)
}

func TestParseFileAbort(t *testing.T) {
	p, err := ParseFileAbort("(4321){8578765}another_file.txt")
	require.NoError(t, err)

	assert.Equal(t, 4321, p.TargetCode)
	assert.Equal(t, 8578765, p.Hash)
	assert.Equal(t, "another_file.txt", p.Name)
}

func TestParseFileNameWithBraces(t *testing.T) {
	// File names are free text; only the first '}' terminates the hash.
	p, err := ParseFileAbort("(1){2}weird}name.txt")
	require.NoError(t, err)
	assert.Equal(t, "weird}name.txt", p.Name)
}

func TestParseClientInfo(t *testing.T) {
	raw := (&ClientInfoPayload{
		Client:          "LanChat v1.0.0",
		TimeSinceLogon:  134,
		OperatingSystem: "Linux",
		PrivateChatPort: 2222,
		TCPChatPort:     4444,
	}).Encoded()
	assert.Equal(t, "(LanChat v1.0.0)[134]{Linux}<2222>/4444\\", raw)

	p, err := ParseClientInfo(raw)
	require.NoError(t, err)

	assert.Equal(t, "LanChat v1.0.0", p.Client)
	assert.Equal(t, int64(134), p.TimeSinceLogon)
	assert.Equal(t, "Linux", p.OperatingSystem)
	assert.Equal(t, 2222, p.PrivateChatPort)
	assert.Equal(t, 4444, p.TCPChatPort)
}

func TestParseClientInfoInvalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"empty", ""},
		{"missing ports", "(client)[1]{Linux}"},
		{"missing backslash", "(client)[1]{Linux}<2222>/4444"},
		{"bad tcp port", "(client)[1]{Linux}<2222>/x\\"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClientInfo(tt.payload)
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestFileOfferRoundTrip(t *testing.T) {
	offer := &FileOfferPayload{TargetCode: 77, Size: 1 << 33, Hash: -12345, Name: "big file.bin"}

	parsed, err := ParseFileOffer(offer.Encoded())
	require.NoError(t, err)
	assert.Equal(t, offer, parsed)
}
