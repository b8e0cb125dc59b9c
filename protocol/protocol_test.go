package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		msgType MessageType
		nick    string
		payload string
		want    string
	}{
		{
			name:    "away message",
			code:    123,
			msgType: TypeAway,
			nick:    "Christian",
			payload: "I am away",
			want:    "123!AWAY#Christian:I am away",
		},
		{
			name:    "empty payload",
			code:    18265486,
			msgType: TypeLogoff,
			nick:    "Christian",
			payload: "",
			want:    "18265486!LOGOFF#Christian:",
		},
		{
			name:    "file accept",
			code:    17247198,
			msgType: TypeSendFileAccept,
			nick:    "Christian",
			payload: (&FileAcceptPayload{TargetCode: 4321, Port: 20103, Hash: 8578765, Name: "some_file.txt"}).Encoded(),
			want:    "17247198!SENDFILEACCEPT#Christian:(4321)[20103]{8578765}some_file.txt",
		},
		{
			name:    "file abort",
			code:    15234876,
			msgType: TypeSendFileAbort,
			nick:    "Christian",
			payload: (&FileAbortPayload{TargetCode: 4321, Hash: 8578765, Name: "another_file.txt"}).Encoded(),
			want:    "15234876!SENDFILEABORT#Christian:(4321){8578765}another_file.txt",
		},
		{
			name:    "file offer",
			code:    14394329,
			msgType: TypeSendFile,
			nick:    "Christian",
			payload: (&FileOfferPayload{TargetCode: 1234, Size: 80800, Hash: 37563645, Name: "a_file.txt"}).Encoded(),
			want:    "14394329!SENDFILE#Christian:(1234)[80800]{37563645}a_file.txt",
		},
		{
			name:    "topic change",
			code:    18102542,
			msgType: TypeTopic,
			nick:    "Christian",
			payload: (&TopicPayload{Nick: "Snoopy", Time: 2132321323, Text: "Interesting changed topic"}).Encoded(),
			want:    "18102542!TOPIC#Christian:(Snoopy)[2132321323]Interesting changed topic",
		},
		{
			name:    "chat message",
			code:    16899115,
			msgType: TypeMsg,
			nick:    "Christian",
			payload: (&ChatPayload{Color: -15987646, Text: "Some chat message"}).Encoded(),
			want:    "16899115!MSG#Christian:[-15987646]Some chat message",
		},
		{
			name:    "private message",
			code:    10897608,
			msgType: TypePrivMsg,
			nick:    "Christian",
			payload: (&PrivateChatPayload{TargetCode: 435435, Color: -15987646, Text: "this is a private message"}).Encoded(),
			want:    "10897608!PRIVMSG#Christian:(435435)[-15987646]this is a private message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.code, tt.msgType, tt.nick, tt.payload)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		msgType MessageType
		nick    string
		payload string
	}{
		{"logon", 10794786, TypeLogon, "Christian", ""},
		{"expose", 16424378, TypeExpose, "Christian", ""},
		{"away with text", 123, TypeAway, "Christian", "I am away"},
		{"nick crash", 16321536, TypeNickCrash, "Christian", "niles"},
		{"nick change", 14795611, TypeNick, "Cookie", ""},
		{"idle", 10223997, TypeIdle, "Christian", ""},
		{"writing", 99, TypeWriting, "w", ""},
		{"payload with colon", 55, TypeMsg, "x", "[0]see: this survives"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := Encode(tt.code, tt.msgType, tt.nick, tt.payload)
			msg, err := Decode(raw)
			require.NoError(t, err)

			assert.Equal(t, tt.code, msg.Code)
			assert.Equal(t, tt.msgType, msg.Type)
			assert.Equal(t, tt.nick, msg.Nick)
			assert.Equal(t, tt.payload, msg.Payload)
		})
	}
}

func TestDecodeInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"empty", "", ErrMalformedMessage},
		{"no separators", "hello there", ErrMalformedMessage},
		{"missing code", "!MSG#nick:text", ErrMalformedMessage},
		{"non numeric code", "abc!MSG#nick:text", ErrMalformedMessage},
		{"missing nick separator", "123!MSG nick:text", ErrMalformedMessage},
		{"missing payload separator", "123!MSG#nick", ErrMalformedMessage},
		{"unknown type", "123!SHOUT#nick:text", ErrUnknownType},
		{"lowercase type", "123!msg#nick:text", ErrUnknownType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeDelimiterInFreeText(t *testing.T) {
	// Free text is unescaped, so a '#' in the nick position of a crafted
	// envelope shifts the parse. The codec takes the first separators it
	// finds; this pins that known limitation.
	msg, err := Decode("123!MSG#ni#ck:[0]text")
	require.NoError(t, err)
	assert.Equal(t, "ni", msg.Nick)
	assert.Equal(t, "ck:[0]text", msg.Payload[len(msg.Payload)-len("ck:[0]text"):])
}

func TestSplitText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want []string
	}{
		{"short stays whole", "hello", 10, []string{"hello"}},
		{"exact fit", "hello", 5, []string{"hello"}},
		{"split in two", "hello world", 6, []string{"hello ", "world"}},
		{"zero max", "hello", 0, []string{"hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.in, tt.max))
		})
	}
}

func TestSplitTextRuneBoundary(t *testing.T) {
	in := "ææææ" // 2 bytes per rune
	parts := SplitText(in, 3)

	require.Len(t, parts, 4)
	for _, p := range parts {
		assert.Equal(t, "æ", p)
	}
}
