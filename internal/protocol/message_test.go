package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeBody(t *testing.T) {
	assert.Equal(t, []byte("0|alice"), EncodeBody(NewMessage(KindSetNickname, "alice")))
	assert.Equal(t, []byte("1|"), EncodeBody(NewMessage(KindJoinQueue, "")))
	assert.Equal(t, []byte("2|200,15,false"), EncodeBody(NewMessage(KindPlayerPosition, "200,15,false")))
	assert.Equal(t, []byte("9|1200,512,0;1200,730,1"), EncodeBody(NewMessage(KindGameStart, "1200,512,0;1200,730,1")))
}

func TestDecodeBody(t *testing.T) {
	msg, err := DecodeBody([]byte("3|42"))
	require.NoError(t, err)
	assert.Equal(t, KindPlayerDied, msg.Kind)
	assert.Equal(t, "42", msg.Payload)
}

func TestDecodeBodyPayloadMayContainPipes(t *testing.T) {
	msg, err := DecodeBody([]byte("13|unexpected|extra|pipes"))
	require.NoError(t, err)
	assert.Equal(t, KindConnectionError, msg.Kind)
	assert.Equal(t, "unexpected|extra|pipes", msg.Payload)
}

func TestDecodeBodyEmptyPayload(t *testing.T) {
	msg, err := DecodeBody([]byte("1|"))
	require.NoError(t, err)
	assert.Equal(t, KindJoinQueue, msg.Kind)
	assert.Empty(t, msg.Payload)
}

func TestDecodeBodyMalformed(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"no separator", "42"},
		{"non-numeric tag", "abc|payload"},
		{"negative tag", "-1|payload"},
		{"tag out of range", "99|payload"},
		{"bare payload", "hello world"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBody([]byte(tc.body))
			require.Error(t, err)
			var decodeErr *DecodeError
			assert.ErrorAs(t, err, &decodeErr)
		})
	}
}

func TestKindValid(t *testing.T) {
	for k := KindSetNickname; k < kindCount; k++ {
		assert.True(t, k.Valid(), "kind %d should be valid", int(k))
	}
	assert.False(t, Kind(-1).Valid())
	assert.False(t, kindCount.Valid())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "SetNickname", KindSetNickname.String())
	assert.Equal(t, "GameStart", KindGameStart.String())
	assert.Equal(t, "ConnectionError", KindConnectionError.String())
	assert.Equal(t, "Kind(99)", Kind(99).String())
}

func TestBodyRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := Kind(rapid.IntRange(0, int(kindCount)-1).Draw(t, "kind"))
		payload := rapid.StringMatching(`[ -~]{0,256}`).Draw(t, "payload")

		msg := NewMessage(kind, payload)
		decoded, err := DecodeBody(EncodeBody(msg))
		if err != nil {
			t.Fatalf("decoding %q: %v", EncodeBody(msg), err)
		}
		if decoded != msg {
			t.Fatalf("round trip mismatch: sent %+v, got %+v", msg, decoded)
		}
	})
}
