package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessageType(t *testing.T) {
	cases := []struct {
		raw  string
		want MessageType
		ch   Channel
	}{
		{"sms", SMS, ChannelText},
		{"MMS", MMS, ChannelText},
		{" Email ", Email, ChannelEmail},
	}
	for _, tc := range cases {
		got, err := ParseMessageType(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got)
		assert.Equal(t, tc.ch, got.Channel())
	}

	_, err := ParseMessageType("fax")
	assert.ErrorIs(t, err, ErrUnsupportedMessageType)
	assert.Empty(t, MessageType("FAX").Channel())
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(Queued, Sending))
	assert.True(t, CanTransition(Sending, Sent))
	assert.True(t, CanTransition(Sending, Failed))
	assert.True(t, CanTransition(Failed, Sending))
	assert.True(t, CanTransition(Sending, Sending))

	assert.False(t, CanTransition(Queued, Sent))
	assert.False(t, CanTransition(Sent, Sending))
	assert.False(t, CanTransition(Received, Sending))
	assert.False(t, CanTransition(Sent, Failed))
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, Received.Terminal())
	assert.True(t, Sent.Terminal())
	assert.True(t, Failed.Terminal())
	assert.False(t, Queued.Terminal())
	assert.False(t, Sending.Terminal())
}

func TestOrderPair(t *testing.T) {
	lo, hi := OrderPair("b", "a")
	assert.Equal(t, "a", lo)
	assert.Equal(t, "b", hi)

	lo, hi = OrderPair("a", "b")
	assert.Equal(t, "a", lo)
	assert.Equal(t, "b", hi)

	lo, hi = OrderPair("x", "x")
	assert.Equal(t, "x", lo)
	assert.Equal(t, "x", hi)
}

func TestParticipantAddress(t *testing.T) {
	phone := "+14155550100"
	p := Participant{ID: "p1", Phone: &phone}

	got, ok := p.Address(ChannelText)
	assert.True(t, ok)
	assert.Equal(t, phone, got)

	_, ok = p.Address(ChannelEmail)
	assert.False(t, ok)
}
