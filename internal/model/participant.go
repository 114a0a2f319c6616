package model

import "time"

// Participant is the canonical identity behind a phone number or email address.
type Participant struct {
	ID        string    `json:"id"`
	Phone     *string   `json:"phone"`
	Email     *string   `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Address returns the participant's address on the given channel.
func (p *Participant) Address(ch Channel) (string, bool) {
	var v *string
	switch ch {
	case ChannelEmail:
		v = p.Email
	case ChannelText:
		v = p.Phone
	}
	if v == nil || *v == "" {
		return "", false
	}
	return *v, true
}

// Conversation pairs two participants. ParticipantA <= ParticipantB always holds,
// so a pair is stored once whichever side sent the message.
type Conversation struct {
	ID           string    `json:"id"`
	ParticipantA string    `json:"participant_1"`
	ParticipantB string    `json:"participant_2"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}

// OrderPair sorts two participant ids into (low, high).
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
