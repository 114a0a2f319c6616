package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeventeLantos/message-relay/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "relay.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedParticipant(t *testing.T, s *SQLiteStore, phone string) *model.Participant {
	t.Helper()

	p := &model.Participant{ID: uuid.NewString(), Phone: lo.ToPtr(phone), CreatedAt: time.Now()}
	require.NoError(t, s.CreateParticipant(context.Background(), p))
	return p
}

func seedConversation(t *testing.T, s *SQLiteStore, a, b *model.Participant) *model.Conversation {
	t.Helper()

	pa, pb := model.OrderPair(a.ID, b.ID)
	now := time.Now()
	c := &model.Conversation{ID: uuid.NewString(), ParticipantA: pa, ParticipantB: pb, LastActivity: now, CreatedAt: now}
	require.NoError(t, s.CreateConversation(context.Background(), c))
	return c
}

func newMessage(conv *model.Conversation, from, to *model.Participant, status model.Status) *model.Message {
	now := time.Now()
	return &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       from.ID,
		RecipientID:    to.ID,
		Type:           model.SMS,
		Direction:      model.Outgoing,
		Body:           "hello",
		Status:         status,
		Timestamp:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestSQLiteStore_ParticipantLookupAndConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedParticipant(t, s, "+14155550100")

	got, err := s.GetParticipantByPhone(ctx, "+14155550100")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Nil(t, got.Email)

	byID, err := s.GetParticipant(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "+14155550100", *byID.Phone)

	dup := &model.Participant{ID: uuid.NewString(), Phone: lo.ToPtr("+14155550100"), CreatedAt: time.Now()}
	assert.ErrorIs(t, s.CreateParticipant(ctx, dup), ErrConflict)

	_, err = s.GetParticipantByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_ParticipantsWithoutKeysDoNotCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// NULL phone/email must not trip the unique indexes
	require.NoError(t, s.CreateParticipant(ctx, &model.Participant{ID: uuid.NewString(), Email: lo.ToPtr("a@example.com"), CreatedAt: time.Now()}))
	require.NoError(t, s.CreateParticipant(ctx, &model.Participant{ID: uuid.NewString(), Email: lo.ToPtr("b@example.com"), CreatedAt: time.Now()}))
}

func TestSQLiteStore_ConversationPairIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)

	pa, pb := model.OrderPair(b.ID, a.ID)
	got, err := s.GetConversationByParticipants(ctx, pa, pb)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)

	again := &model.Conversation{ID: uuid.NewString(), ParticipantA: pa, ParticipantB: pb, LastActivity: time.Now(), CreatedAt: time.Now()}
	assert.ErrorIs(t, s.CreateConversation(ctx, again), ErrConflict)
}

func TestSQLiteStore_TouchConversationOnlyMovesForward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)

	later := c.LastActivity.Add(time.Hour)
	require.NoError(t, s.TouchConversation(ctx, c.ID, later))
	require.NoError(t, s.TouchConversation(ctx, c.ID, c.LastActivity.Add(-time.Hour)))

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.Equal(later.UTC()), "got %v want %v", got.LastActivity, later)

	assert.ErrorIs(t, s.TouchConversation(ctx, uuid.NewString(), later), ErrNotFound)
}

func TestSQLiteStore_MessageRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)

	m := newMessage(c, a, b, model.Queued)
	m.Attachments = []model.Attachment{
		{"url": "https://example.com/a.png", "type": "image/png"},
		{"url": "https://example.com/b.pdf"},
	}
	require.NoError(t, s.CreateMessage(ctx, m))

	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Queued, got.Status)
	assert.Equal(t, model.Outgoing, got.Direction)
	assert.Equal(t, "hello", got.Body)
	require.Len(t, got.Attachments, 2)
	assert.Equal(t, "https://example.com/a.png", got.Attachments[0]["url"])
	assert.Equal(t, "https://example.com/b.pdf", got.Attachments[1]["url"])
	assert.Nil(t, got.LastError)
	assert.True(t, got.Timestamp.Equal(m.Timestamp.UTC().Truncate(time.Nanosecond)))
}

func TestSQLiteStore_ProviderMessageIDIsUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)

	first := newMessage(c, a, b, model.Received)
	first.ProviderMessageID = lo.ToPtr("msg-123")
	require.NoError(t, s.CreateMessage(ctx, first))

	exists, err := s.MessageExistsByProviderID(ctx, "msg-123")
	require.NoError(t, err)
	assert.True(t, exists)

	second := newMessage(c, a, b, model.Received)
	second.ProviderMessageID = lo.ToPtr("msg-123")
	assert.ErrorIs(t, s.CreateMessage(ctx, second), ErrConflict)

	exists, err = s.MessageExistsByProviderID(ctx, "msg-999")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLiteStore_UpdateMessageStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)
	m := newMessage(c, a, b, model.Queued)
	require.NoError(t, s.CreateMessage(ctx, m))

	require.NoError(t, s.UpdateMessageStatus(ctx, m.ID, model.Failed, lo.ToPtr("boom")))

	got, err := s.GetMessage(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Failed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "boom", *got.LastError)

	assert.ErrorIs(t, s.UpdateMessageStatus(ctx, uuid.NewString(), model.Sent, nil), ErrNotFound)
}

func TestSQLiteStore_ClaimStaleQueued(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)

	old := newMessage(c, a, b, model.Queued)
	old.CreatedAt = time.Now().Add(-time.Hour)
	old.UpdatedAt = old.CreatedAt
	require.NoError(t, s.CreateMessage(ctx, old))

	fresh := newMessage(c, a, b, model.Queued)
	require.NoError(t, s.CreateMessage(ctx, fresh))

	sent := newMessage(c, a, b, model.Sent)
	sent.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.CreateMessage(ctx, sent))

	cutoff := time.Now().Add(-time.Minute)
	claimed, err := s.ClaimStaleQueued(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, old.ID, claimed[0].ID)

	// claimed rows were bumped, so a second sweep finds nothing
	claimed, err = s.ClaimStaleQueued(ctx, cutoff, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	_, err = s.ClaimStaleQueued(ctx, cutoff, 0)
	assert.Error(t, err)
}

func TestSQLiteStore_ListAndDeleteMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := seedParticipant(t, s, "+14155550100")
	b := seedParticipant(t, s, "+14155550101")
	c := seedConversation(t, s, a, b)

	first := newMessage(c, a, b, model.Queued)
	first.CreatedAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.CreateMessage(ctx, first))
	second := newMessage(c, b, a, model.Received)
	require.NoError(t, s.CreateMessage(ctx, second))

	all, err := s.ListMessages(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")

	page, err := s.ListConversationMessages(ctx, c.ID, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	require.NoError(t, s.DeleteMessage(ctx, first.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, first.ID), ErrNotFound)

	_, err = s.GetMessage(ctx, first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
