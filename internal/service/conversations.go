package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/repo"
)

type ConversationResolver struct {
	repo repo.ConversationRepository
	now  func() time.Time
}

func NewConversationResolver(r repo.ConversationRepository) *ConversationResolver {
	return &ConversationResolver{repo: r, now: time.Now}
}

// ResolveOrCreate returns the single conversation between p1 and p2 regardless
// of argument order. p1 == p2 yields a self-conversation.
func (r *ConversationResolver) ResolveOrCreate(ctx context.Context, p1, p2 *model.Participant) (*model.Conversation, error) {
	if p1 == nil || p2 == nil {
		return nil, fmt.Errorf("%w: both participants are required", model.ErrInvalidArgument)
	}
	low, high := model.OrderPair(p1.ID, p2.ID)

	c, err := r.repo.GetConversationByParticipants(ctx, low, high)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}

	now := r.now()
	c = &model.Conversation{
		ID:           uuid.NewString(),
		ParticipantA: low,
		ParticipantB: high,
		LastActivity: now,
		CreatedAt:    now,
	}
	err = r.repo.CreateConversation(ctx, c)
	if errors.Is(err, repo.ErrConflict) {
		c, err = r.repo.GetConversationByParticipants(ctx, low, high)
		if err != nil {
			return nil, fmt.Errorf("re-fetch conversation after conflict: %w", err)
		}
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

// Touch records activity on a conversation after a message was attached to it.
func (r *ConversationResolver) Touch(ctx context.Context, conversationID string, at time.Time) error {
	return r.repo.TouchConversation(ctx, conversationID, at)
}
