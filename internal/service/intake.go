package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/repo"
)

// InboundMessage is a provider webhook after parsing.
type InboundMessage struct {
	To                string `validate:"required"`
	From              string `validate:"required"`
	Type              model.MessageType
	Body              string
	ProviderMessageID string `validate:"required"`
	Attachments       []model.Attachment
	Timestamp         *time.Time
}

// OutboundRequest asks the relay to deliver a new message.
type OutboundRequest struct {
	Sender      string `validate:"required"`
	Recipient   string `validate:"required"`
	Type        model.MessageType
	Body        string
	Attachments []model.Attachment
}

// Intake turns inbound webhooks and outbound requests into stored messages.
type Intake struct {
	participants  *ParticipantResolver
	conversations *ConversationResolver
	messages      repo.MessageRepository
	enqueuer      Enqueuer
	dedupe        Deduper
	log           *slog.Logger
	now           func() time.Time
}

func NewIntake(
	participants *ParticipantResolver,
	conversations *ConversationResolver,
	messages repo.MessageRepository,
	enqueuer Enqueuer,
	logger *slog.Logger,
) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		participants:  participants,
		conversations: conversations,
		messages:      messages,
		enqueuer:      enqueuer,
		log:           logger.With("component", "intake"),
		now:           time.Now,
	}
}

// WithDeduper puts a fast claim in front of the provider-id uniqueness check.
func (in *Intake) WithDeduper(d Deduper) *Intake {
	in.dedupe = d
	return in
}

// Receive stores an inbound message as RECEIVED. A provider id seen before
// yields ErrDuplicate.
func (in *Intake) Receive(ctx context.Context, msg InboundMessage) (*model.Message, error) {
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}
	ch := msg.Type.Channel()
	if ch == "" {
		return nil, fmt.Errorf("%w: %w %q", model.ErrInvalidArgument, model.ErrUnsupportedMessageType, msg.Type)
	}

	claimKey := "inbound:" + msg.ProviderMessageID
	claimed := false
	if in.dedupe != nil {
		ok, err := in.dedupe.Claim(ctx, claimKey)
		switch {
		case err != nil:
			in.log.Warn("dedupe claim failed, falling back to store", "provider_message_id", msg.ProviderMessageID, "err", err)
		case !ok:
			return nil, ErrDuplicate
		default:
			claimed = true
		}
	}

	m, err := in.receive(ctx, msg, ch)
	if err != nil && claimed && !errors.Is(err, ErrDuplicate) {
		// let the provider's redelivery through
		if rerr := in.dedupe.Release(context.WithoutCancel(ctx), claimKey); rerr != nil {
			in.log.Warn("dedupe release failed", "provider_message_id", msg.ProviderMessageID, "err", rerr)
		}
	}
	return m, err
}

func (in *Intake) receive(ctx context.Context, msg InboundMessage, ch model.Channel) (*model.Message, error) {
	exists, err := in.messages.MessageExistsByProviderID(ctx, msg.ProviderMessageID)
	if err != nil {
		return nil, fmt.Errorf("check provider message id: %w", err)
	}
	if exists {
		return nil, ErrDuplicate
	}

	sender, recipient, conv, err := in.resolve(ctx, ch, msg.From, msg.To)
	if err != nil {
		return nil, err
	}

	now := in.now()
	ts := now
	if msg.Timestamp != nil && !msg.Timestamp.IsZero() {
		ts = *msg.Timestamp
	}
	providerID := msg.ProviderMessageID

	m := &model.Message{
		ID:                uuid.NewString(),
		ConversationID:    conv.ID,
		SenderID:          sender.ID,
		RecipientID:       recipient.ID,
		Type:              msg.Type,
		Direction:         model.Incoming,
		Body:              msg.Body,
		Attachments:       msg.Attachments,
		Status:            model.Received,
		ProviderMessageID: &providerID,
		Timestamp:         ts,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := in.messages.CreateMessage(ctx, m); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("create message: %w", err)
	}
	in.touch(ctx, conv.ID, now)

	in.log.Info("inbound message received", "message_id", m.ID, "type", m.Type, "provider_message_id", providerID)
	return m, nil
}

// Send stores an outbound message as QUEUED and schedules its dispatch. An
// enqueue failure leaves the row QUEUED for the requeuer to pick up.
func (in *Intake) Send(ctx context.Context, req OutboundRequest) (*model.Message, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidArgument, err)
	}
	ch := req.Type.Channel()
	if ch == "" {
		return nil, fmt.Errorf("%w: %w %q", model.ErrInvalidArgument, model.ErrUnsupportedMessageType, req.Type)
	}

	sender, recipient, conv, err := in.resolve(ctx, ch, req.Sender, req.Recipient)
	if err != nil {
		return nil, err
	}

	now := in.now()
	m := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		RecipientID:    recipient.ID,
		Type:           req.Type,
		Direction:      model.Outgoing,
		Body:           req.Body,
		Attachments:    req.Attachments,
		Status:         model.Queued,
		Timestamp:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := in.messages.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	in.touch(ctx, conv.ID, now)

	if err := in.enqueuer.EnqueueDispatch(ctx, m.ID); err != nil {
		in.log.Error("enqueue dispatch failed, message left queued", "message_id", m.ID, "err", err)
	} else {
		in.log.Info("outbound message queued", "message_id", m.ID, "type", m.Type)
	}
	return m, nil
}

func (in *Intake) resolve(ctx context.Context, ch model.Channel, from, to string) (*model.Participant, *model.Participant, *model.Conversation, error) {
	sender, err := in.participants.ResolveOrCreate(ctx, keyFor(ch, strings.TrimSpace(from)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("sender: %w", err)
	}
	recipient, err := in.participants.ResolveOrCreate(ctx, keyFor(ch, strings.TrimSpace(to)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("recipient: %w", err)
	}
	conv, err := in.conversations.ResolveOrCreate(ctx, sender, recipient)
	if err != nil {
		return nil, nil, nil, err
	}
	return sender, recipient, conv, nil
}

func (in *Intake) touch(ctx context.Context, conversationID string, at time.Time) {
	if err := in.conversations.Touch(ctx, conversationID, at); err != nil {
		in.log.Warn("touch conversation failed", "conversation_id", conversationID, "err", err)
	}
}
