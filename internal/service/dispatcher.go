package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/repo"
)

const unsupportedTypeReason = "Unsupported message type"

// Dispatcher performs one delivery attempt for an outbound message. Retrying is
// left to the caller's RetryPolicy, and every retry re-sends to the provider, so
// delivery is at-least-once.
type Dispatcher struct {
	messages     repo.MessageRepository
	participants repo.ParticipantRepository
	transports   map[model.Channel]Transport
	log          *slog.Logger
	now          func() time.Time

	onStatus func(ctx context.Context, m model.Message)
}

func NewDispatcher(
	messages repo.MessageRepository,
	participants repo.ParticipantRepository,
	transports map[model.Channel]Transport,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		messages:     messages,
		participants: participants,
		transports:   transports,
		log:          logger.With("component", "dispatcher"),
		now:          time.Now,
	}
}

// WithStatusHook registers fn to observe every persisted status change.
func (d *Dispatcher) WithStatusHook(fn func(ctx context.Context, m model.Message)) *Dispatcher {
	d.onStatus = fn
	return d
}

func (d *Dispatcher) Dispatch(ctx context.Context, messageID string) error {
	m, err := d.messages.GetMessage(ctx, messageID)
	if errors.Is(err, repo.ErrNotFound) {
		return Permanent(fmt.Errorf("message %s: %w", messageID, err))
	}
	if err != nil {
		return fmt.Errorf("load message %s: %w", messageID, err)
	}

	if m.Direction != model.Outgoing {
		return Permanent(fmt.Errorf("message %s is %s, only outgoing messages are dispatched", m.ID, m.Direction))
	}
	if m.Status == model.Sent {
		d.log.Info("message already sent, skipping", "message_id", m.ID)
		return nil
	}
	if !model.CanTransition(m.Status, model.Sending) {
		return Permanent(fmt.Errorf("message %s cannot be dispatched from %s", m.ID, m.Status))
	}

	if err := d.setStatus(ctx, m, model.Sending, nil); err != nil {
		return fmt.Errorf("mark sending: %w", err)
	}

	if err := d.deliver(ctx, m); err != nil {
		// the cleanup write always lands, even when the unsupported branch already wrote FAILED
		reason := failureReason(err)
		if werr := d.setStatus(context.WithoutCancel(ctx), m, model.Failed, &reason); werr != nil {
			d.log.Error("failed to record delivery failure", "message_id", m.ID, "err", werr)
		}
		d.log.Warn("dispatch attempt failed", "message_id", m.ID, "type", m.Type, "retryable", IsRetryable(err), "err", err)
		return err
	}

	if err := d.setStatus(ctx, m, model.Sent, nil); err != nil {
		// the provider already accepted it; retrying would send it again
		return Permanent(fmt.Errorf("message %s delivered but not marked sent: %w", m.ID, err))
	}
	d.log.Info("message sent", "message_id", m.ID, "type", m.Type)
	return nil
}

func (d *Dispatcher) deliver(ctx context.Context, m *model.Message) error {
	ch := m.Type.Channel()
	if ch == "" {
		reason := unsupportedTypeReason
		if err := d.setStatus(ctx, m, model.Failed, &reason); err != nil {
			d.log.Error("failed to record unsupported type", "message_id", m.ID, "err", err)
		}
		return Permanent(fmt.Errorf("%w: %q", model.ErrUnsupportedMessageType, m.Type))
	}

	transport, ok := d.transports[ch]
	if !ok {
		return Permanent(fmt.Errorf("no transport configured for %s messages", ch))
	}

	env, err := d.envelope(ctx, m, ch)
	if err != nil {
		return err
	}

	resp, err := transport.Send(ctx, env)
	if err != nil {
		return err
	}
	if resp != nil {
		d.log.Debug("provider accepted message", "message_id", m.ID, "status_code", resp.StatusCode)
	}
	return nil
}

func (d *Dispatcher) envelope(ctx context.Context, m *model.Message, ch model.Channel) (model.Envelope, error) {
	to, err := d.address(ctx, m.RecipientID, ch)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("recipient: %w", err)
	}
	from, err := d.address(ctx, m.SenderID, ch)
	if err != nil {
		return model.Envelope{}, fmt.Errorf("sender: %w", err)
	}
	return model.Envelope{
		To:          to,
		From:        from,
		Type:        m.Type,
		Body:        m.Body,
		Attachments: m.Attachments,
		Timestamp:   d.now(),
	}, nil
}

func (d *Dispatcher) address(ctx context.Context, participantID string, ch model.Channel) (string, error) {
	p, err := d.participants.GetParticipant(ctx, participantID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", Permanent(fmt.Errorf("participant %s: %w", participantID, err))
	}
	if err != nil {
		return "", err
	}
	addr, ok := p.Address(ch)
	if !ok {
		return "", Permanent(fmt.Errorf("participant %s has no %s address", participantID, ch))
	}
	return addr, nil
}

func (d *Dispatcher) setStatus(ctx context.Context, m *model.Message, status model.Status, lastError *string) error {
	if err := d.messages.UpdateMessageStatus(ctx, m.ID, status, lastError); err != nil {
		return err
	}
	m.Status = status
	m.LastError = lastError
	m.UpdatedAt = d.now()

	if d.onStatus != nil {
		d.onStatus(ctx, *m)
	}
	return nil
}

func failureReason(err error) string {
	if errors.Is(err, model.ErrUnsupportedMessageType) {
		return unsupportedTypeReason
	}
	return err.Error()
}
