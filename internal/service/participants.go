package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/repo"
)

var validate = validator.New()

// ParticipantKey carries the single identifier a participant is resolved by.
// Phone wins when both are set.
type ParticipantKey struct {
	Phone string
	Email string
}

func keyFor(ch model.Channel, address string) ParticipantKey {
	if ch == model.ChannelEmail {
		return ParticipantKey{Email: address}
	}
	return ParticipantKey{Phone: address}
}

type ParticipantResolver struct {
	repo repo.ParticipantRepository
	now  func() time.Time
}

func NewParticipantResolver(r repo.ParticipantRepository) *ParticipantResolver {
	return &ParticipantResolver{repo: r, now: time.Now}
}

// ResolveOrCreate returns the participant owning key, creating it on first sight.
// A concurrent create of the same key surfaces as repo.ErrConflict and is
// answered by re-reading the winner's row.
func (r *ParticipantResolver) ResolveOrCreate(ctx context.Context, key ParticipantKey) (*model.Participant, error) {
	phone := strings.TrimSpace(key.Phone)
	email := strings.TrimSpace(key.Email)

	switch {
	case phone != "":
		if err := validate.Var(phone, "e164"); err != nil {
			return nil, fmt.Errorf("%w: phone %q is not in E.164 format", model.ErrInvalidArgument, phone)
		}
		return r.resolve(ctx, r.repo.GetParticipantByPhone, phone, func(p *model.Participant) { p.Phone = &phone })
	case email != "":
		if err := validate.Var(email, "email"); err != nil {
			return nil, fmt.Errorf("%w: email %q is not a valid address", model.ErrInvalidArgument, email)
		}
		return r.resolve(ctx, r.repo.GetParticipantByEmail, email, func(p *model.Participant) { p.Email = &email })
	default:
		return nil, fmt.Errorf("%w: phone or email is required", model.ErrInvalidArgument)
	}
}

func (r *ParticipantResolver) resolve(
	ctx context.Context,
	get func(context.Context, string) (*model.Participant, error),
	value string,
	set func(*model.Participant),
) (*model.Participant, error) {
	p, err := get(ctx, value)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("lookup participant: %w", err)
	}

	p = &model.Participant{ID: uuid.NewString(), CreatedAt: r.now()}
	set(p)

	err = r.repo.CreateParticipant(ctx, p)
	if errors.Is(err, repo.ErrConflict) {
		p, err = get(ctx, value)
		if err != nil {
			return nil, fmt.Errorf("re-fetch participant after conflict: %w", err)
		}
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create participant: %w", err)
	}
	return p, nil
}
