//go:generate go run go.uber.org/mock/mockgen -source=repo.go -destination=mocks/mock_repo.go -package=mocks
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/message-relay/internal/model"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert hits a uniqueness constraint.
	ErrConflict = errors.New("unique constraint conflict")
)

type ParticipantRepository interface {
	GetParticipant(ctx context.Context, id string) (*model.Participant, error)
	GetParticipantByPhone(ctx context.Context, phone string) (*model.Participant, error)
	GetParticipantByEmail(ctx context.Context, email string) (*model.Participant, error)
	CreateParticipant(ctx context.Context, p *model.Participant) error
}

type ConversationRepository interface {
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// GetConversationByParticipants expects the pair already ordered (a <= b).
	GetConversationByParticipants(ctx context.Context, a, b string) (*model.Conversation, error)
	CreateConversation(ctx context.Context, c *model.Conversation) error
	TouchConversation(ctx context.Context, id string, at time.Time) error
}
