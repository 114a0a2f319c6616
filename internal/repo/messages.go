//go:generate go run go.uber.org/mock/mockgen -source=messages.go -destination=mocks/mock_messages.go -package=mocks
package repo

import (
	"context"
	"time"

	"github.com/LeventeLantos/message-relay/internal/model"
)

type MessageRepository interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	GetMessage(ctx context.Context, id string) (*model.Message, error)
	MessageExistsByProviderID(ctx context.Context, providerMessageID string) (bool, error)
	UpdateMessageStatus(ctx context.Context, id string, status model.Status, lastError *string) error
	ListMessages(ctx context.Context, limit, offset int) ([]model.Message, error)
	ListConversationMessages(ctx context.Context, conversationID string, limit, offset int) ([]model.Message, error)
	// ClaimStaleQueued returns QUEUED messages not touched since before and bumps
	// their updated_at so concurrent sweepers skip them.
	ClaimStaleQueued(ctx context.Context, before time.Time, limit int) ([]model.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
