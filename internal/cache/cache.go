package cache

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/message-relay/internal/model"
)

// ErrMiss signals an absent or expired key.
var ErrMiss = errors.New("cache miss")

// Snapshot is the last status the dispatcher recorded for a message.
type Snapshot struct {
	MessageID string       `json:"messageId"`
	Status    model.Status `json:"status"`
	LastError *string      `json:"lastError,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type StatusCache interface {
	StoreStatus(ctx context.Context, s Snapshot) error
	LoadStatus(ctx context.Context, messageID string) (*Snapshot, error)
	DeleteStatus(ctx context.Context, messageID string) error
}
