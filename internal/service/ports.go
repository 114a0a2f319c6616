//go:generate go run go.uber.org/mock/mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
package service

import (
	"context"

	"github.com/LeventeLantos/message-relay/internal/model"
)

// Transport delivers one envelope to an external provider.
type Transport interface {
	Send(ctx context.Context, env model.Envelope) (*model.ProviderResponse, error)
}

// Enqueuer schedules a dispatch for a stored outbound message.
type Enqueuer interface {
	EnqueueDispatch(ctx context.Context, messageID string) error
}

// Deduper guards inbound webhooks against provider redelivery.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}
