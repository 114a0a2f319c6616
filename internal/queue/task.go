package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
)

const TypeDispatch = "message:dispatch"

type dispatchPayload struct {
	MessageID string `json:"message_id"`
}

// Dispatcher runs one delivery attempt for a stored message.
type Dispatcher interface {
	Dispatch(ctx context.Context, messageID string) error
}

func NewDispatchTask(messageID string) (*asynq.Task, error) {
	if messageID == "" {
		return nil, errors.New("message id is required")
	}
	b, err := json.Marshal(dispatchPayload{MessageID: messageID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDispatch, b), nil
}

func parseDispatchPayload(b []byte) (string, error) {
	var p dispatchPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return "", fmt.Errorf("decode %s payload: %w", TypeDispatch, err)
	}
	if p.MessageID == "" {
		return "", fmt.Errorf("%s payload has no message_id", TypeDispatch)
	}
	return p.MessageID, nil
}
