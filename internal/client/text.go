package client

import (
	"context"

	"github.com/LeventeLantos/message-relay/internal/model"
)

type textRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Type string `json:"type"`
	Body string `json:"body"`
	// nil encodes as null, which the text provider treats as "no attachments"
	Attachments []model.Attachment `json:"attachments"`
	Timestamp   string             `json:"timestamp"`
}

// TextClient delivers SMS and MMS.
type TextClient struct {
	*Provider
}

func NewTextClient(url string, opts Options) *TextClient {
	return &TextClient{Provider: newProvider("text", url, opts)}
}

// Send posts env to the text provider. No attachments are sent as null, not [].
func (c *TextClient) Send(ctx context.Context, env model.Envelope) (*model.ProviderResponse, error) {
	attachments := env.Attachments
	if len(attachments) == 0 {
		attachments = nil
	}
	return c.post(ctx, textRequest{
		To:          env.To,
		From:        env.From,
		Type:        string(env.Type),
		Body:        env.Body,
		Attachments: attachments,
		Timestamp:   env.Timestamp.Local().Format(timestampLayout),
	})
}
