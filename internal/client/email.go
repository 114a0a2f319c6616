package client

import (
	"context"

	"github.com/LeventeLantos/message-relay/internal/model"
)

type emailRequest struct {
	To          string             `json:"to"`
	From        string             `json:"from"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments"`
	Timestamp   string             `json:"timestamp"`
}

type EmailClient struct {
	*Provider
}

func NewEmailClient(url string, opts Options) *EmailClient {
	return &EmailClient{Provider: newProvider("email", url, opts)}
}

func (c *EmailClient) Send(ctx context.Context, env model.Envelope) (*model.ProviderResponse, error) {
	attachments := env.Attachments
	if attachments == nil {
		attachments = []model.Attachment{}
	}
	return c.post(ctx, emailRequest{
		To:          env.To,
		From:        env.From,
		Body:        env.Body,
		Attachments: attachments,
		Timestamp:   env.Timestamp.Local().Format(timestampLayout),
	})
}
