package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/service"
)

type textInbound struct {
	To                  string             `json:"to"`
	From                string             `json:"from"`
	Type                string             `json:"type"`
	Body                string             `json:"body"`
	MessagingProviderID string             `json:"messaging_provider_id"`
	Attachments         []model.Attachment `json:"attachments"`
	Timestamp           string             `json:"timestamp"`
}

type emailInbound struct {
	To          string             `json:"to"`
	From        string             `json:"from"`
	Body        string             `json:"body"`
	XillioID    string             `json:"xillio_id"`
	Attachments []model.Attachment `json:"attachments"`
	Timestamp   string             `json:"timestamp"`
}

const missingFields = "Missing required fields"

func (h *Handler) TextInbound(w http.ResponseWriter, r *http.Request) {
	var in textInbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if blank(in.To, in.From, in.Type, in.Body, in.MessagingProviderID) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": missingFields})
		return
	}

	msgType, err := model.ParseMessageType(in.Type)
	if err != nil || msgType.Channel() != model.ChannelText {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": fmt.Sprintf("unsupported text message type %q", in.Type)})
		return
	}

	h.receive(w, r, in.Timestamp, service.InboundMessage{
		To:                in.To,
		From:              in.From,
		Type:              msgType,
		Body:              in.Body,
		ProviderMessageID: in.MessagingProviderID,
		Attachments:       in.Attachments,
	})
}

func (h *Handler) EmailInbound(w http.ResponseWriter, r *http.Request) {
	var in emailInbound
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}
	if blank(in.To, in.From, in.Body, in.XillioID) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": missingFields})
		return
	}

	h.receive(w, r, in.Timestamp, service.InboundMessage{
		To:                in.To,
		From:              in.From,
		Type:              model.Email,
		Body:              in.Body,
		ProviderMessageID: in.XillioID,
		Attachments:       in.Attachments,
	})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request, rawTimestamp string, msg service.InboundMessage) {
	ts, err := parseTimestamp(rawTimestamp)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	msg.Timestamp = ts

	m, err := h.intake.Receive(r.Context(), msg)
	if errors.Is(err, service.ErrDuplicate) {
		writeJSON(w, http.StatusOK, map[string]any{"detail": "Duplicate message"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"detail": "Message received successfully", "id": m.ID})
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// parseTimestamp accepts ISO-8601 with or without a zone; zoneless values are UTC.
func parseTimestamp(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid timestamp %q", raw)
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
