package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/LeventeLantos/message-relay/internal/cache"
	"github.com/LeventeLantos/message-relay/internal/model"
	"github.com/LeventeLantos/message-relay/internal/service"
)

type createMessageRequest struct {
	Sender      string             `json:"sender"`
	Recipient   string             `json:"recipient"`
	MessageType string             `json:"message_type"`
	Body        string             `json:"body"`
	Attachments []model.Attachment `json:"attachments"`
}

type statusResponse struct {
	MessageID string       `json:"message_id"`
	Status    model.Status `json:"status"`
	LastError *string      `json:"last_error"`
	Source    string       `json:"source"`
}

func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
		return
	}

	msgType, err := model.ParseMessageType(req.MessageType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	m, err := h.intake.Send(r.Context(), service.OutboundRequest{
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Type:        msgType,
		Body:        req.Body,
		Attachments: req.Attachments,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.messages.ListMessages(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) ConversationMessages(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.messages.ListConversationMessages(r.Context(), r.PathValue("id"), limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": nonNil(items)})
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.messages.DeleteMessage(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	// a stale snapshot would keep answering the status endpoint until its TTL
	if h.statuses != nil {
		if err := h.statuses.DeleteStatus(r.Context(), id); err != nil {
			h.log.Warn("status cache evict failed", "message_id", id, "err", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// MessageStatus answers from the status cache when it has a snapshot and from
// the store otherwise.
func (h *Handler) MessageStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if h.statuses != nil {
		snap, err := h.statuses.LoadStatus(r.Context(), id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, statusResponse{MessageID: id, Status: snap.Status, LastError: snap.LastError, Source: "cache"})
			return
		case !errors.Is(err, cache.ErrMiss):
			h.log.Warn("status cache read failed", "message_id", id, "err", err)
		}
	}

	m, err := h.messages.GetMessage(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{MessageID: m.ID, Status: m.Status, LastError: m.LastError, Source: "store"})
}

func nonNil(items []model.Message) []model.Message {
	if items == nil {
		return []model.Message{}
	}
	return items
}
