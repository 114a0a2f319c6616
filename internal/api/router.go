package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)

	mux.HandleFunc("POST /v1/webhooks/text/inbound", h.TextInbound)
	mux.HandleFunc("POST /v1/webhooks/email/inbound", h.EmailInbound)

	mux.HandleFunc("POST /v1/messages", h.CreateMessage)
	mux.HandleFunc("GET /v1/messages", h.ListMessages)
	mux.HandleFunc("GET /v1/messages/{id}", h.GetMessage)
	mux.HandleFunc("DELETE /v1/messages/{id}", h.DeleteMessage)
	mux.HandleFunc("GET /v1/messages/{id}/status", h.MessageStatus)
	mux.HandleFunc("GET /v1/conversations/{id}/messages", h.ConversationMessages)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("message-relay"))
	})

	return mux
}
