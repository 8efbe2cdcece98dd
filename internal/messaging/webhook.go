package messaging

import (
	"log/slog"
	"net/http"
)

// InboundWebhookHandler adapts Twilio's inbound message webhook to the
// event stream. Twilio posts form-encoded From and Body fields and expects
// a 2xx; an empty TwiML document tells it not to auto-reply.
func InboundWebhookHandler(s *TwilioService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := r.ParseForm(); err != nil {
			slog.Warn("webhook: malformed form payload", "error", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		from := r.PostFormValue("From")
		body := r.PostFormValue("Body")
		if from == "" {
			slog.Warn("webhook: inbound message without sender")
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.HandleInbound(from, body)

		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`)); err != nil {
			slog.Warn("webhook: failed to write response", "error", err)
		}
	})
}
