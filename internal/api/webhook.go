package api

import (
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const signatureHeader = "x-nowpayments-sig"

// handleWebhook receives the processor's asynchronous payment notifications.
// The response is a bare status code; the processor only looks at the code.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	callbackID := uuid.NewString()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		a.logger.Error("failed to read callback body",
			zap.String("callback_id", callbackID), zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	a.logger.Info("received payment callback",
		zap.String("callback_id", callbackID),
		zap.Int("body_bytes", len(body)))

	status := a.notifier.HandleNotification(r.Context(), body, r.Header.Get(signatureHeader))

	a.logger.Info("payment callback handled",
		zap.String("callback_id", callbackID),
		zap.Int("status", status))

	w.WriteHeader(status)
}
