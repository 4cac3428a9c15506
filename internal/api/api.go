package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"go.digilol.net/ticketd-plugin-nowpayments/internal/config"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

// NotificationHandler is the webhook core: it turns a raw signed callback
// into the HTTP status the endpoint must answer with.
type NotificationHandler interface {
	HandleNotification(ctx context.Context, rawBody []byte, signatureHeader string) int
}

// API owns the plugin's HTTP surface: the processor-facing webhook and the
// buyer-facing pay views. The host mounts it under its plugin prefix.
type API struct {
	cfg      *config.ProviderConfig
	notifier NotificationHandler
	store    payments.PaymentStore
	intents  payments.IntentStore
	logger   *zap.Logger
}

func New(cfg *config.ProviderConfig, notifier NotificationHandler, store payments.PaymentStore, intents payments.IntentStore, logger *zap.Logger) *API {
	return &API{
		cfg:      cfg,
		notifier: notifier,
		store:    store,
		intents:  intents,
		logger:   logger,
	}
}

// Configure mounts the plugin routes. The webhook takes no session auth (its
// authenticity comes from the body signature, so it needs no CSRF defence)
// and must work without any event scope: order codes span events. The status
// endpoint carries CORS headers so the pay page can poll it from an event
// subdomain.
func (a *API) Configure(router *mux.Router) {
	router.HandleFunc("/webhook", a.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/pay", a.handlePay).Methods(http.MethodGet)
	router.Handle("/pay/status",
		cors.Default().Handler(http.HandlerFunc(a.handlePayStatus))).Methods(http.MethodGet, http.MethodOptions)
}

// sessionID extracts the host session the pay views key intents on.
func (a *API) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(a.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
