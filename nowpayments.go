// Package nowpayments is a payment provider plugin for the ticketd
// event-ticketing platform. It accepts Monero and Bitcoin payments through
// the NOWPayments processor: checkout negotiates a crypto price, the buyer
// pays to a generated address, and the processor's signed callback confirms
// the order.
package nowpayments

import (
	"context"
	"fmt"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"go.digilol.net/ticketd-plugin-nowpayments/internal/api"
	npclient "go.digilol.net/ticketd-plugin-nowpayments/internal/client/nowpayments"
	"go.digilol.net/ticketd-plugin-nowpayments/internal/config"
	internalservice "go.digilol.net/ticketd-plugin-nowpayments/internal/service"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

const (
	ProviderID   = "nowpayments"
	ProviderName = "NOWPayments"
)

// Currency is a buyer-selectable payment currency for the host's checkout
// form. Selection is still validated dynamically against the processor's
// currency list during negotiation.
type Currency struct {
	Code  string
	Label string
}

func PaymentCurrencies() []Currency {
	return []Currency{
		{Code: "xmr", Label: "Monero"},
		{Code: "btc", Label: "Bitcoin"},
	}
}

type checkoutService interface {
	Negotiate(ctx context.Context, total decimal.Decimal, eventCurrency, payCurrency string) *payments.Decision
	CreateIntent(ctx context.Context, payment *payments.PaymentRecord, payCurrency, eventName, callbackURL string) (*payments.PaymentIntent, error)
}

// Provider wires the plugin together for the host: checkout entry points and
// the HTTP surface (webhook, pay views).
type Provider struct {
	cfg     *config.ProviderConfig
	svc     checkoutService
	intents payments.IntentStore
	api     *api.API
	logger  *zap.Logger
}

// New builds the provider from configuration. The processor client is
// constructed here, live or sandbox per config, and nowhere else.
func New(cfg *config.ProviderConfig, store payments.PaymentStore, intents payments.IntentStore, logger *zap.Logger) *Provider {
	client := npclient.New(npclient.ClientConfig{
		APIKey:  cfg.APIKey,
		Sandbox: cfg.Sandbox(),
	}, logger)
	svc := internalservice.NewPaymentService(cfg, client, store, logger)

	return &Provider{
		cfg:     cfg,
		svc:     svc,
		intents: intents,
		api:     api.New(cfg, svc, store, intents, logger),
		logger:  logger,
	}
}

// ConfigureRouter mounts the plugin's routes; the host passes the subrouter
// for its plugin prefix.
func (p *Provider) ConfigureRouter(router *mux.Router) {
	p.api.Configure(router)
}

// CheckoutPrepare runs during checkout, before the order exists. On an
// accepting decision the currency choice is parked in the buyer's session
// for ExecutePayment.
func (p *Provider) CheckoutPrepare(ctx context.Context, sessionID string, cartTotal decimal.Decimal, eventCurrency, payCurrency string) *payments.Decision {
	decision := p.svc.Negotiate(ctx, cartTotal, eventCurrency, payCurrency)
	if !decision.OK {
		return decision
	}

	err := p.intents.Put(ctx, sessionID, &payments.PaymentIntent{Currency: decision.Currency})
	if err != nil {
		p.logger.Error("failed to store currency selection", zap.Error(err))
		return &payments.Decision{Message: "An error occurred, please try again."}
	}

	p.logger.Info("selected payment currency",
		zap.String("currency", decision.Currency))
	return decision
}

// ExecutePayment runs once the order is placed: it creates the payment on
// the processor using the currency chosen at CheckoutPrepare and completes
// the session intent the pay view renders from.
func (p *Provider) ExecutePayment(ctx context.Context, sessionID string, payment *payments.PaymentRecord, eventName, callbackURL string) (*payments.PaymentIntent, error) {
	selection, err := p.intents.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load currency selection: %w", err)
	}

	intent, err := p.svc.CreateIntent(ctx, payment, selection.Currency, eventName, callbackURL)
	if err != nil {
		return nil, err
	}

	if err := p.intents.Put(ctx, sessionID, intent); err != nil {
		return nil, fmt.Errorf("store payment intent: %w", err)
	}

	return intent, nil
}
