package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	npapi "go.digilol.net/ticketd-plugin-nowpayments/internal/client/nowpayments"
	"go.digilol.net/ticketd-plugin-nowpayments/internal/config"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

// Retry bound for the processor endpoints known to return transient 5xx
// errors. Worst case this adds attempts*delay of latency per flaky call, so
// the bound stays small and the delay fixed.
const (
	retryAttempts = 5
	retryDelay    = 500 * time.Millisecond
)

// Keys the plugin owns inside the payment record's info metadata.
const (
	InfoKeyCallback      = "nowpayments"
	InfoKeyQuotaExceeded = "quota_exceeded"
)

// ProcessorClient is the slice of the NOWPayments API the payment service
// consumes. *nowpayments.Client implements it; tests substitute fakes.
type ProcessorClient interface {
	Status(ctx context.Context) (*npapi.StatusResponse, error)
	AvailableCurrencies(ctx context.Context) (*npapi.CurrenciesResponse, error)
	MinimumAmount(ctx context.Context, currency string) (*npapi.MinimumAmountResponse, error)
	EstimatePrice(ctx context.Context, amount decimal.Decimal, fromCurrency, toCurrency string) (*npapi.EstimateResponse, error)
	CreatePayment(ctx context.Context, req *npapi.PaymentRequest) (*npapi.PaymentResponse, error)
}

type PaymentServiceDefault struct {
	cfg        *config.ProviderConfig
	client     ProcessorClient
	store      payments.PaymentStore
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewPaymentService(cfg *config.ProviderConfig, client ProcessorClient, store payments.PaymentStore, logger *zap.Logger) *PaymentServiceDefault {
	return &PaymentServiceDefault{
		cfg:        cfg,
		client:     client,
		store:      store,
		logger:     logger,
		retryDelay: retryDelay,
	}
}
