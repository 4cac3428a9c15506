package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	npapi "go.digilol.net/ticketd-plugin-nowpayments/internal/client/nowpayments"
	"go.digilol.net/ticketd-plugin-nowpayments/internal/retry"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

func reject(format string, args ...any) *payments.Decision {
	return &payments.Decision{Message: fmt.Sprintf(format, args...)}
}

// Negotiate decides, synchronously during checkout, whether a crypto payment
// in payCurrency is currently viable for the given cart total, and computes
// the crypto amount to present. Processor failures never escalate past this
// boundary: the buyer gets a rejection with a readable message and can pick
// another payment method.
//
// Only the minimum-amount and price-estimate endpoints are retried; those are
// the ones that return transient 5xx errors in practice. The status and
// currency-list endpoints are stable, and a single failure there rejects
// immediately to keep checkout latency bounded.
func (s *PaymentServiceDefault) Negotiate(ctx context.Context, total decimal.Decimal, eventCurrency, payCurrency string) *payments.Decision {
	if total.Sign() <= 0 {
		return reject("Invalid cart total.")
	}

	eventCurrency = strings.ToLower(eventCurrency)
	payCurrency = strings.ToLower(payCurrency)

	status, err := s.client.Status(ctx)
	if err != nil {
		return reject("Failed to get NOWPayments API status: %v", err)
	}
	if status.Message != "OK" {
		return reject("NOWPayments API is currently unavailable. Try again later.")
	}

	currencies, err := s.client.AvailableCurrencies(ctx)
	if err != nil {
		return reject("Failed to get available currencies from NOWPayments: %v", err)
	}
	if !lo.Contains(currencies.Currencies, payCurrency) {
		return reject("The selected currency is currently unavailable on NOWPayments.")
	}

	min, err := retry.DoValue(ctx, retryAttempts, s.retryDelay, func() (*npapi.MinimumAmountResponse, error) {
		return s.client.MinimumAmount(ctx, payCurrency)
	})
	if err != nil {
		return reject("Try again. Failed to get minimum payment amount from NOWPayments: %v", err)
	}

	est, err := retry.DoValue(ctx, retryAttempts, s.retryDelay, func() (*npapi.EstimateResponse, error) {
		return s.client.EstimatePrice(ctx, total, eventCurrency, payCurrency)
	})
	if err != nil {
		return reject("Try again. Failed to get price estimate from NOWPayments: %v", err)
	}

	if est.EstimatedAmount.LessThan(min.MinAmount) {
		return reject("Payment amount cannot be smaller than the minimum allowed amount.")
	}

	s.logger.Info("checkout negotiation accepted",
		zap.String("pay_currency", payCurrency),
		zap.String("estimated_amount", est.EstimatedAmount.String()),
		zap.String("min_amount", min.MinAmount.String()),
	)

	return &payments.Decision{
		OK:        true,
		Currency:  payCurrency,
		PayAmount: est.EstimatedAmount,
	}
}

// CreateIntent creates the payment on the processor and returns the intent
// the pay view renders. Unlike negotiation this runs after the buyer has
// confirmed checkout, so exhausting the retry budget is a fatal
// *payments.PaymentError rather than a rejection.
func (s *PaymentServiceDefault) CreateIntent(ctx context.Context, payment *payments.PaymentRecord, payCurrency, eventName, callbackURL string) (*payments.PaymentIntent, error) {
	payCurrency = strings.ToLower(payCurrency)

	req := &npapi.PaymentRequest{
		PriceAmount:      payment.Amount,
		PriceCurrency:    strings.ToLower(payment.Currency),
		PayCurrency:      payCurrency,
		IPNCallbackURL:   callbackURL,
		OrderID:          payment.OrderCode,
		OrderDescription: fmt.Sprintf("Order #%s for %s", payment.OrderCode, eventName),
	}

	created, err := retry.DoValue(ctx, retryAttempts, s.retryDelay, func() (*npapi.PaymentResponse, error) {
		return s.client.CreatePayment(ctx, req)
	})
	if err != nil {
		return nil, &payments.PaymentError{Op: "Failed to create payment on NOWPayments", Err: err}
	}

	return &payments.PaymentIntent{
		Currency:   payCurrency,
		PayAmount:  created.PayAmount,
		PayAddress: created.PayAddress,
		PaymentID:  payment.ID,
		OrderCode:  payment.OrderCode,
	}, nil
}
