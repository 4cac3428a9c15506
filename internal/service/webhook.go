package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"go.digilol.net/ticketd-plugin-nowpayments/internal/api/messages"
	"go.digilol.net/ticketd-plugin-nowpayments/internal/signature"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

// PaymentStatusFinished is the terminal processor status; every other status
// is acknowledged without a state change, since the processor keeps sending
// notifications as the payment evolves.
const PaymentStatusFinished = "finished"

// A correctly signed notification naming an unknown order is a
// data-consistency problem, not a benign miss, so it alarms as a server
// error. If the live processor turns out to retry permanent 500s forever,
// this is the one constant to revisit.
const statusUnknownOrder = http.StatusInternalServerError

// HandleNotification authenticates an inbound IPN callback and applies the
// confirmation state machine to the referenced payment. It always runs to a
// definite HTTP status; it never returns an error to the transport.
//
// The signature check is the sole authentication boundary: until it passes,
// the body is attacker-controlled and nothing is looked up or written.
func (s *PaymentServiceDefault) HandleNotification(ctx context.Context, rawBody []byte, signatureHeader string) int {
	if signatureHeader == "" {
		s.logger.Error("x-nowpayments-sig header is missing in callback")
		return http.StatusBadRequest
	}

	if _, err := signature.Canonicalize(rawBody); err != nil {
		s.logger.Error("failed to parse callback body", zap.Error(err))
		return http.StatusBadRequest
	}

	if len(s.cfg.IPNSecret) == 0 {
		s.logger.Error("IPN secret is not configured")
		return http.StatusInternalServerError
	}

	err := signature.Verify(rawBody, signatureHeader, []byte(s.cfg.IPNSecret))
	switch {
	case errors.Is(err, signature.ErrNoSecret):
		s.logger.Error("failed to compute callback HMAC", zap.Error(err))
		return http.StatusInternalServerError
	case err != nil:
		s.logger.Error("callback signature verification failed", zap.Error(err))
		return http.StatusBadRequest
	}

	var envelope messages.CallbackEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		s.logger.Error("failed to decode callback envelope", zap.Error(err))
		return http.StatusBadRequest
	}

	payment, err := s.store.LatestPaymentByOrderCode(ctx, envelope.OrderID)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			s.logger.Error("callback references unknown order",
				zap.String("order_id", envelope.OrderID))
			return statusUnknownOrder
		}
		s.logger.Error("payment lookup failed",
			zap.String("order_id", envelope.OrderID), zap.Error(err))
		return http.StatusInternalServerError
	}

	// Stash the raw callback before any confirmation attempt so operators can
	// inspect the full notification history even when later steps no-op.
	var callback map[string]any
	_ = json.Unmarshal(rawBody, &callback)
	if err := s.store.MergeInfo(ctx, payment.ID, InfoKeyCallback, callback); err != nil {
		s.logger.Error("failed to persist callback payload",
			zap.Uint("payment_id", payment.ID), zap.Error(err))
		return http.StatusInternalServerError
	}

	if envelope.PaymentStatus != PaymentStatusFinished {
		s.logger.Info("callback payment_status isn't finished, ignoring",
			zap.String("order_id", envelope.OrderID),
			zap.String("payment_status", envelope.PaymentStatus))
		return http.StatusOK
	}

	err = s.store.Confirm(ctx, payment.ID)
	switch {
	case err == nil:
		s.logger.Info("payment confirmed",
			zap.Uint("payment_id", payment.ID),
			zap.String("order_code", payment.OrderCode))
		return http.StatusOK

	case errors.Is(err, payments.ErrCapacityExceeded):
		// The payment arrived but the tickets are gone. The notification was
		// valid, so acknowledge it; the business failure is flagged for
		// manual reconciliation instead of bouncing the processor.
		if mergeErr := s.store.MergeInfo(ctx, payment.ID, InfoKeyQuotaExceeded, true); mergeErr != nil {
			s.logger.Error("failed to flag quota exhaustion",
				zap.Uint("payment_id", payment.ID), zap.Error(mergeErr))
		}
		s.logger.Error("payment was received but there are no tickets left",
			zap.String("order_code", payment.OrderCode))
		return http.StatusOK

	default:
		s.logger.Error("payment confirmation failed",
			zap.Uint("payment_id", payment.ID), zap.Error(err))
		return http.StatusInternalServerError
	}
}
