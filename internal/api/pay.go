package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"image/png"
	"net/http"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
	"go.uber.org/zap"

	"go.digilol.net/ticketd-plugin-nowpayments/internal/api/messages"
	internalservice "go.digilol.net/ticketd-plugin-nowpayments/internal/service"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

const defaultCallbackStatus = "waiting"

// handlePay renders the buyer-facing payment instructions. Branch order
// matters: a confirmed payment always redirects to the receipt, even when a
// stale quota flag is also present from a historical race.
func (a *API) handlePay(w http.ResponseWriter, r *http.Request) {
	intent, err := a.intents.Get(r.Context(), a.sessionID(r))
	if err != nil {
		if errors.Is(err, payments.ErrNoIntent) {
			http.Error(w, "no pending payment in this session", http.StatusNotFound)
			return
		}
		a.logger.Error("intent lookup failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	payment, err := a.store.PaymentByID(r.Context(), intent.PaymentID)
	if err != nil {
		a.logger.Error("payment lookup failed",
			zap.Uint("payment_id", intent.PaymentID), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if payment.State == payments.StateConfirmed {
		http.Redirect(w, r, fmt.Sprintf(a.cfg.ReceiptURL, payment.OrderCode)+"?paid=yes", http.StatusFound)
		return
	}

	if quotaExceeded(payment) {
		a.render(w, failedTemplate, map[string]any{
			"Email":     a.cfg.SupportEmail,
			"OrderCode": payment.OrderCode,
		})
		return
	}

	uri := paymentURI(intent)
	qrImage, err := qrPNGBase64(uri)
	if err != nil {
		a.logger.Error("failed to render payment QR code", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	a.render(w, payTemplate, map[string]any{
		"Address":  intent.PayAddress,
		"Amount":   intent.PayAmount.String(),
		"Currency": strings.ToUpper(intent.Currency),
		"Status":   callbackStatus(payment),
		"URI":      uri,
		"QR":       qrImage,
	})
}

// handlePayStatus is the polling target of the pending pay page.
func (a *API) handlePayStatus(w http.ResponseWriter, r *http.Request) {
	intent, err := a.intents.Get(r.Context(), a.sessionID(r))
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	payment, err := a.store.PaymentByID(r.Context(), intent.PaymentID)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(&messages.PayStatusResponse{
		State:         string(payment.State),
		PaymentStatus: callbackStatus(payment),
		OrderCode:     payment.OrderCode,
	})
}

func (a *API) render(w http.ResponseWriter, tmpl *template.Template, data map[string]any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		a.logger.Error("template render failed", zap.Error(err))
	}
}

func quotaExceeded(payment *payments.PaymentRecord) bool {
	flag, _ := payment.Info[internalservice.InfoKeyQuotaExceeded].(bool)
	return flag
}

// callbackStatus extracts the processor status from the last stored callback,
// defaulting to "waiting" before the first notification arrives.
func callbackStatus(payment *payments.PaymentRecord) string {
	callback, ok := payment.Info[internalservice.InfoKeyCallback].(map[string]any)
	if !ok {
		return defaultCallbackStatus
	}
	status, ok := callback["payment_status"].(string)
	if !ok || status == "" {
		return defaultCallbackStatus
	}
	return status
}

// paymentURI builds the wallet-scannable URI. Monero wallets take the amount
// as tx_amount; Bitcoin wallets per BIP-21 take amount.
func paymentURI(intent *payments.PaymentIntent) string {
	if intent.Currency == "btc" {
		return fmt.Sprintf("bitcoin:%s?amount=%s", intent.PayAddress, intent.PayAmount.String())
	}
	return fmt.Sprintf("monero:%s?tx_amount=%s", intent.PayAddress, intent.PayAmount.String())
}

func qrPNGBase64(uri string) (string, error) {
	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode QR: %w", err)
	}
	code, err = barcode.Scale(code, 256, 256)
	if err != nil {
		return "", fmt.Errorf("scale QR: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("render QR PNG: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

var payTemplate = template.Must(template.New("pay").Parse(`<!doctype html>
<html>
<head><title>Pay with {{.Currency}}</title></head>
<body>
<h1>Complete your payment</h1>
<p>Send exactly <strong>{{.Amount}} {{.Currency}}</strong> to:</p>
<p><code>{{.Address}}</code></p>
<p><img alt="payment QR code" src="data:image/png;base64,{{.QR}}"></p>
<p><a href="{{.URI}}">Open in wallet</a></p>
<p>Status: {{.Status}}. This page refreshes once the payment is detected.</p>
</body>
</html>
`))

var failedTemplate = template.Must(template.New("failed").Parse(`<!doctype html>
<html>
<head><title>Order could not be completed</title></head>
<body>
<h1>Payment received, but your order could not be completed</h1>
<p>The tickets for order <strong>{{.OrderCode}}</strong> sold out before your
payment arrived. Please contact the organizer at
<a href="mailto:{{.Email}}">{{.Email}}</a> to resolve this.</p>
</body>
</html>
`))
