package nowpayments

import "github.com/shopspring/decimal"

type StatusResponse struct {
	Message string `json:"message"`
}

type CurrenciesResponse struct {
	Currencies []string `json:"currencies"`
}

type MinimumAmountResponse struct {
	CurrencyFrom string          `json:"currency_from"`
	CurrencyTo   string          `json:"currency_to"`
	MinAmount    decimal.Decimal `json:"min_amount"`
}

type EstimateResponse struct {
	CurrencyFrom    string          `json:"currency_from"`
	CurrencyTo      string          `json:"currency_to"`
	AmountFrom      decimal.Decimal `json:"amount_from"`
	EstimatedAmount decimal.Decimal `json:"estimated_amount"`
}

type PaymentRequest struct {
	PriceAmount      decimal.Decimal `json:"price_amount"`
	PriceCurrency    string          `json:"price_currency"`
	PayCurrency      string          `json:"pay_currency"`
	IPNCallbackURL   string          `json:"ipn_callback_url"`
	OrderID          string          `json:"order_id"`
	OrderDescription string          `json:"order_description"`
}

type PaymentResponse struct {
	PaymentID     string          `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	PayAddress    string          `json:"pay_address"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	PayCurrency   string          `json:"pay_currency"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	OrderID       string          `json:"order_id"`
}
