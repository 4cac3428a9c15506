package messages

// CallbackEnvelope is the slice of the processor's IPN payload the plugin
// acts on. Signature verification happens over the raw body, never over this
// struct; additional fields are preserved verbatim in the record's info.
type CallbackEnvelope struct {
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id"`
}

// PayStatusResponse is the JSON body of the pay-status polling endpoint.
type PayStatusResponse struct {
	State         string `json:"state"`
	PaymentStatus string `json:"payment_status"`
	OrderCode     string `json:"order_code"`
}
