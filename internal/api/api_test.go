package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go.digilol.net/ticketd-plugin-nowpayments/internal/config"
	internalservice "go.digilol.net/ticketd-plugin-nowpayments/internal/service"
	"go.digilol.net/ticketd-plugin-nowpayments/internal/session"
	"go.digilol.net/ticketd-plugin-nowpayments/internal/signature"
	payments "go.digilol.net/ticketd-plugin-nowpayments/service"
)

const (
	testSecret  = "ipn-secret"
	testCookie  = "ticketd_session"
	testSession = "sess-1"
)

type fakeStore struct {
	byID       map[uint]*payments.PaymentRecord
	byCode     map[string]*payments.PaymentRecord
	confirmErr error
}

func newFakeStore(records ...*payments.PaymentRecord) *fakeStore {
	s := &fakeStore{
		byID:   map[uint]*payments.PaymentRecord{},
		byCode: map[string]*payments.PaymentRecord{},
	}
	for _, r := range records {
		if r.Info == nil {
			r.Info = map[string]any{}
		}
		s.byID[r.ID] = r
		s.byCode[r.OrderCode] = r
	}
	return s
}

func (s *fakeStore) PaymentByID(_ context.Context, id uint) (*payments.PaymentRecord, error) {
	r, ok := s.byID[id]
	if !ok {
		return nil, payments.ErrPaymentNotFound
	}
	return r, nil
}

func (s *fakeStore) LatestPaymentByOrderCode(_ context.Context, code string) (*payments.PaymentRecord, error) {
	r, ok := s.byCode[code]
	if !ok {
		return nil, payments.ErrPaymentNotFound
	}
	return r, nil
}

func (s *fakeStore) MergeInfo(_ context.Context, id uint, key string, value any) error {
	r, ok := s.byID[id]
	if !ok {
		return payments.ErrPaymentNotFound
	}
	r.Info[key] = value
	return nil
}

func (s *fakeStore) Confirm(_ context.Context, id uint) error {
	if s.confirmErr != nil {
		return s.confirmErr
	}
	r, ok := s.byID[id]
	if !ok {
		return payments.ErrPaymentNotFound
	}
	r.State = payments.StateConfirmed
	return nil
}

func testConfig() *config.ProviderConfig {
	return &config.ProviderConfig{
		Endpoint:      "sandbox",
		APIKey:        "k",
		IPNSecret:     testSecret,
		SupportEmail:  "tickets@example.com",
		ReceiptURL:    "https://tickets.example.com/order/%s",
		SessionCookie: testCookie,
	}
}

func newTestRouter(t *testing.T, store payments.PaymentStore, intents payments.IntentStore) *mux.Router {
	t.Helper()
	cfg := testConfig()
	svc := internalservice.NewPaymentService(cfg, nil, store, zap.NewNop())

	router := mux.NewRouter()
	New(cfg, svc, store, intents, zap.NewNop()).Configure(router)
	return router
}

func pendingRecord() *payments.PaymentRecord {
	return &payments.PaymentRecord{
		ID:        7,
		OrderCode: "ABC12",
		State:     payments.StatePending,
		Amount:    decimal.RequireFromString("25.5"),
		Currency:  "eur",
		Info:      map[string]any{},
	}
}

func seedIntent(t *testing.T, intents payments.IntentStore) {
	t.Helper()
	require.NoError(t, intents.Put(context.Background(), testSession, &payments.PaymentIntent{
		Currency:   "xmr",
		PayAmount:  decimal.RequireFromString("0.157"),
		PayAddress: "888tNkZrPN6JsEg",
		PaymentID:  7,
		OrderCode:  "ABC12",
	}))
}

func payRequest(path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.AddCookie(&http.Cookie{Name: testCookie, Value: testSession})
	return req
}

func TestWebhookEndToEnd(t *testing.T) {
	record := pendingRecord()
	store := newFakeStore(record)
	router := newTestRouter(t, store, session.NewMemoryStore(0))

	body := `{"payment_status":"finished","order_id":"ABC12","pay_amount":0.157}`
	sig, err := signature.Sign([]byte(body), []byte(testSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("x-nowpayments-sig", sig)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String(), "webhook responds with a bare status code")
	assert.Equal(t, payments.StateConfirmed, record.State)
}

func TestWebhookRejectsUnsigned(t *testing.T) {
	store := newFakeStore(pendingRecord())
	router := newTestRouter(t, store, session.NewMemoryStore(0))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"payment_status":"finished","order_id":"ABC12"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), session.NewMemoryStore(0))

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPayRendersPendingView(t *testing.T) {
	record := pendingRecord()
	store := newFakeStore(record)
	intents := session.NewMemoryStore(0)
	seedIntent(t, intents)
	router := newTestRouter(t, store, intents)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, payRequest("/pay"))

	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "888tNkZrPN6JsEg")
	assert.Contains(t, html, "0.157 XMR")
	assert.Contains(t, html, "monero:888tNkZrPN6JsEg?tx_amount=0.157")
	assert.Contains(t, html, "waiting", "status defaults to waiting before the first callback")
	assert.Contains(t, html, "data:image/png;base64,")
}

func TestPayShowsLastCallbackStatus(t *testing.T) {
	record := pendingRecord()
	record.Info["nowpayments"] = map[string]any{"payment_status": "confirming"}
	store := newFakeStore(record)
	intents := session.NewMemoryStore(0)
	seedIntent(t, intents)
	router := newTestRouter(t, store, intents)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, payRequest("/pay"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "confirming")
}

func TestPayRedirectsWhenConfirmed(t *testing.T) {
	record := pendingRecord()
	record.State = payments.StateConfirmed
	// A stale quota flag from a historical race must not shadow the redirect.
	record.Info["quota_exceeded"] = true
	store := newFakeStore(record)
	intents := session.NewMemoryStore(0)
	seedIntent(t, intents)
	router := newTestRouter(t, store, intents)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, payRequest("/pay"))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://tickets.example.com/order/ABC12?paid=yes", rec.Header().Get("Location"))
}

func TestPayShowsFailureOnQuotaExceeded(t *testing.T) {
	record := pendingRecord()
	record.Info["quota_exceeded"] = true
	store := newFakeStore(record)
	intents := session.NewMemoryStore(0)
	seedIntent(t, intents)
	router := newTestRouter(t, store, intents)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, payRequest("/pay"))

	require.Equal(t, http.StatusOK, rec.Code)
	html := rec.Body.String()
	assert.Contains(t, html, "tickets@example.com")
	assert.Contains(t, html, "ABC12")
	assert.NotContains(t, html, "888tNkZrPN6JsEg")
}

func TestPayWithoutIntent(t *testing.T) {
	router := newTestRouter(t, newFakeStore(), session.NewMemoryStore(0))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, payRequest("/pay"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPayStatusEndpoint(t *testing.T) {
	record := pendingRecord()
	record.Info["nowpayments"] = map[string]any{"payment_status": "confirming"}
	store := newFakeStore(record)
	intents := session.NewMemoryStore(0)
	seedIntent(t, intents)
	router := newTestRouter(t, store, intents)

	req := payRequest("/pay/status")
	req.Header.Set("Origin", "https://event.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp struct {
		State         string `json:"state"`
		PaymentStatus string `json:"payment_status"`
		OrderCode     string `json:"order_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pending", resp.State)
	assert.Equal(t, "confirming", resp.PaymentStatus)
	assert.Equal(t, "ABC12", resp.OrderCode)
}
