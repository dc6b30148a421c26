package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"creditflow/internal/database"
	"creditflow/internal/domain"
	"creditflow/internal/repository"
	"creditflow/internal/service"
	"creditflow/internal/signature"
	"creditflow/pkg/logger"
)

const handlerTestStripeSecret = "whsec_test_123"

func newWebhookTestServer(t *testing.T) (*http.ServeMux, domain.PaymentService) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	log := logger.New(logger.ErrorLevel, io.Discard)
	require.NoError(t, database.NewMigrationService(db, "sqlite3", log).RunMigrations())

	ledgerSvc := service.NewLedgerService(repository.NewLedgerRepository(db, log), log)
	creditsSvc := service.NewCreditsService(repository.NewCreditRepository(db, log), ledgerSvc, log)
	paymentSvc := service.NewPaymentService(repository.NewPaymentRepository(db, log), creditsSvc, log)

	verifier := signature.NewVerifier(handlerTestStripeSecret, "", 5*time.Minute)
	processor := service.NewWebhookProcessorService(
		repository.NewWebhookEventRepository(db, log),
		repository.NewWebhookDLQRepository(db, log),
		paymentSvc,
		verifier,
		3,
		nil,
		log,
	)

	mux := http.NewServeMux()
	NewWebhookHandler(processor, log).RegisterRoutes(mux)

	return mux, paymentSvc
}

func postStripeWebhook(mux *http.ServeMux, payload []byte, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func signedStripePayload(eventID, eventType, paymentID string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":{"id":%q}}}`, eventID, eventType, paymentID))
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d,v1=%s", ts, signature.ComputeTimestampedSignature(payload, ts, handlerTestStripeSecret))
	return payload, header
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) domain.WebhookResult {
	t.Helper()
	var result domain.WebhookResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	return result
}

func TestHandleWebhookSuccess(t *testing.T) {
	mux, payments := newWebhookTestServer(t)

	_, err := payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload, header := signedStripePayload("evt_1", "payment_intent.succeeded", "pi_1")
	rec := postStripeWebhook(mux, payload, header)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.True(t, result.Success)
	require.False(t, result.Duplicate)
}

func TestHandleWebhookDuplicateDelivery(t *testing.T) {
	mux, payments := newWebhookTestServer(t)

	_, err := payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload, header := signedStripePayload("evt_1", "payment_intent.succeeded", "pi_1")
	require.Equal(t, http.StatusOK, postStripeWebhook(mux, payload, header).Code)

	rec := postStripeWebhook(mux, payload, header)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.True(t, result.Success)
	require.True(t, result.Duplicate)
}

func TestHandleWebhookInvalidSignature(t *testing.T) {
	mux, _ := newWebhookTestServer(t)

	payload, _ := signedStripePayload("evt_1", "payment_intent.succeeded", "pi_1")
	rec := postStripeWebhook(mux, payload, "t=0,v1=deadbeef")

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWebhookUnknownProvider(t *testing.T) {
	mux, _ := newWebhookTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWebhookProcessingFailureIsAcknowledged(t *testing.T) {
	mux, _ := newWebhookTestServer(t)

	// Karşılığı olmayan ödeme; olay DLQ'ya düşer ama sağlayıcıya 200 döner.
	payload, header := signedStripePayload("evt_1", "payment_intent.succeeded", "pi_bilinmeyen")
	rec := postStripeWebhook(mux, payload, header)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.False(t, result.Success)
	require.NotZero(t, result.WebhookEventID)
}
