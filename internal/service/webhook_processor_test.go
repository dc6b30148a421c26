package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creditflow/internal/domain"
	"creditflow/internal/repository"
	"creditflow/internal/signature"
)

const (
	webhookStripeSecret = "whsec_test_123"
	webhookIyzicoSecret = "iyz_test_456"
)

type webhookStack struct {
	processor domain.WebhookProcessor
	payments  domain.PaymentService
	credits   domain.CreditsService
	events    domain.WebhookEventRepository
	dlq       domain.WebhookDLQRepository
}

func newWebhookStack(t *testing.T, maxRetries int) *webhookStack {
	t.Helper()

	db := newTestDB(t)
	log := testLogger()

	ledgerSvc := NewLedgerService(repository.NewLedgerRepository(db, log), log)
	creditsSvc := NewCreditsService(repository.NewCreditRepository(db, log), ledgerSvc, log)
	paymentSvc := NewPaymentService(repository.NewPaymentRepository(db, log), creditsSvc, log)
	events := repository.NewWebhookEventRepository(db, log)
	dlq := repository.NewWebhookDLQRepository(db, log)

	verifier := signature.NewVerifier(webhookStripeSecret, webhookIyzicoSecret, 5*time.Minute)

	return &webhookStack{
		processor: NewWebhookProcessorService(events, dlq, paymentSvc, verifier, maxRetries, []time.Duration{time.Minute}, log),
		payments:  paymentSvc,
		credits:   creditsSvc,
		events:    events,
		dlq:       dlq,
	}
}

func stripeEvent(eventID, eventType, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":{"id":%q}}}`, eventID, eventType, paymentID))
}

func iyzicoEvent(eventID, eventType, paymentID string) []byte {
	return []byte(fmt.Sprintf(`{"eventId":%q,"eventType":%q,"paymentId":%q}`, eventID, eventType, paymentID))
}

func signStripe(payload []byte) string {
	ts := time.Now().Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, signature.ComputeTimestampedSignature(payload, ts, webhookStripeSecret))
}

func signIyzico(payload []byte) string {
	return signature.ComputeFlatSignature(payload, webhookIyzicoSecret)
}

func TestProcessWebhookFulfillsPayment(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	intent, err := stack.payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	result, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, result.Success)
	require.False(t, result.Duplicate)

	balance, err := stack.credits.GetBalance(7)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)

	fulfilled, err := stack.payments.GetPaymentIntent(intent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusSucceeded, fulfilled.Status)

	event, err := stack.events.FindByID(result.WebhookEventID)
	require.NoError(t, err)
	require.Equal(t, domain.WebhookStatusProcessed, event.Status)
	require.Equal(t, intent.ID, event.PaymentIntentID)
}

func TestProcessWebhookDuplicateDeliveryCreditsOnce(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	_, err := stack.payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")

	first, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, second.Success)
	require.True(t, second.Duplicate)
	require.Equal(t, first.WebhookEventID, second.WebhookEventID)

	balance, err := stack.credits.GetBalance(7)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)
}

// racingEventRepository, dedup okumasını ilk çağrılarda boş döndürerek iki
// eşzamanlı teslimatın yarışını deterministik kurar; insert'teki tekillik
// ihlali üzerinden dedup cevabına düşülmesi beklenir.
type racingEventRepository struct {
	domain.WebhookEventRepository
	misses int
}

func (r *racingEventRepository) FindByIdempotencyKey(key string) (*domain.WebhookEvent, error) {
	if r.misses > 0 {
		r.misses--
		return nil, nil
	}
	return r.WebhookEventRepository.FindByIdempotencyKey(key)
}

func TestProcessWebhookLostInsertRaceReturnsDuplicate(t *testing.T) {
	db := newTestDB(t)
	log := testLogger()
	ctx := context.Background()

	ledgerSvc := NewLedgerService(repository.NewLedgerRepository(db, log), log)
	creditsSvc := NewCreditsService(repository.NewCreditRepository(db, log), ledgerSvc, log)
	paymentSvc := NewPaymentService(repository.NewPaymentRepository(db, log), creditsSvc, log)
	events := &racingEventRepository{
		WebhookEventRepository: repository.NewWebhookEventRepository(db, log),
		misses:                 2,
	}
	dlq := repository.NewWebhookDLQRepository(db, log)
	verifier := signature.NewVerifier(webhookStripeSecret, webhookIyzicoSecret, 5*time.Minute)
	processor := NewWebhookProcessorService(events, dlq, paymentSvc, verifier, 3, nil, log)

	_, err := paymentSvc.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")

	first, err := processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, first.Success)

	// İkinci teslimatın dedup okuması da boş döner; insert tekillik ihlaline
	// çarpar ve kazanan kayıt dedup cevabıyla dönmelidir.
	second, err := processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, second.Success)
	require.True(t, second.Duplicate)
	require.Equal(t, first.WebhookEventID, second.WebhookEventID)

	balance, err := creditsSvc.GetBalance(7)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)
}

func TestProcessWebhookRejectsInvalidSignature(t *testing.T) {
	stack := newWebhookStack(t, 3)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	header := signStripe(payload)
	tampered := stripeEvent("evt_1", "payment_intent.succeeded", "pi_sahte")

	result, err := stack.processor.ProcessWebhook(context.Background(), "stripe", tampered, header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
	require.True(t, IsRejection(err))
	require.False(t, result.Success)

	// Reddedilen teslimat hiçbir kayıt bırakmaz.
	event, err := stack.events.FindByIdempotencyKey("stripe_evt_1")
	require.NoError(t, err)
	require.Nil(t, event)
}

func TestProcessWebhookUnknownProvider(t *testing.T) {
	stack := newWebhookStack(t, 3)

	result, err := stack.processor.ProcessWebhook(context.Background(), "paypal", []byte(`{}`), "sig")
	require.ErrorIs(t, err, domain.ErrUnknownProvider)
	require.True(t, IsRejection(err))
	require.False(t, result.Success)
}

func TestProcessWebhookMalformedPayload(t *testing.T) {
	stack := newWebhookStack(t, 3)

	payload := []byte(`{"type":"payment_intent.succeeded"}`)
	result, err := stack.processor.ProcessWebhook(context.Background(), "stripe", payload, signStripe(payload))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
	require.True(t, IsRejection(err))
	require.False(t, result.Success)
}

func TestProcessWebhookFailureOpensDLQEntry(t *testing.T) {
	stack := newWebhookStack(t, 3)

	// Kayıtlı bir ödeme yok; yorumlama başarısız olmalı.
	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_bilinmeyen")
	result, err := stack.processor.ProcessWebhook(context.Background(), "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotZero(t, result.WebhookEventID)

	event, err := stack.events.FindByID(result.WebhookEventID)
	require.NoError(t, err)
	require.Equal(t, domain.WebhookStatusFailed, event.Status)
	require.NotEmpty(t, event.ProcessingError)

	entry, err := stack.dlq.FindByEventID(result.WebhookEventID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, 0, entry.RetryCount)
	require.Equal(t, 3, entry.MaxRetries)
	require.Nil(t, entry.NextRetryAt)
	require.True(t, entry.CanRetry())

	// Boş NextRetryAt zamanlayıcı için hemen uygundur.
	due, err := stack.dlq.FindDue(time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, entry.ID, due[0].ID)
}

func TestRetryWebhookEventSucceedsAfterFix(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	result, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.False(t, result.Success)

	open, err := stack.dlq.FindByEventID(result.WebhookEventID)
	require.NoError(t, err)
	require.NotNil(t, open)

	// Eksik ödeme kaydı operatör tarafından tamamlanır.
	_, err = stack.payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	require.NoError(t, stack.processor.RetryWebhookEvent(ctx, result.WebhookEventID))

	event, err := stack.events.FindByID(result.WebhookEventID)
	require.NoError(t, err)
	require.Equal(t, domain.WebhookStatusProcessed, event.Status)

	balance, err := stack.credits.GetBalance(7)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)

	entry, err := stack.dlq.FindByID(open.ID)
	require.NoError(t, err)
	require.True(t, entry.Resolved)
	require.Equal(t, "tekrar deneme başarılı", entry.ResolutionNotes)
}

func TestRetryWebhookEventExhaustsRetries(t *testing.T) {
	stack := newWebhookStack(t, 2)
	ctx := context.Background()

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_bilinmeyen")
	result, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.False(t, result.Success)

	err = stack.processor.RetryWebhookEvent(ctx, result.WebhookEventID)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	entry, err := stack.dlq.FindByEventID(result.WebhookEventID)
	require.NoError(t, err)
	require.Equal(t, 1, entry.RetryCount)
	require.NotNil(t, entry.NextRetryAt)
	require.True(t, entry.CanRetry())

	err = stack.processor.RetryWebhookEvent(ctx, result.WebhookEventID)
	require.ErrorIs(t, err, domain.ErrPaymentNotFound)

	entry, err = stack.dlq.FindByEventID(result.WebhookEventID)
	require.NoError(t, err)
	require.Equal(t, 2, entry.RetryCount)
	require.Nil(t, entry.NextRetryAt)
	require.False(t, entry.CanRetry())
}

func TestRetryWebhookEventAlreadyProcessed(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	_, err := stack.payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	result, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, result.Success)

	require.NoError(t, stack.processor.RetryWebhookEvent(ctx, result.WebhookEventID))

	balance, err := stack.credits.GetBalance(7)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)
}

func TestRetryWebhookEventNotFound(t *testing.T) {
	stack := newWebhookStack(t, 3)

	err := stack.processor.RetryWebhookEvent(context.Background(), 9999)
	require.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestProcessWebhookMarksPaymentFailed(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	intent, err := stack.payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	payload := stripeEvent("evt_1", "payment_intent.payment_failed", "pi_1")
	result, err := stack.processor.ProcessWebhook(ctx, "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, result.Success)

	failed, err := stack.payments.GetPaymentIntent(intent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, failed.Status)
	require.Equal(t, 1, failed.FailureCount)
}

func TestProcessWebhookRefundReversesCredits(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	intent, err := stack.payments.CreatePaymentIntent(7, 100, 1000, "usd", "stripe", "pi_1")
	require.NoError(t, err)

	succeeded := stripeEvent("evt_1", "payment_intent.succeeded", "pi_1")
	_, err = stack.processor.ProcessWebhook(ctx, "stripe", succeeded, signStripe(succeeded))
	require.NoError(t, err)

	refunded := stripeEvent("evt_2", "charge.refunded", "pi_1")
	result, err := stack.processor.ProcessWebhook(ctx, "stripe", refunded, signStripe(refunded))
	require.NoError(t, err)
	require.True(t, result.Success)

	balance, err := stack.credits.GetBalance(7)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance.Balance)

	final, err := stack.payments.GetPaymentIntent(intent.ID)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusRefunded, final.Status)
}

func TestProcessWebhookUnknownEventTypeIsAcknowledged(t *testing.T) {
	stack := newWebhookStack(t, 3)

	payload := stripeEvent("evt_1", "customer.created", "cus_1")
	result, err := stack.processor.ProcessWebhook(context.Background(), "stripe", payload, signStripe(payload))
	require.NoError(t, err)
	require.True(t, result.Success)

	event, err := stack.events.FindByID(result.WebhookEventID)
	require.NoError(t, err)
	require.Equal(t, domain.WebhookStatusProcessed, event.Status)
	require.Empty(t, event.PaymentIntentID)
}

func TestProcessWebhookIyzicoFlow(t *testing.T) {
	stack := newWebhookStack(t, 3)
	ctx := context.Background()

	_, err := stack.payments.CreatePaymentIntent(12, 50, 500, "try", "iyzico", "iyz_1")
	require.NoError(t, err)

	payload := iyzicoEvent("ev-1", "payment.success", "iyz_1")
	result, err := stack.processor.ProcessWebhook(ctx, "iyzico", payload, signIyzico(payload))
	require.NoError(t, err)
	require.True(t, result.Success)

	balance, err := stack.credits.GetBalance(12)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance.Balance)
}
