package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"creditflow/internal/domain"
	"creditflow/internal/signature"
	"creditflow/pkg/logger"
	"creditflow/pkg/metrics"
)

// eventKind, sağlayıcıya özgü olay tiplerinin normalize edilmiş karşılığıdır.
type eventKind int

const (
	eventUnknown eventKind = iota
	eventPaymentSucceeded
	eventPaymentFailed
	eventRefund
)

// webhookEnvelope, sağlayıcı payload'ından çıkarılan kimlik alanlarını taşır.
type webhookEnvelope struct {
	Provider          string
	EventID           string
	EventType         string
	Kind              eventKind
	ProviderPaymentID string
}

type WebhookProcessorService struct {
	events   domain.WebhookEventRepository
	dlq      domain.WebhookDLQRepository
	payments domain.PaymentService
	verifier *signature.Verifier
	logger   logger.Logger

	maxRetries    int
	retrySchedule []time.Duration
	now           func() time.Time
}

func NewWebhookProcessorService(
	events domain.WebhookEventRepository,
	dlq domain.WebhookDLQRepository,
	payments domain.PaymentService,
	verifier *signature.Verifier,
	maxRetries int,
	retrySchedule []time.Duration,
	logger logger.Logger,
) domain.WebhookProcessor {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if len(retrySchedule) == 0 {
		retrySchedule = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}
	}

	return &WebhookProcessorService{
		events:        events,
		dlq:           dlq,
		payments:      payments,
		verifier:      verifier,
		maxRetries:    maxRetries,
		retrySchedule: retrySchedule,
		logger:        logger,
		now:           time.Now,
	}
}

// ProcessWebhook, gelen bildirimi imza doğrulaması ve dedup kontrolünden
// geçirip yorumlar. İmza doğrulaması ve dedup her yan etkiden önce geldiği
// için tekrarlanan ya da sahte bir teslimat bakiyeyi iki kez değiştiremez.
func (s *WebhookProcessorService) ProcessWebhook(ctx context.Context, provider string, payload []byte, signatureHeader string) (*domain.WebhookResult, error) {
	if err := s.verifier.Verify(provider, payload, signatureHeader); err != nil {
		// Doğrulanamayan trafik log satırı dışında iz bırakmaz.
		s.logger.Warn("Webhook imzası reddedildi", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		metrics.RecordWebhook(provider, "rejected")
		return &domain.WebhookResult{Success: false, Message: "imza doğrulanamadı"}, err
	}

	envelope, err := parseEnvelope(provider, payload)
	if err != nil {
		s.logger.Warn("Webhook içeriği çözümlenemedi", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		metrics.RecordWebhook(provider, "malformed")
		return &domain.WebhookResult{Success: false, Message: "içerik çözümlenemedi"}, err
	}

	idempotencyKey := fmt.Sprintf("%s_%s", provider, envelope.EventID)

	existing, err := s.events.FindByIdempotencyKey(idempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("webhook dedup kontrolü yapılamadı: %w", err)
	}
	if existing != nil {
		// Çağıranın gördüğü exactly-once garantisi: önceki sonuç aynen döner.
		s.logger.Info("Tekrarlanan webhook teslimatı", map[string]interface{}{
			"provider":        provider,
			"event_id":        envelope.EventID,
			"previous_status": existing.Status,
		})
		metrics.RecordWebhook(provider, "duplicate")
		return &domain.WebhookResult{
			Success:        true,
			Message:        fmt.Sprintf("olay zaten alınmış, durum: %s", existing.Status),
			WebhookEventID: existing.ID,
			Duplicate:      true,
		}, nil
	}

	event := &domain.WebhookEvent{
		Provider:        provider,
		EventID:         envelope.EventID,
		EventType:       envelope.EventType,
		RawPayload:      payload,
		SignatureHeader: signatureHeader,
		IdempotencyKey:  idempotencyKey,
		Status:          domain.WebhookStatusPending,
	}

	if err := s.events.Create(event); err != nil {
		if errors.Is(err, domain.ErrDuplicateEntry) {
			// Dedup kontrolü ile insert arasında yarışı kaybeden teslimat:
			// kazanan kayıt dedup cevabıyla dönülür.
			winner, findErr := s.events.FindByIdempotencyKey(idempotencyKey)
			if findErr != nil || winner == nil {
				return nil, err
			}
			metrics.RecordWebhook(provider, "duplicate")
			return &domain.WebhookResult{
				Success:        true,
				Message:        fmt.Sprintf("olay zaten alınmış, durum: %s", winner.Status),
				WebhookEventID: winner.ID,
				Duplicate:      true,
			}, nil
		}
		return nil, err
	}

	paymentIntentID, interpretErr := s.interpret(envelope)
	if interpretErr != nil {
		return s.failEvent(event, interpretErr)
	}

	if err := s.events.MarkProcessed(event.ID, paymentIntentID); err != nil {
		return nil, err
	}

	metrics.RecordWebhook(provider, "processed")
	s.logger.Info("Webhook işlendi", map[string]interface{}{
		"provider":          provider,
		"event_id":          envelope.EventID,
		"event_type":        envelope.EventType,
		"webhook_event_id":  event.ID,
		"payment_intent_id": paymentIntentID,
	})

	return &domain.WebhookResult{
		Success:        true,
		Message:        "olay işlendi",
		WebhookEventID: event.ID,
	}, nil
}

// failEvent, olayı failed işaretler ve yeniden oynatma için DLQ satırı açar.
// Sağlayıcıya ham hata yerine olay kimliğiyle kesin bir cevap döner; tekrar
// denemeler bant dışında yürür.
func (s *WebhookProcessorService) failEvent(event *domain.WebhookEvent, cause error) (*domain.WebhookResult, error) {
	if err := s.events.UpdateStatus(event.ID, domain.WebhookStatusFailed, cause.Error()); err != nil {
		return nil, err
	}

	dlqEntry := &domain.WebhookDLQEntry{
		WebhookEventID: event.ID,
		ErrorReason:    cause.Error(),
		RetryCount:     0,
		MaxRetries:     s.maxRetries,
		// NextRetryAt ilk denemeye kadar boş kalır; zamanlayıcı boş değeri
		// hemen uygun sayar.
	}

	if err := s.dlq.Create(dlqEntry); err != nil {
		return nil, err
	}

	metrics.RecordWebhook(event.Provider, "failed")
	metrics.RecordDLQInsert()
	s.logger.Error("Webhook işlenemedi, DLQ kaydı açıldı", map[string]interface{}{
		"webhook_event_id": event.ID,
		"dlq_entry_id":     dlqEntry.ID,
		"error":            cause.Error(),
	})

	return &domain.WebhookResult{
		Success:        false,
		Message:        "olay işlenemedi, tekrar denenecek",
		WebhookEventID: event.ID,
	}, nil
}

// RetryWebhookEvent yalnızca yorumlama adımını tekrar çalıştırır; imza ilk
// kabulde doğrulandığı için yeniden doğrulanmaz. Başarıda ilgili DLQ kaydı
// çözülür. Hem zamanlayıcı hem operatör aynı yolu kullanır; işlenmiş bir olay
// için çağrı no-op'tur.
func (s *WebhookProcessorService) RetryWebhookEvent(ctx context.Context, eventID int64) error {
	event, err := s.events.FindByID(eventID)
	if err != nil {
		return err
	}
	if event == nil {
		return domain.ErrEventNotFound
	}

	if event.Status == domain.WebhookStatusProcessed {
		return s.resolveDLQ(event.ID, "olay zaten işlenmiş")
	}

	if err := s.events.UpdateStatus(event.ID, domain.WebhookStatusRetrying, event.ProcessingError); err != nil {
		return err
	}
	if err := s.events.IncrementRetryCount(event.ID); err != nil {
		return err
	}

	envelope, err := parseEnvelope(event.Provider, event.RawPayload)
	if err != nil {
		return s.retryFailed(event, err)
	}

	paymentIntentID, interpretErr := s.interpret(envelope)
	if interpretErr != nil {
		return s.retryFailed(event, interpretErr)
	}

	if err := s.events.MarkProcessed(event.ID, paymentIntentID); err != nil {
		return err
	}

	metrics.RecordWebhook(event.Provider, "retried")
	s.logger.Info("Webhook tekrar denemede işlendi", map[string]interface{}{
		"webhook_event_id": event.ID,
		"retry_count":      event.RetryCount + 1,
	})

	return s.resolveDLQ(event.ID, "tekrar deneme başarılı")
}

func (s *WebhookProcessorService) retryFailed(event *domain.WebhookEvent, cause error) error {
	if err := s.events.UpdateStatus(event.ID, domain.WebhookStatusFailed, cause.Error()); err != nil {
		return err
	}

	entry, err := s.dlq.FindByEventID(event.ID)
	if err != nil {
		return err
	}
	if entry == nil {
		// Manuel tetiklenen tekrar denemede DLQ kaydı silinmiş olabilir.
		entry = &domain.WebhookDLQEntry{
			WebhookEventID: event.ID,
			ErrorReason:    cause.Error(),
			MaxRetries:     s.maxRetries,
		}
		if err := s.dlq.Create(entry); err != nil {
			return err
		}
	}

	retryCount := entry.RetryCount + 1
	var nextRetryAt *time.Time
	if retryCount < entry.MaxRetries {
		slot := retryCount
		if slot >= len(s.retrySchedule) {
			slot = len(s.retrySchedule) - 1
		}
		t := s.now().Add(s.retrySchedule[slot])
		nextRetryAt = &t
	}

	if err := s.dlq.UpdateRetry(entry.ID, retryCount, nextRetryAt, cause.Error()); err != nil {
		return err
	}

	if retryCount >= entry.MaxRetries {
		s.logger.Error("Webhook tekrar deneme hakkı tükendi, manuel müdahale gerekli", map[string]interface{}{
			"webhook_event_id": event.ID,
			"dlq_entry_id":     entry.ID,
			"retry_count":      retryCount,
		})
	}

	return cause
}

func (s *WebhookProcessorService) resolveDLQ(eventID int64, notes string) error {
	entry, err := s.dlq.FindByEventID(eventID)
	if err != nil {
		return err
	}
	if entry == nil {
		return nil
	}

	metrics.RecordDLQResolved()
	return s.dlq.MarkResolved(entry.ID, notes)
}

// interpret, normalize edilmiş olay tipine göre kredi/defter mutasyonunu
// tetikler. Tanınmayan tipler durumu bozmamak için yumuşak başarıyla geçilir.
func (s *WebhookProcessorService) interpret(envelope *webhookEnvelope) (string, error) {
	switch envelope.Kind {
	case eventPaymentSucceeded:
		intent, err := s.payments.FulfillPayment(envelope.Provider, envelope.ProviderPaymentID)
		if err != nil {
			return "", err
		}
		return intent.ID, nil

	case eventPaymentFailed:
		intent, err := s.payments.MarkPaymentFailed(envelope.Provider, envelope.ProviderPaymentID)
		if err != nil {
			return "", err
		}
		return intent.ID, nil

	case eventRefund:
		intent, err := s.payments.RefundPayment(envelope.Provider, envelope.ProviderPaymentID, "")
		if err != nil {
			return "", err
		}
		return intent.ID, nil

	default:
		s.logger.Warn("Tanınmayan webhook olay tipi yok sayıldı", map[string]interface{}{
			"event_type": envelope.EventType,
		})
		return "", nil
	}
}

// stripePayload, zarf biçimli gövdeyi karşılar.
type stripePayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

// iyzicoPayload düz gövde kullanır.
type iyzicoPayload struct {
	EventID   string `json:"eventId"`
	EventType string `json:"eventType"`
	PaymentID string `json:"paymentId"`
}

func parseEnvelope(provider string, payload []byte) (*webhookEnvelope, error) {
	switch provider {
	case signature.ProviderStripe:
		var body stripePayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if body.ID == "" || body.Type == "" {
			return nil, fmt.Errorf("%w: olay kimliği ya da tipi eksik", domain.ErrInvalidPayload)
		}

		envelope := &webhookEnvelope{
			Provider:          provider,
			EventID:           body.ID,
			EventType:         body.Type,
			ProviderPaymentID: body.Data.Object.ID,
		}
		switch body.Type {
		case "payment_intent.succeeded":
			envelope.Kind = eventPaymentSucceeded
		case "payment_intent.payment_failed":
			envelope.Kind = eventPaymentFailed
		case "charge.refunded":
			envelope.Kind = eventRefund
		}
		if envelope.Kind != eventUnknown && envelope.ProviderPaymentID == "" {
			return nil, fmt.Errorf("%w: ödeme kimliği eksik", domain.ErrInvalidPayload)
		}
		return envelope, nil

	case signature.ProviderIyzico:
		var body iyzicoPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if body.EventID == "" || body.EventType == "" {
			return nil, fmt.Errorf("%w: olay kimliği ya da tipi eksik", domain.ErrInvalidPayload)
		}

		envelope := &webhookEnvelope{
			Provider:          provider,
			EventID:           body.EventID,
			EventType:         body.EventType,
			ProviderPaymentID: body.PaymentID,
		}
		switch body.EventType {
		case "payment.success":
			envelope.Kind = eventPaymentSucceeded
		case "payment.failure":
			envelope.Kind = eventPaymentFailed
		case "payment.refund":
			envelope.Kind = eventRefund
		}
		if envelope.Kind != eventUnknown && envelope.ProviderPaymentID == "" {
			return nil, fmt.Errorf("%w: ödeme kimliği eksik", domain.ErrInvalidPayload)
		}
		return envelope, nil

	default:
		return nil, domain.ErrUnknownProvider
	}
}

// IsRejection, imza ya da içerik hatalarını altyapı hatalarından ayırır;
// HTTP katmanı 400/500 ayrımını bununla yapar.
func IsRejection(err error) bool {
	return errors.Is(err, domain.ErrInvalidSignature) ||
		errors.Is(err, domain.ErrInvalidPayload) ||
		errors.Is(err, domain.ErrUnknownProvider)
}
