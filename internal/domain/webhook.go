package domain

import (
	"context"
	"time"
)

type WebhookStatus string

const (
	WebhookStatusPending   WebhookStatus = "pending"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusFailed    WebhookStatus = "failed"
	WebhookStatusRetrying  WebhookStatus = "retrying"
)

// WebhookEvent, bir ödeme sağlayıcısından gelen her bildirimin kalıcı kaydıdır.
// idempotency_key global olarak tekildir; processed durumu terminaldir.
type WebhookEvent struct {
	ID              int64         `json:"id"`
	Provider        string        `json:"provider"`
	EventID         string        `json:"event_id"`
	EventType       string        `json:"event_type"`
	RawPayload      []byte        `json:"-"`
	SignatureHeader string        `json:"-"`
	IdempotencyKey  string        `json:"idempotency_key"`
	Status          WebhookStatus `json:"status"`
	RetryCount      int           `json:"retry_count"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	ProcessingError string        `json:"processing_error,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// WebhookDLQEntry yalnızca işleme başarısız olduğunda oluşturulur.
// NextRetryAt ilk denemeden önce boştur; zamanlayıcı boş değeri "hemen
// denenebilir" sayar.
type WebhookDLQEntry struct {
	ID              int64      `json:"id"`
	WebhookEventID  int64      `json:"webhook_event_id"`
	ErrorReason     string     `json:"error_reason"`
	RetryCount      int        `json:"retry_count"`
	MaxRetries      int        `json:"max_retries"`
	NextRetryAt     *time.Time `json:"next_retry_at,omitempty"`
	Resolved        bool       `json:"resolved"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (e *WebhookDLQEntry) CanRetry() bool {
	return !e.Resolved && e.RetryCount < e.MaxRetries
}

// WebhookResult, sağlayıcıya dönen kesin cevaptır; Duplicate true ise olay
// daha önce işlenmiştir ve hiçbir yan etki oluşmamıştır.
type WebhookResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	WebhookEventID int64  `json:"webhook_event_id,omitempty"`
	Duplicate      bool   `json:"duplicate,omitempty"`
}

type WebhookEventRepository interface {
	Create(event *WebhookEvent) error
	FindByID(id int64) (*WebhookEvent, error)
	FindByIdempotencyKey(key string) (*WebhookEvent, error)
	UpdateStatus(id int64, status WebhookStatus, processingError string) error
	MarkProcessed(id int64, paymentIntentID string) error
	IncrementRetryCount(id int64) error
}

type WebhookDLQRepository interface {
	Create(entry *WebhookDLQEntry) error
	FindByID(id int64) (*WebhookDLQEntry, error)
	FindByEventID(webhookEventID int64) (*WebhookDLQEntry, error)
	FindDue(now time.Time, limit int) ([]*WebhookDLQEntry, error)
	FindUnresolved(limit int) ([]*WebhookDLQEntry, error)
	UpdateRetry(id int64, retryCount int, nextRetryAt *time.Time, errorReason string) error
	MarkResolved(id int64, notes string) error
}

type WebhookProcessor interface {
	ProcessWebhook(ctx context.Context, provider string, payload []byte, signatureHeader string) (*WebhookResult, error)
	RetryWebhookEvent(ctx context.Context, eventID int64) error
}
