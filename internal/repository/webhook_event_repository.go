package repository

import (
	"database/sql"
	"fmt"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type WebhookEventRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewWebhookEventRepository(db *sql.DB, logger logger.Logger) domain.WebhookEventRepository {
	return &WebhookEventRepository{
		db:     db,
		logger: logger,
	}
}

const webhookEventColumns = `id, provider, event_id, event_type, raw_payload, signature_header,
		idempotency_key, status, retry_count, payment_intent_id, processing_error,
		created_at, updated_at`

func (r *WebhookEventRepository) Create(event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			provider, event_id, event_type, raw_payload, signature_header,
			idempotency_key, status, retry_count, payment_intent_id, processing_error,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		event.Provider,
		event.EventID,
		event.EventType,
		event.RawPayload,
		event.SignatureHeader,
		event.IdempotencyKey,
		string(event.Status),
		event.RetryCount,
		nullableString(event.PaymentIntentID),
		nullableString(event.ProcessingError),
		event.CreatedAt,
		event.UpdatedAt,
	).Scan(&event.ID)

	if err != nil {
		if IsUniqueViolation(err) {
			return domain.ErrDuplicateEntry
		}
		r.logger.Error("Webhook olayı kaydedilemedi", map[string]interface{}{
			"idempotency_key": event.IdempotencyKey,
			"error":           err.Error(),
		})
		return fmt.Errorf("webhook olayı kaydedilemedi: %w", err)
	}

	return nil
}

func (r *WebhookEventRepository) FindByID(id int64) (*domain.WebhookEvent, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE id = $1
	`

	event, err := scanWebhookEvent(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Webhook olayı okunamadı", map[string]interface{}{"id": id, "error": err.Error()})
		return nil, err
	}

	return event, nil
}

func (r *WebhookEventRepository) FindByIdempotencyKey(key string) (*domain.WebhookEvent, error) {
	query := `
		SELECT ` + webhookEventColumns + `
		FROM webhook_events
		WHERE idempotency_key = $1
	`

	event, err := scanWebhookEvent(r.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Webhook olayı okunamadı", map[string]interface{}{"idempotency_key": key, "error": err.Error()})
		return nil, err
	}

	return event, nil
}

func (r *WebhookEventRepository) UpdateStatus(id int64, status domain.WebhookStatus, processingError string) error {
	query := `
		UPDATE webhook_events
		SET status = $1, processing_error = $2, updated_at = $3
		WHERE id = $4
	`

	_, err := r.db.Exec(query, string(status), nullableString(processingError), time.Now(), id)
	if err != nil {
		r.logger.Error("Webhook durumu güncellenemedi", map[string]interface{}{"id": id, "status": status, "error": err.Error()})
		return err
	}

	return nil
}

func (r *WebhookEventRepository) MarkProcessed(id int64, paymentIntentID string) error {
	query := `
		UPDATE webhook_events
		SET status = $1, payment_intent_id = $2, processing_error = NULL, updated_at = $3
		WHERE id = $4
	`

	_, err := r.db.Exec(query, string(domain.WebhookStatusProcessed), nullableString(paymentIntentID), time.Now(), id)
	if err != nil {
		r.logger.Error("Webhook processed olarak işaretlenemedi", map[string]interface{}{"id": id, "error": err.Error()})
		return err
	}

	return nil
}

func (r *WebhookEventRepository) IncrementRetryCount(id int64) error {
	query := `
		UPDATE webhook_events
		SET retry_count = retry_count + 1, updated_at = $1
		WHERE id = $2
	`

	_, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		r.logger.Error("Webhook retry sayacı artırılamadı", map[string]interface{}{"id": id, "error": err.Error()})
		return err
	}

	return nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func scanWebhookEvent(row rowScanner) (*domain.WebhookEvent, error) {
	var event domain.WebhookEvent
	var status string
	var paymentIntentID, processingError sql.NullString

	err := row.Scan(
		&event.ID,
		&event.Provider,
		&event.EventID,
		&event.EventType,
		&event.RawPayload,
		&event.SignatureHeader,
		&event.IdempotencyKey,
		&status,
		&event.RetryCount,
		&paymentIntentID,
		&processingError,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.Status = domain.WebhookStatus(status)
	event.PaymentIntentID = paymentIntentID.String
	event.ProcessingError = processingError.String

	return &event, nil
}
