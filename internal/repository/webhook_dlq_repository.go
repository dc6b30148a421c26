package repository

import (
	"database/sql"
	"fmt"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type WebhookDLQRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewWebhookDLQRepository(db *sql.DB, logger logger.Logger) domain.WebhookDLQRepository {
	return &WebhookDLQRepository{
		db:     db,
		logger: logger,
	}
}

const dlqColumns = `id, webhook_event_id, error_reason, retry_count, max_retries,
		next_retry_at, resolved, resolution_notes, created_at, updated_at`

func (r *WebhookDLQRepository) Create(entry *domain.WebhookDLQEntry) error {
	query := `
		INSERT INTO webhook_dlq (
			webhook_event_id, error_reason, retry_count, max_retries,
			next_retry_at, resolved, resolution_notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		entry.WebhookEventID,
		entry.ErrorReason,
		entry.RetryCount,
		entry.MaxRetries,
		nullableTime(entry.NextRetryAt),
		entry.Resolved,
		nullableString(entry.ResolutionNotes),
		entry.CreatedAt,
		entry.UpdatedAt,
	).Scan(&entry.ID)

	if err != nil {
		r.logger.Error("DLQ kaydı oluşturulamadı", map[string]interface{}{
			"webhook_event_id": entry.WebhookEventID,
			"error":            err.Error(),
		})
		return fmt.Errorf("DLQ kaydı oluşturulamadı: %w", err)
	}

	return nil
}

func (r *WebhookDLQRepository) FindByID(id int64) (*domain.WebhookDLQEntry, error) {
	query := `
		SELECT ` + dlqColumns + `
		FROM webhook_dlq
		WHERE id = $1
	`

	entry, err := scanDLQEntry(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("DLQ kaydı okunamadı", map[string]interface{}{"id": id, "error": err.Error()})
		return nil, err
	}

	return entry, nil
}

func (r *WebhookDLQRepository) FindByEventID(webhookEventID int64) (*domain.WebhookDLQEntry, error) {
	query := `
		SELECT ` + dlqColumns + `
		FROM webhook_dlq
		WHERE webhook_event_id = $1 AND resolved = FALSE
		ORDER BY id DESC
		LIMIT 1
	`

	entry, err := scanDLQEntry(r.db.QueryRow(query, webhookEventID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("DLQ kaydı okunamadı", map[string]interface{}{"webhook_event_id": webhookEventID, "error": err.Error()})
		return nil, err
	}

	return entry, nil
}

// FindDue, zamanı gelmiş ve tekrar denenebilir kayıtları döner. next_retry_at
// boş olan kayıtlar ilk denemeyi henüz yememiştir ve hemen uygundur.
func (r *WebhookDLQRepository) FindDue(now time.Time, limit int) ([]*domain.WebhookDLQEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT ` + dlqColumns + `
		FROM webhook_dlq
		WHERE resolved = FALSE
		  AND retry_count < max_retries
		  AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.db.Query(query, now, limit)
	if err != nil {
		r.logger.Error("Zamanı gelen DLQ kayıtları okunamadı", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	defer rows.Close()

	return scanDLQEntries(rows)
}

func (r *WebhookDLQRepository) FindUnresolved(limit int) ([]*domain.WebhookDLQEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + dlqColumns + `
		FROM webhook_dlq
		WHERE resolved = FALSE
		ORDER BY id ASC
		LIMIT $1
	`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		r.logger.Error("Çözülmemiş DLQ kayıtları okunamadı", map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	defer rows.Close()

	return scanDLQEntries(rows)
}

func (r *WebhookDLQRepository) UpdateRetry(id int64, retryCount int, nextRetryAt *time.Time, errorReason string) error {
	query := `
		UPDATE webhook_dlq
		SET retry_count = $1, next_retry_at = $2, error_reason = $3, updated_at = $4
		WHERE id = $5
	`

	_, err := r.db.Exec(query, retryCount, nullableTime(nextRetryAt), errorReason, time.Now(), id)
	if err != nil {
		r.logger.Error("DLQ retry bilgisi güncellenemedi", map[string]interface{}{"id": id, "error": err.Error()})
		return err
	}

	return nil
}

func (r *WebhookDLQRepository) MarkResolved(id int64, notes string) error {
	query := `
		UPDATE webhook_dlq
		SET resolved = TRUE, resolution_notes = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.Exec(query, nullableString(notes), time.Now(), id)
	if err != nil {
		r.logger.Error("DLQ kaydı çözüldü olarak işaretlenemedi", map[string]interface{}{"id": id, "error": err.Error()})
		return err
	}

	return nil
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func scanDLQEntry(row rowScanner) (*domain.WebhookDLQEntry, error) {
	var entry domain.WebhookDLQEntry
	var nextRetryAt sql.NullTime
	var resolutionNotes sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.WebhookEventID,
		&entry.ErrorReason,
		&entry.RetryCount,
		&entry.MaxRetries,
		&nextRetryAt,
		&entry.Resolved,
		&resolutionNotes,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		entry.NextRetryAt = &t
	}
	entry.ResolutionNotes = resolutionNotes.String

	return &entry, nil
}

func scanDLQEntries(rows *sql.Rows) ([]*domain.WebhookDLQEntry, error) {
	entries := make([]*domain.WebhookDLQEntry, 0)
	for rows.Next() {
		entry, err := scanDLQEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
