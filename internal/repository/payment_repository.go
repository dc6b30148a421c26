package repository

import (
	"database/sql"
	"fmt"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type PaymentRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPaymentRepository(db *sql.DB, logger logger.Logger) domain.PaymentRepository {
	return &PaymentRepository{
		db:     db,
		logger: logger,
	}
}

const paymentColumns = `id, provider, provider_payment_id, user_id, credits, amount_minor,
		currency, status, failure_count, created_at, updated_at`

func (r *PaymentRepository) Create(intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			id, provider, provider_payment_id, user_id, credits, amount_minor,
			currency, status, failure_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	now := time.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now

	_, err := r.db.Exec(
		query,
		intent.ID,
		intent.Provider,
		intent.ProviderPaymentID,
		intent.UserID,
		intent.Credits,
		intent.AmountMinor,
		intent.Currency,
		string(intent.Status),
		intent.FailureCount,
		intent.CreatedAt,
		intent.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Ödeme kaydı oluşturulamadı", map[string]interface{}{"id": intent.ID, "error": err.Error()})
		return fmt.Errorf("ödeme kaydı oluşturulamadı: %w", err)
	}

	return nil
}

func (r *PaymentRepository) FindByID(id string) (*domain.PaymentIntent, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_intents
		WHERE id = $1
	`

	intent, err := scanPaymentIntent(r.db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Ödeme kaydı okunamadı", map[string]interface{}{"id": id, "error": err.Error()})
		return nil, err
	}

	return intent, nil
}

func (r *PaymentRepository) FindByProviderPaymentID(provider, providerPaymentID string) (*domain.PaymentIntent, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payment_intents
		WHERE provider = $1 AND provider_payment_id = $2
	`

	intent, err := scanPaymentIntent(r.db.QueryRow(query, provider, providerPaymentID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Ödeme kaydı okunamadı", map[string]interface{}{
			"provider":            provider,
			"provider_payment_id": providerPaymentID,
			"error":               err.Error(),
		})
		return nil, err
	}

	return intent, nil
}

func (r *PaymentRepository) UpdateStatus(id string, status domain.PaymentStatus) error {
	query := `
		UPDATE payment_intents
		SET status = $1, updated_at = $2
		WHERE id = $3
	`

	_, err := r.db.Exec(query, string(status), time.Now(), id)
	if err != nil {
		r.logger.Error("Ödeme durumu güncellenemedi", map[string]interface{}{"id": id, "status": status, "error": err.Error()})
		return err
	}

	return nil
}

func (r *PaymentRepository) IncrementFailureCount(id string) error {
	query := `
		UPDATE payment_intents
		SET failure_count = failure_count + 1, updated_at = $1
		WHERE id = $2
	`

	_, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		r.logger.Error("Ödeme hata sayacı artırılamadı", map[string]interface{}{"id": id, "error": err.Error()})
		return err
	}

	return nil
}

func scanPaymentIntent(row rowScanner) (*domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	var status string

	err := row.Scan(
		&intent.ID,
		&intent.Provider,
		&intent.ProviderPaymentID,
		&intent.UserID,
		&intent.Credits,
		&intent.AmountMinor,
		&intent.Currency,
		&status,
		&intent.FailureCount,
		&intent.CreatedAt,
		&intent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	intent.Status = domain.PaymentStatus(status)

	return &intent, nil
}
