package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type CreditRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewCreditRepository(db *sql.DB, logger logger.Logger) domain.CreditRepository {
	return &CreditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *CreditRepository) FindBalance(userID int64) (*domain.CreditBalance, error) {
	query := `
		SELECT user_id, balance, last_updated_at
		FROM credit_balances
		WHERE user_id = $1
	`

	var balance domain.CreditBalance
	err := r.db.QueryRow(query, userID).Scan(
		&balance.UserID,
		&balance.Balance,
		&balance.LastUpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		r.logger.Error("Kredi bakiyesi okunamadı", map[string]interface{}{"user_id": userID, "error": err.Error()})
		return nil, err
	}

	return &balance, nil
}

func (r *CreditRepository) InitializeBalance(userID int64) error {
	query := `
		INSERT INTO credit_balances (user_id, balance, last_updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING
	`

	_, err := r.db.Exec(query, userID, time.Now())
	if err != nil {
		r.logger.Error("Kredi bakiyesi başlatılamadı", map[string]interface{}{"user_id": userID, "error": err.Error()})
		return err
	}

	return nil
}

func (r *CreditRepository) FindTransactionByIdempotencyKey(key string) (*domain.CreditTransaction, error) {
	query := `
		SELECT id, user_id, amount, transaction_type, balance_after, description,
		       idempotency_key, metadata, created_at
		FROM credit_transactions
		WHERE idempotency_key = $1
	`

	tx, err := scanCreditTransaction(r.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Kredi hareketi okunamadı", map[string]interface{}{"idempotency_key": key, "error": err.Error()})
		return nil, err
	}

	return tx, nil
}

func (r *CreditRepository) FindTransactionsByUserID(userID int64, limit int) ([]*domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, user_id, amount, transaction_type, balance_after, description,
		       idempotency_key, metadata, created_at
		FROM credit_transactions
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		r.logger.Error("Kullanıcı kredi hareketleri okunamadı", map[string]interface{}{"user_id": userID, "error": err.Error()})
		return nil, err
	}
	defer rows.Close()

	transactions := make([]*domain.CreditTransaction, 0)
	for rows.Next() {
		tx, err := scanCreditTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

// ApplyDelta, bakiye güncellemesini ve denetim satırını tek bir veritabanı
// transaction'ında yapar. Koşullu UPDATE sayesinde iki eşzamanlı düşüm aynı
// eski bakiyeye karşı başarılı olamaz: kaybeden ya yeni bakiyeye karşı
// uygulanır ya da ErrInsufficientCredits alır.
func (r *CreditRepository) ApplyDelta(ct *domain.CreditTransaction) (*domain.CreditTransaction, error) {
	dbTx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("veritabanı transaction'ı başlatılamadı: %w", err)
	}
	defer dbTx.Rollback()

	now := time.Now()

	updateQuery := `
		UPDATE credit_balances
		SET balance = balance + $1, last_updated_at = $2
		WHERE user_id = $3 AND balance + $1 >= 0
	`

	res, err := dbTx.Exec(updateQuery, ct.Amount, now, ct.UserID)
	if err != nil {
		r.logger.Error("Bakiye güncellenemedi", map[string]interface{}{"user_id": ct.UserID, "error": err.Error()})
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		// Satır yoksa bakiye hiç başlatılmamış, varsa koşul tutmamış demektir.
		var exists int
		if err := dbTx.QueryRow(`SELECT COUNT(*) FROM credit_balances WHERE user_id = $1`, ct.UserID).Scan(&exists); err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, domain.ErrBalanceNotFound
		}
		return nil, domain.ErrInsufficientCredits
	}

	var balanceAfter int64
	if err := dbTx.QueryRow(`SELECT balance FROM credit_balances WHERE user_id = $1`, ct.UserID).Scan(&balanceAfter); err != nil {
		return nil, err
	}

	var idempotencyKey sql.NullString
	if ct.IdempotencyKey != "" {
		idempotencyKey = sql.NullString{String: ct.IdempotencyKey, Valid: true}
	}

	var metadata sql.NullString
	if len(ct.Metadata) > 0 {
		metadata = sql.NullString{String: string(ct.Metadata), Valid: true}
	}

	insertQuery := `
		INSERT INTO credit_transactions (
			user_id, amount, transaction_type, balance_after, description,
			idempotency_key, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = dbTx.QueryRow(
		insertQuery,
		ct.UserID,
		ct.Amount,
		string(ct.Type),
		balanceAfter,
		ct.Description,
		idempotencyKey,
		metadata,
		now,
	).Scan(&ct.ID)

	if err != nil {
		if IsUniqueViolation(err) {
			// Aynı anahtarla yarışan bir çağrı kazandı; mutasyon geri alınır,
			// çağıran mevcut kaydı okuyup döner.
			return nil, domain.ErrDuplicateEntry
		}
		r.logger.Error("Kredi hareketi yazılamadı", map[string]interface{}{"user_id": ct.UserID, "error": err.Error()})
		return nil, err
	}

	if err := dbTx.Commit(); err != nil {
		return nil, fmt.Errorf("transaction commit edilemedi: %w", err)
	}

	ct.BalanceAfter = balanceAfter
	ct.CreatedAt = now

	return ct, nil
}

// IsUniqueViolation, sqlite ve postgres'in tekillik ihlali mesajlarını tanır.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}

func scanCreditTransaction(row rowScanner) (*domain.CreditTransaction, error) {
	var tx domain.CreditTransaction
	var txType string
	var description, idempotencyKey, metadata sql.NullString

	err := row.Scan(
		&tx.ID,
		&tx.UserID,
		&tx.Amount,
		&txType,
		&tx.BalanceAfter,
		&description,
		&idempotencyKey,
		&metadata,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Type = domain.CreditTransactionType(txType)
	tx.Description = description.String
	tx.IdempotencyKey = idempotencyKey.String
	if metadata.Valid {
		tx.Metadata = []byte(metadata.String)
	}

	return &tx, nil
}
