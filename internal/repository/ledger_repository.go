package repository

import (
	"database/sql"
	"fmt"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type LedgerRepository struct {
	db     *sql.DB
	logger logger.Logger
}

func NewLedgerRepository(db *sql.DB, logger logger.Logger) domain.LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

const ledgerColumns = `id, sequence_number, debit_account, credit_account, amount, currency,
		entry_type, description, reference_id, reference_type, idempotency_key,
		previous_hash, entry_hash, created_at, created_by`

func (r *LedgerRepository) Insert(entry *domain.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (
			sequence_number, debit_account, credit_account, amount, currency,
			entry_type, description, reference_id, reference_type, idempotency_key,
			previous_hash, entry_hash, created_at, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`

	err := r.db.QueryRow(
		query,
		entry.SequenceNumber,
		entry.DebitAccount,
		entry.CreditAccount,
		entry.Amount,
		entry.Currency,
		string(entry.EntryType),
		entry.Description,
		entry.ReferenceID,
		entry.ReferenceType,
		entry.IdempotencyKey,
		entry.PreviousHash,
		entry.EntryHash,
		entry.CreatedAt,
		entry.CreatedBy,
	).Scan(&entry.ID)

	if err != nil {
		r.logger.Error("Defter kaydı yazılamadı", map[string]interface{}{
			"idempotency_key": entry.IdempotencyKey,
			"error":           err.Error(),
		})
		return fmt.Errorf("defter kaydı yazılamadı: %w", err)
	}

	return nil
}

func (r *LedgerRepository) FindByIdempotencyKey(key string) (*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE idempotency_key = $1
	`

	entry, err := r.scanEntry(r.db.QueryRow(query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Defter kaydı okunamadı", map[string]interface{}{"idempotency_key": key, "error": err.Error()})
		return nil, err
	}

	return entry, nil
}

func (r *LedgerRepository) FindLastEntry() (*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		ORDER BY sequence_number DESC
		LIMIT 1
	`

	entry, err := r.scanEntry(r.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Son defter kaydı okunamadı", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	return entry, nil
}

func (r *LedgerRepository) FindBySequenceRange(start, end int64) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE sequence_number >= $1 AND sequence_number <= $2
		ORDER BY sequence_number ASC
	`

	rows, err := r.db.Query(query, start, end)
	if err != nil {
		r.logger.Error("Defter kayıtları okunamadı", map[string]interface{}{"start": start, "end": end, "error": err.Error()})
		return nil, err
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

func (r *LedgerRepository) FindByReference(referenceID, referenceType string) ([]*domain.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE reference_id = $1 AND ($2 = '' OR reference_type = $2)
		ORDER BY sequence_number ASC
	`

	rows, err := r.db.Query(query, referenceID, referenceType)
	if err != nil {
		r.logger.Error("Referansa göre defter kayıtları okunamadı", map[string]interface{}{
			"reference_id":   referenceID,
			"reference_type": referenceType,
			"error":          err.Error(),
		})
		return nil, err
	}
	defer rows.Close()

	return r.scanEntries(rows)
}

func (r *LedgerRepository) SumAccount(account string) (int64, int64, time.Time, error) {
	sumQuery := `
		SELECT
			COALESCE(SUM(CASE WHEN credit_account = $1 THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN debit_account = $1 THEN amount ELSE 0 END), 0)
		FROM ledger_entries
		WHERE credit_account = $1 OR debit_account = $1
	`

	var credits, debits int64
	if err := r.db.QueryRow(sumQuery, account).Scan(&credits, &debits); err != nil {
		r.logger.Error("Hesap toplamı hesaplanamadı", map[string]interface{}{"account": account, "error": err.Error()})
		return 0, 0, time.Time{}, err
	}

	lastQuery := `
		SELECT created_at
		FROM ledger_entries
		WHERE credit_account = $1 OR debit_account = $1
		ORDER BY sequence_number DESC
		LIMIT 1
	`

	var lastEntryAt time.Time
	err := r.db.QueryRow(lastQuery, account).Scan(&lastEntryAt)
	if err != nil && err != sql.ErrNoRows {
		return 0, 0, time.Time{}, err
	}

	return credits, debits, lastEntryAt, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *LedgerRepository) scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var entryType string
	var description, createdBy sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.SequenceNumber,
		&entry.DebitAccount,
		&entry.CreditAccount,
		&entry.Amount,
		&entry.Currency,
		&entryType,
		&description,
		&entry.ReferenceID,
		&entry.ReferenceType,
		&entry.IdempotencyKey,
		&entry.PreviousHash,
		&entry.EntryHash,
		&entry.CreatedAt,
		&createdBy,
	)
	if err != nil {
		return nil, err
	}

	entry.EntryType = domain.EntryType(entryType)
	entry.Description = description.String
	entry.CreatedBy = createdBy.String

	return &entry, nil
}

func (r *LedgerRepository) scanEntries(rows *sql.Rows) ([]*domain.LedgerEntry, error) {
	entries := make([]*domain.LedgerEntry, 0)
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			r.logger.Error("Defter satırı okunamadı", map[string]interface{}{"error": err.Error()})
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}
