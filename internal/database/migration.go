package database

import (
	"database/sql"
	"fmt"
	"time"

	"creditflow/pkg/logger"
)

type Migration struct {
	ID        int64
	Name      string
	AppliedAt time.Time
}

type MigrationService struct {
	db      *sql.DB
	dialect string
	logger  logger.Logger
}

func NewMigrationService(db *sql.DB, dialect string, logger logger.Logger) *MigrationService {
	return &MigrationService{
		db:      db,
		dialect: dialect,
		logger:  logger,
	}
}

// serialPK, otomatik artan birincil anahtar kolonunu sürücüye göre seçer.
func (m *MigrationService) serialPK() string {
	if m.dialect == "postgres" {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func (m *MigrationService) blobType() string {
	if m.dialect == "postgres" {
		return "BYTEA"
	}
	return "BLOB"
}

func (m *MigrationService) InitMigrationTable() error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS migrations (
        id %s,
        name TEXT NOT NULL UNIQUE,
        applied_at TIMESTAMP NOT NULL
    )
    `, m.serialPK())

	_, err := m.db.Exec(query)
	if err != nil {
		m.logger.Error("Migration tablosu oluşturulamadı", map[string]interface{}{"error": err.Error()})
		return err
	}

	return nil
}

func (m *MigrationService) IsMigrationApplied(name string) (bool, error) {
	var count int
	query := "SELECT COUNT(*) FROM migrations WHERE name = $1"
	err := m.db.QueryRow(query, name).Scan(&count)
	if err != nil {
		m.logger.Error("Migration durumu kontrol edilemedi", map[string]interface{}{"name": name, "error": err.Error()})
		return false, err
	}

	return count > 0, nil
}

func (m *MigrationService) RecordMigration(name string) error {
	query := "INSERT INTO migrations (name, applied_at) VALUES ($1, $2)"
	_, err := m.db.Exec(query, name, time.Now())
	if err != nil {
		m.logger.Error("Migration kaydedilemedi", map[string]interface{}{"name": name, "error": err.Error()})
		return err
	}

	return nil
}

func (m *MigrationService) ApplyMigration(name string, migrationFunc func(*MigrationService) error) error {
	applied, err := m.IsMigrationApplied(name)
	if err != nil {
		return err
	}

	if applied {
		m.logger.Debug("Migration zaten uygulanmış", map[string]interface{}{"name": name})
		return nil
	}

	m.logger.Info("Migration uygulanıyor", map[string]interface{}{"name": name})

	if err = migrationFunc(m); err != nil {
		m.logger.Error("Migration uygulanamadı", map[string]interface{}{"name": name, "error": err.Error()})
		return err
	}

	if err = m.RecordMigration(name); err != nil {
		return err
	}

	m.logger.Info("Migration başarıyla uygulandı", map[string]interface{}{"name": name})
	return nil
}

func (m *MigrationService) RunMigrations() error {
	m.logger.Info("Migrationlar başlatılıyor", map[string]interface{}{})

	if err := m.InitMigrationTable(); err != nil {
		return fmt.Errorf("migration tablosu oluşturulamadı: %w", err)
	}

	migrations := []struct {
		Name string
		Func func(*MigrationService) error
	}{
		{"create_credit_balances_table", CreateCreditBalancesTable},
		{"create_credit_transactions_table", CreateCreditTransactionsTable},
		{"create_ledger_entries_table", CreateLedgerEntriesTable},
		{"create_payment_intents_table", CreatePaymentIntentsTable},
		{"create_webhook_events_table", CreateWebhookEventsTable},
		{"create_webhook_dlq_table", CreateWebhookDLQTable},
	}

	for _, migration := range migrations {
		if err := m.ApplyMigration(migration.Name, migration.Func); err != nil {
			return fmt.Errorf("migration uygulanamadı %s: %w", migration.Name, err)
		}
	}

	return nil
}

func CreateCreditBalancesTable(m *MigrationService) error {
	query := `
    CREATE TABLE IF NOT EXISTS credit_balances (
        user_id INTEGER PRIMARY KEY,
        balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
        last_updated_at TIMESTAMP NOT NULL
    )
    `

	_, err := m.db.Exec(query)
	return err
}

func CreateCreditTransactionsTable(m *MigrationService) error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS credit_transactions (
        id %s,
        user_id INTEGER NOT NULL,
        amount BIGINT NOT NULL,
        transaction_type TEXT NOT NULL,
        balance_after BIGINT NOT NULL,
        description TEXT,
        idempotency_key TEXT UNIQUE,
        metadata TEXT,
        created_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS credit_transactions_user_id_idx ON credit_transactions (user_id);
    `, m.serialPK())

	_, err := m.db.Exec(query)
	return err
}

func CreateLedgerEntriesTable(m *MigrationService) error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS ledger_entries (
        id %s,
        sequence_number BIGINT NOT NULL UNIQUE,
        debit_account TEXT NOT NULL,
        credit_account TEXT NOT NULL,
        amount BIGINT NOT NULL CHECK (amount > 0),
        currency TEXT NOT NULL,
        entry_type TEXT NOT NULL,
        description TEXT,
        reference_id TEXT NOT NULL,
        reference_type TEXT NOT NULL,
        idempotency_key TEXT NOT NULL UNIQUE,
        previous_hash TEXT NOT NULL,
        entry_hash TEXT NOT NULL,
        created_at TIMESTAMP NOT NULL,
        created_by TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS ledger_entries_debit_account_idx ON ledger_entries (debit_account);
    CREATE INDEX IF NOT EXISTS ledger_entries_credit_account_idx ON ledger_entries (credit_account);
    CREATE INDEX IF NOT EXISTS ledger_entries_reference_idx ON ledger_entries (reference_id, reference_type);
    `, m.serialPK())

	_, err := m.db.Exec(query)
	return err
}

func CreatePaymentIntentsTable(m *MigrationService) error {
	query := `
    CREATE TABLE IF NOT EXISTS payment_intents (
        id TEXT PRIMARY KEY,
        provider TEXT NOT NULL,
        provider_payment_id TEXT NOT NULL,
        user_id INTEGER NOT NULL,
        credits BIGINT NOT NULL,
        amount_minor BIGINT NOT NULL,
        currency TEXT NOT NULL,
        status TEXT NOT NULL,
        failure_count INTEGER NOT NULL DEFAULT 0,
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL,
        UNIQUE (provider, provider_payment_id)
    )
    `

	_, err := m.db.Exec(query)
	return err
}

func CreateWebhookEventsTable(m *MigrationService) error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS webhook_events (
        id %s,
        provider TEXT NOT NULL,
        event_id TEXT NOT NULL,
        event_type TEXT NOT NULL,
        raw_payload %s NOT NULL,
        signature_header TEXT NOT NULL,
        idempotency_key TEXT NOT NULL UNIQUE,
        status TEXT NOT NULL,
        retry_count INTEGER NOT NULL DEFAULT 0,
        payment_intent_id TEXT,
        processing_error TEXT,
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL
    );

    CREATE INDEX IF NOT EXISTS webhook_events_status_idx ON webhook_events (status);
    `, m.serialPK(), m.blobType())

	_, err := m.db.Exec(query)
	return err
}

func CreateWebhookDLQTable(m *MigrationService) error {
	query := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS webhook_dlq (
        id %s,
        webhook_event_id BIGINT NOT NULL,
        error_reason TEXT NOT NULL,
        retry_count INTEGER NOT NULL DEFAULT 0,
        max_retries INTEGER NOT NULL DEFAULT 3,
        next_retry_at TIMESTAMP,
        resolved BOOLEAN NOT NULL DEFAULT FALSE,
        resolution_notes TEXT,
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL,
        FOREIGN KEY (webhook_event_id) REFERENCES webhook_events (id)
    );

    CREATE INDEX IF NOT EXISTS webhook_dlq_next_retry_idx ON webhook_dlq (resolved, next_retry_at);
    `, m.serialPK())

	_, err := m.db.Exec(query)
	return err
}
