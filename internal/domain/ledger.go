package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type EntryType string

const (
	EntryTypePayment      EntryType = "payment"
	EntryTypeRefund       EntryType = "refund"
	EntryTypeCreditDeduct EntryType = "credit_deduct"
	EntryTypeAdjustment   EntryType = "adjustment"
)

func (t EntryType) Valid() bool {
	switch t {
	case EntryTypePayment, EntryTypeRefund, EntryTypeCreditDeduct, EntryTypeAdjustment:
		return true
	}
	return false
}

// GenesisHash, zincirin ilk kaydında previous_hash olarak kullanılır.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const (
	AccountRevenue = "revenue"
	AccountRefunds = "refunds"
	AccountSystem  = "system"

	userCreditsPrefix = "user_credits:"
)

// UserCreditsAccount returns the ledger account that mirrors a user's credit balance.
func UserCreditsAccount(userID int64) string {
	return userCreditsPrefix + strconv.FormatInt(userID, 10)
}

// ValidAccount, hesap adlarını kapalı bir şemayla sınırlar; serbest metin
// hesap adları sessizce yeni hesap oluşturamaz.
func ValidAccount(account string) bool {
	switch account {
	case AccountRevenue, AccountRefunds, AccountSystem:
		return true
	}
	if id, ok := strings.CutPrefix(account, userCreditsPrefix); ok {
		n, err := strconv.ParseInt(id, 10, 64)
		return err == nil && n > 0
	}
	return false
}

type LedgerEntry struct {
	ID             int64     `json:"id"`
	SequenceNumber int64     `json:"sequence_number"`
	DebitAccount   string    `json:"debit_account"`
	CreditAccount  string    `json:"credit_account"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	EntryType      EntryType `json:"entry_type"`
	Description    string    `json:"description,omitempty"`
	ReferenceID    string    `json:"reference_id"`
	ReferenceType  string    `json:"reference_type"`
	IdempotencyKey string    `json:"idempotency_key"`
	PreviousHash   string    `json:"previous_hash"`
	EntryHash      string    `json:"entry_hash"`
	CreatedAt      time.Time `json:"created_at"`
	CreatedBy      string    `json:"created_by"`
}

// ComputeHash, kaydın kanonik alanları üzerinden SHA-256 özetini hesaplar.
// Saklanan entry_hash ile yeniden hesaplanan değer her zaman eşleşmelidir.
func (e *LedgerEntry) ComputeHash() string {
	canonical := fmt.Sprintf("%d|%s|%s|%d|%s|%s|%s|%s|%d",
		e.SequenceNumber,
		e.DebitAccount,
		e.CreditAccount,
		e.Amount,
		e.Currency,
		e.EntryType,
		e.ReferenceID,
		e.PreviousHash,
		e.CreatedAt.UnixNano(),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// EntryParams, RecordEntry çağrısının girdisidir.
type EntryParams struct {
	DebitAccount   string
	CreditAccount  string
	Amount         int64
	Currency       string
	EntryType      EntryType
	Description    string
	ReferenceID    string
	ReferenceType  string
	IdempotencyKey string
	CreatedBy      string
}

type AccountBalance struct {
	Account       string    `json:"account"`
	Balance       int64     `json:"balance"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// ChainVerification, verify_chain_integrity sonucunu taşır. Valid false ise
// BrokenSequence ilk tutarsız kaydın sıra numarasıdır.
type ChainVerification struct {
	Valid          bool   `json:"valid"`
	CheckedEntries int    `json:"checked_entries"`
	BrokenSequence int64  `json:"broken_sequence,omitempty"`
	Detail         string `json:"detail,omitempty"`
}

type LedgerRepository interface {
	Insert(entry *LedgerEntry) error
	FindByIdempotencyKey(key string) (*LedgerEntry, error)
	FindLastEntry() (*LedgerEntry, error)
	FindBySequenceRange(start, end int64) ([]*LedgerEntry, error)
	FindByReference(referenceID, referenceType string) ([]*LedgerEntry, error)
	SumAccount(account string) (credits int64, debits int64, lastEntryAt time.Time, err error)
}

type LedgerService interface {
	RecordEntry(params EntryParams) (*LedgerEntry, error)
	VerifyChainIntegrity(start, end int64) (*ChainVerification, error)
	GetAccountBalance(account string) (*AccountBalance, error)
	GetEntriesByReference(referenceID, referenceType string) ([]*LedgerEntry, error)
}
