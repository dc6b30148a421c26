package domain

import (
	"encoding/json"
	"time"
)

type CreditTransactionType string

const (
	CreditTxPurchase      CreditTransactionType = "purchase"
	CreditTxRefund        CreditTransactionType = "refund"
	CreditTxMessageCharge CreditTransactionType = "message_charge"
	CreditTxCallCharge    CreditTransactionType = "call_charge"
	CreditTxTransferOut   CreditTransactionType = "transfer_out"
	CreditTxTransferIn    CreditTransactionType = "transfer_in"
	CreditTxAdjustment    CreditTransactionType = "adjustment"
)

func (t CreditTransactionType) Valid() bool {
	switch t {
	case CreditTxPurchase, CreditTxRefund, CreditTxMessageCharge, CreditTxCallCharge,
		CreditTxTransferOut, CreditTxTransferIn, CreditTxAdjustment:
		return true
	}
	return false
}

// LedgerEntryType, kredi hareket tipini defterin kapalı kayıt tipi kümesine eşler.
func (t CreditTransactionType) LedgerEntryType() EntryType {
	switch t {
	case CreditTxPurchase:
		return EntryTypePayment
	case CreditTxRefund:
		return EntryTypeRefund
	case CreditTxMessageCharge, CreditTxCallCharge:
		return EntryTypeCreditDeduct
	default:
		return EntryTypeAdjustment
	}
}

type CreditBalance struct {
	UserID        int64     `json:"user_id"`
	Balance       int64     `json:"balance"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// CreditTransaction, her bakiye değişimi için bir denetim satırıdır.
// Amount işaretlidir: yükleme pozitif, harcama negatif.
type CreditTransaction struct {
	ID             int64                 `json:"id"`
	UserID         int64                 `json:"user_id"`
	Amount         int64                 `json:"amount"`
	Type           CreditTransactionType `json:"transaction_type"`
	BalanceAfter   int64                 `json:"balance_after"`
	Description    string                `json:"description,omitempty"`
	IdempotencyKey string                `json:"idempotency_key,omitempty"`
	Metadata       json.RawMessage       `json:"metadata,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

type CreditRepository interface {
	FindBalance(userID int64) (*CreditBalance, error)
	InitializeBalance(userID int64) error
	FindTransactionByIdempotencyKey(key string) (*CreditTransaction, error)
	FindTransactionsByUserID(userID int64, limit int) ([]*CreditTransaction, error)

	// ApplyDelta bakiyeyi tek bir veritabanı transaction'ı içinde günceller ve
	// denetim satırını aynı transaction'da yazar. balance + delta < 0 olacaksa
	// ErrInsufficientCredits döner ve hiçbir satır değişmez.
	ApplyDelta(tx *CreditTransaction) (*CreditTransaction, error)
}

type CreditsService interface {
	GetBalance(userID int64) (*CreditBalance, error)
	InitializeBalance(userID int64) error
	AddCredits(userID int64, amount int64, description string, txType CreditTransactionType, idempotencyKey string) (*CreditTransaction, error)
	DeductCredits(userID int64, amount int64, description string, txType CreditTransactionType, idempotencyKey string) (*CreditTransaction, error)
	TransferCredits(fromUserID, toUserID int64, amount int64, description string) error
	GetUserTransactions(userID int64, limit int) ([]*CreditTransaction, error)
}
