package service

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
	"creditflow/pkg/metrics"
)

type CreditsService struct {
	repo   domain.CreditRepository
	ledger domain.LedgerService
	logger logger.Logger
}

func NewCreditsService(repo domain.CreditRepository, ledger domain.LedgerService, logger logger.Logger) domain.CreditsService {
	return &CreditsService{
		repo:   repo,
		ledger: ledger,
		logger: logger,
	}
}

func (s *CreditsService) GetBalance(userID int64) (*domain.CreditBalance, error) {
	balance, err := s.repo.FindBalance(userID)
	if err != nil {
		return nil, fmt.Errorf("kredi bakiyesi okunamadı: %w", err)
	}

	if balance == nil {
		return nil, domain.ErrBalanceNotFound
	}

	return balance, nil
}

func (s *CreditsService) InitializeBalance(userID int64) error {
	if err := s.repo.InitializeBalance(userID); err != nil {
		return fmt.Errorf("kredi bakiyesi başlatılamadı: %w", err)
	}

	return nil
}

// AddCredits, kullanıcının bakiyesini artırır. Bakiye güncellemesi ve denetim
// satırı tek atomik birimde yazılır; her başarılı mutasyon için defterde bir
// kayıt oluşur. Aynı idempotency anahtarıyla tekrar çağrı, yeni mutasyon
// yapmadan mevcut hareketi döner.
func (s *CreditsService) AddCredits(userID int64, amount int64, description string, txType domain.CreditTransactionType, idempotencyKey string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	return s.mutate(userID, amount, description, txType, idempotencyKey,
		domain.AccountSystem, domain.UserCreditsAccount(userID))
}

// DeductCredits, bakiyeden düşer. Bakiye yetersizse ErrInsufficientCredits
// döner ve hiçbir satır değişmez; kontrol ve yazma aynı atomik birimdedir.
func (s *CreditsService) DeductCredits(userID int64, amount int64, description string, txType domain.CreditTransactionType, idempotencyKey string) (*domain.CreditTransaction, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	creditAccount := domain.AccountRevenue
	if txType == domain.CreditTxRefund {
		creditAccount = domain.AccountRefunds
	} else if txType == domain.CreditTxTransferOut {
		creditAccount = domain.AccountSystem
	}

	return s.mutate(userID, -amount, description, txType, idempotencyKey,
		domain.UserCreditsAccount(userID), creditAccount)
}

func (s *CreditsService) mutate(userID, delta int64, description string, txType domain.CreditTransactionType, idempotencyKey, debitAccount, creditAccount string) (*domain.CreditTransaction, error) {
	if delta == 0 {
		return nil, domain.ErrInvalidAmount
	}

	if !txType.Valid() {
		return nil, fmt.Errorf("geçersiz kredi hareketi tipi: %s", txType)
	}

	if idempotencyKey != "" {
		existing, err := s.repo.FindTransactionByIdempotencyKey(idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency kontrolü yapılamadı: %w", err)
		}
		if existing != nil {
			s.logger.Debug("Kredi hareketi zaten uygulanmış", map[string]interface{}{
				"user_id":         userID,
				"idempotency_key": idempotencyKey,
			})
			// Önceki çağrı defter yazımından önce kesilmiş olabilir;
			// RecordEntry idempotent olduğu için burada tamamlanır.
			if err := s.recordLedgerEntry(existing, debitAccount, creditAccount); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	tx := &domain.CreditTransaction{
		UserID:         userID,
		Amount:         delta,
		Type:           txType,
		Description:    description,
		IdempotencyKey: idempotencyKey,
	}

	applied, err := s.repo.ApplyDelta(tx)
	if errors.Is(err, domain.ErrDuplicateEntry) && idempotencyKey != "" {
		// Yarışı kaybeden çağrı: kazanan kaydı dön.
		existing, findErr := s.repo.FindTransactionByIdempotencyKey(idempotencyKey)
		if findErr != nil || existing == nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			s.logger.Warn("Yetersiz kredi", map[string]interface{}{
				"user_id": userID,
				"amount":  delta,
			})
			metrics.RecordCreditMutation(string(txType), "insufficient")
			return nil, domain.ErrInsufficientCredits
		}
		metrics.RecordCreditMutation(string(txType), "failed")
		return nil, err
	}

	if err := s.recordLedgerEntry(applied, debitAccount, creditAccount); err != nil {
		// Bakiye commit edildi ama defter kaydı yazılamadı. Çağıran aynı
		// idempotency anahtarıyla tekrar dendiğinde bakiye dedup'a takılır
		// ve eksik defter kaydı tamamlanır.
		return nil, err
	}

	metrics.RecordCreditMutation(string(txType), "completed")
	s.logger.Info("Kredi hareketi uygulandı", map[string]interface{}{
		"user_id":          userID,
		"amount":           delta,
		"transaction_type": txType,
		"balance_after":    applied.BalanceAfter,
	})

	return applied, nil
}

func (s *CreditsService) recordLedgerEntry(tx *domain.CreditTransaction, debitAccount, creditAccount string) error {
	amount := tx.Amount
	if amount < 0 {
		amount = -amount
	}

	ledgerKey := fmt.Sprintf("%s_tx_%d", tx.Type.LedgerEntryType(), tx.ID)
	if tx.IdempotencyKey != "" {
		ledgerKey = "ledger_" + tx.IdempotencyKey
	}

	_, err := s.ledger.RecordEntry(domain.EntryParams{
		DebitAccount:   debitAccount,
		CreditAccount:  creditAccount,
		Amount:         amount,
		Currency:       "credits",
		EntryType:      tx.Type.LedgerEntryType(),
		Description:    tx.Description,
		ReferenceID:    strconv.FormatInt(tx.ID, 10),
		ReferenceType:  "credit_transaction",
		IdempotencyKey: ledgerKey,
		CreatedBy:      "credits_service",
	})
	if err != nil {
		s.logger.Error("Kredi hareketi için defter kaydı yazılamadı", map[string]interface{}{
			"transaction_id":  tx.ID,
			"idempotency_key": ledgerKey,
			"error":           err.Error(),
		})
		return fmt.Errorf("defter kaydı yazılamadı: %w", err)
	}

	return nil
}

// TransferCredits, gönderenden düş + alıcıya ekle olarak kurgulanır. Hesaplar
// arası tek bir atomik primitif varsayılmadığı için, ekleme başarısız olursa
// gönderene telafi iadesi yapılır. Telafinin kendisi de başarısız olursa
// kayıtlar manuel mutabakat için loglanır.
func (s *CreditsService) TransferCredits(fromUserID, toUserID int64, amount int64, description string) error {
	if amount <= 0 {
		return domain.ErrInvalidAmount
	}

	if fromUserID == toUserID {
		return fmt.Errorf("aynı kullanıcıya transfer yapılamaz")
	}

	transferID := uuid.NewString()
	outKey := fmt.Sprintf("transfer_%s_out", transferID)
	inKey := fmt.Sprintf("transfer_%s_in", transferID)

	if _, err := s.DeductCredits(fromUserID, amount, description, domain.CreditTxTransferOut, outKey); err != nil {
		return fmt.Errorf("transfer sırasında düşüm yapılamadı: %w", err)
	}

	if _, err := s.AddCredits(toUserID, amount, description, domain.CreditTxTransferIn, inKey); err != nil {
		compKey := fmt.Sprintf("transfer_%s_comp", transferID)
		if _, compErr := s.AddCredits(fromUserID, amount, "transfer telafi iadesi", domain.CreditTxAdjustment, compKey); compErr != nil {
			s.logger.Error("Transfer telafisi başarısız, manuel mutabakat gerekli", map[string]interface{}{
				"transfer_id":  transferID,
				"from_user_id": fromUserID,
				"to_user_id":   toUserID,
				"amount":       amount,
				"out_key":      outKey,
				"comp_key":     compKey,
				"error":        compErr.Error(),
			})
		}
		return fmt.Errorf("transfer sırasında ekleme yapılamadı: %w", err)
	}

	return nil
}

func (s *CreditsService) GetUserTransactions(userID int64, limit int) ([]*domain.CreditTransaction, error) {
	transactions, err := s.repo.FindTransactionsByUserID(userID, limit)
	if err != nil {
		return nil, fmt.Errorf("kullanıcı kredi hareketleri bulunamadı: %w", err)
	}

	return transactions, nil
}
