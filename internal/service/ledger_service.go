package service

import (
	"fmt"
	"sync"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
	"creditflow/pkg/metrics"
)

type LedgerService struct {
	repo   domain.LedgerRepository
	logger logger.Logger

	// Sıra numarası ve önceki hash ataması tek serileştirme noktasıdır;
	// defter yazımları bunu paylaşmayı kaldıracak sıklıkta değildir.
	writeMutex sync.Mutex
}

func NewLedgerService(repo domain.LedgerRepository, logger logger.Logger) domain.LedgerService {
	return &LedgerService{
		repo:   repo,
		logger: logger,
	}
}

// RecordEntry, yeni bir çift kayıtlı defter satırı ekler. Aynı idempotency
// anahtarıyla ikinci kez çağrıldığında mevcut kaydı aynen döner; hiçbir satır
// asla güncellenmez veya silinmez.
func (s *LedgerService) RecordEntry(p domain.EntryParams) (*domain.LedgerEntry, error) {
	if p.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	if !p.EntryType.Valid() {
		return nil, domain.ErrInvalidEntryType
	}

	if !domain.ValidAccount(p.DebitAccount) || !domain.ValidAccount(p.CreditAccount) {
		s.logger.Error("Geçersiz hesap tanımlayıcısı", map[string]interface{}{
			"debit_account":  p.DebitAccount,
			"credit_account": p.CreditAccount,
		})
		return nil, domain.ErrInvalidAccount
	}

	key := p.IdempotencyKey
	if key == "" {
		key = fmt.Sprintf("%s_%s", p.EntryType, p.ReferenceID)
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	existing, err := s.repo.FindByIdempotencyKey(key)
	if err != nil {
		return nil, fmt.Errorf("idempotency kontrolü yapılamadı: %w", err)
	}
	if existing != nil {
		s.logger.Debug("Defter kaydı zaten mevcut, mevcut kayıt dönülüyor", map[string]interface{}{
			"idempotency_key": key,
			"sequence_number": existing.SequenceNumber,
		})
		return existing, nil
	}

	sequence := int64(1)
	previousHash := domain.GenesisHash

	last, err := s.repo.FindLastEntry()
	if err != nil {
		return nil, fmt.Errorf("son defter kaydı okunamadı: %w", err)
	}
	if last != nil {
		sequence = last.SequenceNumber + 1
		previousHash = last.EntryHash
	}

	entry := &domain.LedgerEntry{
		SequenceNumber: sequence,
		DebitAccount:   p.DebitAccount,
		CreditAccount:  p.CreditAccount,
		Amount:         p.Amount,
		Currency:       p.Currency,
		EntryType:      p.EntryType,
		Description:    p.Description,
		ReferenceID:    p.ReferenceID,
		ReferenceType:  p.ReferenceType,
		IdempotencyKey: key,
		PreviousHash:   previousHash,
		// Postgres TIMESTAMP mikrosaniye çözünürlüklüdür; özet zamanın
		// veritabanı turundan aynen dönmesine bağlı olduğu için daha ince
		// kesirler baştan atılır.
		CreatedAt:      time.Now().Truncate(time.Microsecond),
		CreatedBy:      p.CreatedBy,
	}
	entry.EntryHash = entry.ComputeHash()

	if err := s.repo.Insert(entry); err != nil {
		return nil, err
	}

	metrics.RecordLedgerEntry(string(entry.EntryType))
	s.logger.Info("Defter kaydı yazıldı", map[string]interface{}{
		"sequence_number": entry.SequenceNumber,
		"entry_type":      entry.EntryType,
		"debit_account":   entry.DebitAccount,
		"credit_account":  entry.CreditAccount,
		"amount":          entry.Amount,
	})

	return entry, nil
}

// VerifyChainIntegrity, [start, end] aralığındaki kayıtları sırayla yürür;
// her kaydın hash'ini yeniden hesaplar ve zincir bağını denetler. Dönem sonu
// denetimi için O(n) taramadır, sıcak yolda kullanılmaz.
func (s *LedgerService) VerifyChainIntegrity(start, end int64) (*domain.ChainVerification, error) {
	if start < 1 {
		start = 1
	}

	if end <= 0 {
		last, err := s.repo.FindLastEntry()
		if err != nil {
			return nil, err
		}
		if last == nil {
			return &domain.ChainVerification{Valid: true}, nil
		}
		end = last.SequenceNumber
	}

	// start > 1 ise önceki kaydın hash'i de gerekir.
	fetchStart := start
	if fetchStart > 1 {
		fetchStart = start - 1
	}

	entries, err := s.repo.FindBySequenceRange(fetchStart, end)
	if err != nil {
		return nil, err
	}

	result := &domain.ChainVerification{Valid: true}
	var previous *domain.LedgerEntry

	for _, entry := range entries {
		if entry.SequenceNumber < start {
			previous = entry
			continue
		}

		if recomputed := entry.ComputeHash(); recomputed != entry.EntryHash {
			return s.brokenChain(result, entry.SequenceNumber,
				"kayıt hash'i yeniden hesaplanan değerle eşleşmiyor"), nil
		}

		switch {
		case previous == nil && entry.SequenceNumber == 1:
			if entry.PreviousHash != domain.GenesisHash {
				return s.brokenChain(result, entry.SequenceNumber,
					"ilk kaydın previous_hash değeri genesis değil"), nil
			}
		case previous != nil:
			if entry.SequenceNumber != previous.SequenceNumber+1 {
				return s.brokenChain(result, entry.SequenceNumber,
					"sıra numarasında boşluk var"), nil
			}
			if entry.PreviousHash != previous.EntryHash {
				return s.brokenChain(result, entry.SequenceNumber,
					"previous_hash önceki kaydın entry_hash değeriyle eşleşmiyor"), nil
			}
		}

		previous = entry
		result.CheckedEntries++
	}

	metrics.RecordChainVerification(true)
	return result, nil
}

func (s *LedgerService) brokenChain(result *domain.ChainVerification, sequence int64, detail string) *domain.ChainVerification {
	s.logger.Error("Defter zinciri bütünlüğü bozuk", map[string]interface{}{
		"sequence_number": sequence,
		"detail":          detail,
	})
	metrics.RecordChainVerification(false)
	result.Valid = false
	result.BrokenSequence = sequence
	result.Detail = detail
	return result
}

// GetAccountBalance, bakiyeyi alacak toplamından borç toplamını düşerek türetir.
func (s *LedgerService) GetAccountBalance(account string) (*domain.AccountBalance, error) {
	if !domain.ValidAccount(account) {
		return nil, domain.ErrInvalidAccount
	}

	credits, debits, lastEntryAt, err := s.repo.SumAccount(account)
	if err != nil {
		return nil, fmt.Errorf("hesap bakiyesi hesaplanamadı: %w", err)
	}

	return &domain.AccountBalance{
		Account:       account,
		Balance:       credits - debits,
		LastUpdatedAt: lastEntryAt,
	}, nil
}

func (s *LedgerService) GetEntriesByReference(referenceID, referenceType string) ([]*domain.LedgerEntry, error) {
	entries, err := s.repo.FindByReference(referenceID, referenceType)
	if err != nil {
		return nil, fmt.Errorf("referansa göre defter kayıtları bulunamadı: %w", err)
	}

	return entries, nil
}
