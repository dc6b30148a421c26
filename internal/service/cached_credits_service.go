package service

import (
	"context"
	"errors"
	"time"

	"creditflow/internal/domain"
	"creditflow/pkg/cache"
	"creditflow/pkg/circuitbreaker"
	"creditflow/pkg/logger"
	"creditflow/pkg/metrics"
)

const balanceCacheTTL = 30 * time.Second

// CachedCreditsService, bakiye okumalarını Redis üzerinden sunan bir
// dekoratördür. Doğruluk kaynağı her zaman veritabanıdır: mutasyonlar sarılan
// servise gider ve ilgili anahtar geçersiz kılınır. Redis erişimi devre
// kesiciyle korunur; kesici açıkken okuma doğrudan veritabanından yapılır.
type CachedCreditsService struct {
	inner   domain.CreditsService
	cache   cache.Cache
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

func NewCachedCreditsService(inner domain.CreditsService, c cache.Cache, logger logger.Logger) domain.CreditsService {
	breaker := circuitbreaker.New(circuitbreaker.Settings{
		Name:    "credits-cache",
		Timeout: 15 * time.Second,
		OnStateChange: func(name string, from, to circuitbreaker.State) {
			logger.Warn("Devre kesici durum değiştirdi", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})

	return &CachedCreditsService{
		inner:   inner,
		cache:   c,
		breaker: breaker,
		logger:  logger,
	}
}

func (s *CachedCreditsService) GetBalance(userID int64) (*domain.CreditBalance, error) {
	key := cache.BalanceKey(userID)

	// Miss kesici açısından başarıdır; yalnızca gerçek redis hataları
	// kesiciyi tetikler.
	cached, err := s.breaker.Execute(func() (interface{}, error) {
		var balance domain.CreditBalance
		if err := s.cache.Get(context.Background(), key, &balance); err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				return nil, nil
			}
			return nil, err
		}
		return &balance, nil
	})
	if err == nil && cached != nil {
		metrics.RecordCacheHit()
		return cached.(*domain.CreditBalance), nil
	}
	if err != nil &&
		!errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) &&
		!errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		s.logger.Warn("Önbellek okuması başarısız, veritabanına düşülüyor", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
	metrics.RecordCacheMiss()

	balance, err := s.inner.GetBalance(userID)
	if err != nil {
		return nil, err
	}

	// Yazılamayan önbellek okuma yolunu bozmaz.
	s.breaker.Execute(func() (interface{}, error) {
		return nil, s.cache.Set(context.Background(), key, balance, balanceCacheTTL)
	})

	return balance, nil
}

func (s *CachedCreditsService) InitializeBalance(userID int64) error {
	return s.inner.InitializeBalance(userID)
}

func (s *CachedCreditsService) AddCredits(userID int64, amount int64, description string, txType domain.CreditTransactionType, idempotencyKey string) (*domain.CreditTransaction, error) {
	tx, err := s.inner.AddCredits(userID, amount, description, txType, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)
	return tx, nil
}

func (s *CachedCreditsService) DeductCredits(userID int64, amount int64, description string, txType domain.CreditTransactionType, idempotencyKey string) (*domain.CreditTransaction, error) {
	tx, err := s.inner.DeductCredits(userID, amount, description, txType, idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.invalidate(userID)
	return tx, nil
}

func (s *CachedCreditsService) TransferCredits(fromUserID, toUserID int64, amount int64, description string) error {
	err := s.inner.TransferCredits(fromUserID, toUserID, amount, description)
	// Telafi senaryosunda hangi bakiyenin değiştiği bilinemez; iki taraf da
	// geçersiz kılınır.
	s.invalidate(fromUserID)
	s.invalidate(toUserID)
	return err
}

func (s *CachedCreditsService) GetUserTransactions(userID int64, limit int) ([]*domain.CreditTransaction, error) {
	return s.inner.GetUserTransactions(userID, limit)
}

func (s *CachedCreditsService) invalidate(userID int64) {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.cache.Delete(context.Background(), cache.BalanceKey(userID))
	})
	if err != nil && !errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen) && !errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		// TTL kısa tutulduğu için geçersiz kılma hatası en fazla 30 saniyelik
		// bayat okuma demektir.
		s.logger.Warn("Bakiye önbelleği geçersiz kılınamadı", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}
}
