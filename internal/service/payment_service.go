package service

import (
	"fmt"

	"github.com/google/uuid"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type PaymentService struct {
	repo    domain.PaymentRepository
	credits domain.CreditsService
	logger  logger.Logger
}

func NewPaymentService(repo domain.PaymentRepository, credits domain.CreditsService, logger logger.Logger) domain.PaymentService {
	return &PaymentService{
		repo:    repo,
		credits: credits,
		logger:  logger,
	}
}

func (s *PaymentService) CreatePaymentIntent(userID int64, credits int64, amountMinor int64, currency, provider, providerPaymentID string) (*domain.PaymentIntent, error) {
	if credits <= 0 || amountMinor <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	intent := &domain.PaymentIntent{
		ID:                uuid.NewString(),
		Provider:          provider,
		ProviderPaymentID: providerPaymentID,
		UserID:            userID,
		Credits:           credits,
		AmountMinor:       amountMinor,
		Currency:          currency,
		Status:            domain.PaymentStatusPending,
	}

	if err := s.repo.Create(intent); err != nil {
		return nil, err
	}

	// Bakiye satırı yoksa fulfillment'tan önce hazırlanır.
	if err := s.credits.InitializeBalance(userID); err != nil {
		s.logger.Error("Ödeme için bakiye başlatılamadı", map[string]interface{}{
			"user_id": userID,
			"error":   err.Error(),
		})
	}

	s.logger.Info("Ödeme kaydı oluşturuldu", map[string]interface{}{
		"payment_intent_id":   intent.ID,
		"provider":            provider,
		"provider_payment_id": providerPaymentID,
		"user_id":             userID,
		"credits":             credits,
	})

	return intent, nil
}

func (s *PaymentService) GetPaymentIntent(id string) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrPaymentNotFound
	}

	return intent, nil
}

// FulfillPayment, onaylanmış bir ödeme karşılığında kullanıcıya kredi yükler.
// Zaten succeeded olan bir ödeme için mutasyonsuz başarı döner; kredi yükleme
// "payment_<id>" idempotency anahtarıyla yapıldığı için çifte yükleme mümkün
// değildir.
func (s *PaymentService) FulfillPayment(provider, providerPaymentID string) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindByProviderPaymentID(provider, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrPaymentNotFound
	}

	if intent.Status == domain.PaymentStatusSucceeded {
		s.logger.Debug("Ödeme zaten fulfill edilmiş", map[string]interface{}{"payment_intent_id": intent.ID})
		return intent, nil
	}

	idempotencyKey := fmt.Sprintf("payment_%s", intent.ID)
	description := fmt.Sprintf("%s ödemesi karşılığı kredi yüklemesi", provider)

	if _, err := s.credits.AddCredits(intent.UserID, intent.Credits, description, domain.CreditTxPurchase, idempotencyKey); err != nil {
		return nil, fmt.Errorf("kredi yüklenemedi: %w", err)
	}

	if err := s.repo.UpdateStatus(intent.ID, domain.PaymentStatusSucceeded); err != nil {
		// Kredi yüklendi ama durum yazılamadı; tekrar denendiğinde AddCredits
		// dedup'a takılacağı için çifte yükleme oluşmaz.
		return nil, err
	}

	intent.Status = domain.PaymentStatusSucceeded

	s.logger.Info("Ödeme fulfill edildi", map[string]interface{}{
		"payment_intent_id": intent.ID,
		"user_id":           intent.UserID,
		"credits":           intent.Credits,
	})

	return intent, nil
}

func (s *PaymentService) MarkPaymentFailed(provider, providerPaymentID string) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindByProviderPaymentID(provider, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrPaymentNotFound
	}

	if intent.Status == domain.PaymentStatusSucceeded {
		// Geç gelen failure olayı tamamlanmış ödemeyi bozamaz.
		s.logger.Warn("Başarısızlık olayı succeeded ödeme için yok sayıldı", map[string]interface{}{
			"payment_intent_id": intent.ID,
		})
		return intent, nil
	}

	if err := s.repo.IncrementFailureCount(intent.ID); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStatus(intent.ID, domain.PaymentStatusFailed); err != nil {
		return nil, err
	}

	intent.Status = domain.PaymentStatusFailed
	intent.FailureCount++

	return intent, nil
}

// RefundPayment, succeeded bir ödemeyi geri çevirir: krediler düşülür,
// defterde ters yönlü bir refund kaydı oluşur.
func (s *PaymentService) RefundPayment(provider, providerPaymentID, reason string) (*domain.PaymentIntent, error) {
	intent, err := s.repo.FindByProviderPaymentID(provider, providerPaymentID)
	if err != nil {
		return nil, err
	}
	if intent == nil {
		return nil, domain.ErrPaymentNotFound
	}

	if intent.Status == domain.PaymentStatusRefunded {
		return intent, nil
	}

	if intent.Status != domain.PaymentStatusSucceeded {
		return nil, fmt.Errorf("yalnızca succeeded ödemeler iade edilebilir: %s", intent.Status)
	}

	idempotencyKey := fmt.Sprintf("refund_%s", intent.ID)
	description := reason
	if description == "" {
		description = fmt.Sprintf("%s ödemesinin iadesi", provider)
	}

	if _, err := s.credits.DeductCredits(intent.UserID, intent.Credits, description, domain.CreditTxRefund, idempotencyKey); err != nil {
		return nil, fmt.Errorf("iade için kredi düşülemedi: %w", err)
	}

	if err := s.repo.UpdateStatus(intent.ID, domain.PaymentStatusRefunded); err != nil {
		return nil, err
	}

	intent.Status = domain.PaymentStatusRefunded

	s.logger.Info("Ödeme iade edildi", map[string]interface{}{
		"payment_intent_id": intent.ID,
		"user_id":           intent.UserID,
		"credits":           intent.Credits,
	})

	return intent, nil
}
