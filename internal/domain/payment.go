package domain

import "time"

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// PaymentIntent, webhook ile sonuçlanacak bir ödeme girişimidir. Checkout
// akışının kendisi dış bir bileşendir; burada yalnızca fulfillment için
// gereken durum tutulur.
type PaymentIntent struct {
	ID                string        `json:"id"`
	Provider          string        `json:"provider"`
	ProviderPaymentID string        `json:"provider_payment_id"`
	UserID            int64         `json:"user_id"`
	Credits           int64         `json:"credits"`
	AmountMinor       int64         `json:"amount_minor"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	FailureCount      int           `json:"failure_count"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

type PaymentRepository interface {
	Create(intent *PaymentIntent) error
	FindByID(id string) (*PaymentIntent, error)
	FindByProviderPaymentID(provider, providerPaymentID string) (*PaymentIntent, error)
	UpdateStatus(id string, status PaymentStatus) error
	IncrementFailureCount(id string) error
}

type PaymentService interface {
	CreatePaymentIntent(userID int64, credits int64, amountMinor int64, currency, provider, providerPaymentID string) (*PaymentIntent, error)
	GetPaymentIntent(id string) (*PaymentIntent, error)

	// FulfillPayment, "payment succeeded" olayı geldiğinde kullanıcıya kredi
	// yükler. Zaten succeeded olan bir ödeme için no-op'tur.
	FulfillPayment(provider, providerPaymentID string) (*PaymentIntent, error)
	MarkPaymentFailed(provider, providerPaymentID string) (*PaymentIntent, error)
	RefundPayment(provider, providerPaymentID, reason string) (*PaymentIntent, error)
}
