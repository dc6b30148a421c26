package domain

import "errors"

var (
	ErrInvalidAmount       = errors.New("geçersiz miktar")
	ErrInvalidAccount      = errors.New("geçersiz hesap tanımlayıcısı")
	ErrInvalidEntryType    = errors.New("geçersiz defter kaydı tipi")
	ErrInsufficientCredits = errors.New("yetersiz kredi")
	ErrBalanceNotFound     = errors.New("kredi bakiyesi bulunamadı")
	ErrEntryNotFound       = errors.New("defter kaydı bulunamadı")
	ErrDuplicateEntry      = errors.New("aynı idempotency anahtarıyla kayıt zaten mevcut")
	ErrInvalidSignature    = errors.New("webhook imzası doğrulanamadı")
	ErrInvalidPayload      = errors.New("webhook içeriği çözümlenemedi")
	ErrUnknownProvider     = errors.New("bilinmeyen ödeme sağlayıcısı")
	ErrEventNotFound       = errors.New("webhook olayı bulunamadı")
	ErrDLQEntryNotFound    = errors.New("DLQ kaydı bulunamadı")
	ErrPaymentNotFound     = errors.New("ödeme bulunamadı")
	ErrRetryExhausted      = errors.New("tekrar deneme hakkı tükendi")
)
