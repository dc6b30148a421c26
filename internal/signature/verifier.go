// Package signature, ödeme sağlayıcılarının webhook imzalarını doğrular.
// Tüm fonksiyonlar saf ve durumsuzdur; hiçbir depoya dokunmaz.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"creditflow/internal/domain"
)

const (
	ProviderStripe = "stripe"
	ProviderIyzico = "iyzico"

	DefaultTolerance = 300 * time.Second
)

// HeaderName, sağlayıcının imzayı taşıdığı HTTP başlığını döner.
func HeaderName(provider string) string {
	switch provider {
	case ProviderStripe:
		return "Stripe-Signature"
	case ProviderIyzico:
		return "X-Iyz-Signature"
	default:
		return ""
	}
}

// Verifier, sağlayıcı başına paylaşılan sırları ve zaman toleransını tutar.
// Sırrı boş bırakılan sağlayıcılar için izinli mod geçerlidir: imza
// hesaplanmaz ama başlığın yapısal olarak geçerli olması yine de şarttır.
type Verifier struct {
	secrets   map[string]string
	tolerance time.Duration
	now       func() time.Time
}

func NewVerifier(stripeSecret, iyzicoSecret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secrets: map[string]string{
			ProviderStripe: stripeSecret,
			ProviderIyzico: iyzicoSecret,
		},
		tolerance: tolerance,
		now:       time.Now,
	}
}

// WithClock test amaçlı sabit saat enjekte eder.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Verify(provider string, payload []byte, header string) error {
	secret, ok := v.secrets[provider]
	if !ok {
		return domain.ErrUnknownProvider
	}

	switch provider {
	case ProviderStripe:
		return v.verifyTimestamped(payload, header, secret)
	case ProviderIyzico:
		return v.verifyFlat(payload, header, secret)
	default:
		return domain.ErrUnknownProvider
	}
}

// verifyTimestamped, "t=<unix_ts>,v1=<hex_hmac>" biçimindeki başlığı doğrular.
// HMAC-SHA256, "{t}.{payload}" üzerinden hesaplanır; zaman damgası toleransın
// dışındaysa istek replay şüphesiyle reddedilir.
func (v *Verifier) verifyTimestamped(payload []byte, header, secret string) error {
	ts, sig, err := parseTimestampedHeader(header)
	if err != nil {
		return err
	}

	eventTime := time.Unix(ts, 0)
	drift := v.now().Sub(eventTime)
	if drift < 0 {
		drift = -drift
	}
	if drift > v.tolerance {
		return fmt.Errorf("%w: zaman damgası tolerans dışında", domain.ErrInvalidSignature)
	}

	// İzinli mod: sır yapılandırılmamışsa yapısal kontroller yeterlidir.
	if secret == "" {
		return nil
	}

	expected := ComputeTimestampedSignature(payload, ts, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		return domain.ErrInvalidSignature
	}

	return nil
}

// verifyFlat, başlıktaki hex HMAC-SHA256 değerini doğrudan payload baytları
// üzerinden doğrular.
func (v *Verifier) verifyFlat(payload []byte, header, secret string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return fmt.Errorf("%w: imza başlığı boş", domain.ErrInvalidSignature)
	}

	if _, err := hex.DecodeString(header); err != nil {
		return fmt.Errorf("%w: imza hex formatında değil", domain.ErrInvalidSignature)
	}

	if secret == "" {
		return nil
	}

	expected := ComputeFlatSignature(payload, secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(header)) != 1 {
		return domain.ErrInvalidSignature
	}

	return nil
}

func parseTimestampedHeader(header string) (int64, string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, "", fmt.Errorf("%w: imza başlığı boş", domain.ErrInvalidSignature)
	}

	var ts int64
	var sig string
	var hasTS, hasSig bool

	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("%w: zaman damgası çözümlenemedi", domain.ErrInvalidSignature)
			}
			ts = parsed
			hasTS = true
		case "v1":
			sig = value
			hasSig = value != ""
		}
	}

	if !hasTS || !hasSig {
		return 0, "", fmt.Errorf("%w: imza başlığı eksik bileşen içeriyor", domain.ErrInvalidSignature)
	}

	return ts, sig, nil
}

// ComputeTimestampedSignature, testlerin ve araçların geçerli imza üretmesi
// için dışa açıktır.
func ComputeTimestampedSignature(payload []byte, ts int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func ComputeFlatSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
