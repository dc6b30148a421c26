package signature

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"creditflow/internal/domain"
)

const (
	testStripeSecret = "whsec_test_123"
	testIyzicoSecret = "iyz_test_456"
)

func newTestVerifier(now time.Time) *Verifier {
	return NewVerifier(testStripeSecret, testIyzicoSecret, DefaultTolerance).
		WithClock(func() time.Time { return now })
}

func stripeHeader(payload []byte, ts int64, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, ComputeTimestampedSignature(payload, ts, secret))
}

func TestVerifyStripeValidSignature(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(now)
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	err := v.Verify(ProviderStripe, payload, stripeHeader(payload, now.Unix(), testStripeSecret))
	require.NoError(t, err)
}

func TestVerifyStripeTamperedPayload(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(now)
	payload := []byte(`{"id":"evt_1","amount":100}`)
	header := stripeHeader(payload, now.Unix(), testStripeSecret)

	tampered := []byte(`{"id":"evt_1","amount":999999}`)
	err := v.Verify(ProviderStripe, tampered, header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyStripeWrongSecret(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(now)
	payload := []byte(`{"id":"evt_1"}`)

	err := v.Verify(ProviderStripe, payload, stripeHeader(payload, now.Unix(), "yanlis-sir"))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyStripeStaleTimestamp(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(now)
	payload := []byte(`{"id":"evt_1"}`)

	// Tolerans 300 saniye; 10 dakika önceki damga replay sayılır.
	stale := now.Add(-10 * time.Minute).Unix()
	err := v.Verify(ProviderStripe, payload, stripeHeader(payload, stale, testStripeSecret))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyStripeFutureTimestamp(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(now)
	payload := []byte(`{"id":"evt_1"}`)

	future := now.Add(10 * time.Minute).Unix()
	err := v.Verify(ProviderStripe, payload, stripeHeader(payload, future, testStripeSecret))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyStripeMalformedHeader(t *testing.T) {
	now := time.Now()
	v := newTestVerifier(now)
	payload := []byte(`{"id":"evt_1"}`)

	for _, header := range []string{"", "t=abc,v1=deadbeef", "v1=deadbeef", fmt.Sprintf("t=%d", now.Unix())} {
		err := v.Verify(ProviderStripe, payload, header)
		require.ErrorIs(t, err, domain.ErrInvalidSignature, "header: %q", header)
	}
}

func TestVerifyIyzicoValidSignature(t *testing.T) {
	v := newTestVerifier(time.Now())
	payload := []byte(`{"eventId":"iyz_1","eventType":"payment.success"}`)

	err := v.Verify(ProviderIyzico, payload, ComputeFlatSignature(payload, testIyzicoSecret))
	require.NoError(t, err)
}

func TestVerifyIyzicoTamperedPayload(t *testing.T) {
	v := newTestVerifier(time.Now())
	payload := []byte(`{"eventId":"iyz_1"}`)
	header := ComputeFlatSignature(payload, testIyzicoSecret)

	err := v.Verify(ProviderIyzico, []byte(`{"eventId":"iyz_2"}`), header)
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyIyzicoNonHexHeader(t *testing.T) {
	v := newTestVerifier(time.Now())

	err := v.Verify(ProviderIyzico, []byte(`{}`), "bu-hex-degil!")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyUnknownProvider(t *testing.T) {
	v := newTestVerifier(time.Now())

	err := v.Verify("paypal", []byte(`{}`), "deadbeef")
	require.ErrorIs(t, err, domain.ErrUnknownProvider)
}

// Sır yapılandırılmadığında yapısal kontroller yine de uygulanır.
func TestVerifyPermissiveMode(t *testing.T) {
	now := time.Now()
	v := NewVerifier("", "", DefaultTolerance).WithClock(func() time.Time { return now })
	payload := []byte(`{"id":"evt_1"}`)

	err := v.Verify(ProviderStripe, payload, fmt.Sprintf("t=%d,v1=deadbeef", now.Unix()))
	require.NoError(t, err)

	err = v.Verify(ProviderStripe, payload, fmt.Sprintf("t=%d,v1=deadbeef", now.Add(-time.Hour).Unix()))
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	err = v.Verify(ProviderIyzico, payload, "deadbeef")
	require.NoError(t, err)

	err = v.Verify(ProviderIyzico, payload, "")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)
}
