package service

import (
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"creditflow/internal/domain"
	"creditflow/internal/repository"
)

func newCreditsStack(t *testing.T) (domain.CreditsService, domain.LedgerService, *sql.DB) {
	t.Helper()
	db := newTestDB(t)
	ledger := NewLedgerService(repository.NewLedgerRepository(db, testLogger()), testLogger())
	credits := NewCreditsService(repository.NewCreditRepository(db, testLogger()), ledger, testLogger())
	return credits, ledger, db
}

func TestAddCredits(t *testing.T) {
	credits, ledger, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	tx, err := credits.AddCredits(1, 100, "satın alma", domain.CreditTxPurchase, "yukleme_1")
	require.NoError(t, err)
	require.Equal(t, int64(100), tx.Amount)
	require.Equal(t, int64(100), tx.BalanceAfter)

	balance, err := credits.GetBalance(1)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)

	// Her mutasyon deftere yansır; hesap bakiyeleri birbirini tutar.
	account, err := ledger.GetAccountBalance(domain.UserCreditsAccount(1))
	require.NoError(t, err)
	require.Equal(t, balance.Balance, account.Balance)
}

func TestAddCreditsRejectsNonPositiveAmount(t *testing.T) {
	credits, _, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	_, err := credits.AddCredits(1, 0, "", domain.CreditTxPurchase, "sifir")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = credits.AddCredits(1, -10, "", domain.CreditTxPurchase, "negatif")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestAddCreditsIdempotent(t *testing.T) {
	credits, _, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	first, err := credits.AddCredits(1, 100, "satın alma", domain.CreditTxPurchase, "ayni_anahtar")
	require.NoError(t, err)

	second, err := credits.AddCredits(1, 100, "satın alma", domain.CreditTxPurchase, "ayni_anahtar")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	balance, err := credits.GetBalance(1)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance.Balance)
}

func TestDeductCredits(t *testing.T) {
	credits, ledger, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	_, err := credits.AddCredits(1, 100, "", domain.CreditTxPurchase, "yukleme")
	require.NoError(t, err)

	tx, err := credits.DeductCredits(1, 30, "mesaj ücreti", domain.CreditTxMessageCharge, "mesaj_1")
	require.NoError(t, err)
	require.Equal(t, int64(-30), tx.Amount)
	require.Equal(t, int64(70), tx.BalanceAfter)

	revenue, err := ledger.GetAccountBalance(domain.AccountRevenue)
	require.NoError(t, err)
	require.Equal(t, int64(30), revenue.Balance)
}

func TestDeductCreditsInsufficientLeavesStateUnchanged(t *testing.T) {
	credits, ledger, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	_, err := credits.AddCredits(1, 50, "", domain.CreditTxPurchase, "yukleme")
	require.NoError(t, err)

	_, err = credits.DeductCredits(1, 80, "pahalı arama", domain.CreditTxCallCharge, "arama_1")
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	balance, err := credits.GetBalance(1)
	require.NoError(t, err)
	require.Equal(t, int64(50), balance.Balance)

	// Başarısız düşüm ne hareket ne defter kaydı bırakır.
	transactions, err := credits.GetUserTransactions(1, 10)
	require.NoError(t, err)
	require.Len(t, transactions, 1)

	entries, err := ledger.GetEntriesByReference("arama_1", "")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestDeductCreditsUnknownBalance(t *testing.T) {
	credits, _, _ := newCreditsStack(t)

	_, err := credits.DeductCredits(99, 10, "", domain.CreditTxMessageCharge, "yok")
	require.ErrorIs(t, err, domain.ErrBalanceNotFound)
}

func TestConcurrentDeductionsNeverOverdraw(t *testing.T) {
	credits, _, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	_, err := credits.AddCredits(1, 100, "", domain.CreditTxPurchase, "yukleme")
	require.NoError(t, err)

	// 20 paralel düşüm, her biri 10 kredi; en fazla 10 tanesi başarabilir.
	var wg sync.WaitGroup
	results := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := credits.DeductCredits(1, 10, "yarış", domain.CreditTxMessageCharge, fmt.Sprintf("yaris_%d", n))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrInsufficientCredits)
		}
	}
	require.Equal(t, 10, succeeded)

	balance, err := credits.GetBalance(1)
	require.NoError(t, err)
	require.Equal(t, int64(0), balance.Balance)
}

func TestTransferCredits(t *testing.T) {
	credits, ledger, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))
	require.NoError(t, credits.InitializeBalance(2))

	_, err := credits.AddCredits(1, 100, "", domain.CreditTxPurchase, "yukleme")
	require.NoError(t, err)

	require.NoError(t, credits.TransferCredits(1, 2, 40, "hediye"))

	from, err := credits.GetBalance(1)
	require.NoError(t, err)
	require.Equal(t, int64(60), from.Balance)

	to, err := credits.GetBalance(2)
	require.NoError(t, err)
	require.Equal(t, int64(40), to.Balance)

	// Her iki bacak da defterde izlenebilir olmalı.
	result, err := ledger.VerifyChainIntegrity(0, 0)
	require.NoError(t, err)
	require.True(t, result.Valid)
	require.Equal(t, 3, result.CheckedEntries)
}

func TestTransferCreditsInsufficient(t *testing.T) {
	credits, _, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))
	require.NoError(t, credits.InitializeBalance(2))

	err := credits.TransferCredits(1, 2, 40, "karşılıksız")
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	to, err := credits.GetBalance(2)
	require.NoError(t, err)
	require.Equal(t, int64(0), to.Balance)
}

func TestTransferCreditsSelfTransferRejected(t *testing.T) {
	credits, _, _ := newCreditsStack(t)
	require.NoError(t, credits.InitializeBalance(1))

	require.Error(t, credits.TransferCredits(1, 1, 10, ""))
}

func TestGetBalanceUnknownUser(t *testing.T) {
	credits, _, _ := newCreditsStack(t)

	_, err := credits.GetBalance(404)
	require.ErrorIs(t, err, domain.ErrBalanceNotFound)
}
