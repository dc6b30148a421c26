package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type LedgerHandler struct {
	service domain.LedgerService
	logger  logger.Logger
}

func NewLedgerHandler(service domain.LedgerService, logger logger.Logger) *LedgerHandler {
	return &LedgerHandler{
		service: service,
		logger:  logger,
	}
}

// VerifyChain, verilen aralıktaki zinciri yeniden hesaplayıp doğrular.
// Aralık verilmezse tüm defter taranır.
func (h *LedgerHandler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	start, ok := parseSequence(w, r.URL.Query().Get("start"))
	if !ok {
		return
	}
	end, ok := parseSequence(w, r.URL.Query().Get("end"))
	if !ok {
		return
	}

	verification, err := h.service.VerifyChainIntegrity(start, end)
	if err != nil {
		h.logger.Error("Zincir doğrulaması yapılamadı", map[string]interface{}{
			"start": start,
			"end":   end,
			"error": err.Error(),
		})
		http.Error(w, "Zincir doğrulaması yapılamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(verification)
}

func (h *LedgerHandler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	if account == "" {
		http.Error(w, "account parametresi eksik", http.StatusBadRequest)
		return
	}

	balance, err := h.service.GetAccountBalance(account)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAccount) {
			http.Error(w, "Geçersiz hesap adı", http.StatusBadRequest)
			return
		}
		h.logger.Error("Hesap bakiyesi alınamadı", map[string]interface{}{"account": account, "error": err.Error()})
		http.Error(w, "Hesap bakiyesi alınamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balance)
}

func (h *LedgerHandler) GetEntriesByReference(w http.ResponseWriter, r *http.Request) {
	referenceID := r.URL.Query().Get("reference_id")
	if referenceID == "" {
		http.Error(w, "reference_id parametresi eksik", http.StatusBadRequest)
		return
	}
	referenceType := r.URL.Query().Get("reference_type")

	entries, err := h.service.GetEntriesByReference(referenceID, referenceType)
	if err != nil {
		h.logger.Error("Defter kayıtları alınamadı", map[string]interface{}{
			"reference_id": referenceID,
			"error":        err.Error(),
		})
		http.Error(w, "Defter kayıtları alınamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *LedgerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ledger/verify", h.VerifyChain)
	mux.HandleFunc("GET /ledger/balance", h.GetAccountBalance)
	mux.HandleFunc("GET /ledger/entries", h.GetEntriesByReference)
}

func parseSequence(w http.ResponseWriter, raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}

	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		http.Error(w, "Geçersiz sıra numarası", http.StatusBadRequest)
		return 0, false
	}

	return seq, true
}
