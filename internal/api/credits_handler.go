package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type CreditsHandler struct {
	service domain.CreditsService
	logger  logger.Logger
}

func NewCreditsHandler(service domain.CreditsService, logger logger.Logger) *CreditsHandler {
	return &CreditsHandler{
		service: service,
		logger:  logger,
	}
}

func (h *CreditsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(userID)
	if err != nil {
		if errors.Is(err, domain.ErrBalanceNotFound) {
			http.Error(w, "Bakiye bulunamadı", http.StatusNotFound)
			return
		}
		h.logger.Error("Bakiye alınamadı", map[string]interface{}{"user_id": userID, "error": err.Error()})
		http.Error(w, "Bakiye alınamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(balance)
}

func (h *CreditsHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseUserID(w, r.URL.Query().Get("user_id"))
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Geçersiz limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	transactions, err := h.service.GetUserTransactions(userID, limit)
	if err != nil {
		h.logger.Error("Kredi hareketleri alınamadı", map[string]interface{}{"user_id": userID, "error": err.Error()})
		http.Error(w, "Kredi hareketleri alınamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(transactions)
}

type CreditMutationRequest struct {
	UserID         int64  `json:"user_id"`
	Amount         int64  `json:"amount"`
	Type           string `json:"type"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (h *CreditsHandler) AddCredits(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.AddCredits)
}

func (h *CreditsHandler) DeductCredits(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.DeductCredits)
}

func (h *CreditsHandler) mutate(w http.ResponseWriter, r *http.Request, op func(int64, int64, string, domain.CreditTransactionType, string) (*domain.CreditTransaction, error)) {
	var req CreditMutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Geçersiz istek gövdesi", http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 {
		http.Error(w, "Geçersiz kullanıcı ID'si", http.StatusBadRequest)
		return
	}
	if req.IdempotencyKey == "" {
		http.Error(w, "idempotency_key gerekli", http.StatusBadRequest)
		return
	}

	txType := domain.CreditTransactionType(req.Type)
	if !txType.Valid() {
		http.Error(w, "Geçersiz hareket tipi", http.StatusBadRequest)
		return
	}

	tx, err := op(req.UserID, req.Amount, req.Description, txType, req.IdempotencyKey)
	if err != nil {
		h.writeMutationError(w, req.UserID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(tx)
}

func (h *CreditsHandler) writeMutationError(w http.ResponseWriter, userID int64, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		http.Error(w, "Geçersiz miktar. Pozitif bir değer girilmeli", http.StatusBadRequest)
	case errors.Is(err, domain.ErrInsufficientCredits):
		http.Error(w, "Yetersiz kredi", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrBalanceNotFound):
		http.Error(w, "Bakiye bulunamadı", http.StatusNotFound)
	default:
		h.logger.Error("Kredi mutasyonu başarısız", map[string]interface{}{"user_id": userID, "error": err.Error()})
		http.Error(w, "Kredi mutasyonu başarısız", http.StatusInternalServerError)
	}
}

type TransferRequest struct {
	FromUserID  int64  `json:"from_user_id"`
	ToUserID    int64  `json:"to_user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

func (h *CreditsHandler) TransferCredits(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Geçersiz istek gövdesi", http.StatusBadRequest)
		return
	}

	if req.FromUserID <= 0 || req.ToUserID <= 0 {
		http.Error(w, "Geçersiz kullanıcı ID'si", http.StatusBadRequest)
		return
	}
	if req.FromUserID == req.ToUserID {
		http.Error(w, "Aynı hesaba transfer yapılamaz", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "Geçersiz miktar. Pozitif bir değer girilmeli", http.StatusBadRequest)
		return
	}

	if err := h.service.TransferCredits(req.FromUserID, req.ToUserID, req.Amount, req.Description); err != nil {
		h.writeMutationError(w, req.FromUserID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "success",
		"message": "Transfer tamamlandı",
	})
}

func (h *CreditsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /credits/balance", h.GetBalance)
	mux.HandleFunc("GET /credits/transactions", h.GetTransactions)
	mux.HandleFunc("POST /credits/add", h.AddCredits)
	mux.HandleFunc("POST /credits/deduct", h.DeductCredits)
	mux.HandleFunc("POST /credits/transfer", h.TransferCredits)
}

func parseUserID(w http.ResponseWriter, raw string) (int64, bool) {
	if raw == "" {
		http.Error(w, "user_id parametresi eksik", http.StatusBadRequest)
		return 0, false
	}

	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		http.Error(w, "Geçersiz user_id formatı", http.StatusBadRequest)
		return 0, false
	}

	return userID, true
}
