package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"creditflow/internal/domain"
	"creditflow/pkg/logger"
)

type PaymentHandler struct {
	service domain.PaymentService
	logger  logger.Logger
}

func NewPaymentHandler(service domain.PaymentService, logger logger.Logger) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		logger:  logger,
	}
}

type CreatePaymentIntentRequest struct {
	UserID            int64  `json:"user_id"`
	Credits           int64  `json:"credits"`
	AmountMinor       int64  `json:"amount_minor"`
	Currency          string `json:"currency"`
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`
}

func (h *PaymentHandler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Geçersiz istek gövdesi", http.StatusBadRequest)
		return
	}

	if req.UserID <= 0 {
		http.Error(w, "Geçersiz kullanıcı ID'si", http.StatusBadRequest)
		return
	}
	if req.Provider == "" || req.ProviderPaymentID == "" {
		http.Error(w, "Sağlayıcı bilgileri eksik", http.StatusBadRequest)
		return
	}

	intent, err := h.service.CreatePaymentIntent(req.UserID, req.Credits, req.AmountMinor, req.Currency, req.Provider, req.ProviderPaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAmount) {
			http.Error(w, "Geçersiz miktar. Pozitif bir değer girilmeli", http.StatusBadRequest)
			return
		}
		h.logger.Error("Ödeme niyeti oluşturulamadı", map[string]interface{}{"user_id": req.UserID, "error": err.Error()})
		http.Error(w, "Ödeme niyeti oluşturulamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(intent)
}

func (h *PaymentHandler) GetPaymentIntent(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "ID parametresi eksik", http.StatusBadRequest)
		return
	}

	intent, err := h.service.GetPaymentIntent(id)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			http.Error(w, "Ödeme bulunamadı", http.StatusNotFound)
			return
		}
		h.logger.Error("Ödeme alınamadı", map[string]interface{}{"payment_id": id, "error": err.Error()})
		http.Error(w, "Ödeme alınamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /payments", h.CreatePaymentIntent)
	mux.HandleFunc("GET /payments/{id}", h.GetPaymentIntent)
}
