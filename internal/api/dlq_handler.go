package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"creditflow/internal/domain"
	"creditflow/internal/service"
	"creditflow/pkg/logger"
)

// DLQHandler, operatörün bekleyen webhook hatalarını incelemesi ve zamanlayıcıyı
// beklemeden elle tekrar tetiklemesi için kullanılır.
type DLQHandler struct {
	dlq       domain.WebhookDLQRepository
	processor domain.WebhookProcessor
	scheduler *service.DLQScheduler
	logger    logger.Logger
}

func NewDLQHandler(dlq domain.WebhookDLQRepository, processor domain.WebhookProcessor, scheduler *service.DLQScheduler, logger logger.Logger) *DLQHandler {
	return &DLQHandler{
		dlq:       dlq,
		processor: processor,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (h *DLQHandler) ListUnresolved(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			http.Error(w, "Geçersiz limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := h.dlq.FindUnresolved(limit)
	if err != nil {
		h.logger.Error("DLQ kayıtları alınamadı", map[string]interface{}{"error": err.Error()})
		http.Error(w, "DLQ kayıtları alınamadı", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (h *DLQHandler) RetryEntry(w http.ResponseWriter, r *http.Request) {
	entryID, ok := parseDLQEntryID(w, r.PathValue("id"))
	if !ok {
		return
	}

	entry, err := h.dlq.FindByID(entryID)
	if err != nil {
		h.logger.Error("DLQ kaydı alınamadı", map[string]interface{}{"dlq_entry_id": entryID, "error": err.Error()})
		http.Error(w, "DLQ kaydı alınamadı", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "DLQ kaydı bulunamadı", http.StatusNotFound)
		return
	}
	if entry.Resolved {
		http.Error(w, "Kayıt zaten çözülmüş", http.StatusConflict)
		return
	}

	if err := h.processor.RetryWebhookEvent(r.Context(), entry.WebhookEventID); err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			http.Error(w, "Webhook olayı bulunamadı", http.StatusNotFound)
			return
		}
		// Tekrar deneme yine başarısız; DLQ sayaçları güncellendi, operatöre
		// sonuç bildirilir.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "failed",
			"message":      "Tekrar deneme başarısız: " + err.Error(),
			"dlq_entry_id": entryID,
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "success",
		"message":      "Olay başarıyla tekrar işlendi",
		"dlq_entry_id": entryID,
	})
}

type ResolveDLQRequest struct {
	Notes string `json:"notes"`
}

// ResolveEntry, kaydı tekrar denemeden kapatır; elle mutabakat yapılan
// olaylar için kullanılır.
func (h *DLQHandler) ResolveEntry(w http.ResponseWriter, r *http.Request) {
	entryID, ok := parseDLQEntryID(w, r.PathValue("id"))
	if !ok {
		return
	}

	var req ResolveDLQRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Notes == "" {
		req.Notes = "operatör tarafından kapatıldı"
	}

	entry, err := h.dlq.FindByID(entryID)
	if err != nil {
		h.logger.Error("DLQ kaydı alınamadı", map[string]interface{}{"dlq_entry_id": entryID, "error": err.Error()})
		http.Error(w, "DLQ kaydı alınamadı", http.StatusInternalServerError)
		return
	}
	if entry == nil {
		http.Error(w, "DLQ kaydı bulunamadı", http.StatusNotFound)
		return
	}

	if err := h.dlq.MarkResolved(entryID, req.Notes); err != nil {
		h.logger.Error("DLQ kaydı kapatılamadı", map[string]interface{}{"dlq_entry_id": entryID, "error": err.Error()})
		http.Error(w, "DLQ kaydı kapatılamadı", http.StatusInternalServerError)
		return
	}

	h.logger.Info("DLQ kaydı operatör tarafından kapatıldı", map[string]interface{}{
		"dlq_entry_id": entryID,
		"notes":        req.Notes,
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":       "success",
		"dlq_entry_id": entryID,
	})
}

func (h *DLQHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.scheduler.Stats())
}

func (h *DLQHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /dlq", h.ListUnresolved)
	mux.HandleFunc("GET /dlq/stats", h.GetStats)
	mux.HandleFunc("POST /dlq/{id}/retry", h.RetryEntry)
	mux.HandleFunc("POST /dlq/{id}/resolve", h.ResolveEntry)
}

func parseDLQEntryID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Geçersiz DLQ kayıt ID'si", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
