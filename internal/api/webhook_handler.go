package api

import (
	"encoding/json"
	"io"
	"net/http"

	"creditflow/internal/domain"
	"creditflow/internal/service"
	"creditflow/internal/signature"
	"creditflow/pkg/logger"
)

// Sağlayıcıların gönderdiği gövdeler küçüktür; 1 MB üstü kesilir.
const maxWebhookBodySize = 1 << 20

type WebhookHandler struct {
	processor domain.WebhookProcessor
	logger    logger.Logger
}

func NewWebhookHandler(processor domain.WebhookProcessor, logger logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// HandleWebhook, sağlayıcı bildirimini alır ve işleme sonucunu döner.
// İşlenemeyen ama kabul edilen olaylar (DLQ'ya düşenler) 200 success:false
// ile cevaplanır; sağlayıcının aynı olayı agresifçe tekrar göndermesi
// istenmez, tekrar denemeler DLQ üzerinden yürür.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	// Trace kimliği varsa log satırlarına işlenir.
	log := h.logger.WithContext(r.Context())

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		log.Error("Webhook gövdesi okunamadı", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		http.Error(w, "İstek gövdesi okunamadı", http.StatusBadRequest)
		return
	}

	headerName := signature.HeaderName(provider)
	if headerName == "" {
		http.Error(w, "Bilinmeyen sağlayıcı", http.StatusNotFound)
		return
	}
	signatureHeader := r.Header.Get(headerName)

	result, err := h.processor.ProcessWebhook(r.Context(), provider, payload, signatureHeader)
	if err != nil {
		if service.IsRejection(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		// result != nil ise olay kalıcı olarak kabul edilmiş demektir; hata
		// DLQ üzerinden çözüleceği için sağlayıcıya 200 dönülür.
		if result == nil {
			log.Error("Webhook işlenirken iç hata", map[string]interface{}{
				"provider": provider,
				"error":    err.Error(),
			})
			http.Error(w, "İç hata", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/{provider}", h.HandleWebhook)
}
