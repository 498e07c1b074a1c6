package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/planlift/backend/internal/gateway"
	"github.com/planlift/backend/internal/services"
)

type WebhookHandler struct {
	service *services.WebhookService
}

func NewWebhookHandler(service *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// HandleNotification receives asynchronous payment-outcome notifications
// @Summary Gateway webhook endpoint
// @Description Receive a signed payment-outcome notification from the payment gateway
// @Tags webhooks
// @Accept json
// @Produce json
// @Param X-Gateway-Signature header string true "Hex HMAC-SHA256 of the raw body"
// @Success 200 {object} map[string]any
// @Failure 401 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /webhooks/gateway [post]
func (h *WebhookHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 262_144))
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	err = h.service.ProcessNotification(r.Context(), payload, r.Header.Get(gateway.SignatureHeader))
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"received": true})
	case errors.Is(err, gateway.ErrSignatureVerification):
		services.SendErrorResponse(w, "Signature verification failed", http.StatusUnauthorized, nil)
	default:
		// Non-2xx makes the gateway redeliver; processing is re-run safe.
		log.Printf("[WEBHOOK] Processing failed, requesting redelivery: %v", err)
		services.SendErrorResponse(w, "Processing failed", http.StatusInternalServerError, nil)
	}
}
