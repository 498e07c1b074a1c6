package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/planlift/backend/internal/services"
	"github.com/skip2/go-qrcode"
)

type BalanceHandler struct {
	service   *services.BalanceService
	validator *services.ValidationHelper
}

func NewBalanceHandler(service *services.BalanceService) *BalanceHandler {
	return &BalanceHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

func requestUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

// decodeBody enforces the one-JSON-object request convention.
func (h *BalanceHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// decodeOptionalBody is decodeBody for endpoints whose body may be absent.
// EOF on the first token means no body and leaves dst untouched; anything
// else is decoded normally. Content-Length is not consulted, so chunked
// requests carrying a body are still read.
func (h *BalanceHandler) decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err == io.EOF {
		return true
	} else if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	if err := h.validator.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

// GetBalances returns the caller's personal and company balances
// @Summary Get balances
// @Description Get the caller's personal balance and every company balance they can spend from
// @Tags balances
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.BalanceSummary
// @Failure 401 {object} services.ErrorResponse
// @Router /balances [get]
func (h *BalanceHandler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GetBalances(r.Context(), userID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

// InitiateTopUp opens a pending top-up and a gateway payment intent
// @Summary Initiate a top-up
// @Description Create a pending top-up for the personal or a company pocket and return the gateway redirect
// @Tags balances
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,company_id=string} true "Top-up request"
// @Success 201 {object} services.TopUpInitiation
// @Failure 400 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Router /topups [post]
func (h *BalanceHandler) InitiateTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount    int64  `json:"amount" validate:"required"`
		CompanyID string `json:"company_id" validate:"omitempty,uuid4"`
	}
	if !h.decodeBody(w, r, &req) {
		return
	}

	initiation, err := h.service.InitiateTopUp(r.Context(), userID, req.Amount, req.CompanyID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	resp := map[string]any{
		"success":        true,
		"transaction_id": initiation.TransactionID,
		"payment_ref":    initiation.PaymentRef,
		"redirect_url":   initiation.RedirectURL,
	}

	// A QR of the redirect URL lets a desktop user finish the card
	// payment on their phone.
	if initiation.RedirectURL != "" {
		if qrImage, err := encodeQR(initiation.RedirectURL); err == nil {
			resp["qr_image"] = qrImage
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

func encodeQR(content string) (string, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// PayOrder pays a pending order from a balance pocket
// @Summary Pay an order from balance
// @Description Debit the personal or a company pocket by the order price and mark the order paid
// @Tags orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Param request body object{company_id=string} false "Pocket selection"
// @Success 200 {object} map[string]any
// @Failure 402 {object} services.ErrorResponse
// @Failure 403 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /orders/{orderId}/pay [post]
func (h *BalanceHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		CompanyID string `json:"company_id" validate:"omitempty,uuid4"`
	}
	if !h.decodeOptionalBody(w, r, &req) {
		return
	}

	if err := h.service.PayOrderWithBalance(r.Context(), userID, orderID, req.CompanyID); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "order_id": orderID})
}

// PayOrderWithCard opens a gateway payment intent for an order
// @Summary Pay an order by card
// @Description Create a gateway payment intent for a pending order; the order is marked paid on the gateway notification
// @Tags orders
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Success 201 {object} map[string]any
// @Failure 404 {object} services.ErrorResponse
// @Router /orders/{orderId}/card-payment [post]
func (h *BalanceHandler) PayOrderWithCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	intent, err := h.service.PayOrderWithCard(r.Context(), userID, orderID)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"success":      true,
		"payment_ref":  intent.ID,
		"redirect_url": intent.RedirectURL,
	})
}

// RequestRefund records a pending refund request for a paid order
// @Summary Request a refund
// @Description Create a pending refund request for admin review; at most one may be outstanding per order
// @Tags refunds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param orderId path string true "Order ID"
// @Param request body object{note=string} false "Optional rationale"
// @Success 201 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /orders/{orderId}/refund-request [post]
func (h *BalanceHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	orderID := chi.URLParam(r, "orderId")

	var req struct {
		Note string `json:"note" validate:"max=500"`
	}
	if !h.decodeOptionalBody(w, r, &req) {
		return
	}

	rec, err := h.service.RequestRefund(r.Context(), userID, orderID, req.Note)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(rec)
}

// ListTransactions returns the caller's transaction history
// @Summary List transactions
// @Description Get the caller's transactions, most recent first
// @Tags balances
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of transactions to return (default: 50, max: 200)"
// @Success 200 {object} map[string]any
// @Failure 401 {object} services.ErrorResponse
// @Router /transactions [get]
func (h *BalanceHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requestUserID(w, r)
	if !ok {
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	transactions, err := h.service.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// ListRefundRequests returns refund requests awaiting admin action
// @Summary List pending refund requests
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]any
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/refund-requests [get]
func (h *BalanceHandler) ListRefundRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListPendingRefunds(r.Context())
	if err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"refund_requests": requests,
		"count":           len(requests),
	})
}

// ApproveRefund approves a pending refund request
// @Summary Approve a refund
// @Description Credit the refund back to the pocket the original debit came from and cancel the order
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Refund request transaction ID"
// @Success 200 {object} map[string]any
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/refund-requests/{transactionId}/approve [post]
func (h *BalanceHandler) ApproveRefund(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	transactionID := chi.URLParam(r, "transactionId")

	if err := h.service.ApproveRefund(r.Context(), adminID, transactionID); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction_id": transactionID})
}

// RejectRefund rejects a pending refund request
// @Summary Reject a refund
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Refund request transaction ID"
// @Param request body object{note=string} false "Optional rationale"
// @Success 200 {object} map[string]any
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/refund-requests/{transactionId}/reject [post]
func (h *BalanceHandler) RejectRefund(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requestUserID(w, r)
	if !ok {
		return
	}
	transactionID := chi.URLParam(r, "transactionId")

	var req struct {
		Note string `json:"note" validate:"max=500"`
	}
	if !h.decodeOptionalBody(w, r, &req) {
		return
	}

	if err := h.service.RejectRefund(r.Context(), adminID, transactionID, req.Note); err != nil {
		services.SendServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true, "transaction_id": transactionID})
}
