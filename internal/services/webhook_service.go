package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/planlift/backend/internal/gateway"
)

// WebhookService drives idempotent completion of pending top-ups and card
// order payments from the gateway's asynchronous notifications. Processing
// must always be safe to re-run: the gateway redelivers on any non-2xx
// response.
type WebhookService struct {
	redis      *redis.Client
	balance    *BalanceService
	gateway    gateway.PaymentGateway
	skipVerify bool
}

// NewWebhookService wires the handler. skipVerify disables signature
// verification and exists for non-production environments only; main logs
// a loud warning when it is set.
func NewWebhookService(rdb *redis.Client, balance *BalanceService, gw gateway.PaymentGateway, skipVerify bool) *WebhookService {
	return &WebhookService{
		redis:      rdb,
		balance:    balance,
		gateway:    gw,
		skipVerify: skipVerify,
	}
}

const seenEventTTL = 24 * time.Hour

// ProcessNotification verifies and applies one gateway notification.
// Returns gateway.ErrSignatureVerification on authenticity failure; any
// other error means the gateway should redeliver.
func (s *WebhookService) ProcessNotification(ctx context.Context, payload []byte, signature string) error {
	if !s.skipVerify && !s.gateway.VerifySignature(payload, signature) {
		log.Printf("[WEBHOOK] Rejected notification with bad signature")
		return gateway.ErrSignatureVerification
	}

	var notification gateway.Notification
	if err := json.Unmarshal(payload, &notification); err != nil {
		return fmt.Errorf("malformed notification payload: %w", err)
	}

	if notification.Type != gateway.EventPaymentSucceeded {
		log.Printf("[WEBHOOK] Ignoring event type %q", notification.Type)
		return nil
	}

	if s.alreadySeen(ctx, notification.Data.ID) {
		log.Printf("[WEBHOOK] Duplicate delivery of event %s absorbed", notification.Data.ID)
		return nil
	}

	if err := s.apply(ctx, &notification); err != nil {
		return err
	}

	s.markSeen(ctx, notification.Data.ID)
	return nil
}

func (s *WebhookService) apply(ctx context.Context, n *gateway.Notification) error {
	// Order payments and top-ups are keyed by different metadata fields;
	// a notification can legitimately carry neither when unrelated
	// payments flow through the same gateway account.
	if orderID, ok := n.Data.Metadata[gateway.MetaOrderID]; ok && orderID != "" {
		err := s.balance.MarkOrderPaid(ctx, orderID)
		if errors.Is(err, ErrNotFound) {
			log.Printf("[WEBHOOK] Payment %s references unknown order %s, discarding", n.Data.ID, orderID)
			return nil
		}
		return err
	}

	if txnID, ok := n.Data.Metadata[gateway.MetaTopUpTransactionID]; ok && txnID != "" {
		err := s.balance.CompleteTopUp(ctx, txnID, n.Data.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			log.Printf("[WEBHOOK] Payment %s references unknown top-up %s, discarding", n.Data.ID, txnID)
			return nil
		case errors.Is(err, ErrAlreadyFinal):
			// terminal transaction, async retry is a no-op
			log.Printf("[WEBHOOK] Top-up %s already finalized, absorbing retry", txnID)
			return nil
		}
		return err
	}

	log.Printf("[WEBHOOK] Payment %s carries no correlation metadata, discarding", n.Data.ID)
	return nil
}

// Redis keeps a short-lived replay cache so redeliveries of an already
// applied event never reach the database. The forward-only status guards
// remain the source of truth when Redis is absent.
func (s *WebhookService) alreadySeen(ctx context.Context, eventID string) bool {
	if s.redis == nil || eventID == "" {
		return false
	}
	err := s.redis.Get(ctx, "webhook:event:"+eventID).Err()
	return err == nil
}

// markSeen records the event only after successful processing, so a
// failed run stays eligible for redelivery.
func (s *WebhookService) markSeen(ctx context.Context, eventID string) {
	if s.redis == nil || eventID == "" {
		return
	}
	if err := s.redis.Set(ctx, "webhook:event:"+eventID, 1, seenEventTTL).Err(); err != nil {
		log.Printf("[WEBHOOK] Failed to record event %s in replay cache: %v", eventID, err)
	}
}
