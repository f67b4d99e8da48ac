package domain

import "time"

// Tipos de evento enviados ao despachante de notificações.
const (
	EventPurchaseStatusChanged = "purchase.status_changed"
	EventTradeStatusChanged    = "trade.status_changed"
	EventCouponMinted          = "coupon.minted"
)

// Event é a notificação disparada após cada transição confirmada.
type Event struct {
	Type        string                 `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	ClientID    string                 `json:"client_id,omitempty"`
	From        string                 `json:"from,omitempty"`
	To          string                 `json:"to,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	OccurredAt  time.Time              `json:"occurred_at"`
}
