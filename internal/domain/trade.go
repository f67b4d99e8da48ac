package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus é o estado de uma solicitação de troca.
type TradeStatus string

const (
	TradeSolicitada TradeStatus = "SOLICITADA"
	TradeAutorizada TradeStatus = "AUTORIZADA"
	TradeRejeitada  TradeStatus = "REJEITADA"
	TradeRecebida   TradeStatus = "RECEBIDA"
	TradeConcluida  TradeStatus = "CONCLUIDA"
	TradeCancelada  TradeStatus = "CANCELADA"
)

var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradeSolicitada: {TradeAutorizada, TradeRejeitada, TradeCancelada},
	TradeAutorizada: {TradeRecebida},
	TradeRecebida:   {TradeConcluida},
	TradeRejeitada:  {},
	TradeConcluida:  {},
	TradeCancelada:  {},
}

// CanTransitionTo informa se a troca pode ir de s para target.
func (s TradeStatus) CanTransitionTo(target TradeStatus) bool {
	for _, allowed := range tradeTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsOpen informa se a troca ainda reserva quantidade do item (não foi recebida nem encerrada).
func (s TradeStatus) IsOpen() bool {
	return s == TradeSolicitada || s == TradeAutorizada
}

func (s TradeStatus) String() string {
	return string(s)
}

// Trade é uma solicitação de troca/devolução sobre um item de uma compra entregue.
type Trade struct {
	ID          string          `json:"id"`
	PurchaseID  string          `json:"purchase_id"`
	CartOrderID string          `json:"cart_order_id"`
	ProductID   string          `json:"product_id"`
	ClientID    string          `json:"client_id"`
	Quantity    int             `json:"quantity"`
	Value       decimal.Decimal `json:"value"`
	Status      TradeStatus     `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	Resellable  *bool           `json:"resellable,omitempty"`
	CouponID    string          `json:"coupon_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	ReceivedAt  *time.Time      `json:"received_at,omitempty"`
}

// HasCoupon informa se a troca já gerou seu cupom.
func (t Trade) HasCoupon() bool {
	return t.CouponID != ""
}

// ItemCondition descreve o estado físico do item recebido na troca.
type ItemCondition struct {
	Resellable bool   `json:"resellable"`
	Notes      string `json:"notes,omitempty"`
}

// TradeRequest é o payload de abertura de troca.
type TradeRequest struct {
	PurchaseID  string `json:"purchase_id"`
	CartOrderID string `json:"cart_order_id"`
	Quantity    int    `json:"quantity"`
}

// RejectTradeRequest é o payload de recusa de troca.
type RejectTradeRequest struct {
	Reason string `json:"reason"`
}
