package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseStatus é o estado de uma compra na máquina de estados.
type PurchaseStatus string

const (
	PurchaseEmProcessamento PurchaseStatus = "EM_PROCESSAMENTO"
	PurchaseAprovada        PurchaseStatus = "APROVADA"
	PurchaseReprovada       PurchaseStatus = "REPROVADA"
	PurchaseEmTransito      PurchaseStatus = "EM_TRANSITO"
	PurchaseEntregue        PurchaseStatus = "ENTREGUE"
	PurchaseCancelada       PurchaseStatus = "CANCELADA"
)

// purchaseTransitions é a única tabela de transições legais de uma compra.
var purchaseTransitions = map[PurchaseStatus][]PurchaseStatus{
	PurchaseEmProcessamento: {PurchaseAprovada, PurchaseReprovada, PurchaseCancelada},
	PurchaseAprovada:        {PurchaseEmTransito, PurchaseCancelada},
	PurchaseEmTransito:      {PurchaseEntregue, PurchaseCancelada},
	PurchaseEntregue:        {},
	PurchaseReprovada:       {},
	PurchaseCancelada:       {},
}

// Valid informa se o status é conhecido.
func (s PurchaseStatus) Valid() bool {
	_, ok := purchaseTransitions[s]
	return ok
}

// CanTransitionTo informa se a transição s -> target é permitida.
func (s PurchaseStatus) CanTransitionTo(target PurchaseStatus) bool {
	for _, allowed := range purchaseTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// AllowedTransitions devolve uma cópia dos destinos permitidos a partir de s.
func (s PurchaseStatus) AllowedTransitions() []PurchaseStatus {
	allowed := purchaseTransitions[s]
	out := make([]PurchaseStatus, len(allowed))
	copy(out, allowed)
	return out
}

// IsTerminal informa se nenhuma transição sai de s.
func (s PurchaseStatus) IsTerminal() bool {
	return s.Valid() && len(purchaseTransitions[s]) == 0
}

// StockDebited informa se, neste status, o estoque da compra já foi baixado.
func (s PurchaseStatus) StockDebited() bool {
	return s == PurchaseAprovada || s == PurchaseEmTransito || s == PurchaseEntregue
}

func (s PurchaseStatus) String() string {
	return string(s)
}

// CartOrder é um item da compra. O preço unitário é congelado no checkout.
type CartOrder struct {
	ID             string          `json:"id"`
	PurchaseID     string          `json:"purchase_id"`
	ProductID      string          `json:"product_id"`
	Quantity       int             `json:"quantity"`
	QuantityRefund int             `json:"quantity_refund"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

// AvailableRefundQuantity é a quantidade ainda elegível para troca.
func (o CartOrder) AvailableRefundQuantity() int {
	return o.Quantity - o.QuantityRefund
}

// LineTotal é o valor bruto do item.
func (o CartOrder) LineTotal() decimal.Decimal {
	return o.UnitPrice.Mul(decimal.NewFromInt(int64(o.Quantity)))
}

// AppliedCoupon é um cupom vinculado a uma compra. Enquanto Consumed for falso,
// o uso ainda não foi contabilizado no cupom (só acontece na aprovação).
type AppliedCoupon struct {
	CouponID     string          `json:"coupon_id"`
	Code         string          `json:"code"`
	Type         CouponType      `json:"type"`
	FaceValue    decimal.Decimal `json:"face_value"`
	AppliedValue decimal.Decimal `json:"applied_value"`
	Consumed     bool            `json:"consumed"`
	AppliedAt    time.Time       `json:"applied_at"`
}

// Purchase é a raiz de agregado do pedido.
type Purchase struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"client_id"`
	Status         PurchaseStatus  `json:"status"`
	Orders         []CartOrder     `json:"orders"`
	Coupons        []AppliedCoupon `json:"coupons"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	FreightValue   decimal.Decimal `json:"freight_value"`
	FreightEtaDays int             `json:"freight_eta_days"`
	Discount       decimal.Decimal `json:"discount"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	ChangeDue      decimal.Decimal `json:"change_due"`
	DeliveryCEP    string          `json:"delivery_cep"`
	Version        int             `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	ShippedAt      *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// Order devolve o item pelo ID.
func (p *Purchase) Order(orderID string) (*CartOrder, bool) {
	for i := range p.Orders {
		if p.Orders[i].ID == orderID {
			return &p.Orders[i], true
		}
	}
	return nil, false
}

// HasCoupon informa se o cupom já está aplicado à compra.
func (p *Purchase) HasCoupon(couponID string) bool {
	for _, c := range p.Coupons {
		if c.CouponID == couponID {
			return true
		}
	}
	return false
}

// PromotionalCoupon devolve o cupom promocional aplicado, se houver.
func (p *Purchase) PromotionalCoupon() (AppliedCoupon, bool) {
	for _, c := range p.Coupons {
		if c.Type == CouponPromotional {
			return c, true
		}
	}
	return AppliedCoupon{}, false
}

// GrossTotal é subtotal + frete, antes de cupons.
func (p *Purchase) GrossTotal() decimal.Decimal {
	return p.Subtotal.Add(p.FreightValue)
}

// Balance é o valor ainda a pagar depois dos cupons aplicados.
func (p *Purchase) Balance() decimal.Decimal {
	return p.TotalPrice
}

// Recalculate recompõe subtotal, desconto, total e troco.
// O cupom promocional é abatido primeiro; depois os cupons gerados, na ordem em que
// foram aplicados. Cada cupom abate no máximo o saldo restante. O excedente de cupons
// gerados (TRADE/CHANGE) vira troco; o excedente promocional é perdido.
func (p *Purchase) Recalculate() {
	subtotal := decimal.Zero
	for _, o := range p.Orders {
		subtotal = subtotal.Add(o.LineTotal())
	}
	p.Subtotal = subtotal

	remaining := p.GrossTotal()
	discount := decimal.Zero
	change := decimal.Zero

	ordered := make([]int, 0, len(p.Coupons))
	for i, c := range p.Coupons {
		if c.Type == CouponPromotional {
			ordered = append(ordered, i)
		}
	}
	for i, c := range p.Coupons {
		if c.Type != CouponPromotional {
			ordered = append(ordered, i)
		}
	}

	for _, i := range ordered {
		c := &p.Coupons[i]
		applied := decimal.Min(c.FaceValue, remaining)
		if applied.IsNegative() {
			applied = decimal.Zero
		}
		c.AppliedValue = applied
		remaining = remaining.Sub(applied)
		discount = discount.Add(applied)
		if c.Type.IsGenerated() {
			change = change.Add(c.FaceValue.Sub(applied))
		}
	}

	p.Discount = discount
	p.TotalPrice = remaining
	p.ChangeDue = change
}

// CheckoutItem é uma linha solicitada no checkout.
type CheckoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// CheckoutRequest é o payload de criação de compra.
type CheckoutRequest struct {
	Items       []CheckoutItem `json:"items"`
	DeliveryCEP string         `json:"delivery_cep"`
}

// StatusChangeRequest é o payload de transição de status.
type StatusChangeRequest struct {
	Status PurchaseStatus `json:"status"`
}
