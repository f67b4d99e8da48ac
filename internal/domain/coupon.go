package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType classifica a origem do cupom.
type CouponType string

const (
	CouponPromotional CouponType = "PROMOTIONAL" // criado pelo admin, reutilizável até UsageLimit por cliente
	CouponTrade       CouponType = "TRADE"       // gerado no recebimento de uma troca
	CouponChange      CouponType = "CHANGE"      // gerado como troco de pagamento excedente
)

// Valid informa se o tipo é conhecido.
func (t CouponType) Valid() bool {
	return t == CouponPromotional || t == CouponTrade || t == CouponChange
}

// IsGenerated informa se o cupom é compensatório (emitido pelo sistema, uso único).
func (t CouponType) IsGenerated() bool {
	return t == CouponTrade || t == CouponChange
}

func (t CouponType) String() string {
	return string(t)
}

// Coupon representa um cupom de desconto ou de crédito.
type Coupon struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	ClientID      string          `json:"client_id,omitempty"`
	Type          CouponType      `json:"type"`
	Value         decimal.Decimal `json:"value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	UsageLimit    int             `json:"usage_limit"`
	UsageCount    int             `json:"usage_count"`
	IsActive      bool            `json:"is_active"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
	OriginID      string          `json:"origin_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ExpiredAt informa se o cupom está vencido no instante now.
func (c Coupon) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(*c.ExpiresAt)
}

// CouponUsage registra o consumo de um cupom por um cliente em uma compra.
type CouponUsage struct {
	ID         string    `json:"id"`
	CouponID   string    `json:"coupon_id"`
	ClientID   string    `json:"client_id"`
	PurchaseID string    `json:"purchase_id"`
	UsedAt     time.Time `json:"used_at"`
}

// ChangePolicy define como o otimizador trata um cupom maior que o saldo restante.
type ChangePolicy string

const (
	// ChangeAllow permite usar o menor cupom que cobre o restante; o excedente vira troco.
	ChangeAllow ChangePolicy = "ALLOW_CHANGE"
	// ChangeAvoid usa apenas cupons que cabem inteiros no saldo; o restante é pago por outro meio.
	ChangeAvoid ChangePolicy = "AVOID_CHANGE"
)

// CouponUse é um cupom escolhido pelo otimizador com o valor efetivamente abatido.
type CouponUse struct {
	Coupon       Coupon          `json:"coupon"`
	AppliedValue decimal.Decimal `json:"applied_value"`
}

// CouponSelection é o resultado do otimizador de cupons.
type CouponSelection struct {
	Selected  []CouponUse     `json:"selected"`
	Remaining decimal.Decimal `json:"remaining"`
	Change    decimal.Decimal `json:"change"`
}

// PromotionalCouponInput é o payload de criação de cupom promocional.
type PromotionalCouponInput struct {
	Code          string          `json:"code"`
	Value         decimal.Decimal `json:"value"`
	MinOrderValue decimal.Decimal `json:"min_order_value"`
	UsageLimit    int             `json:"usage_limit"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

// ApplyCouponRequest é o payload de aplicação de cupom em uma compra.
type ApplyCouponRequest struct {
	Code string `json:"code"`
}

// OptimizeCouponsRequest é o payload do otimizador de cupons gerados.
type OptimizeCouponsRequest struct {
	Codes  []string     `json:"codes"`
	Policy ChangePolicy `json:"policy"`
}
