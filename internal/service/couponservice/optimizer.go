package couponservice

import (
	"sort"

	"github.com/shopspring/decimal"

	"goloja/internal/domain"
)

// orderForOptimizer ordena por valor decrescente, depois validade mais próxima
// (sem validade por último), depois código.
func orderForOptimizer(coupons []domain.Coupon) []domain.Coupon {
	out := append([]domain.Coupon(nil), coupons...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.Value.Equal(b.Value) {
			return a.Value.GreaterThan(b.Value)
		}
		switch {
		case a.ExpiresAt != nil && b.ExpiresAt == nil:
			return true
		case a.ExpiresAt == nil && b.ExpiresAt != nil:
			return false
		case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
			return a.ExpiresAt.Before(*b.ExpiresAt)
		}
		return a.Code < b.Code
	})
	return out
}

// OptimizeForNoChange escolhe cupons gerados para abater balance.
//
// Guloso, maior primeiro: cada cupom que cabe inteiro no restante é usado.
// Com ChangeAllow, se sobrar restante, o menor cupom não usado maior que ele
// é truncado no restante e o excedente volta como troco. Com ChangeAvoid o
// restante fica para outro meio de pagamento.
func OptimizeForNoChange(balance decimal.Decimal, coupons []domain.Coupon, policy domain.ChangePolicy) domain.CouponSelection {
	sel := domain.CouponSelection{Selected: []domain.CouponUse{}, Remaining: balance, Change: decimal.Zero}
	if !balance.IsPositive() {
		sel.Remaining = decimal.Zero
		return sel
	}

	var unused []domain.Coupon
	remaining := balance
	for _, c := range orderForOptimizer(coupons) {
		if !c.Value.IsPositive() {
			continue
		}
		if remaining.IsPositive() && c.Value.LessThanOrEqual(remaining) {
			sel.Selected = append(sel.Selected, domain.CouponUse{Coupon: c, AppliedValue: c.Value})
			remaining = remaining.Sub(c.Value)
			continue
		}
		unused = append(unused, c)
	}

	if remaining.IsPositive() && policy == domain.ChangeAllow {
		// Empate de valor: vale a ordem do otimizador (validade, código).
		pick := -1
		for i, c := range unused {
			if !c.Value.GreaterThan(remaining) {
				continue
			}
			if pick < 0 || c.Value.LessThan(unused[pick].Value) {
				pick = i
			}
		}
		if pick >= 0 {
			c := unused[pick]
			sel.Selected = append(sel.Selected, domain.CouponUse{Coupon: c, AppliedValue: remaining})
			sel.Change = c.Value.Sub(remaining)
			remaining = decimal.Zero
		}
	}

	sel.Remaining = remaining
	return sel
}
