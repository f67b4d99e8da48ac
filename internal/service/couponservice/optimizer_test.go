package couponservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	"goloja/internal/service/couponservice"
)

func codes(sel domain.CouponSelection) []string {
	out := make([]string, 0, len(sel.Selected))
	for _, u := range sel.Selected {
		out = append(out, u.Coupon.Code)
	}
	return out
}

func TestOptimize_TieBreak(t *testing.T) {
	soon := fixedNow.Add(24 * time.Hour)
	later := fixedNow.Add(72 * time.Hour)
	coupons := []domain.Coupon{
		{Code: "C", Value: dec("10")},
		{Code: "B", Value: dec("10"), ExpiresAt: &later},
		{Code: "A", Value: dec("10")},
		{Code: "D", Value: dec("10"), ExpiresAt: &soon},
	}

	sel := couponservice.OptimizeForNoChange(dec("20"), coupons, domain.ChangeAvoid)

	// mesmo valor: validade mais próxima primeiro, sem validade por último, depois código
	assert.Equal(t, []string{"D", "B"}, codes(sel))
	assert.True(t, sel.Remaining.IsZero())
	assert.True(t, sel.Change.IsZero())
}

func TestOptimize_LargestFitFirst(t *testing.T) {
	coupons := []domain.Coupon{
		{Code: "P5", Value: dec("5")},
		{Code: "P50", Value: dec("50")},
		{Code: "P30", Value: dec("30")},
		{Code: "P20", Value: dec("20")},
	}

	sel := couponservice.OptimizeForNoChange(dec("57"), coupons, domain.ChangeAvoid)

	assert.Equal(t, []string{"P50", "P5"}, codes(sel))
	assert.Equal(t, "2.00", sel.Remaining.StringFixed(2))
	assert.True(t, sel.Change.IsZero())
}

func TestOptimize_AllowChangeTruncatesSmallestCover(t *testing.T) {
	coupons := []domain.Coupon{
		{Code: "P5", Value: dec("5")},
		{Code: "P50", Value: dec("50")},
		{Code: "P30", Value: dec("30")},
		{Code: "P20", Value: dec("20")},
	}

	sel := couponservice.OptimizeForNoChange(dec("57"), coupons, domain.ChangeAllow)

	require.Equal(t, []string{"P50", "P5", "P20"}, codes(sel))
	assert.Equal(t, "2.00", sel.Selected[2].AppliedValue.StringFixed(2))
	assert.Equal(t, "18.00", sel.Change.StringFixed(2))
	assert.True(t, sel.Remaining.IsZero())
}

func TestOptimize_NothingToPay(t *testing.T) {
	sel := couponservice.OptimizeForNoChange(dec("0"), []domain.Coupon{{Code: "A", Value: dec("10")}}, domain.ChangeAllow)
	assert.Empty(t, sel.Selected)
	assert.True(t, sel.Remaining.IsZero())
}

func TestApplyOptimized(t *testing.T) {
	svc, store := newEngine(t)
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-40", Type: domain.CouponTrade, ClientID: "c1", Value: dec("40")})
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-25", Type: domain.CouponTrade, ClientID: "c1", Value: dec("25")})
	seedCoupon(t, store, domain.Coupon{Code: "TROCO-10", Type: domain.CouponChange, ClientID: "c1", Value: dec("10")})

	p := purchase("c1", "50", 1, "0")
	sel, err := svc.ApplyOptimized(context.Background(), p, []string{"troca-40", "TROCA-25", "TROCO-10", "TROCA-40"}, domain.ChangeAvoid)

	require.NoError(t, err)
	assert.Equal(t, []string{"TROCA-40", "TROCO-10"}, codes(sel))
	assert.True(t, p.TotalPrice.IsZero())
	assert.True(t, p.ChangeDue.IsZero())
	assert.Len(t, p.Coupons, 2)
}

func TestApplyOptimized_InvalidPolicy(t *testing.T) {
	svc, _ := newEngine(t)
	p := purchase("c1", "50", 1, "0")
	_, err := svc.ApplyOptimized(context.Background(), p, []string{"X"}, domain.ChangePolicy("SOMETIMES"))
	assert.Error(t, err)
}
