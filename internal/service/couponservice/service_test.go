package couponservice_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/repository/memstore"
	"goloja/internal/service/couponservice"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// MockCouponRepository é uma implementação mock da interface CouponRepository
type MockCouponRepository struct {
	mock.Mock
}

func (m *MockCouponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	return m.Called(ctx, coupon).Error(0)
}

func (m *MockCouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(domain.Coupon), args.Error(1)
}

func (m *MockCouponRepository) FindByID(ctx context.Context, id string) (domain.Coupon, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Coupon), args.Error(1)
}

func (m *MockCouponRepository) LockByID(ctx context.Context, id string) (domain.Coupon, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Coupon), args.Error(1)
}

func (m *MockCouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	return m.Called(ctx, coupon).Error(0)
}

func (m *MockCouponRepository) CountUsages(ctx context.Context, couponID, clientID string) (int, error) {
	args := m.Called(ctx, couponID, clientID)
	return args.Int(0), args.Error(1)
}

func (m *MockCouponRepository) RecordUsage(ctx context.Context, usage domain.CouponUsage) error {
	return m.Called(ctx, usage).Error(0)
}

func (m *MockCouponRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Coupon, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).([]domain.Coupon), args.Error(1)
}

func newEngine(t *testing.T) (*couponservice.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	svc := couponservice.NewService(store.Coupons(), logger.NewNopLogger()).
		WithClock(func() time.Time { return fixedNow })
	return svc, store
}

func purchase(clientID string, unitPrice string, qty int, freight string) *domain.Purchase {
	p := &domain.Purchase{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		Status:       domain.PurchaseEmProcessamento,
		Orders:       []domain.CartOrder{{ID: uuid.NewString(), ProductID: uuid.NewString(), Quantity: qty, UnitPrice: dec(unitPrice)}},
		FreightValue: dec(freight),
	}
	p.Recalculate()
	return p
}

func seedCoupon(t *testing.T, store *memstore.Store, c domain.Coupon) domain.Coupon {
	t.Helper()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Type == "" {
		c.Type = domain.CouponPromotional
	}
	c.IsActive = true
	c.CreatedAt = fixedNow
	c.UpdatedAt = fixedNow
	require.NoError(t, store.Coupons().Create(context.Background(), c))
	return c
}

// TestApplyPromotional_Success testa o abatimento de um cupom promocional.
func TestApplyPromotional_Success(t *testing.T) {
	svc, store := newEngine(t)
	seedCoupon(t, store, domain.Coupon{Code: "BEMVINDO", Value: dec("15"), MinOrderValue: dec("50")})

	p := purchase("c1", "50", 2, "10")
	total, err := svc.ApplyPromotional(context.Background(), p, " bemvindo ")

	require.NoError(t, err)
	assert.True(t, dec("95").Equal(total))
	assert.True(t, dec("15").Equal(p.Discount))
	require.Len(t, p.Coupons, 1)
	assert.False(t, p.Coupons[0].Consumed)
}

// TestApplyPromotional_MinValueNotMet testa subtotal 40 contra mínimo de 50.
func TestApplyPromotional_MinValueNotMet(t *testing.T) {
	svc, store := newEngine(t)
	seedCoupon(t, store, domain.Coupon{Code: "MIN50", Value: dec("10"), MinOrderValue: dec("50")})

	p := purchase("c1", "20", 2, "15")
	_, err := svc.ApplyPromotional(context.Background(), p, "MIN50")

	assert.ErrorIs(t, err, apperror.ErrMinValueNotMet)
	assert.Equal(t, "40.00", apperror.DetailsOf(err)["subtotal"])
	assert.Empty(t, p.Coupons)
}

// TestApplyPromotional_SecondPromotional testa o limite de um cupom promocional por compra.
func TestApplyPromotional_SecondPromotional(t *testing.T) {
	svc, store := newEngine(t)
	seedCoupon(t, store, domain.Coupon{Code: "PROMO1", Value: dec("5")})
	seedCoupon(t, store, domain.Coupon{Code: "PROMO2", Value: dec("7")})

	p := purchase("c1", "100", 1, "0")
	_, err := svc.ApplyPromotional(context.Background(), p, "PROMO1")
	require.NoError(t, err)

	_, err = svc.ApplyPromotional(context.Background(), p, "PROMO2")
	assert.ErrorIs(t, err, apperror.ErrPromotionalLimitExceeded)
	assert.Len(t, p.Coupons, 1)
	assert.True(t, dec("95").Equal(p.TotalPrice))
}

// TestApplyPromotional_Rejections cobre cupom inexistente, expirado, inativo e de tipo errado.
func TestApplyPromotional_Rejections(t *testing.T) {
	svc, store := newEngine(t)
	past := fixedNow.Add(-time.Hour)
	seedCoupon(t, store, domain.Coupon{Code: "VELHO", Value: dec("5"), ExpiresAt: &past})
	off := seedCoupon(t, store, domain.Coupon{Code: "DESLIGADO", Value: dec("5")})
	off.IsActive = false
	require.NoError(t, store.Coupons().Update(context.Background(), off))
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-1", Type: domain.CouponTrade, ClientID: "c1", Value: dec("5")})

	cases := map[string]error{
		"NAOEXISTE": apperror.ErrCouponNotFound,
		"VELHO":     apperror.ErrCouponExpired,
		"DESLIGADO": apperror.ErrCouponInactive,
		"TROCA-1":   apperror.ErrInvalidCouponType,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			p := purchase("c1", "100", 1, "0")
			_, err := svc.ApplyPromotional(context.Background(), p, code)
			assert.ErrorIs(t, err, want)
			assert.Empty(t, p.Coupons)
		})
	}
}

// TestApplyPromotional_UsageLimitReached testa o limite de uso por cliente.
func TestApplyPromotional_UsageLimitReached(t *testing.T) {
	mockRepo := new(MockCouponRepository)
	svc := couponservice.NewService(mockRepo, logger.NewNopLogger()).WithClock(func() time.Time { return fixedNow })

	coupon := domain.Coupon{ID: "cp-1", Code: "UMAVEZ", Type: domain.CouponPromotional, Value: dec("10"), UsageLimit: 1, IsActive: true}
	mockRepo.On("FindByCode", mock.Anything, "UMAVEZ").Return(coupon, nil)
	mockRepo.On("CountUsages", mock.Anything, "cp-1", "c1").Return(1, nil)

	p := purchase("c1", "100", 1, "0")
	_, err := svc.ApplyPromotional(context.Background(), p, "umavez")

	assert.ErrorIs(t, err, apperror.ErrCouponUsageLimitReached)
	mockRepo.AssertExpectations(t)
}

// TestApplyGenerated_Rules testa posse, duplicidade e compra já quitada.
func TestApplyGenerated_Rules(t *testing.T) {
	svc, store := newEngine(t)
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-A", Type: domain.CouponTrade, ClientID: "c1", Value: dec("200")})
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-B", Type: domain.CouponTrade, ClientID: "c1", Value: dec("10")})
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-X", Type: domain.CouponTrade, ClientID: "c2", Value: dec("10")})

	p := purchase("c1", "100", 1, "0")
	ctx := context.Background()

	_, err := svc.ApplyGenerated(ctx, p, "TROCA-X")
	assert.ErrorIs(t, err, apperror.ErrCouponNotOwned)

	total, err := svc.ApplyGenerated(ctx, p, "TROCA-A")
	require.NoError(t, err)
	assert.True(t, total.IsZero())
	assert.True(t, dec("100").Equal(p.ChangeDue))

	_, err = svc.ApplyGenerated(ctx, p, "TROCA-B")
	assert.ErrorIs(t, err, apperror.ErrCouponNotNeeded)

	_, err = svc.ApplyGenerated(ctx, p, "TROCA-A")
	var conflict *apperror.ConflictError
	assert.ErrorAs(t, err, &conflict)
}

// TestRemoveCoupon testa a remoção de um cupom pendente.
func TestRemoveCoupon(t *testing.T) {
	svc, store := newEngine(t)
	c := seedCoupon(t, store, domain.Coupon{Code: "PROMO", Value: dec("5")})

	p := purchase("c1", "100", 1, "0")
	_, err := svc.ApplyPromotional(context.Background(), p, "PROMO")
	require.NoError(t, err)

	require.NoError(t, svc.RemoveCoupon(p, c.ID))
	assert.Empty(t, p.Coupons)
	assert.True(t, dec("100").Equal(p.TotalPrice))

	assert.ErrorIs(t, svc.RemoveCoupon(p, c.ID), apperror.ErrCouponNotFound)
}

// TestFinalize_ConsumesAndMintsChange testa o caso: total 35.90 pago com cupom de 50 gera troco de 14.10.
func TestFinalize_ConsumesAndMintsChange(t *testing.T) {
	svc, store := newEngine(t)
	ctx := context.Background()
	promo := seedCoupon(t, store, domain.Coupon{Code: "DEZ", Value: dec("10"), UsageLimit: 2})
	trade := seedCoupon(t, store, domain.Coupon{Code: "TROCA-50", Type: domain.CouponTrade, ClientID: "c1", Value: dec("50")})

	p := purchase("c1", "40.90", 1, "5")
	_, err := svc.ApplyPromotional(ctx, p, "DEZ")
	require.NoError(t, err)
	assert.True(t, dec("35.90").Equal(p.TotalPrice))

	_, err = svc.ApplyGenerated(ctx, p, "TROCA-50")
	require.NoError(t, err)

	change, err := svc.Finalize(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, domain.CouponChange, change.Type)
	assert.Equal(t, "14.10", change.Value.StringFixed(2))
	assert.Equal(t, "c1", change.ClientID)
	assert.Equal(t, p.ID, change.OriginID)

	for _, c := range p.Coupons {
		assert.True(t, c.Consumed)
	}

	gotPromo, _ := store.Coupons().FindByID(ctx, promo.ID)
	assert.Equal(t, 1, gotPromo.UsageCount)
	assert.True(t, gotPromo.IsActive)
	used, _ := store.Coupons().CountUsages(ctx, promo.ID, "c1")
	assert.Equal(t, 1, used)

	gotTrade, _ := store.Coupons().FindByID(ctx, trade.ID)
	assert.Equal(t, 1, gotTrade.UsageCount)
	assert.False(t, gotTrade.IsActive)
}

// TestFinalize_NoChange testa que sem excedente nenhum cupom é emitido.
func TestFinalize_NoChange(t *testing.T) {
	svc, store := newEngine(t)
	seedCoupon(t, store, domain.Coupon{Code: "TROCA-5", Type: domain.CouponTrade, ClientID: "c1", Value: dec("5")})

	p := purchase("c1", "30", 1, "0")
	_, err := svc.ApplyGenerated(context.Background(), p, "TROCA-5")
	require.NoError(t, err)

	change, err := svc.Finalize(context.Background(), p)
	require.NoError(t, err)
	assert.Nil(t, change)
	assert.True(t, dec("25").Equal(p.TotalPrice))
}

// TestMintChangeCoupon testa a emissão direta de troco.
func TestMintChangeCoupon(t *testing.T) {
	svc, _ := newEngine(t)
	p := domain.Purchase{ID: "p1", ClientID: "c1", TotalPrice: dec("35.90")}

	coupon, err := svc.MintChangeCoupon(context.Background(), p, dec("50").Sub(p.TotalPrice))
	require.NoError(t, err)
	assert.Equal(t, "14.10", coupon.Value.StringFixed(2))
	assert.Contains(t, coupon.Code, "TROCO-")

	_, err = svc.MintChangeCoupon(context.Background(), p, decimal.Zero)
	assert.ErrorIs(t, err, apperror.ErrNoOverpayment)
}

// TestMintTradeCoupon_Duplicate testa que a troca gera no máximo um cupom.
func TestMintTradeCoupon_Duplicate(t *testing.T) {
	svc, store := newEngine(t)
	trade := domain.Trade{ID: "t1", ClientID: "c1", Value: dec("80")}

	coupon, err := svc.MintTradeCoupon(context.Background(), trade)
	require.NoError(t, err)
	assert.Equal(t, domain.CouponTrade, coupon.Type)

	_, err = svc.MintTradeCoupon(context.Background(), trade)
	assert.ErrorIs(t, err, apperror.ErrDuplicateCouponGen)

	mine, err := store.Coupons().ListByClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

// TestCreatePromotional_Validation testa as validações do cadastro admin.
func TestCreatePromotional_Validation(t *testing.T) {
	svc, _ := newEngine(t)
	ctx := context.Background()

	_, err := svc.CreatePromotional(ctx, domain.PromotionalCouponInput{Code: "", Value: dec("1")})
	var validation *apperror.ValidationError
	assert.ErrorAs(t, err, &validation)

	_, err = svc.CreatePromotional(ctx, domain.PromotionalCouponInput{Code: "X", Value: dec("0")})
	assert.ErrorAs(t, err, &validation)

	created, err := svc.CreatePromotional(ctx, domain.PromotionalCouponInput{Code: "natal", Value: dec("20"), UsageLimit: 1})
	require.NoError(t, err)
	assert.Equal(t, "NATAL", created.Code)

	_, err = svc.CreatePromotional(ctx, domain.PromotionalCouponInput{Code: "NATAL", Value: dec("20")})
	var conflict *apperror.ConflictError
	assert.ErrorAs(t, err, &conflict)

	off, err := svc.Deactivate(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, off.IsActive)
}
