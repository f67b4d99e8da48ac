package tradeservice_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/freight"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/notify"
	"goloja/internal/repository/memstore"
	"goloja/internal/service/cartservice"
	"goloja/internal/service/couponservice"
	"goloja/internal/service/productservice"
	"goloja/internal/service/purchaseservice"
	"goloja/internal/service/stockservice"
	"goloja/internal/service/tradeservice"
)

var (
	admin    = domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin}
	customer = domain.Actor{UserID: "c1", Role: domain.RoleCustomer}
	delivery = time.Date(2026, 6, 1, 15, 0, 0, 0, time.UTC)
)

type fixture struct {
	store     *memstore.Store
	ledger    *stockservice.Service
	purchases *purchaseservice.Service
	trades    *tradeservice.Service
	events    *notify.Recorder
	now       time.Time
	productID string
}

func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	log := logger.NewNopLogger()
	store := memstore.New()
	f := &fixture{store: store, events: &notify.Recorder{}, now: delivery}
	clock := func() time.Time { return f.now }

	f.ledger = stockservice.NewService(store.Stock(), store, log)
	coupons := couponservice.NewService(store.Coupons(), log).WithClock(clock)
	f.purchases = purchaseservice.NewService(purchaseservice.Deps{
		Repo:     store.Purchases(),
		Products: store.Products(),
		Ledger:   f.ledger,
		Coupons:  coupons,
		Cart:     cartservice.NewService(store.Products(), log),
		Freight:  freight.FlatCalculator{Value: decimal.NewFromInt(10), EtaDays: 3},
		Notifier: f.events,
		Tx:       store,
		Logger:   log,
	}).WithClock(clock)
	f.trades = tradeservice.NewService(tradeservice.Deps{
		Repo:      store.Trades(),
		Purchases: store.Purchases(),
		Ledger:    f.ledger,
		Coupons:   coupons,
		Notifier:  f.events,
		Tx:        store,
		Logger:    log,
	}).WithClock(clock)

	product, err := productservice.NewService(store.Products(), f.ledger, store, log).CreateProduct(context.Background(), domain.ProductInput{
		SKU: "CAM-01", Name: "Camiseta", Price: decimal.RequireFromString("49.90"), WeightKg: decimal.RequireFromString("0.3"), InitialStock: stock,
	})
	require.NoError(t, err)
	f.productID = product.ID
	return f
}

// purchase cria uma compra de qty unidades e a leva até target.
func (f *fixture) purchase(t *testing.T, qty int, path ...domain.PurchaseStatus) domain.Purchase {
	t.Helper()
	ctx := context.Background()
	p, err := f.purchases.Checkout(ctx, customer.UserID, domain.CheckoutRequest{
		Items:       []domain.CheckoutItem{{ProductID: f.productID, Quantity: qty}},
		DeliveryCEP: "30130-010",
	})
	require.NoError(t, err)
	for _, target := range path {
		p, err = f.purchases.Transition(ctx, admin, p.ID, target)
		require.NoError(t, err)
	}
	return p
}

func (f *fixture) delivered(t *testing.T, qty int) domain.Purchase {
	return f.purchase(t, qty, domain.PurchaseAprovada, domain.PurchaseEmTransito, domain.PurchaseEntregue)
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.store.Products().FindByID(context.Background(), f.productID)
	require.NoError(t, err)
	return p.Stock
}

func request(p domain.Purchase, qty int) domain.TradeRequest {
	return domain.TradeRequest{PurchaseID: p.ID, CartOrderID: p.Orders[0].ID, Quantity: qty}
}

func TestRequestTrade_NotDelivered(t *testing.T) {
	f := newFixture(t, 10)
	p := f.purchase(t, 1, domain.PurchaseAprovada, domain.PurchaseEmTransito)

	_, err := f.trades.RequestTrade(context.Background(), customer.UserID, request(p, 1))
	assert.ErrorIs(t, err, apperror.ErrNotDelivered)
}

func TestRequestTrade_Window(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 2)

	f.now = delivery.Add(tradeservice.DefaultWindow)
	_, err := f.trades.RequestTrade(context.Background(), customer.UserID, request(p, 1))
	require.NoError(t, err, "último instante do prazo ainda vale")

	f.now = delivery.Add(tradeservice.DefaultWindow + time.Second)
	_, err = f.trades.RequestTrade(context.Background(), customer.UserID, request(p, 1))
	assert.ErrorIs(t, err, apperror.ErrTradeWindowExpired)
}

// TestRequestTrade_QuantityExceeded testa o caso: trocar 3 de um item com quantidade 2.
func TestRequestTrade_QuantityExceeded(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 2)

	_, err := f.trades.RequestTrade(context.Background(), customer.UserID, request(p, 3))
	require.ErrorIs(t, err, apperror.ErrRefundQuantityExceeded)
	assert.Equal(t, 2, apperror.DetailsOf(err)["available"])
}

func TestRequestTrade_OpenTradesReserveQuantity(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 2)
	ctx := context.Background()

	first, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 2))
	require.NoError(t, err)

	_, err = f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	assert.ErrorIs(t, err, apperror.ErrRefundQuantityExceeded)

	_, err = f.trades.Reject(ctx, first.ID, "fora da política")
	require.NoError(t, err)

	_, err = f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	assert.NoError(t, err)
}

func TestRequestTrade_OtherClient(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 1)

	_, err := f.trades.RequestTrade(context.Background(), "c2", request(p, 1))
	var notFound *apperror.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

// TestReceive_TwiceGeneratesOneCoupon testa que o segundo recebimento falha e não credita de novo.
func TestReceive_TwiceGeneratesOneCoupon(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 2)
	ctx := context.Background()
	assert.Equal(t, 8, f.stock(t))

	trade, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 2))
	require.NoError(t, err)
	assert.Equal(t, "99.80", trade.Value.StringFixed(2))
	_, err = f.trades.Authorize(ctx, trade.ID)
	require.NoError(t, err)

	received, coupon, err := f.trades.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TradeRecebida, received.Status)
	assert.Equal(t, coupon.ID, received.CouponID)
	assert.Equal(t, domain.CouponTrade, coupon.Type)
	assert.Equal(t, "99.80", coupon.Value.StringFixed(2))
	assert.Equal(t, 10, f.stock(t))

	_, _, err = f.trades.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: true})
	assert.ErrorIs(t, err, apperror.ErrDuplicateCouponGen)
	assert.Equal(t, 10, f.stock(t))

	reentries, err := f.ledger.Movements(ctx, domain.MovementFilter{ReferenceID: trade.ID})
	require.NoError(t, err)
	assert.Len(t, reentries, 1)

	got, err := f.store.Purchases().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Orders[0].QuantityRefund)

	_, err = f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	assert.ErrorIs(t, err, apperror.ErrRefundQuantityExceeded)
}

func TestReceive_NotResellableDiscards(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 1)
	ctx := context.Background()

	trade, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	require.NoError(t, err)
	_, err = f.trades.Authorize(ctx, trade.ID)
	require.NoError(t, err)

	received, _, err := f.trades.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: false})
	require.NoError(t, err)
	require.NotNil(t, received.Resellable)
	assert.False(t, *received.Resellable)
	assert.Equal(t, 9, f.stock(t))

	discards, err := f.ledger.Movements(ctx, domain.MovementFilter{ReferenceID: trade.ID, Kind: domain.MovementDiscard})
	require.NoError(t, err)
	assert.Len(t, discards, 1)

	concluded, err := f.trades.Conclude(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeConcluida, concluded.Status)
}

func TestReceive_RequiresAuthorization(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 1)
	ctx := context.Background()

	trade, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	require.NoError(t, err)

	_, _, err = f.trades.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: true})
	assert.ErrorIs(t, err, apperror.ErrInvalidTradeTransition)
	assert.Equal(t, 9, f.stock(t))

	got, err := f.store.Purchases().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Orders[0].QuantityRefund)
}

func TestCancelAndTerminalStates(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 2)
	ctx := context.Background()

	trade, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	require.NoError(t, err)

	_, err = f.trades.Cancel(ctx, "c2", trade.ID)
	var forbidden *apperror.ForbiddenError
	assert.ErrorAs(t, err, &forbidden)

	cancelled, err := f.trades.Cancel(ctx, customer.UserID, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeCancelada, cancelled.Status)

	_, err = f.trades.Authorize(ctx, trade.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTradeTransition)

	_, err = f.trades.Reject(ctx, trade.ID, "")
	var validation *apperror.ValidationError
	assert.ErrorAs(t, err, &validation)

	list, err := f.trades.ListForPurchase(ctx, customer, p.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.trades.Get(ctx, domain.Actor{UserID: "c2", Role: domain.RoleCustomer}, trade.ID)
	var notFound *apperror.NotFoundError
	assert.ErrorAs(t, err, &notFound)
}

func TestReceive_PublishesCouponEvent(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 1)
	ctx := context.Background()

	trade, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	require.NoError(t, err)
	_, err = f.trades.Authorize(ctx, trade.ID)
	require.NoError(t, err)
	_, coupon, err := f.trades.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: true})
	require.NoError(t, err)

	var found bool
	for _, e := range f.events.Events() {
		if e.Type == domain.EventCouponMinted && e.AggregateID == coupon.ID {
			found = true
			assert.Equal(t, trade.ID, e.Data["origin_id"])
		}
	}
	assert.True(t, found)
}

type failingMinter struct{}

func (failingMinter) MintTradeCoupon(context.Context, domain.Trade) (domain.Coupon, error) {
	return domain.Coupon{}, errors.New("falha ao gravar cupom")
}

// TestReceive_FailureAfterCreditRollsBackEverything testa que uma falha na emissão do cupom,
// depois do reembolso e do crédito de estoque, desfaz o recebimento inteiro.
func TestReceive_FailureAfterCreditRollsBackEverything(t *testing.T) {
	f := newFixture(t, 10)
	p := f.delivered(t, 2)
	ctx := context.Background()

	trade, err := f.trades.RequestTrade(ctx, customer.UserID, request(p, 1))
	require.NoError(t, err)
	_, err = f.trades.Authorize(ctx, trade.ID)
	require.NoError(t, err)

	broken := tradeservice.NewService(tradeservice.Deps{
		Repo:      f.store.Trades(),
		Purchases: f.store.Purchases(),
		Ledger:    f.ledger,
		Coupons:   failingMinter{},
		Notifier:  f.events,
		Tx:        f.store,
		Logger:    logger.NewNopLogger(),
	}).WithClock(func() time.Time { return f.now })

	_, _, err = broken.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: true})
	require.EqualError(t, err, "falha ao gravar cupom")

	assert.Equal(t, 8, f.stock(t))
	got, err := f.store.Purchases().FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Orders[0].QuantityRefund)
	movements, err := f.ledger.Movements(ctx, domain.MovementFilter{ReferenceID: trade.ID})
	require.NoError(t, err)
	assert.Empty(t, movements)
	current, err := f.store.Trades().FindByID(ctx, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TradeAutorizada, current.Status)
	assert.Empty(t, current.CouponID)

	// o recebimento pode ser repetido normalmente
	received, coupon, err := f.trades.ReceiveAndGenerateCoupon(ctx, trade.ID, domain.ItemCondition{Resellable: true})
	require.NoError(t, err)
	assert.Equal(t, coupon.ID, received.CouponID)
	assert.Equal(t, 9, f.stock(t))
}
