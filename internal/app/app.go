// Package app monta os serviços e handlers do GoLoja sobre um conjunto de repositórios.
// cmd/main.go e os testes de aceitação usam a mesma montagem.
package app

import (
	"context"
	"net/http"
	"time"

	"goloja/internal/api/cart"
	"goloja/internal/api/coupon"
	"goloja/internal/api/product"
	"goloja/internal/api/purchase"
	"goloja/internal/api/router"
	"goloja/internal/api/stock"
	"goloja/internal/api/trade"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/freight"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/notify"
	"goloja/internal/pkg/token"
	"goloja/internal/repository/memstore"
	"goloja/internal/service/cartservice"
	"goloja/internal/service/couponservice"
	"goloja/internal/service/productservice"
	"goloja/internal/service/purchaseservice"
	"goloja/internal/service/stockservice"
	"goloja/internal/service/tradeservice"
)

// ProductStore reúne o que catálogo, carrinho e checkout precisam dos produtos.
type ProductStore interface {
	productservice.ProductRepository
	cartservice.ProductReader
}

// PurchaseStore reúne o que compras e trocas precisam das compras.
type PurchaseStore interface {
	purchaseservice.PurchaseRepository
	IncrementRefund(ctx context.Context, orderID string, quantity int) error
}

// TxRunner executa fn numa transação; chamadas aninhadas participam da mesma.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repositories é o conjunto de repositórios de um driver de persistência.
type Repositories struct {
	Products  ProductStore
	Stock     stockservice.LedgerRepository
	Purchases PurchaseStore
	Coupons   couponservice.CouponRepository
	Trades    tradeservice.TradeRepository
	Tx        TxRunner
	// ProductCache, quando presente, é invalidado após cada movimentação de estoque.
	ProductCache stockservice.CacheInvalidator
}

// MemoryRepositories monta os repositórios sobre o armazenamento em memória.
func MemoryRepositories(store *memstore.Store) Repositories {
	return Repositories{
		Products:  store.Products(),
		Stock:     store.Stock(),
		Purchases: store.Purchases(),
		Coupons:   store.Coupons(),
		Trades:    store.Trades(),
		Tx:        store,
	}
}

// Options são as dependências externas e parâmetros de negócio.
type Options struct {
	Freight     freight.Calculator
	Notifier    notify.Dispatcher
	Tokens      *token.Service
	TradeWindow time.Duration
	Logger      logger.Logger
	// Clock substitui time.Now nos serviços com datas. Nil usa o relógio do sistema.
	Clock func() time.Time

	RateLimitCache  cache.Client
	RateLimitMax    int
	RateLimitPeriod time.Duration
}

// App expõe os serviços montados e o roteador HTTP.
type App struct {
	Stock     *stockservice.Service
	Products  *productservice.Service
	Coupons   *couponservice.Service
	Cart      *cartservice.Service
	Purchases *purchaseservice.Service
	Trades    *tradeservice.Service

	Handler http.Handler
}

// New injeta as dependências na ordem Repository -> Service -> Handler.
func New(repos Repositories, opts Options) *App {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}

	// A. Serviços
	stockSvc := stockservice.NewService(repos.Stock, repos.Tx, log)
	if repos.ProductCache != nil {
		stockSvc.WithCacheInvalidator(repos.ProductCache)
	}
	productSvc := productservice.NewService(repos.Products, stockSvc, repos.Tx, log)
	couponSvc := couponservice.NewService(repos.Coupons, log)
	cartSvc := cartservice.NewService(repos.Products, log)

	purchaseSvc := purchaseservice.NewService(purchaseservice.Deps{
		Repo:     repos.Purchases,
		Products: repos.Products,
		Ledger:   stockSvc,
		Coupons:  couponSvc,
		Cart:     cartSvc,
		Freight:  opts.Freight,
		Notifier: opts.Notifier,
		Tx:       repos.Tx,
		Logger:   log,
	})
	tradeSvc := tradeservice.NewService(tradeservice.Deps{
		Repo:      repos.Trades,
		Purchases: repos.Purchases,
		Ledger:    stockSvc,
		Coupons:   couponSvc,
		Notifier:  opts.Notifier,
		Tx:        repos.Tx,
		Logger:    log,
		Window:    opts.TradeWindow,
	})

	if opts.Clock != nil {
		couponSvc.WithClock(opts.Clock)
		purchaseSvc.WithClock(opts.Clock)
		tradeSvc.WithClock(opts.Clock)
	}

	// B. Handlers e roteador
	handler := router.NewRouter(router.Handlers{
		Product:  product.NewHandler(productSvc, log),
		Stock:    stock.NewHandler(stockSvc, log),
		Cart:     cart.NewHandler(cartSvc, log),
		Purchase: purchase.NewHandler(purchaseSvc, log),
		Coupon:   coupon.NewHandler(couponSvc, log),
		Trade:    trade.NewHandler(tradeSvc, log),
	}, router.Options{
		Tokens:          opts.Tokens,
		RateLimitCache:  opts.RateLimitCache,
		RateLimitMax:    opts.RateLimitMax,
		RateLimitPeriod: opts.RateLimitPeriod,
	})

	return &App{
		Stock:     stockSvc,
		Products:  productSvc,
		Coupons:   couponSvc,
		Cart:      cartSvc,
		Purchases: purchaseSvc,
		Trades:    tradeSvc,
		Handler:   handler,
	}
}
