package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "goloja/docs" // registra a especificação OpenAPI
	"goloja/internal/api/cart"
	"goloja/internal/api/coupon"
	"goloja/internal/api/product"
	"goloja/internal/api/purchase"
	"goloja/internal/api/stock"
	"goloja/internal/api/trade"
	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/middleware"
)

// Handlers agrupa os Handlers já inicializados por injeção de dependências.
type Handlers struct {
	Product  *product.Handler
	Stock    *stock.Handler
	Cart     *cart.Handler
	Purchase *purchase.Handler
	Coupon   *coupon.Handler
	Trade    *trade.Handler
}

// Options configura autenticação e rate limiting.
type Options struct {
	Tokens          middleware.TokenService
	RateLimitCache  cache.Client // nil desliga o rate limiting
	RateLimitMax    int
	RateLimitPeriod time.Duration
}

// NewRouter configura e retorna o roteador HTTP principal.
func NewRouter(h Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	// --- 1. Middlewares Globais ---
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Tracing)
	r.Use(chimw.Recoverer)
	if opts.RateLimitCache != nil {
		r.Use(middleware.RateLimiter(opts.RateLimitCache, opts.RateLimitMax, opts.RateLimitPeriod))
	}

	// --- 2. Health Check e Documentação ---
	r.Get("/ping", PingHandler)
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))

	// --- 3. Rotas v1 (autenticadas) ---
	admin := middleware.RequireRoles(domain.RoleAdmin)

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(opts.Tokens))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Product.ListProductsHandler)
			r.Get("/{id}", h.Product.GetProductByIDHandler)
			r.With(admin).Post("/", h.Product.CreateProductHandler)
			r.With(admin).Put("/{id}", h.Product.UpdateProductHandler)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Use(admin)
			r.Post("/entries", h.Stock.EntryHandler)
			r.Post("/discards", h.Stock.DiscardHandler)
			r.Get("/movements", h.Stock.MovementsHandler)
			r.Get("/{productID}/audit", h.Stock.AuditHandler)
		})

		r.Post("/cart/validate", h.Cart.ValidateHandler)

		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.Purchase.CheckoutHandler)
			r.Get("/", h.Purchase.ListMineHandler)
			r.Get("/{id}", h.Purchase.GetHandler)
			// Clientes podem cancelar; o serviço decide quem pode o quê.
			r.Patch("/{id}/status", h.Purchase.TransitionHandler)
			r.Post("/{id}/coupons", h.Purchase.ApplyCouponHandler)
			r.Post("/{id}/coupons/generated", h.Purchase.ApplyGeneratedCouponHandler)
			r.Post("/{id}/coupons/optimize", h.Purchase.OptimizeCouponsHandler)
			r.Delete("/{id}/coupons/{couponID}", h.Purchase.RemoveCouponHandler)
			r.Post("/{id}/reconcile", h.Purchase.ReconcileHandler)
			r.Get("/{id}/trades", h.Trade.ListForPurchaseHandler)
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Get("/mine", h.Coupon.ListMineHandler)
			r.Get("/{code}", h.Coupon.GetByCodeHandler)
			r.With(admin).Post("/", h.Coupon.CreatePromotionalHandler)
			r.With(admin).Post("/{id}/deactivate", h.Coupon.DeactivateHandler)
		})

		r.Route("/trades", func(r chi.Router) {
			r.Post("/", h.Trade.RequestHandler)
			r.Get("/{id}", h.Trade.GetHandler)
			r.Post("/{id}/cancel", h.Trade.CancelHandler)
			r.With(admin).Post("/{id}/authorize", h.Trade.AuthorizeHandler)
			r.With(admin).Post("/{id}/reject", h.Trade.RejectHandler)
			r.With(admin).Post("/{id}/receive", h.Trade.ReceiveHandler)
			r.With(admin).Post("/{id}/conclude", h.Trade.ConcludeHandler)
		})
	})

	return r
}

// PingHandler é uma função utilitária para o health check.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}
