package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	// Nossos pacotes de infraestrutura e utilitários
	"goloja/config"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/freight"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/notify"
	"goloja/internal/pkg/telemetry"
	"goloja/internal/pkg/token"

	// Montagem Repository -> Service -> Handler
	"goloja/internal/app"
	"goloja/internal/repository/couponrepo"
	"goloja/internal/repository/memstore"
	"goloja/internal/repository/productrepo"
	"goloja/internal/repository/purchaserepo"
	"goloja/internal/repository/stockrepo"
	"goloja/internal/repository/traderepo"
)

// @title GoLoja API
// @version 1.0
// @description Ciclo de vida de compras, cupons, trocas e livro-razão de estoque.
// @BasePath /v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	// 0. CARREGAR VARIÁVEIS DE AMBIENTE (.env)
	log.Println("⚡ Inicializando serviço GoLoja...")
	if err := godotenv.Load(); err != nil {
		// Segue sem .env: as variáveis podem vir do ambiente do sistema (ex: Docker).
		log.Println("⚠️ Aviso: Arquivo .env não encontrado ou erro de leitura. Carregando configs apenas do ambiente do sistema.")
	}

	// 1. Configuração, Logger e Telemetria
	cfg := config.LoadConfig()
	appLog := logger.NewLogger(cfg.LogLevel)
	appLog.Info("Configurações carregadas.", map[string]interface{}{
		"env":          cfg.Environment,
		"store_driver": cfg.StoreDriver,
	})

	ctx := context.Background()
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:       cfg.OTelEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: "1.0",
	})
	if err != nil {
		appLog.Fatal("Falha ao configurar telemetria.", err)
	}

	// 2. Cache (Redis). Sem Redis o cache e o rate limit ficam em memória e os eventos vão para o log.
	var (
		cacheClient cache.Client
		notifier    notify.Dispatcher = &notify.LogDispatcher{Logger: appLog}
	)
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Warn("Redis indisponível. Usando cache em memória.", map[string]interface{}{"addr": cfg.RedisAddr, "error": err.Error()})
			cacheClient = cache.NewMemoryClient()
		} else {
			defer redisClient.Close()
			cacheClient = redisClient
			notifier = notify.NewRedisDispatcher(redisClient, cfg.NotifyChannel)
			appLog.Info("Conexão Redis estabelecida.", nil)
		}
	} else {
		cacheClient = cache.NewMemoryClient()
	}

	// 3. Persistência
	var repos app.Repositories
	switch cfg.StoreDriver {
	case config.StoreMemory:
		repos = app.MemoryRepositories(memstore.New())
		appLog.Warn("Persistência em memória: os dados são perdidos ao encerrar.", nil)
	default:
		db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			appLog.Fatal("Falha ao conectar ao banco de dados.", err)
		}
		defer db.Close()
		appLog.Info("Conexão PostgreSQL estabelecida.", nil)
		repos = postgresRepositories(db, cacheClient, cfg, appLog)
	}

	// 4. Frete: serviço externo quando configurado, senão tabela fixa.
	var calc freight.Calculator = freight.FlatCalculator{Value: cfg.FreightFlatValue, EtaDays: cfg.FreightFlatDays}
	if cfg.FreightAPIURL != "" {
		calc = freight.NewHTTPCalculator(cfg.FreightAPIURL, cfg.FreightTimeout)
		appLog.Info("Cotação de frete via serviço externo.", map[string]interface{}{"url": cfg.FreightAPIURL})
	}

	// 5. INJEÇÃO DE DEPENDÊNCIAS
	tokenSvc := token.NewService(cfg.JWTSecretKey, cfg.TokenExpiry)
	application := app.New(repos, app.Options{
		Freight:         calc,
		Notifier:        notifier,
		Tokens:          tokenSvc,
		TradeWindow:     cfg.TradeWindow,
		Logger:          appLog,
		RateLimitCache:  cacheClient,
		RateLimitMax:    cfg.RateLimitMaxRequests,
		RateLimitPeriod: cfg.RateLimitPeriod,
	})
	appLog.Debug("Serviços e handlers inicializados.", nil)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      application.Handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 6. Execução e Graceful Shutdown
	go func() {
		appLog.Info("Servidor GoLoja ouvindo na porta", map[string]interface{}{"port": cfg.Port})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal("Servidor falhou.", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit
	appLog.Info("Sinal de encerramento recebido. Desligando servidor...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Desligamento do servidor forçado.", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		appLog.Error("Falha ao descarregar telemetria.", err)
	}

	appLog.Info("Servidor encerrado com sucesso.", nil)
}

// postgresRepositories monta os repositórios PostgreSQL. O catálogo usa cache-aside,
// invalidado pelo livro-razão a cada movimentação.
func postgresRepositories(db *sql.DB, cacheClient cache.Client, cfg *config.Config, log logger.Logger) app.Repositories {
	productRepo := productrepo.NewProductRepository(db, cacheClient, cfg.DBTimeout, cfg.CacheTTL, log)
	return app.Repositories{
		Products:     productRepo,
		Stock:        stockrepo.NewStockRepository(db, cfg.DBTimeout, log),
		Purchases:    purchaserepo.NewPurchaseRepository(db, cfg.DBTimeout, log),
		Coupons:      couponrepo.NewCouponRepository(db, cfg.DBTimeout, log),
		Trades:       traderepo.NewTradeRepository(db, cfg.DBTimeout, log),
		Tx:           database.NewTxManager(db),
		ProductCache: productRepo,
	}
}
