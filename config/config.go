package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Drivers de persistência aceitos em STORE_DRIVER.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config armazena todas as configurações do aplicativo GoLoja.
type Config struct {
	// Geral
	Port        string
	Environment string
	LogLevel    string
	ServiceName string

	// Persistência
	StoreDriver string
	DatabaseURL string
	DBTimeout   time.Duration // timeout de cada comando SQL

	// Cache (Redis)
	RedisAddr    string
	CacheTimeout time.Duration
	CacheTTL     time.Duration

	// Segurança (JWT)
	JWTSecretKey string
	TokenExpiry  time.Duration

	// Rate Limiting
	RateLimitMaxRequests int
	RateLimitPeriod      time.Duration

	// Trocas
	TradeWindow time.Duration

	// Frete
	FreightAPIURL    string
	FreightTimeout   time.Duration
	FreightFlatValue decimal.Decimal
	FreightFlatDays  int

	// Notificações
	NotifyChannel string

	// Telemetria (OTLP HTTP). Vazio desliga os exportadores.
	OTelEndpoint string
}

// LoadConfig carrega as configurações a partir das variáveis de ambiente.
func LoadConfig() *Config {
	cfg := &Config{
		// 1. Geral
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		ServiceName: getEnv("SERVICE_NAME", "goloja"),

		// 2. Persistência
		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		DBTimeout:   getDurationEnv("DB_TIMEOUT_SEC", 5) * time.Second, // 5s padrão

		// 3. Cache (Redis). REDIS_ADDR vazio desliga cache, rate limit distribuído e pub/sub.
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		CacheTimeout: getDurationEnv("CACHE_TIMEOUT_SEC", 10) * time.Second,
		CacheTTL:     getDurationEnv("CACHE_TTL_SEC", 30) * time.Second,

		// 4. Segurança (JWT)
		JWTSecretKey: mustGetEnv("JWT_SECRET_KEY"),
		TokenExpiry:  getDurationEnv("JWT_EXPIRY_MIN", 60) * time.Minute,

		// 5. Rate Limiting
		RateLimitMaxRequests: getIntEnv("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitPeriod:      getDurationEnv("RATE_LIMIT_PERIOD_MIN", 1) * time.Minute,

		// 6. Trocas
		TradeWindow: getDurationEnv("TRADE_WINDOW_DAYS", 30) * 24 * time.Hour,

		// 7. Frete
		FreightAPIURL:    getEnv("FREIGHT_API_URL", ""),
		FreightTimeout:   getDurationEnv("FREIGHT_TIMEOUT_SEC", 3) * time.Second,
		FreightFlatValue: getDecimalEnv("FREIGHT_FLAT_VALUE", "15.00"),
		FreightFlatDays:  getIntEnv("FREIGHT_FLAT_DAYS", 7),

		// 8. Notificações
		NotifyChannel: getEnv("NOTIFY_CHANNEL", "goloja.events"),

		// 9. Telemetria
		OTelEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	// DATABASE_URL só é obrigatório quando o driver é PostgreSQL.
	if cfg.StoreDriver == StorePostgres {
		cfg.DatabaseURL = mustGetEnv("DATABASE_URL")
	} else {
		cfg.DatabaseURL = getEnv("DATABASE_URL", "")
	}
	if cfg.StoreDriver != StorePostgres && cfg.StoreDriver != StoreMemory {
		log.Fatalf("❌ Erro de Configuração: STORE_DRIVER inválido (%s). Use %s ou %s.", cfg.StoreDriver, StorePostgres, StoreMemory)
	}

	return cfg
}

// Funções Helpers (Auxiliares)

// getEnv lê a variável de ambiente ou retorna um valor padrão.
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// mustGetEnv lê a variável de ambiente, fatal se não estiver presente.
func mustGetEnv(key string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Fatalf("❌ Erro de Configuração: A variável de ambiente %s deve ser definida.", key)
	return ""
}

// getDurationEnv lê uma variável de ambiente numérica e retorna-a como time.Duration.
func getDurationEnv(key string, defaultValue int) time.Duration {
	return time.Duration(getIntEnv(key, defaultValue))
}

// getIntEnv lê uma variável de ambiente numérica e retorna-a como int.
func getIntEnv(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("⚠️ Aviso: Valor de %s ('%s') não é um número inteiro válido. Usando padrão (%d).", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// getDecimalEnv lê um valor monetário.
func getDecimalEnv(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		log.Printf("⚠️ Aviso: Valor de %s ('%s') não é um decimal válido. Usando padrão (%s).", key, valueStr, defaultValue)
		return decimal.RequireFromString(defaultValue)
	}
	return value
}
