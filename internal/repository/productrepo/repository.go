package productrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"goloja/internal/domain"
	"goloja/internal/errors"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
)

// ProductRepository é o catálogo no PostgreSQL, com cache-aside no Redis para leituras por ID.
// Nenhum método daqui escreve a coluna stock: ela pertence ao livro-razão (stockrepo).
type ProductRepository struct {
	DB        *sql.DB
	Cache     cache.Client
	DBTimeout time.Duration
	CacheTTL  time.Duration
	logger    logger.Logger
}

// NewProductRepository cria e retorna uma nova instância do Repositório.
func NewProductRepository(db *sql.DB, cacheClient cache.Client, dbTimeout, cacheTTL time.Duration, logger logger.Logger) *ProductRepository {
	return &ProductRepository{
		DB:        db,
		Cache:     cacheClient,
		DBTimeout: dbTimeout,
		CacheTTL:  cacheTTL,
		logger:    logger,
	}
}

// Define a chave de cache para produtos.
const productCacheKey = "product:%s"

const selectProduct = `SELECT id, sku, name, description, price, weight_kg, stock, version, is_active, last_sale_at, created_at, updated_at FROM products`

func scanProduct(row interface{ Scan(...interface{}) error }) (domain.Product, error) {
	var p domain.Product
	var lastSale sql.NullTime
	err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.WeightKg,
		&p.Stock, &p.Version, &p.IsActive, &lastSale, &p.CreatedAt, &p.UpdatedAt)
	if lastSale.Valid {
		t := lastSale.Time
		p.LastSaleAt = &t
	}
	return p, err
}

// Create persiste um novo produto com stock = 0. O estoque inicial entra pelo livro-razão.
func (r *ProductRepository) Create(ctx context.Context, product domain.Product) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	const productSQL = `INSERT INTO products (id, sku, name, description, price, weight_kg, stock, version, is_active, created_at, updated_at)
                         VALUES ($1,$2,$3,$4,$5,$6,0,1,$7,$8,$9)`

	_, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, productSQL,
		product.ID,
		product.SKU,
		product.Name,
		product.Description,
		product.Price,
		product.WeightKg,
		product.IsActive,
		product.CreatedAt,
		product.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return errors.NewConflictError(fmt.Sprintf("SKU %s já cadastrado.", product.SKU))
		}
		r.logger.Error("Falha ao inserir produto.", err)
		return errors.NewDBError("Falha ao inserir produto", err)
	}
	return nil
}

// FindByID busca um produto pelo ID, utilizando a estratégia Cache-Aside.
// Dentro de uma transação o cache é ignorado: o chamador precisa do valor corrente.
func (r *ProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	key := fmt.Sprintf(productCacheKey, id)
	useCache := r.Cache != nil && !database.InTx(ctx)

	// --- Cache-Aside (READ) ---
	if useCache {
		cachedData, err := r.Cache.Get(ctxTimeout, key)
		if err == nil {
			var product domain.Product
			if json.Unmarshal([]byte(cachedData), &product) == nil {
				return product, nil
			}
		} else if err != cache.ErrCacheMiss {
			r.logger.Warn("Falha ao ler do cache Redis.", map[string]interface{}{"key": key, "error": err.Error()})
		}
	}

	// --- Busca no Banco de Dados ---
	product, err := scanProduct(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, selectProduct+` WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return domain.Product{}, errors.NewNotFoundError(fmt.Sprintf("Produto com ID %s não existe na base de dados.", id))
	}
	if err != nil {
		return domain.Product{}, errors.NewDBError("Falha ao buscar produto no DB", err)
	}

	// --- Cache-Aside (WRITE) ---
	if useCache {
		if productJSON, marshalErr := json.Marshal(product); marshalErr == nil {
			_ = r.Cache.Set(ctxTimeout, key, productJSON, r.CacheTTL)
		}
	}
	return product, nil
}

// FindByIDs busca vários produtos direto no banco (usado pelo validador de carrinho, que precisa do saldo atual).
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout, selectProduct+` WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return nil, errors.NewDBError("Falha ao buscar produtos", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.NewDBError("Falha ao ler produto", err)
		}
		out[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDBError("Falha ao iterar produtos", err)
	}
	return out, nil
}

// FindAll lista o catálogo com filtros e paginação.
func (r *ProductRepository) FindAll(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	var (
		where []string
		args  []interface{}
	)
	if filter.ActiveOnly {
		where = append(where, "is_active = TRUE")
	}
	if filter.SKU != "" {
		args = append(args, filter.SKU)
		where = append(where, fmt.Sprintf("sku = $%d", len(args)))
	}
	if filter.Name != "" {
		args = append(args, "%"+filter.Name+"%")
		where = append(where, fmt.Sprintf("name ILIKE $%d", len(args)))
	}

	query := selectProduct
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sku"
	if filter.Limit > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		args = append(args, filter.Limit, (page-1)*filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout, query, args...)
	if err != nil {
		return nil, errors.NewDBError("Falha ao listar produtos", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, errors.NewDBError("Falha ao ler produto", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpdateDetails altera os dados cadastrais e invalida o cache. stock e version não são tocados.
func (r *ProductRepository) UpdateDetails(ctx context.Context, product domain.Product) (domain.Product, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	const query = `
        UPDATE products
        SET sku = $1, name = $2, description = $3, price = $4, weight_kg = $5, is_active = $6, updated_at = $7
        WHERE id = $8
        RETURNING id, sku, name, description, price, weight_kg, stock, version, is_active, last_sale_at, created_at, updated_at`

	updated, err := scanProduct(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query,
		product.SKU, product.Name, product.Description, product.Price, product.WeightKg,
		product.IsActive, product.UpdatedAt, product.ID,
	))
	if err == sql.ErrNoRows {
		return domain.Product{}, errors.NewNotFoundError(fmt.Sprintf("Produto com ID %s não existe.", product.ID))
	}
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return domain.Product{}, errors.NewConflictError(fmt.Sprintf("SKU %s já cadastrado.", product.SKU))
		}
		return domain.Product{}, errors.NewDBError("Falha ao atualizar produto", err)
	}

	r.Invalidate(ctx, product.ID)
	return updated, nil
}

// Invalidate remove o produto do cache. Chamado após cada movimentação de estoque.
func (r *ProductRepository) Invalidate(ctx context.Context, productID string) {
	if r.Cache == nil {
		return
	}
	if err := r.Cache.Delete(ctx, fmt.Sprintf(productCacheKey, productID)); err != nil {
		r.logger.Warn("Falha ao invalidar cache de produto.", map[string]interface{}{"product_id": productID, "error": err.Error()})
	}
}
