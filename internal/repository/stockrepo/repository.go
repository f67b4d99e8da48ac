package stockrepo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"goloja/internal/domain"
	"goloja/internal/errors"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
)

// StockRepository é o livro-razão no PostgreSQL. Único caminho de escrita de products.stock.
type StockRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewStockRepository cria e retorna uma nova instância do Repositório de Estoque.
func NewStockRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *StockRepository {
	return &StockRepository{
		DB:        db,
		DBTimeout: dbTimeout,
		logger:    logger,
	}
}

const productColumns = `id, sku, name, description, price, weight_kg, stock, version, is_active, last_sale_at, created_at, updated_at`

func scanProduct(row interface{ Scan(...interface{}) error }, p *domain.Product) error {
	var lastSale sql.NullTime
	if err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Price, &p.WeightKg,
		&p.Stock, &p.Version, &p.IsActive, &lastSale, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return err
	}
	if lastSale.Valid {
		t := lastSale.Time
		p.LastSaleAt = &t
	}
	return nil
}

// LockProduct lê o produto com FOR UPDATE. Deve ser chamado dentro de TxManager.WithinTx.
func (r *StockRepository) LockProduct(ctx context.Context, productID string) (domain.Product, error) {
	return r.getProduct(ctx, productID, true)
}

// GetProduct lê o produto sem bloquear a linha.
func (r *StockRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return r.getProduct(ctx, productID, false)
}

func (r *StockRepository) getProduct(ctx context.Context, productID string, forUpdate bool) (domain.Product, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p domain.Product
	err := scanProduct(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, productID), &p)
	if err == sql.ErrNoRows {
		return domain.Product{}, errors.NewNotFoundError(fmt.Sprintf("Produto com ID %s não existe.", productID))
	}
	if err != nil {
		r.logger.Error("Falha ao buscar produto para movimentação.", err)
		return domain.Product{}, errors.NewDBError("Falha ao buscar produto", err)
	}
	return p, nil
}

// MovementExists verifica se já existe movimentação do tipo para (produto, referência).
func (r *StockRepository) MovementExists(ctx context.Context, productID, referenceID string, kind domain.MovementKind) (bool, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	const query = `
        SELECT EXISTS (
            SELECT 1 FROM stock_movements
            WHERE product_id = $1 AND reference_id = $2 AND kind = $3
        )`

	var exists bool
	if err := database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, productID, referenceID, string(kind)).Scan(&exists); err != nil {
		r.logger.Error("Falha ao verificar movimentação existente.", err)
		return false, errors.NewDBError("Falha ao verificar movimentação", err)
	}
	return exists, nil
}

// ApplyMovement atualiza o saldo com controle de concorrência otimista (OCC) e anexa a movimentação.
// Ambos os comandos usam a transação do contexto.
func (r *StockRepository) ApplyMovement(ctx context.Context, product domain.Product, movement domain.StockMovement) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	conn := database.Conn(ctx, r.DB)

	var lastSaleAt interface{}
	if movement.Kind == domain.MovementSaleDebit {
		lastSaleAt = movement.CreatedAt
	}

	// 1. Atualizar o saldo com OCC
	const queryUpdate = `
        UPDATE products
        SET stock = $1, version = version + 1, updated_at = $2, last_sale_at = COALESCE($3, last_sale_at)
        WHERE id = $4 AND version = $5`

	result, err := conn.ExecContext(ctxTimeout, queryUpdate,
		movement.StockAfter,
		movement.CreatedAt,
		lastSaleAt,
		product.ID,
		product.Version, // Checa a versão lida sob lock
	)
	if err != nil {
		if database.IsCheckViolation(err) {
			return errors.NewInsufficientStock(product.ID, movement.Quantity, product.Stock)
		}
		r.logger.Error("Falha ao atualizar saldo do produto.", err)
		return errors.NewDBError("Falha ao atualizar estoque", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewDBError("Falha ao verificar linhas afetadas", err)
	}
	if rowsAffected == 0 {
		r.logger.Warn("Falha no controle de concorrência otimista (OCC). Versão do registro desatualizada.", map[string]interface{}{
			"product_id":       product.ID,
			"expected_version": product.Version,
		})
		return errors.NewConflictError("O estoque foi modificado por outra operação. Tente novamente.")
	}

	// 2. Anexar a movimentação (tabela append-only)
	const queryInsert = `
        INSERT INTO stock_movements
            (id, product_id, kind, quantity, quantity_delta, stock_before, stock_after, reference_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err = conn.ExecContext(ctxTimeout, queryInsert,
		movement.ID, movement.ProductID, string(movement.Kind), movement.Quantity, movement.QuantityDelta,
		movement.StockBefore, movement.StockAfter, movement.ReferenceID, movement.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "stock_movements_reference_uq") {
			return errors.ErrDuplicateMovement
		}
		r.logger.Error("Falha ao gravar movimentação de estoque.", err)
		return errors.NewDBError("Falha ao gravar movimentação", err)
	}
	return nil
}

// ListMovements consulta o histórico em ordem de gravação.
func (r *StockRepository) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	var (
		where []string
		args  []interface{}
	)
	if filter.ProductID != "" {
		args = append(args, filter.ProductID)
		where = append(where, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.ReferenceID != "" {
		args = append(args, filter.ReferenceID)
		where = append(where, fmt.Sprintf("reference_id = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}

	query := `SELECT id, product_id, kind, quantity, quantity_delta, stock_before, stock_after, reference_id, created_at
        FROM stock_movements`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout, query, args...)
	if err != nil {
		r.logger.Error("Falha ao listar movimentações.", err)
		return nil, errors.NewDBError("Falha ao listar movimentações", err)
	}
	defer rows.Close()

	var out []domain.StockMovement
	for rows.Next() {
		var m domain.StockMovement
		var kind string
		if err := rows.Scan(&m.ID, &m.ProductID, &kind, &m.Quantity, &m.QuantityDelta,
			&m.StockBefore, &m.StockAfter, &m.ReferenceID, &m.CreatedAt); err != nil {
			return nil, errors.NewDBError("Falha ao ler movimentação", err)
		}
		m.Kind = domain.MovementKind(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDBError("Falha ao iterar movimentações", err)
	}
	return out, nil
}
