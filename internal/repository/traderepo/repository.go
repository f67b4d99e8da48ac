package traderepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"goloja/internal/domain"
	"goloja/internal/errors"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
)

// TradeRepository persiste as solicitações de troca no PostgreSQL.
type TradeRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewTradeRepository cria e retorna uma nova instância do Repositório de Trocas.
func NewTradeRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *TradeRepository {
	return &TradeRepository{DB: db, DBTimeout: dbTimeout, logger: logger}
}

const tradeColumns = `id, purchase_id, cart_order_id, product_id, client_id, quantity, value, status, reason,
    resellable, coupon_id, created_at, updated_at, received_at`

func scanTrade(row interface{ Scan(...interface{}) error }) (domain.Trade, error) {
	var (
		t                domain.Trade
		status           string
		reason, couponID sql.NullString
		resellable       sql.NullBool
		receivedAt       sql.NullTime
	)
	err := row.Scan(&t.ID, &t.PurchaseID, &t.CartOrderID, &t.ProductID, &t.ClientID, &t.Quantity, &t.Value, &status,
		&reason, &resellable, &couponID, &t.CreatedAt, &t.UpdatedAt, &receivedAt)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeStatus(status)
	t.Reason = reason.String
	t.CouponID = couponID.String
	if resellable.Valid {
		v := resellable.Bool
		t.Resellable = &v
	}
	if receivedAt.Valid {
		rt := receivedAt.Time
		t.ReceivedAt = &rt
	}
	return t, nil
}

func nullable(t domain.Trade) (reason, couponID, resellable, receivedAt interface{}) {
	if t.Reason != "" {
		reason = t.Reason
	}
	if t.CouponID != "" {
		couponID = t.CouponID
	}
	if t.Resellable != nil {
		resellable = *t.Resellable
	}
	if t.ReceivedAt != nil {
		receivedAt = *t.ReceivedAt
	}
	return
}

func (r *TradeRepository) Create(ctx context.Context, t domain.Trade) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	reason, couponID, resellable, receivedAt := nullable(t)
	_, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, `INSERT INTO trades (`+tradeColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		t.ID, t.PurchaseID, t.CartOrderID, t.ProductID, t.ClientID, t.Quantity, t.Value, string(t.Status),
		reason, resellable, couponID, t.CreatedAt, t.UpdatedAt, receivedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return errors.NewConflictError(fmt.Sprintf("Troca %s já existe.", t.ID))
		}
		r.logger.Error("Falha ao inserir troca.", err)
		return errors.NewDBError("Falha ao inserir troca", err)
	}
	return nil
}

func (r *TradeRepository) find(ctx context.Context, id string, forUpdate bool) (domain.Trade, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	t, err := scanTrade(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, id))
	if err == sql.ErrNoRows {
		return domain.Trade{}, errors.NewNotFoundError(fmt.Sprintf("Troca com ID %s não existe.", id))
	}
	if err != nil {
		r.logger.Error("Falha ao buscar troca.", err)
		return domain.Trade{}, errors.NewDBError("Falha ao buscar troca", err)
	}
	return t, nil
}

func (r *TradeRepository) FindByID(ctx context.Context, id string) (domain.Trade, error) {
	return r.find(ctx, id, false)
}

// LockByID lê a troca com FOR UPDATE. Deve ser chamado dentro de TxManager.WithinTx.
func (r *TradeRepository) LockByID(ctx context.Context, id string) (domain.Trade, error) {
	return r.find(ctx, id, true)
}

// Update grava o estado da troca. coupon_id só pode ser definido uma vez:
// a condição coupon_id IS NULL protege contra um segundo cupom.
func (r *TradeRepository) Update(ctx context.Context, t domain.Trade) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	reason, couponID, resellable, receivedAt := nullable(t)
	result, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, `
        UPDATE trades
        SET status = $1, reason = $2, resellable = $3, coupon_id = $4, updated_at = $5, received_at = $6
        WHERE id = $7 AND (coupon_id IS NULL OR coupon_id = $4)`,
		string(t.Status), reason, resellable, couponID, t.UpdatedAt, receivedAt, t.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "trades_coupon_uq") {
			return errors.ErrDuplicateCouponGen
		}
		r.logger.Error("Falha ao atualizar troca.", err)
		return errors.NewDBError("Falha ao atualizar troca", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		if _, err := r.FindByID(ctx, t.ID); err != nil {
			return err
		}
		return errors.ErrDuplicateCouponGen
	}
	return nil
}

func (r *TradeRepository) ListByPurchase(ctx context.Context, purchaseID string) ([]domain.Trade, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout,
		`SELECT `+tradeColumns+` FROM trades WHERE purchase_id = $1 ORDER BY created_at`, purchaseID)
	if err != nil {
		return nil, errors.NewDBError("Falha ao listar trocas", err)
	}
	defer rows.Close()

	trades := []domain.Trade{}
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, errors.NewDBError("Falha ao ler troca", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SumOpenQuantity soma a quantidade de trocas SOLICITADA/AUTORIZADA sobre o item.
func (r *TradeRepository) SumOpenQuantity(ctx context.Context, cartOrderID string) (int, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	var total int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, `
        SELECT COALESCE(SUM(quantity), 0) FROM trades
        WHERE cart_order_id = $1 AND status IN ($2, $3)`,
		cartOrderID, string(domain.TradeSolicitada), string(domain.TradeAutorizada)).Scan(&total)
	if err != nil {
		return 0, errors.NewDBError("Falha ao somar trocas abertas", err)
	}
	return total, nil
}
