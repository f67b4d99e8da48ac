package purchaserepo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"goloja/internal/domain"
	"goloja/internal/errors"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
)

// PurchaseRepository grava compras em três tabelas: purchases, cart_orders e purchase_coupons.
// Toda escrita roda em WithinTx, juntando-se à transação do serviço quando houver.
type PurchaseRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	tx        *database.TxManager
	logger    logger.Logger
}

// NewPurchaseRepository cria e retorna uma nova instância do Repositório de Compras.
func NewPurchaseRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *PurchaseRepository {
	return &PurchaseRepository{
		DB:        db,
		DBTimeout: dbTimeout,
		tx:        database.NewTxManager(db),
		logger:    logger,
	}
}

const purchaseColumns = `id, client_id, status, subtotal, freight_value, freight_eta_days, discount, total_price, change_due,
    delivery_cep, version, created_at, updated_at, approved_at, shipped_at, delivered_at, closed_at`

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func scanPurchase(row interface{ Scan(...interface{}) error }) (domain.Purchase, error) {
	var (
		p                                      domain.Purchase
		status                                 string
		approved, shipped, delivered, closedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.ClientID, &status, &p.Subtotal, &p.FreightValue, &p.FreightEtaDays, &p.Discount,
		&p.TotalPrice, &p.ChangeDue, &p.DeliveryCEP, &p.Version, &p.CreatedAt, &p.UpdatedAt,
		&approved, &shipped, &delivered, &closedAt)
	if err != nil {
		return domain.Purchase{}, err
	}
	p.Status = domain.PurchaseStatus(status)
	p.ApprovedAt = timePtr(approved)
	p.ShippedAt = timePtr(shipped)
	p.DeliveredAt = timePtr(delivered)
	p.ClosedAt = timePtr(closedAt)
	return p, nil
}

// Create insere a compra com seus itens e cupons. Version passa a ser 1.
func (r *PurchaseRepository) Create(ctx context.Context, purchase *domain.Purchase) error {
	purchase.Version = 1
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
		defer cancel()

		const query = `INSERT INTO purchases (` + purchaseColumns + `)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`

		p := purchase
		_, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, query,
			p.ID, p.ClientID, string(p.Status), p.Subtotal, p.FreightValue, p.FreightEtaDays, p.Discount,
			p.TotalPrice, p.ChangeDue, p.DeliveryCEP, p.Version, p.CreatedAt, p.UpdatedAt,
			nullTime(p.ApprovedAt), nullTime(p.ShippedAt), nullTime(p.DeliveredAt), nullTime(p.ClosedAt),
		)
		if err != nil {
			if database.IsUniqueViolation(err, "") {
				return errors.NewConflictError(fmt.Sprintf("Compra %s já existe.", p.ID))
			}
			r.logger.Error("Falha ao inserir compra.", err)
			return errors.NewDBError("Falha ao inserir compra", err)
		}
		if err := r.insertOrders(ctx, p); err != nil {
			return err
		}
		return r.replaceCoupons(ctx, p)
	})
}

func (r *PurchaseRepository) insertOrders(ctx context.Context, p *domain.Purchase) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	const query = `INSERT INTO cart_orders (id, purchase_id, product_id, quantity, quantity_refund, unit_price, position)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	for i, o := range p.Orders {
		if _, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, query,
			o.ID, p.ID, o.ProductID, o.Quantity, o.QuantityRefund, o.UnitPrice, i,
		); err != nil {
			r.logger.Error("Falha ao inserir item da compra.", err)
			return errors.NewDBError("Falha ao inserir item da compra", err)
		}
	}
	return nil
}

// replaceCoupons regrava os cupons aplicados na ordem de aplicação.
func (r *PurchaseRepository) replaceCoupons(ctx context.Context, p *domain.Purchase) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	conn := database.Conn(ctx, r.DB)
	if _, err := conn.ExecContext(ctxTimeout, `DELETE FROM purchase_coupons WHERE purchase_id = $1`, p.ID); err != nil {
		return errors.NewDBError("Falha ao limpar cupons da compra", err)
	}

	const query = `INSERT INTO purchase_coupons
            (purchase_id, coupon_id, code, type, face_value, applied_value, consumed, applied_at, position)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	for i, c := range p.Coupons {
		if _, err := conn.ExecContext(ctxTimeout, query,
			p.ID, c.CouponID, c.Code, string(c.Type), c.FaceValue, c.AppliedValue, c.Consumed, c.AppliedAt, i,
		); err != nil {
			if database.IsUniqueViolation(err, "purchase_coupons_one_promotional_uq") {
				return errors.ErrPromotionalLimitExceeded
			}
			r.logger.Error("Falha ao gravar cupom da compra.", err)
			return errors.NewDBError("Falha ao gravar cupom da compra", err)
		}
	}
	return nil
}

func (r *PurchaseRepository) find(ctx context.Context, id string, forUpdate bool) (domain.Purchase, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `SELECT ` + purchaseColumns + ` FROM purchases WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	p, err := scanPurchase(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, id))
	if err == sql.ErrNoRows {
		return domain.Purchase{}, errors.NewNotFoundError(fmt.Sprintf("Compra com ID %s não existe.", id))
	}
	if err != nil {
		r.logger.Error("Falha ao buscar compra.", err)
		return domain.Purchase{}, errors.NewDBError("Falha ao buscar compra", err)
	}

	if err := r.loadChildren(ctx, []*domain.Purchase{&p}); err != nil {
		return domain.Purchase{}, err
	}
	return p, nil
}

// loadChildren carrega itens e cupons de um lote de compras com duas consultas.
func (r *PurchaseRepository) loadChildren(ctx context.Context, purchases []*domain.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	ids := make([]string, 0, len(purchases))
	byID := make(map[string]*domain.Purchase, len(purchases))
	for _, p := range purchases {
		p.Orders = []domain.CartOrder{}
		p.Coupons = []domain.AppliedCoupon{}
		ids = append(ids, p.ID)
		byID[p.ID] = p
	}
	conn := database.Conn(ctx, r.DB)

	rows, err := conn.QueryContext(ctxTimeout, `
        SELECT id, purchase_id, product_id, quantity, quantity_refund, unit_price
        FROM cart_orders WHERE purchase_id = ANY($1) ORDER BY purchase_id, position`, pq.Array(ids))
	if err != nil {
		return errors.NewDBError("Falha ao buscar itens da compra", err)
	}
	for rows.Next() {
		var o domain.CartOrder
		if err := rows.Scan(&o.ID, &o.PurchaseID, &o.ProductID, &o.Quantity, &o.QuantityRefund, &o.UnitPrice); err != nil {
			rows.Close()
			return errors.NewDBError("Falha ao ler item da compra", err)
		}
		byID[o.PurchaseID].Orders = append(byID[o.PurchaseID].Orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.NewDBError("Falha ao iterar itens da compra", err)
	}

	rows, err = conn.QueryContext(ctxTimeout, `
        SELECT purchase_id, coupon_id, code, type, face_value, applied_value, consumed, applied_at
        FROM purchase_coupons WHERE purchase_id = ANY($1) ORDER BY purchase_id, position`, pq.Array(ids))
	if err != nil {
		return errors.NewDBError("Falha ao buscar cupons da compra", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			purchaseID, kind string
			c                domain.AppliedCoupon
		)
		if err := rows.Scan(&purchaseID, &c.CouponID, &c.Code, &kind, &c.FaceValue, &c.AppliedValue, &c.Consumed, &c.AppliedAt); err != nil {
			return errors.NewDBError("Falha ao ler cupom da compra", err)
		}
		c.Type = domain.CouponType(kind)
		byID[purchaseID].Coupons = append(byID[purchaseID].Coupons, c)
	}
	if err := rows.Err(); err != nil {
		return errors.NewDBError("Falha ao iterar cupons da compra", err)
	}
	return nil
}

// FindByID busca a compra completa.
func (r *PurchaseRepository) FindByID(ctx context.Context, id string) (domain.Purchase, error) {
	return r.find(ctx, id, false)
}

// LockByID busca a compra com FOR UPDATE. Deve ser chamado dentro de TxManager.WithinTx.
func (r *PurchaseRepository) LockByID(ctx context.Context, id string) (domain.Purchase, error) {
	return r.find(ctx, id, true)
}

// Update grava status, totais, datas, quantidades dos itens e cupons com OCC sobre version.
// Itens removidos (reconciliação) são apagados; itens novos não existem após o checkout.
func (r *PurchaseRepository) Update(ctx context.Context, purchase *domain.Purchase) error {
	return r.tx.WithinTx(ctx, func(ctx context.Context) error {
		ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
		defer cancel()
		conn := database.Conn(ctx, r.DB)
		p := purchase

		const query = `
            UPDATE purchases
            SET status = $1, subtotal = $2, freight_value = $3, freight_eta_days = $4, discount = $5,
                total_price = $6, change_due = $7, updated_at = $8, approved_at = $9, shipped_at = $10,
                delivered_at = $11, closed_at = $12, version = version + 1
            WHERE id = $13 AND version = $14`

		result, err := conn.ExecContext(ctxTimeout, query,
			string(p.Status), p.Subtotal, p.FreightValue, p.FreightEtaDays, p.Discount,
			p.TotalPrice, p.ChangeDue, p.UpdatedAt, nullTime(p.ApprovedAt), nullTime(p.ShippedAt),
			nullTime(p.DeliveredAt), nullTime(p.ClosedAt), p.ID, p.Version,
		)
		if err != nil {
			r.logger.Error("Falha ao atualizar compra.", err)
			return errors.NewDBError("Falha ao atualizar compra", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return errors.NewDBError("Falha ao verificar linhas afetadas", err)
		}
		if rowsAffected == 0 {
			r.logger.Warn("Falha no controle de concorrência otimista (OCC) da compra.", map[string]interface{}{
				"purchase_id":      p.ID,
				"expected_version": p.Version,
			})
			return errors.NewConflictError("A compra foi modificada por outra operação. Tente novamente.")
		}

		ids := make([]string, 0, len(p.Orders))
		for _, o := range p.Orders {
			ids = append(ids, o.ID)
			if _, err := conn.ExecContext(ctxTimeout,
				`UPDATE cart_orders SET quantity = $1 WHERE id = $2 AND purchase_id = $3`,
				o.Quantity, o.ID, p.ID,
			); err != nil {
				return errors.NewDBError("Falha ao atualizar item da compra", err)
			}
		}
		if _, err := conn.ExecContext(ctxTimeout,
			`DELETE FROM cart_orders WHERE purchase_id = $1 AND NOT (id = ANY($2))`,
			p.ID, pq.Array(ids),
		); err != nil {
			return errors.NewDBError("Falha ao remover itens da compra", err)
		}

		if err := r.replaceCoupons(ctx, p); err != nil {
			return err
		}
		p.Version++
		return nil
	})
}

// ListByClient lista as compras do cliente, mais recentes primeiro.
func (r *PurchaseRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Purchase, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout,
		`SELECT `+purchaseColumns+` FROM purchases WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, errors.NewDBError("Falha ao listar compras", err)
	}

	var purchases []domain.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			rows.Close()
			return nil, errors.NewDBError("Falha ao ler compra", err)
		}
		purchases = append(purchases, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.NewDBError("Falha ao iterar compras", err)
	}

	ptrs := make([]*domain.Purchase, len(purchases))
	for i := range purchases {
		ptrs[i] = &purchases[i]
	}
	if err := r.loadChildren(ctx, ptrs); err != nil {
		return nil, err
	}
	return purchases, nil
}

// IncrementRefund soma quantity a quantity_refund de forma condicional:
// o UPDATE só acontece se o total continuar dentro de quantity.
func (r *PurchaseRepository) IncrementRefund(ctx context.Context, orderID string, quantity int) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	conn := database.Conn(ctx, r.DB)
	result, err := conn.ExecContext(ctxTimeout, `
        UPDATE cart_orders SET quantity_refund = quantity_refund + $1
        WHERE id = $2 AND quantity_refund + $1 <= quantity`, quantity, orderID)
	if err != nil {
		r.logger.Error("Falha ao incrementar quantidade trocada.", err)
		return errors.NewDBError("Falha ao incrementar quantidade trocada", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewDBError("Falha ao verificar linhas afetadas", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	var qty, refunded int
	err = conn.QueryRowContext(ctxTimeout, `SELECT quantity, quantity_refund FROM cart_orders WHERE id = $1`, orderID).Scan(&qty, &refunded)
	if err == sql.ErrNoRows {
		return errors.NewNotFoundError(fmt.Sprintf("Item %s não existe.", orderID))
	}
	if err != nil {
		return errors.NewDBError("Falha ao buscar item da compra", err)
	}
	return errors.ErrRefundQuantityExceeded.With(
		fmt.Sprintf("item %s: disponível %d, solicitado %d", orderID, qty-refunded, quantity),
		map[string]interface{}{"order_id": orderID, "available": qty - refunded, "requested": quantity},
	)
}
