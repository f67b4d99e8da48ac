package couponrepo

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

// CouponRepository persiste cupons e o histórico de uso (coupon_usages) no PostgreSQL.
type CouponRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewCouponRepository cria e retorna uma nova instância do Repositório de Cupons.
func NewCouponRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *CouponRepository {
	return &CouponRepository{DB: db, DBTimeout: dbTimeout, logger: logger}
}

const couponColumns = `id, code, client_id, type, value, min_order_value, usage_limit, usage_count, is_active,
    expires_at, origin_id, created_at, updated_at`

func scanCoupon(row interface{ Scan(...interface{}) error }) (domain.Coupon, error) {
	var (
		c                  domain.Coupon
		kind               string
		clientID, originID sql.NullString
		expiresAt          sql.NullTime
	)
	err := row.Scan(&c.ID, &c.Code, &clientID, &kind, &c.Value, &c.MinOrderValue, &c.UsageLimit, &c.UsageCount,
		&c.IsActive, &expiresAt, &originID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Coupon{}, err
	}
	c.Type = domain.CouponType(kind)
	c.ClientID = clientID.String
	c.OriginID = originID.String
	if expiresAt.Valid {
		t := expiresAt.Time
		c.ExpiresAt = &t
	}
	return c, nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Create insere o cupom. Código repetido vira ConflictError; um segundo cupom TRADE
// para a mesma troca viola coupons_trade_origin_uq e vira ErrDuplicateCouponGen.
func (r *CouponRepository) Create(ctx context.Context, c domain.Coupon) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	const query = `INSERT INTO coupons (` + couponColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	var expiresAt interface{}
	if c.ExpiresAt != nil {
		expiresAt = *c.ExpiresAt
	}
	_, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, query,
		c.ID, c.Code, nullString(c.ClientID), string(c.Type), c.Value, c.MinOrderValue, c.UsageLimit, c.UsageCount,
		c.IsActive, expiresAt, nullString(c.OriginID), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "coupons_trade_origin_uq"):
			return errors.ErrDuplicateCouponGen
		case database.IsUniqueViolation(err, ""):
			return errors.NewConflictError(fmt.Sprintf("Cupom %s já existe.", c.Code))
		}
		r.logger.Error("Falha ao inserir cupom.", err)
		return errors.NewDBError("Falha ao inserir cupom", err)
	}
	return nil
}

func (r *CouponRepository) findOne(ctx context.Context, where string, arg interface{}, notFound string) (domain.Coupon, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	c, err := scanCoupon(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, `SELECT `+couponColumns+` FROM coupons WHERE `+where, arg))
	if err == sql.ErrNoRows {
		return domain.Coupon{}, errors.NewNotFoundError(notFound)
	}
	if err != nil {
		r.logger.Error("Falha ao buscar cupom.", err)
		return domain.Coupon{}, errors.NewDBError("Falha ao buscar cupom", err)
	}
	return c, nil
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return r.findOne(ctx, `code = $1`, code, fmt.Sprintf("Cupom %s não existe.", code))
}

func (r *CouponRepository) FindByID(ctx context.Context, id string) (domain.Coupon, error) {
	return r.findOne(ctx, `id = $1`, id, fmt.Sprintf("Cupom com ID %s não existe.", id))
}

// LockByID lê o cupom com FOR UPDATE, serializando o consumo na aprovação.
func (r *CouponRepository) LockByID(ctx context.Context, id string) (domain.Coupon, error) {
	return r.findOne(ctx, `id = $1 FOR UPDATE`, id, fmt.Sprintf("Cupom com ID %s não existe.", id))
}

func (r *CouponRepository) Update(ctx context.Context, c domain.Coupon) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	result, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, `
        UPDATE coupons SET usage_count = $1, is_active = $2, updated_at = $3 WHERE id = $4`,
		c.UsageCount, c.IsActive, c.UpdatedAt, c.ID)
	if err != nil {
		r.logger.Error("Falha ao atualizar cupom.", err)
		return errors.NewDBError("Falha ao atualizar cupom", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errors.NewNotFoundError(fmt.Sprintf("Cupom com ID %s não existe.", c.ID))
	}
	return nil
}

func (r *CouponRepository) CountUsages(ctx context.Context, couponID, clientID string) (int, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	var n int
	err := database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout,
		`SELECT COUNT(*) FROM coupon_usages WHERE coupon_id = $1 AND client_id = $2`, couponID, clientID).Scan(&n)
	if err != nil {
		return 0, errors.NewDBError("Falha ao contar usos do cupom", err)
	}
	return n, nil
}

func (r *CouponRepository) RecordUsage(ctx context.Context, u domain.CouponUsage) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	_, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, `
        INSERT INTO coupon_usages (id, coupon_id, client_id, purchase_id, used_at) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.CouponID, u.ClientID, u.PurchaseID, u.UsedAt)
	if err != nil {
		if database.IsUniqueViolation(err, "") {
			return errors.NewConflictError("Cupom já consumido nesta compra.")
		}
		r.logger.Error("Falha ao registrar uso do cupom.", err)
		return errors.NewDBError("Falha ao registrar uso do cupom", err)
	}
	return nil
}

// ListByClient lista os cupons gerados para o cliente, mais recentes primeiro.
func (r *CouponRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Coupon, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout,
		`SELECT `+couponColumns+` FROM coupons WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, errors.NewDBError("Falha ao listar cupons", err)
	}
	defer rows.Close()

	coupons := []domain.Coupon{}
	for rows.Next() {
		c, err := scanCoupon(rows)
		if err != nil {
			return nil, errors.NewDBError("Falha ao ler cupom", err)
		}
		coupons = append(coupons, c)
	}
	return coupons, rows.Err()
}
