package memstore

import (
	"context"
	"fmt"
	"sort"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// CouponRepository guarda cupons e o histórico de uso por cliente.
type CouponRepository struct {
	s *Store
}

func (r *CouponRepository) Create(ctx context.Context, coupon domain.Coupon) error {
	return r.s.run(ctx, func(st *state) error {
		for _, c := range st.coupons {
			if c.Code == coupon.Code {
				return apperror.NewConflictError(fmt.Sprintf("Cupom %s já existe.", coupon.Code))
			}
			if coupon.Type == domain.CouponTrade && coupon.OriginID != "" && c.Type == domain.CouponTrade && c.OriginID == coupon.OriginID {
				return apperror.ErrDuplicateCouponGen
			}
		}
		st.coupons[coupon.ID] = coupon
		return nil
	})
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	var out domain.Coupon
	err := r.s.run(ctx, func(st *state) error {
		for _, c := range st.coupons {
			if c.Code == code {
				out = c
				return nil
			}
		}
		return apperror.NewNotFoundError(fmt.Sprintf("Cupom %s não existe.", code))
	})
	return out, err
}

func (r *CouponRepository) FindByID(ctx context.Context, id string) (domain.Coupon, error) {
	var out domain.Coupon
	err := r.s.run(ctx, func(st *state) error {
		c, ok := st.coupons[id]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Cupom com ID %s não existe.", id))
		}
		out = c
		return nil
	})
	return out, err
}

// LockByID equivale a FindByID: dentro de WithinTx o store inteiro já está bloqueado.
func (r *CouponRepository) LockByID(ctx context.Context, id string) (domain.Coupon, error) {
	return r.FindByID(ctx, id)
}

func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	return r.s.run(ctx, func(st *state) error {
		if _, ok := st.coupons[coupon.ID]; !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Cupom com ID %s não existe.", coupon.ID))
		}
		st.coupons[coupon.ID] = coupon
		return nil
	})
}

func (r *CouponRepository) CountUsages(ctx context.Context, couponID, clientID string) (int, error) {
	n := 0
	err := r.s.run(ctx, func(st *state) error {
		for _, u := range st.couponUsages {
			if u.CouponID == couponID && u.ClientID == clientID {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *CouponRepository) RecordUsage(ctx context.Context, usage domain.CouponUsage) error {
	return r.s.run(ctx, func(st *state) error {
		st.couponUsages = append(st.couponUsages, usage)
		return nil
	})
}

// ListByClient devolve os cupons gerados para o cliente, mais recentes primeiro.
func (r *CouponRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Coupon, error) {
	out := []domain.Coupon{}
	err := r.s.run(ctx, func(st *state) error {
		for _, c := range st.coupons {
			if c.ClientID == clientID {
				out = append(out, c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}
