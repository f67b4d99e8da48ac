package memstore

import (
	"context"
	"fmt"
	"sort"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// TradeRepository guarda as solicitações de troca.
type TradeRepository struct {
	s *Store
}

func (r *TradeRepository) Create(ctx context.Context, trade domain.Trade) error {
	return r.s.run(ctx, func(st *state) error {
		if _, ok := st.trades[trade.ID]; ok {
			return apperror.NewConflictError(fmt.Sprintf("Troca %s já existe.", trade.ID))
		}
		st.trades[trade.ID] = trade
		return nil
	})
}

func (r *TradeRepository) FindByID(ctx context.Context, id string) (domain.Trade, error) {
	var out domain.Trade
	err := r.s.run(ctx, func(st *state) error {
		t, ok := st.trades[id]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Troca com ID %s não existe.", id))
		}
		out = t
		return nil
	})
	return out, err
}

// LockByID equivale a FindByID: dentro de WithinTx o store inteiro já está bloqueado.
func (r *TradeRepository) LockByID(ctx context.Context, id string) (domain.Trade, error) {
	return r.FindByID(ctx, id)
}

func (r *TradeRepository) Update(ctx context.Context, trade domain.Trade) error {
	return r.s.run(ctx, func(st *state) error {
		current, ok := st.trades[trade.ID]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Troca com ID %s não existe.", trade.ID))
		}
		if current.CouponID != "" && current.CouponID != trade.CouponID {
			return apperror.ErrDuplicateCouponGen
		}
		st.trades[trade.ID] = trade
		return nil
	})
}

func (r *TradeRepository) ListByPurchase(ctx context.Context, purchaseID string) ([]domain.Trade, error) {
	out := []domain.Trade{}
	err := r.s.run(ctx, func(st *state) error {
		for _, t := range st.trades {
			if t.PurchaseID == purchaseID {
				out = append(out, t)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

// SumOpenQuantity soma a quantidade reservada por trocas ainda abertas sobre o item.
func (r *TradeRepository) SumOpenQuantity(ctx context.Context, cartOrderID string) (int, error) {
	total := 0
	err := r.s.run(ctx, func(st *state) error {
		for _, t := range st.trades {
			if t.CartOrderID == cartOrderID && t.Status.IsOpen() {
				total += t.Quantity
			}
		}
		return nil
	})
	return total, err
}
