package memstore

import (
	"context"
	"fmt"
	"sort"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// PurchaseRepository guarda compras com seus itens e cupons aplicados.
type PurchaseRepository struct {
	s *Store
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase *domain.Purchase) error {
	return r.s.run(ctx, func(st *state) error {
		if _, ok := st.purchases[purchase.ID]; ok {
			return apperror.NewConflictError(fmt.Sprintf("Compra %s já existe.", purchase.ID))
		}
		purchase.Version = 1
		st.purchases[purchase.ID] = copyPurchase(*purchase)
		return nil
	})
}

func (r *PurchaseRepository) FindByID(ctx context.Context, id string) (domain.Purchase, error) {
	var out domain.Purchase
	err := r.s.run(ctx, func(st *state) error {
		p, ok := st.purchases[id]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Compra com ID %s não existe.", id))
		}
		out = copyPurchase(p)
		return nil
	})
	return out, err
}

// LockByID equivale a FindByID: dentro de WithinTx o store inteiro já está bloqueado.
func (r *PurchaseRepository) LockByID(ctx context.Context, id string) (domain.Purchase, error) {
	return r.FindByID(ctx, id)
}

// Update regrava a compra inteira com controle de versão.
func (r *PurchaseRepository) Update(ctx context.Context, purchase *domain.Purchase) error {
	return r.s.run(ctx, func(st *state) error {
		current, ok := st.purchases[purchase.ID]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Compra com ID %s não existe.", purchase.ID))
		}
		if current.Version != purchase.Version {
			return apperror.NewConflictError("A compra foi modificada por outra operação. Tente novamente.")
		}
		purchase.Version++
		st.purchases[purchase.ID] = copyPurchase(*purchase)
		return nil
	})
}

func (r *PurchaseRepository) ListByClient(ctx context.Context, clientID string) ([]domain.Purchase, error) {
	out := []domain.Purchase{}
	err := r.s.run(ctx, func(st *state) error {
		for _, p := range st.purchases {
			if p.ClientID == clientID {
				out = append(out, copyPurchase(p))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

// IncrementRefund soma quantity ao quantity_refund do item, sem ultrapassar quantity.
func (r *PurchaseRepository) IncrementRefund(ctx context.Context, orderID string, quantity int) error {
	return r.s.run(ctx, func(st *state) error {
		for id, p := range st.purchases {
			for i := range p.Orders {
				if p.Orders[i].ID != orderID {
					continue
				}
				if p.Orders[i].QuantityRefund+quantity > p.Orders[i].Quantity {
					return apperror.ErrRefundQuantityExceeded.With(
						fmt.Sprintf("item %s: disponível %d, solicitado %d", orderID, p.Orders[i].AvailableRefundQuantity(), quantity),
						map[string]interface{}{"order_id": orderID, "available": p.Orders[i].AvailableRefundQuantity(), "requested": quantity},
					)
				}
				p = copyPurchase(p)
				p.Orders[i].QuantityRefund += quantity
				st.purchases[id] = p
				return nil
			}
		}
		return apperror.NewNotFoundError(fmt.Sprintf("Item %s não existe.", orderID))
	})
}
