package memstore

import (
	"context"
	"fmt"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// StockRepository é o livro-razão em memória.
type StockRepository struct {
	s *Store
}

// LockProduct lê o produto. Dentro de WithinTx o mutex do store já serializa o acesso.
func (r *StockRepository) LockProduct(ctx context.Context, productID string) (domain.Product, error) {
	return r.s.Products().FindByID(ctx, productID)
}

func (r *StockRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return r.s.Products().FindByID(ctx, productID)
}

func (r *StockRepository) MovementExists(ctx context.Context, productID, referenceID string, kind domain.MovementKind) (bool, error) {
	found := false
	err := r.s.run(ctx, func(st *state) error {
		for _, m := range st.movements {
			if m.ProductID == productID && m.ReferenceID == referenceID && m.Kind == kind {
				found = true
				return nil
			}
		}
		return nil
	})
	return found, err
}

// ApplyMovement grava o saldo com controle de versão e anexa a movimentação.
func (r *StockRepository) ApplyMovement(ctx context.Context, product domain.Product, movement domain.StockMovement) error {
	return r.s.run(ctx, func(st *state) error {
		current, ok := st.products[product.ID]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Produto com ID %s não existe.", product.ID))
		}
		if current.Version != product.Version {
			return apperror.NewConflictError("O estoque foi modificado por outra operação. Tente novamente.")
		}
		if movement.Kind.ReferenceScoped() {
			for _, m := range st.movements {
				if m.ProductID == movement.ProductID && m.ReferenceID == movement.ReferenceID && m.Kind == movement.Kind {
					return apperror.ErrDuplicateMovement
				}
			}
		}
		if movement.StockAfter < 0 {
			return apperror.NewInsufficientStock(product.ID, movement.Quantity, current.Stock)
		}

		current.Stock = movement.StockAfter
		current.Version++
		current.UpdatedAt = movement.CreatedAt
		if movement.Kind == domain.MovementSaleDebit {
			at := movement.CreatedAt
			current.LastSaleAt = &at
		}
		st.products[product.ID] = current
		st.movements = append(st.movements, movement)
		return nil
	})
}

// ListMovements devolve o histórico em ordem de gravação.
func (r *StockRepository) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	out := []domain.StockMovement{}
	err := r.s.run(ctx, func(st *state) error {
		for _, m := range st.movements {
			if filter.ProductID != "" && m.ProductID != filter.ProductID {
				continue
			}
			if filter.ReferenceID != "" && m.ReferenceID != filter.ReferenceID {
				continue
			}
			if filter.Kind != "" && m.Kind != filter.Kind {
				continue
			}
			out = append(out, m)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}
