package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
)

// ProductRepository é o catálogo em memória. Nunca altera Stock fora do livro-razão.
type ProductRepository struct {
	s *Store
}

func (r *ProductRepository) Create(ctx context.Context, product domain.Product) error {
	return r.s.run(ctx, func(st *state) error {
		if _, ok := st.products[product.ID]; ok {
			return apperror.NewConflictError(fmt.Sprintf("Produto %s já existe.", product.ID))
		}
		for _, p := range st.products {
			if p.SKU == product.SKU {
				return apperror.NewConflictError(fmt.Sprintf("SKU %s já cadastrado.", product.SKU))
			}
		}
		product.Stock = 0
		product.Version = 1
		st.products[product.ID] = product
		return nil
	})
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	var out domain.Product
	err := r.s.run(ctx, func(st *state) error {
		p, ok := st.products[id]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Produto com ID %s não existe.", id))
		}
		out = p
		return nil
	})
	return out, err
}

// FindByIDs devolve os produtos encontrados; IDs ausentes ficam fora do mapa.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	err := r.s.run(ctx, func(st *state) error {
		for _, id := range ids {
			if p, ok := st.products[id]; ok {
				out[id] = p
			}
		}
		return nil
	})
	return out, err
}

func (r *ProductRepository) FindAll(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	out := []domain.Product{}
	err := r.s.run(ctx, func(st *state) error {
		for _, p := range st.products {
			if filter.ActiveOnly && !p.IsActive {
				continue
			}
			if filter.SKU != "" && p.SKU != filter.SKU {
				continue
			}
			if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
				continue
			}
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return paginate(out, filter.Page, filter.Limit), nil
}

// UpdateDetails altera apenas os dados cadastrais; stock, version e last_sale_at são preservados.
func (r *ProductRepository) UpdateDetails(ctx context.Context, product domain.Product) (domain.Product, error) {
	var out domain.Product
	err := r.s.run(ctx, func(st *state) error {
		current, ok := st.products[product.ID]
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Produto com ID %s não existe.", product.ID))
		}
		for _, p := range st.products {
			if p.ID != product.ID && p.SKU == product.SKU {
				return apperror.NewConflictError(fmt.Sprintf("SKU %s já cadastrado.", product.SKU))
			}
		}
		current.SKU = product.SKU
		current.Name = product.Name
		current.Description = product.Description
		current.Price = product.Price
		current.WeightKg = product.WeightKg
		current.IsActive = product.IsActive
		current.UpdatedAt = product.UpdatedAt
		st.products[product.ID] = current
		out = current
		return nil
	})
	return out, err
}

func paginate(items []domain.Product, page, limit int) []domain.Product {
	if limit <= 0 {
		return items
	}
	if page <= 0 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []domain.Product{}
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
