package cartservice

import (
	"context"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// ProductReader é a leitura em lote do catálogo, direto no banco (saldo corrente).
type ProductReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// Service confere linhas de carrinho contra o estoque atual. Não escreve nada.
type Service struct {
	products ProductReader
	logger   logger.Logger
}

// NewService cria e retorna uma nova instância do validador de carrinho.
func NewService(products ProductReader, logger logger.Logger) *Service {
	return &Service{products: products, logger: logger}
}

// Validate busca os produtos das linhas e aplica Reconcile.
func (s *Service) Validate(ctx context.Context, lines []domain.CartLine) (domain.CartValidation, error) {
	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if l.ProductID == "" {
			return domain.CartValidation{}, apperror.NewValidationError("Toda linha do carrinho precisa de product_id.")
		}
		if l.Quantity <= 0 {
			return domain.CartValidation{}, apperror.NewValidationError("A quantidade de cada linha deve ser positiva.")
		}
		if !seen[l.ProductID] {
			seen[l.ProductID] = true
			ids = append(ids, l.ProductID)
		}
	}

	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return domain.CartValidation{}, err
	}

	result := Reconcile(lines, products)
	if !result.Clean() {
		s.logger.Info("Carrinho ajustado ao estoque disponível.", map[string]interface{}{
			"adjusted": len(result.Adjusted),
			"removed":  len(result.Removed),
		})
	}
	return result, nil
}

// Reconcile classifica cada linha: sem estoque (ou produto desconhecido/inativo) vai para
// Removed; estoque menor que o pedido é limitado e vai para Adjusted; o resto fica em Unchanged.
func Reconcile(lines []domain.CartLine, products map[string]domain.Product) domain.CartValidation {
	out := domain.CartValidation{
		Adjusted:  []domain.CartLineResult{},
		Removed:   []domain.CartLineResult{},
		Unchanged: []domain.CartLineResult{},
	}

	for _, l := range lines {
		res := domain.CartLineResult{
			OrderID:           l.OrderID,
			ProductID:         l.ProductID,
			RequestedQuantity: l.Quantity,
		}

		p, ok := products[l.ProductID]
		switch {
		case !ok:
			res.Reason = domain.CartReasonUnknownProduct
			out.Removed = append(out.Removed, res)
		case !p.IsActive:
			res.AvailableStock = p.Stock
			res.Reason = domain.CartReasonInactive
			out.Removed = append(out.Removed, res)
		case p.Stock <= 0:
			res.Reason = domain.CartReasonOutOfStock
			out.Removed = append(out.Removed, res)
		case p.Stock < l.Quantity:
			res.AvailableStock = p.Stock
			res.Quantity = p.Stock
			res.Reason = domain.CartReasonClamped
			out.Adjusted = append(out.Adjusted, res)
		default:
			res.AvailableStock = p.Stock
			res.Quantity = l.Quantity
			out.Unchanged = append(out.Unchanged, res)
		}
	}
	return out
}
