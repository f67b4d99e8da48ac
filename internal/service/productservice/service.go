package productservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// ProductRepository define o contrato que este Serviço espera da camada de Persistência.
// Nenhum método escreve stock.
type ProductRepository interface {
	Create(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, id string) (domain.Product, error)
	FindAll(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateDetails(ctx context.Context, product domain.Product) (domain.Product, error)
}

// StockEntry é a parte do livro-razão usada para o estoque inicial.
type StockEntry interface {
	Entry(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovement, error)
}

// TxRunner executa fn em uma transação.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Service é o catálogo de produtos.
type Service struct {
	repo   ProductRepository
	ledger StockEntry
	tx     TxRunner
	logger logger.Logger
}

// NewService cria e retorna uma nova instância do Serviço de Produto.
func NewService(repo ProductRepository, ledger StockEntry, tx TxRunner, logger logger.Logger) *Service {
	return &Service{repo: repo, ledger: ledger, tx: tx, logger: logger}
}

func validateInput(input domain.ProductInput) error {
	if strings.TrimSpace(input.Name) == "" || strings.TrimSpace(input.SKU) == "" {
		return apperror.NewValidationError("Nome e SKU são obrigatórios para o produto.")
	}
	if !input.Price.IsPositive() {
		return apperror.NewValidationError("O preço do produto deve ser positivo.")
	}
	if input.WeightKg.IsNegative() {
		return apperror.NewValidationError("O peso do produto não pode ser negativo.")
	}
	if input.InitialStock < 0 {
		return apperror.NewValidationError("O estoque inicial não pode ser negativo.")
	}
	return nil
}

// CreateProduct cadastra o produto e, se houver estoque inicial, lança uma ENTRY no livro-razão
// na mesma transação.
func (s *Service) CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error) {
	if err := validateInput(input); err != nil {
		return domain.Product{}, err
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          uuid.New().String(),
		SKU:         strings.TrimSpace(input.SKU),
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Price:       input.Price,
		WeightKg:    input.WeightKg,
		IsActive:    input.IsActive == nil || *input.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, product); err != nil {
			return err
		}
		if input.InitialStock > 0 {
			_, err := s.ledger.Entry(ctx, domain.StockAdjustmentRequest{
				ProductID:   product.ID,
				Quantity:    input.InitialStock,
				ReferenceID: "initial-" + product.ID,
			})
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("falha ao salvar produto no repositório: %w", err)
	}

	s.logger.Info("Produto cadastrado.", map[string]interface{}{"product_id": product.ID, "sku": product.SKU, "initial_stock": input.InitialStock})
	return s.repo.FindByID(ctx, product.ID)
}

// GetProductByID busca um produto pelo ID.
func (s *Service) GetProductByID(ctx context.Context, id string) (domain.Product, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Product{}, apperror.NewValidationError("O ID do produto deve ser um UUID válido.")
	}

	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		var notFound *apperror.NotFoundError
		if errors.As(err, &notFound) {
			return domain.Product{}, apperror.NewNotFoundError(fmt.Sprintf("Produto com ID %s não foi encontrado.", id))
		}
		return domain.Product{}, err
	}
	return product, nil
}

// ListProducts lista o catálogo.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	switch {
	case filter.Limit <= 0:
		filter.Limit = 20
	case filter.Limit > 100:
		filter.Limit = 100
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return s.repo.FindAll(ctx, filter)
}

// UpdateProduct altera os dados cadastrais. Estoque só muda pelo livro-razão;
// InitialStock é ignorado aqui.
func (s *Service) UpdateProduct(ctx context.Context, id string, input domain.ProductInput) (domain.Product, error) {
	if err := validateInput(input); err != nil {
		return domain.Product{}, err
	}

	current, err := s.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	current.SKU = strings.TrimSpace(input.SKU)
	current.Name = strings.TrimSpace(input.Name)
	current.Description = input.Description
	current.Price = input.Price
	current.WeightKg = input.WeightKg
	if input.IsActive != nil {
		current.IsActive = *input.IsActive
	}
	current.UpdatedAt = time.Now().UTC()

	updated, err := s.repo.UpdateDetails(ctx, current)
	if err != nil {
		return domain.Product{}, err
	}
	s.logger.Info("Produto atualizado.", map[string]interface{}{"product_id": id, "is_active": updated.IsActive})
	return updated, nil
}
