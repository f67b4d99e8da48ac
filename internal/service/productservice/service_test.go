package productservice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/service/productservice"
)

// MockProductRepository é uma implementação mock da interface ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) Create(ctx context.Context, product domain.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) FindByID(ctx context.Context, id string) (domain.Product, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockProductRepository) FindAll(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Product), args.Error(1)
}

func (m *MockProductRepository) UpdateDetails(ctx context.Context, product domain.Product) (domain.Product, error) {
	args := m.Called(ctx, product)
	return args.Get(0).(domain.Product), args.Error(1)
}

// MockStockEntry substitui o livro-razão.
type MockStockEntry struct {
	mock.Mock
}

func (m *MockStockEntry) Entry(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovement, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(domain.StockMovement), args.Error(1)
}

type inlineTx struct{}

func (inlineTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newService() (*productservice.Service, *MockProductRepository, *MockStockEntry) {
	repo := new(MockProductRepository)
	ledger := new(MockStockEntry)
	return productservice.NewService(repo, ledger, inlineTx{}, logger.NewNopLogger()), repo, ledger
}

func validInput() domain.ProductInput {
	return domain.ProductInput{
		SKU:          " CAM-001 ",
		Name:         "Camiseta",
		Price:        decimal.RequireFromString("49.90"),
		WeightKg:     decimal.RequireFromString("0.3"),
		InitialStock: 5,
	}
}

func TestCreateProduct_WithInitialStock(t *testing.T) {
	svc, repo, ledger := newService()

	var created domain.Product
	repo.On("Create", mock.Anything, mock.MatchedBy(func(p domain.Product) bool {
		created = p
		return p.SKU == "CAM-001" && p.IsActive && p.Stock == 0
	})).Return(nil)
	ledger.On("Entry", mock.Anything, mock.MatchedBy(func(req domain.StockAdjustmentRequest) bool {
		return req.ProductID == created.ID && req.Quantity == 5 && req.ReferenceID == "initial-"+created.ID
	})).Return(domain.StockMovement{}, nil)
	repo.On("FindByID", mock.Anything, mock.AnythingOfType("string")).
		Return(domain.Product{ID: "p1", SKU: "CAM-001", Stock: 5}, nil)

	product, err := svc.CreateProduct(context.Background(), validInput())

	require.NoError(t, err)
	assert.Equal(t, 5, product.Stock)
	repo.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestCreateProduct_WithoutStockSkipsLedger(t *testing.T) {
	svc, repo, ledger := newService()

	input := validInput()
	input.InitialStock = 0
	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	repo.On("FindByID", mock.Anything, mock.Anything).Return(domain.Product{ID: "p1"}, nil)

	_, err := svc.CreateProduct(context.Background(), input)

	require.NoError(t, err)
	ledger.AssertNotCalled(t, "Entry", mock.Anything, mock.Anything)
}

func TestCreateProduct_ValidationErrors(t *testing.T) {
	cases := map[string]func(in *domain.ProductInput){
		"nome vazio":       func(in *domain.ProductInput) { in.Name = "  " },
		"preço zero":       func(in *domain.ProductInput) { in.Price = decimal.Zero },
		"peso negativo":    func(in *domain.ProductInput) { in.WeightKg = decimal.NewFromInt(-1) },
		"estoque negativo": func(in *domain.ProductInput) { in.InitialStock = -2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			svc, repo, _ := newService()
			input := validInput()
			mutate(&input)

			_, err := svc.CreateProduct(context.Background(), input)

			assert.IsType(t, &apperror.ValidationError{}, err)
			repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateProduct_LedgerFailurePropagates(t *testing.T) {
	svc, repo, ledger := newService()

	repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	ledger.On("Entry", mock.Anything, mock.Anything).Return(domain.StockMovement{}, apperror.ErrDuplicateMovement)

	_, err := svc.CreateProduct(context.Background(), validInput())

	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicateMovement))
	repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestGetProductByID(t *testing.T) {
	t.Run("ID inválido", func(t *testing.T) {
		svc, _, _ := newService()
		_, err := svc.GetProductByID(context.Background(), "nao-e-uuid")
		assert.IsType(t, &apperror.ValidationError{}, err)
	})

	t.Run("não encontrado", func(t *testing.T) {
		svc, repo, _ := newService()
		id := uuid.New().String()
		repo.On("FindByID", mock.Anything, id).Return(domain.Product{}, apperror.NewNotFoundError("sem linha"))

		_, err := svc.GetProductByID(context.Background(), id)

		assert.IsType(t, &apperror.NotFoundError{}, err)
		assert.Contains(t, err.Error(), id)
	})

	t.Run("erro do repositório", func(t *testing.T) {
		svc, repo, _ := newService()
		id := uuid.New().String()
		repo.On("FindByID", mock.Anything, id).Return(domain.Product{}, errors.New("database connection lost"))

		_, err := svc.GetProductByID(context.Background(), id)

		assert.EqualError(t, err, "database connection lost")
	})
}

func TestListProducts_PageAndLimitSafeguards(t *testing.T) {
	cases := []struct {
		name     string
		in       domain.ProductFilter
		expected domain.ProductFilter
	}{
		{"padrões", domain.ProductFilter{}, domain.ProductFilter{Page: 1, Limit: 20}},
		{"limite máximo", domain.ProductFilter{Page: 2, Limit: 150}, domain.ProductFilter{Page: 2, Limit: 100}},
		{"filtros preservados", domain.ProductFilter{Page: 1, Limit: 10, Name: "Cam", ActiveOnly: true},
			domain.ProductFilter{Page: 1, Limit: 10, Name: "Cam", ActiveOnly: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo, _ := newService()
			repo.On("FindAll", mock.Anything, tc.expected).Return([]domain.Product{}, nil)

			products, err := svc.ListProducts(context.Background(), tc.in)

			assert.NoError(t, err)
			assert.NotNil(t, products)
			repo.AssertExpectations(t)
		})
	}
}

func TestUpdateProduct_IgnoresInitialStock(t *testing.T) {
	svc, repo, ledger := newService()
	id := uuid.New().String()

	repo.On("FindByID", mock.Anything, id).Return(domain.Product{ID: id, Name: "Antigo", Stock: 7, IsActive: true}, nil)
	repo.On("UpdateDetails", mock.Anything, mock.MatchedBy(func(p domain.Product) bool {
		return p.Name == "Camiseta" && p.Stock == 7
	})).Return(domain.Product{ID: id, Name: "Camiseta", Stock: 7, IsActive: true}, nil)

	input := validInput()
	input.InitialStock = 99
	updated, err := svc.UpdateProduct(context.Background(), id, input)

	require.NoError(t, err)
	assert.Equal(t, 7, updated.Stock)
	ledger.AssertNotCalled(t, "Entry", mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
}
