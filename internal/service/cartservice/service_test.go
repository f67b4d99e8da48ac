package cartservice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/service/cartservice"
)

// MockProductReader é uma implementação mock da interface ProductReader
type MockProductReader struct {
	mock.Mock
}

func (m *MockProductReader) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Product), args.Error(1)
}

func TestValidate_ClampsToAvailableStock(t *testing.T) {
	mockRepo := new(MockProductReader)
	svc := cartservice.NewService(mockRepo, logger.NewNopLogger())

	products := map[string]domain.Product{
		"p1": {ID: "p1", Stock: 5, IsActive: true},
	}
	mockRepo.On("FindByIDs", mock.Anything, []string{"p1"}).Return(products, nil)

	result, err := svc.Validate(context.Background(), []domain.CartLine{{ProductID: "p1", Quantity: 10}})

	require.NoError(t, err)
	require.Len(t, result.Adjusted, 1)
	assert.Equal(t, 5, result.Adjusted[0].Quantity)
	assert.Equal(t, 10, result.Adjusted[0].RequestedQuantity)
	assert.Equal(t, 5, result.Adjusted[0].AvailableStock)
	assert.Equal(t, domain.CartReasonClamped, result.Adjusted[0].Reason)
	assert.False(t, result.Clean())
	mockRepo.AssertExpectations(t)
}

func TestValidate_Idempotent(t *testing.T) {
	mockRepo := new(MockProductReader)
	svc := cartservice.NewService(mockRepo, logger.NewNopLogger())

	products := map[string]domain.Product{
		"p1": {ID: "p1", Stock: 5, IsActive: true},
		"p2": {ID: "p2", Stock: 0, IsActive: true},
	}
	mockRepo.On("FindByIDs", mock.Anything, mock.Anything).Return(products, nil)

	lines := []domain.CartLine{{ProductID: "p1", Quantity: 2}, {ProductID: "p2", Quantity: 1}}
	first, err := svc.Validate(context.Background(), lines)
	require.NoError(t, err)
	second, err := svc.Validate(context.Background(), lines)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.Unchanged, 1)
	assert.Len(t, first.Removed, 1)
}

func TestValidate_InvalidLines(t *testing.T) {
	svc := cartservice.NewService(new(MockProductReader), logger.NewNopLogger())
	var validation *apperror.ValidationError

	_, err := svc.Validate(context.Background(), []domain.CartLine{{ProductID: "", Quantity: 1}})
	assert.ErrorAs(t, err, &validation)

	_, err = svc.Validate(context.Background(), []domain.CartLine{{ProductID: "p1", Quantity: 0}})
	assert.ErrorAs(t, err, &validation)
}

func TestValidate_RepositoryError(t *testing.T) {
	mockRepo := new(MockProductReader)
	svc := cartservice.NewService(mockRepo, logger.NewNopLogger())
	mockRepo.On("FindByIDs", mock.Anything, mock.Anything).Return(nil, errors.New("db offline"))

	_, err := svc.Validate(context.Background(), []domain.CartLine{{ProductID: "p1", Quantity: 1}})
	assert.EqualError(t, err, "db offline")
}

func TestReconcile_Classification(t *testing.T) {
	products := map[string]domain.Product{
		"ok":       {ID: "ok", Stock: 10, IsActive: true},
		"exact":    {ID: "exact", Stock: 3, IsActive: true},
		"empty":    {ID: "empty", Stock: 0, IsActive: true},
		"inactive": {ID: "inactive", Stock: 50, IsActive: false},
	}
	lines := []domain.CartLine{
		{OrderID: "o1", ProductID: "ok", Quantity: 4},
		{OrderID: "o2", ProductID: "exact", Quantity: 3},
		{OrderID: "o3", ProductID: "empty", Quantity: 1},
		{OrderID: "o4", ProductID: "inactive", Quantity: 1},
		{OrderID: "o5", ProductID: "ghost", Quantity: 1},
	}

	res := cartservice.Reconcile(lines, products)

	assert.Len(t, res.Unchanged, 2)
	assert.Empty(t, res.Adjusted)
	require.Len(t, res.Removed, 3)

	reasons := map[string]string{}
	for _, r := range res.Removed {
		reasons[r.OrderID] = r.Reason
		assert.Zero(t, r.Quantity)
	}
	assert.Equal(t, domain.CartReasonOutOfStock, reasons["o3"])
	assert.Equal(t, domain.CartReasonInactive, reasons["o4"])
	assert.Equal(t, domain.CartReasonUnknownProduct, reasons["o5"])
}
