package stockservice_test

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/repository/memstore"
	"goloja/internal/service/stockservice"
)

// MockLedgerRepository é uma implementação mock da interface LedgerRepository
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) LockProduct(ctx context.Context, productID string) (domain.Product, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockLedgerRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(domain.Product), args.Error(1)
}

func (m *MockLedgerRepository) MovementExists(ctx context.Context, productID, referenceID string, kind domain.MovementKind) (bool, error) {
	args := m.Called(ctx, productID, referenceID, kind)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerRepository) ApplyMovement(ctx context.Context, product domain.Product, movement domain.StockMovement) error {
	args := m.Called(ctx, product, movement)
	return args.Error(0)
}

func (m *MockLedgerRepository) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.StockMovement), args.Error(1)
}

// passthroughTx executa fn sem transação real (o mock não precisa dela).
type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newLedger(t *testing.T, stock int) (*stockservice.Service, *memstore.Store, string) {
	t.Helper()
	store := memstore.New()
	svc := stockservice.NewService(store.Stock(), store, logger.NewNopLogger())

	productID := uuid.NewString()
	require.NoError(t, store.Products().Create(context.Background(), domain.Product{
		ID: productID, SKU: "SKU-" + productID[:8], Name: "Camiseta", Price: decimal.NewFromInt(50), IsActive: true,
	}))
	if stock > 0 {
		_, err := svc.Entry(context.Background(), domain.StockAdjustmentRequest{ProductID: productID, Quantity: stock, ReferenceID: "nf-inicial"})
		require.NoError(t, err)
	}
	return svc, store, productID
}

func currentStock(t *testing.T, store *memstore.Store, productID string) int {
	t.Helper()
	p, err := store.Products().FindByID(context.Background(), productID)
	require.NoError(t, err)
	return p.Stock
}

// --- Testes com mock do repositório ---

func TestDebit_Success(t *testing.T) {
	mockRepo := new(MockLedgerRepository)
	svc := stockservice.NewService(mockRepo, passthroughTx{}, logger.NewLogger("debug"))

	product := domain.Product{ID: "p1", Stock: 10, Version: 3}
	mockRepo.On("LockProduct", mock.Anything, "p1").Return(product, nil)
	mockRepo.On("MovementExists", mock.Anything, "p1", "compra-1", domain.MovementSaleDebit).Return(false, nil)
	mockRepo.On("ApplyMovement", mock.Anything, product, mock.MatchedBy(func(m domain.StockMovement) bool {
		return m.Kind == domain.MovementSaleDebit && m.QuantityDelta == -4 && m.StockBefore == 10 && m.StockAfter == 6
	})).Return(nil)

	mv, err := svc.Debit(context.Background(), "p1", 4, "compra-1")

	assert.NoError(t, err)
	assert.Equal(t, 6, mv.StockAfter)
	mockRepo.AssertExpectations(t)
}

func TestDebit_UnknownProduct(t *testing.T) {
	mockRepo := new(MockLedgerRepository)
	svc := stockservice.NewService(mockRepo, passthroughTx{}, logger.NewLogger("debug"))

	mockRepo.On("LockProduct", mock.Anything, "nao-existe").Return(domain.Product{}, apperror.NewNotFoundError("produto"))

	_, err := svc.Debit(context.Background(), "nao-existe", 1, "compra-1")

	assert.ErrorIs(t, err, apperror.ErrUnknownProduct)
	mockRepo.AssertNotCalled(t, "ApplyMovement", mock.Anything, mock.Anything, mock.Anything)
}

func TestDebit_RepositoryConflictIsPropagated(t *testing.T) {
	mockRepo := new(MockLedgerRepository)
	svc := stockservice.NewService(mockRepo, passthroughTx{}, logger.NewLogger("debug"))

	product := domain.Product{ID: "p1", Stock: 10, Version: 1}
	mockRepo.On("LockProduct", mock.Anything, "p1").Return(product, nil)
	mockRepo.On("MovementExists", mock.Anything, "p1", "compra-1", domain.MovementSaleDebit).Return(false, nil)
	mockRepo.On("ApplyMovement", mock.Anything, product, mock.Anything).Return(apperror.NewConflictError("versão"))

	_, err := svc.Debit(context.Background(), "p1", 1, "compra-1")

	assert.IsType(t, &apperror.ConflictError{}, err)
}

func TestRecord_Validation(t *testing.T) {
	mockRepo := new(MockLedgerRepository)
	svc := stockservice.NewService(mockRepo, passthroughTx{}, logger.NewLogger("debug"))

	_, err := svc.Debit(context.Background(), "p1", 0, "compra-1")
	assert.IsType(t, &apperror.ValidationError{}, err)

	_, err = svc.Debit(context.Background(), "p1", 1, "")
	assert.IsType(t, &apperror.ValidationError{}, err)

	_, err = svc.Credit(context.Background(), "p1", 1, "compra-1", domain.MovementSaleDebit)
	assert.IsType(t, &apperror.ValidationError{}, err)

	mockRepo.AssertNotCalled(t, "LockProduct", mock.Anything, mock.Anything)
}

// --- Propriedades do livro-razão sobre o store em memória ---

func TestDebit_InsufficientStock(t *testing.T) {
	svc, store, productID := newLedger(t, 2)

	_, err := svc.Debit(context.Background(), productID, 3, "compra-1")

	assert.ErrorIs(t, err, apperror.ErrInsufficientStock)
	details := apperror.DetailsOf(err)
	assert.Equal(t, 2, details["available"])
	assert.Equal(t, 2, currentStock(t, store, productID))
}

func TestDebit_DuplicateReference(t *testing.T) {
	svc, store, productID := newLedger(t, 5)
	ctx := context.Background()

	_, err := svc.Debit(ctx, productID, 2, "compra-1")
	require.NoError(t, err)

	_, err = svc.Debit(ctx, productID, 2, "compra-1")
	assert.ErrorIs(t, err, apperror.ErrDuplicateMovement)
	assert.Equal(t, 3, currentStock(t, store, productID))
}

func TestDebit_SetsLastSaleAt(t *testing.T) {
	svc, store, productID := newLedger(t, 5)

	_, err := svc.Debit(context.Background(), productID, 1, "compra-1")
	require.NoError(t, err)

	p, err := store.Products().FindByID(context.Background(), productID)
	require.NoError(t, err)
	assert.NotNil(t, p.LastSaleAt)
}

func TestDebitThenCredit_RestoresStock(t *testing.T) {
	svc, store, productID := newLedger(t, 7)
	ctx := context.Background()

	_, err := svc.Debit(ctx, productID, 4, "compra-1")
	require.NoError(t, err)
	_, err = svc.Credit(ctx, productID, 4, "compra-1", domain.MovementSaleCredit)
	require.NoError(t, err)

	assert.Equal(t, 7, currentStock(t, store, productID))

	// Estorno repetido para a mesma compra é recusado.
	_, err = svc.Credit(ctx, productID, 4, "compra-1", domain.MovementSaleCredit)
	assert.ErrorIs(t, err, apperror.ErrDuplicateMovement)
}

func TestCredit_UnknownProduct(t *testing.T) {
	svc, _, _ := newLedger(t, 0)

	_, err := svc.Credit(context.Background(), uuid.NewString(), 1, "troca-1", domain.MovementTradeReentry)

	assert.ErrorIs(t, err, apperror.ErrUnknownProduct)
}

func TestDiscard_RecordsWithoutChangingStock(t *testing.T) {
	svc, store, productID := newLedger(t, 3)
	ctx := context.Background()

	mv, err := svc.Discard(ctx, productID, 2, "troca-1")
	require.NoError(t, err)
	assert.Equal(t, 0, mv.QuantityDelta)
	assert.Equal(t, 3, currentStock(t, store, productID))

	movements, err := svc.Movements(ctx, domain.MovementFilter{ReferenceID: "troca-1"})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, domain.MovementDiscard, movements[0].Kind)
	assert.Equal(t, 2, movements[0].Quantity)
}

func TestConcurrentDebits_LastUnit(t *testing.T) {
	svc, store, productID := newLedger(t, 1)

	const n = 20
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		successes    int
		insufficient int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Debit(context.Background(), productID, 1, uuid.NewString())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperror.ErrInsufficientStock):
				insufficient++
			default:
				t.Errorf("erro inesperado: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, insufficient)
	assert.Equal(t, 0, currentStock(t, store, productID))
}

func TestRandomSequences_StockNeverNegativeAndReplayMatches(t *testing.T) {
	svc, store, productID := newLedger(t, 3)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	var debited []string
	for i := 0; i < 300; i++ {
		qty := rng.Intn(4) + 1
		switch rng.Intn(5) {
		case 0, 1:
			ref := uuid.NewString()
			if _, err := svc.Debit(ctx, productID, qty, ref); err == nil {
				debited = append(debited, ref)
			} else {
				require.ErrorIs(t, err, apperror.ErrInsufficientStock)
			}
		case 2:
			if len(debited) > 0 {
				ref := debited[0]
				debited = debited[1:]
				movements, err := svc.Movements(ctx, domain.MovementFilter{ReferenceID: ref, Kind: domain.MovementSaleDebit})
				require.NoError(t, err)
				_, err = svc.Credit(ctx, productID, movements[0].Quantity, ref, domain.MovementSaleCredit)
				require.NoError(t, err)
			}
		case 3:
			_, err := svc.Entry(ctx, domain.StockAdjustmentRequest{ProductID: productID, Quantity: qty})
			require.NoError(t, err)
		case 4:
			_, err := svc.Discard(ctx, productID, qty, uuid.NewString())
			require.NoError(t, err)
		}
		require.GreaterOrEqual(t, currentStock(t, store, productID), 0)
	}

	audit, err := svc.Audit(ctx, productID)
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Equal(t, audit.Stock, audit.LedgerStock)
}

func TestMovements_RequiresFilter(t *testing.T) {
	svc, _, _ := newLedger(t, 0)

	_, err := svc.Movements(context.Background(), domain.MovementFilter{})

	assert.IsType(t, &apperror.ValidationError{}, err)
}

func TestReplay(t *testing.T) {
	product := domain.Product{ID: "p1", Stock: 6}
	movements := []domain.StockMovement{
		{Kind: domain.MovementEntry, Quantity: 10},
		{Kind: domain.MovementSaleDebit, Quantity: 5},
		{Kind: domain.MovementSaleCredit, Quantity: 1},
		{Kind: domain.MovementDiscard, Quantity: 3},
	}

	audit := stockservice.Replay(product, movements)

	assert.Equal(t, 6, audit.LedgerStock)
	assert.True(t, audit.Consistent)
	assert.Equal(t, 3, audit.Totals[domain.MovementDiscard])
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, productID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, productID)
}

func (r *recordingInvalidator) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// TestCacheInvalidation_AfterOuterCommit testa que, dentro de uma transação maior
// (aprovação, troca), o cache só é invalidado depois do COMMIT externo.
func TestCacheInvalidation_AfterOuterCommit(t *testing.T) {
	svc, store, productID := newLedger(t, 5)
	inv := &recordingInvalidator{}
	svc.WithCacheInvalidator(inv)
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context) error {
		_, err := svc.Debit(ctx, productID, 2, "pedido-1")
		require.NoError(t, err)
		assert.Empty(t, inv.Calls(), "invalidação antes do COMMIT permitiria recachear o saldo antigo")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{productID}, inv.Calls())

	// fora de transação, a própria movimentação é a transação externa
	_, err = svc.Debit(ctx, productID, 1, "pedido-2")
	require.NoError(t, err)
	assert.Len(t, inv.Calls(), 2)
}

func TestCacheInvalidation_SkippedOnRollback(t *testing.T) {
	svc, store, productID := newLedger(t, 5)
	inv := &recordingInvalidator{}
	svc.WithCacheInvalidator(inv)

	err := store.WithinTx(context.Background(), func(ctx context.Context) error {
		if _, err := svc.Debit(ctx, productID, 2, "pedido-1"); err != nil {
			return err
		}
		return errors.New("falha depois do débito")
	})
	require.Error(t, err)
	assert.Empty(t, inv.Calls())
	assert.Equal(t, 5, currentStock(t, store, productID))
}

func TestCacheInvalidation_NotForDiscard(t *testing.T) {
	svc, _, productID := newLedger(t, 5)
	inv := &recordingInvalidator{}
	svc.WithCacheInvalidator(inv)

	_, err := svc.Discard(context.Background(), productID, 1, "troca-1")
	require.NoError(t, err)
	assert.Empty(t, inv.Calls())
}
