package purchase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/middleware"
)

// MockPurchaseService é um mock da interface PurchaseService.
type MockPurchaseService struct {
	mock.Mock
}

func (m *MockPurchaseService) Checkout(ctx context.Context, clientID string, req domain.CheckoutRequest) (domain.Purchase, error) {
	args := m.Called(ctx, clientID, req)
	return args.Get(0).(domain.Purchase), args.Error(1)
}

func (m *MockPurchaseService) Transition(ctx context.Context, actor domain.Actor, purchaseID string, target domain.PurchaseStatus) (domain.Purchase, error) {
	args := m.Called(ctx, actor, purchaseID, target)
	return args.Get(0).(domain.Purchase), args.Error(1)
}

func (m *MockPurchaseService) ApplyCoupon(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error) {
	args := m.Called(ctx, clientID, purchaseID, code)
	return args.Get(0).(domain.Purchase), args.Error(1)
}

func (m *MockPurchaseService) ApplyGeneratedCoupon(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error) {
	args := m.Called(ctx, clientID, purchaseID, code)
	return args.Get(0).(domain.Purchase), args.Error(1)
}

func (m *MockPurchaseService) OptimizeCoupons(ctx context.Context, clientID, purchaseID string, req domain.OptimizeCouponsRequest) (domain.Purchase, domain.CouponSelection, error) {
	args := m.Called(ctx, clientID, purchaseID, req)
	return args.Get(0).(domain.Purchase), args.Get(1).(domain.CouponSelection), args.Error(2)
}

func (m *MockPurchaseService) RemoveCoupon(ctx context.Context, clientID, purchaseID, couponID string) (domain.Purchase, error) {
	args := m.Called(ctx, clientID, purchaseID, couponID)
	return args.Get(0).(domain.Purchase), args.Error(1)
}

func (m *MockPurchaseService) Reconcile(ctx context.Context, clientID, purchaseID string) (domain.Purchase, domain.CartValidation, error) {
	args := m.Called(ctx, clientID, purchaseID)
	return args.Get(0).(domain.Purchase), args.Get(1).(domain.CartValidation), args.Error(2)
}

func (m *MockPurchaseService) Get(ctx context.Context, actor domain.Actor, purchaseID string) (domain.Purchase, error) {
	args := m.Called(ctx, actor, purchaseID)
	return args.Get(0).(domain.Purchase), args.Error(1)
}

func (m *MockPurchaseService) ListForClient(ctx context.Context, clientID string) ([]domain.Purchase, error) {
	args := m.Called(ctx, clientID)
	return args.Get(0).([]domain.Purchase), args.Error(1)
}

var customer = domain.Actor{UserID: "c1", Role: domain.RoleCustomer}

// serve monta um roteador chi mínimo e injeta o ator como o middleware de autenticação faria.
func serve(h *Handler, actor *domain.Actor, method, path, body string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Post("/purchases", h.CheckoutHandler)
	r.Patch("/purchases/{id}/status", h.TransitionHandler)
	r.Post("/purchases/{id}/coupons/optimize", h.OptimizeCouponsHandler)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != nil {
		req = req.WithContext(middleware.WithActor(req.Context(), *actor))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutHandler(t *testing.T) {
	t.Run("Sucesso usa o cliente do token", func(t *testing.T) {
		svc := new(MockPurchaseService)
		h := NewHandler(svc, logger.NewNopLogger())
		req := domain.CheckoutRequest{
			Items:       []domain.CheckoutItem{{ProductID: "p1", Quantity: 2}},
			DeliveryCEP: "01001-000",
		}
		svc.On("Checkout", mock.Anything, "c1", req).
			Return(domain.Purchase{ID: "pur-1", ClientID: "c1", Status: domain.PurchaseEmProcessamento}, nil).Once()

		rec := serve(h, &customer, http.MethodPost, "/purchases",
			`{"items":[{"product_id":"p1","quantity":2}],"delivery_cep":"01001-000"}`)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"id":"pur-1"`)
		svc.AssertExpectations(t)
	})

	t.Run("Carrinho ajustado devolve 409 com detalhes", func(t *testing.T) {
		svc := new(MockPurchaseService)
		h := NewHandler(svc, logger.NewNopLogger())
		adjusted := []domain.CartLineResult{{ProductID: "p1", RequestedQuantity: 10, Quantity: 5, AvailableStock: 5, Reason: domain.CartReasonClamped}}
		svc.On("Checkout", mock.Anything, "c1", mock.Anything).
			Return(domain.Purchase{}, apperror.ErrCartNeedsReview.With("carrinho ajustado", map[string]interface{}{"adjusted": adjusted})).Once()

		rec := serve(h, &customer, http.MethodPost, "/purchases", `{"items":[{"product_id":"p1","quantity":10}],"delivery_cep":"01001-000"}`)

		require.Equal(t, http.StatusConflict, rec.Code)
		var body domain.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, apperror.CodeCartNeedsReview, body.Category)
		assert.Contains(t, body.Details, "adjusted")
	})

	t.Run("Sem ator retorna 401 e não chama o serviço", func(t *testing.T) {
		svc := new(MockPurchaseService)
		h := NewHandler(svc, logger.NewNopLogger())

		rec := serve(h, nil, http.MethodPost, "/purchases", `{}`)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		svc.AssertNotCalled(t, "Checkout", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("JSON inválido retorna 400", func(t *testing.T) {
		svc := new(MockPurchaseService)
		h := NewHandler(svc, logger.NewNopLogger())

		rec := serve(h, &customer, http.MethodPost, "/purchases", `{"items":`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
	})
}

func TestTransitionHandler(t *testing.T) {
	t.Run("Repassa ator, id e destino", func(t *testing.T) {
		svc := new(MockPurchaseService)
		h := NewHandler(svc, logger.NewNopLogger())
		svc.On("Transition", mock.Anything, customer, "pur-1", domain.PurchaseCancelada).
			Return(domain.Purchase{ID: "pur-1", Status: domain.PurchaseCancelada}, nil).Once()

		rec := serve(h, &customer, http.MethodPatch, "/purchases/pur-1/status", `{"status":"CANCELADA"}`)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"CANCELADA"`)
		svc.AssertExpectations(t)
	})

	t.Run("Transição inválida expõe origem, destino e permitidos", func(t *testing.T) {
		svc := new(MockPurchaseService)
		h := NewHandler(svc, logger.NewNopLogger())
		svc.On("Transition", mock.Anything, customer, "pur-1", domain.PurchaseEntregue).
			Return(domain.Purchase{}, apperror.NewInvalidStatusTransition("EM_PROCESSAMENTO", "ENTREGUE", "APROVADA", "REPROVADA", "CANCELADA")).Once()

		rec := serve(h, &customer, http.MethodPatch, "/purchases/pur-1/status", `{"status":"ENTREGUE"}`)

		require.Equal(t, http.StatusConflict, rec.Code)
		var body domain.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "EM_PROCESSAMENTO", body.Details["from"])
		assert.Equal(t, "ENTREGUE", body.Details["to"])
		assert.Equal(t, []interface{}{"APROVADA", "REPROVADA", "CANCELADA"}, body.Details["allowed"])
	})
}

func TestOptimizeCouponsHandler(t *testing.T) {
	svc := new(MockPurchaseService)
	h := NewHandler(svc, logger.NewNopLogger())
	req := domain.OptimizeCouponsRequest{Codes: []string{"TROCO-A"}, Policy: domain.ChangeAvoid}
	selection := domain.CouponSelection{Remaining: decimal.NewFromInt(5), Change: decimal.Zero}
	svc.On("OptimizeCoupons", mock.Anything, "c1", "pur-1", req).
		Return(domain.Purchase{ID: "pur-1"}, selection, nil).Once()

	rec := serve(h, &customer, http.MethodPost, "/purchases/pur-1/coupons/optimize", `{"codes":["TROCO-A"],"policy":"AVOID_CHANGE"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var body OptimizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pur-1", body.Purchase.ID)
	assert.True(t, body.Selection.Remaining.Equal(decimal.NewFromInt(5)))
	svc.AssertExpectations(t)
}
