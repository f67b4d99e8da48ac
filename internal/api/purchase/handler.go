package purchase

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// PurchaseService define o contrato que o Handler espera do fluxo de compras.
type PurchaseService interface {
	Checkout(ctx context.Context, clientID string, req domain.CheckoutRequest) (domain.Purchase, error)
	Transition(ctx context.Context, actor domain.Actor, purchaseID string, target domain.PurchaseStatus) (domain.Purchase, error)
	ApplyCoupon(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error)
	ApplyGeneratedCoupon(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error)
	OptimizeCoupons(ctx context.Context, clientID, purchaseID string, req domain.OptimizeCouponsRequest) (domain.Purchase, domain.CouponSelection, error)
	RemoveCoupon(ctx context.Context, clientID, purchaseID, couponID string) (domain.Purchase, error)
	Reconcile(ctx context.Context, clientID, purchaseID string) (domain.Purchase, domain.CartValidation, error)
	Get(ctx context.Context, actor domain.Actor, purchaseID string) (domain.Purchase, error)
	ListForClient(ctx context.Context, clientID string) ([]domain.Purchase, error)
}

// OptimizeResponse é a compra após o otimizador, junto da seleção escolhida.
type OptimizeResponse struct {
	Purchase  domain.Purchase        `json:"purchase"`
	Selection domain.CouponSelection `json:"selection"`
}

// ReconcileResponse é a compra após a revisão do carrinho, junto dos ajustes aplicados.
type ReconcileResponse struct {
	Purchase   domain.Purchase       `json:"purchase"`
	Validation domain.CartValidation `json:"validation"`
}

// Handler agrupa todos os métodos de Handler de compras.
type Handler struct {
	Service PurchaseService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc PurchaseService, log logger.Logger) *Handler {
	return &Handler{
		Service: svc,
		Logger:  log,
	}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Send(h.Logger, w, r, data, err, successStatus)
}

// CheckoutHandler lida com a requisição POST /v1/purchases.
// @Summary Fecha o carrinho em uma compra
// @Description Confere o carrinho, congela preços e cota o frete. Se algum item for ajustado, devolve CART_NEEDS_REVIEW com os detalhes.
// @Tags purchases
// @Accept json
// @Produce json
// @Param checkout body domain.CheckoutRequest true "Itens e CEP de entrega"
// @Success 201 {object} domain.Purchase
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 409 {object} domain.ErrorResponse "Carrinho precisa de revisão"
// @Security ApiKeyAuth
// @Router /purchases [post]
func (h *Handler) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	var req domain.CheckoutRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	purchase, err := h.Service.Checkout(r.Context(), actor.UserID, req)
	h.handleServiceResponse(w, r, purchase, err, http.StatusCreated)
}

// ListMineHandler lida com a requisição GET /v1/purchases.
// @Summary Lista as compras do cliente autenticado
// @Tags purchases
// @Produce json
// @Success 200 {array} domain.Purchase
// @Security ApiKeyAuth
// @Router /purchases [get]
func (h *Handler) ListMineHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchases, err := h.Service.ListForClient(r.Context(), actor.UserID)
	h.handleServiceResponse(w, r, purchases, err, http.StatusOK)
}

// GetHandler lida com a requisição GET /v1/purchases/{id}.
// @Summary Obtém uma compra
// @Tags purchases
// @Produce json
// @Param id path string true "ID da Compra"
// @Success 200 {object} domain.Purchase
// @Failure 404 {object} domain.ErrorResponse "Compra não encontrada"
// @Security ApiKeyAuth
// @Router /purchases/{id} [get]
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchase, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, purchase, err, http.StatusOK)
}

// TransitionHandler lida com a requisição PATCH /v1/purchases/{id}/status.
// Clientes só podem cancelar as próprias compras; as demais transições exigem administrador.
// @Summary Altera o status da compra
// @Tags purchases
// @Accept json
// @Produce json
// @Param id path string true "ID da Compra"
// @Param status body domain.StatusChangeRequest true "Status de destino"
// @Success 200 {object} domain.Purchase
// @Failure 403 {object} domain.ErrorResponse "Transição não permitida para o papel"
// @Failure 409 {object} domain.ErrorResponse "Transição inválida ou estoque insuficiente"
// @Failure 503 {object} domain.ErrorResponse "Resultado desconhecido; consulte antes de repetir"
// @Security ApiKeyAuth
// @Router /purchases/{id}/status [patch]
func (h *Handler) TransitionHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	var req domain.StatusChangeRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchase, err := h.Service.Transition(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	h.handleServiceResponse(w, r, purchase, err, http.StatusOK)
}

// ApplyCouponHandler lida com a requisição POST /v1/purchases/{id}/coupons.
// @Summary Aplica um cupom promocional
// @Tags purchases
// @Accept json
// @Produce json
// @Param id path string true "ID da Compra"
// @Param coupon body domain.ApplyCouponRequest true "Código do cupom"
// @Success 200 {object} domain.Purchase
// @Failure 422 {object} domain.ErrorResponse "Regra do cupom não atendida"
// @Security ApiKeyAuth
// @Router /purchases/{id}/coupons [post]
func (h *Handler) ApplyCouponHandler(w http.ResponseWriter, r *http.Request) {
	h.applyCode(w, r, h.Service.ApplyCoupon)
}

// ApplyGeneratedCouponHandler lida com a requisição POST /v1/purchases/{id}/coupons/generated.
// @Summary Aplica um cupom de troco ou troca
// @Tags purchases
// @Accept json
// @Produce json
// @Param id path string true "ID da Compra"
// @Param coupon body domain.ApplyCouponRequest true "Código do cupom"
// @Success 200 {object} domain.Purchase
// @Failure 403 {object} domain.ErrorResponse "Cupom de outro cliente"
// @Failure 422 {object} domain.ErrorResponse "Regra do cupom não atendida"
// @Security ApiKeyAuth
// @Router /purchases/{id}/coupons/generated [post]
func (h *Handler) ApplyGeneratedCouponHandler(w http.ResponseWriter, r *http.Request) {
	h.applyCode(w, r, h.Service.ApplyGeneratedCoupon)
}

func (h *Handler) applyCode(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error)) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	var req domain.ApplyCouponRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchase, err := apply(r.Context(), actor.UserID, chi.URLParam(r, "id"), req.Code)
	h.handleServiceResponse(w, r, purchase, err, http.StatusOK)
}

// OptimizeCouponsHandler lida com a requisição POST /v1/purchases/{id}/coupons/optimize.
// @Summary Escolhe a melhor combinação de cupons gerados
// @Tags purchases
// @Accept json
// @Produce json
// @Param id path string true "ID da Compra"
// @Param request body domain.OptimizeCouponsRequest true "Códigos candidatos e política de troco"
// @Success 200 {object} OptimizeResponse
// @Failure 422 {object} domain.ErrorResponse "Regra do cupom não atendida"
// @Security ApiKeyAuth
// @Router /purchases/{id}/coupons/optimize [post]
func (h *Handler) OptimizeCouponsHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	var req domain.OptimizeCouponsRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchase, selection, err := h.Service.OptimizeCoupons(r.Context(), actor.UserID, chi.URLParam(r, "id"), req)
	h.handleServiceResponse(w, r, OptimizeResponse{Purchase: purchase, Selection: selection}, err, http.StatusOK)
}

// RemoveCouponHandler lida com a requisição DELETE /v1/purchases/{id}/coupons/{couponID}.
// @Summary Remove um cupom ainda não consumido
// @Tags purchases
// @Produce json
// @Param id path string true "ID da Compra"
// @Param couponID path string true "ID do Cupom"
// @Success 200 {object} domain.Purchase
// @Failure 404 {object} domain.ErrorResponse "Cupom não aplicado"
// @Security ApiKeyAuth
// @Router /purchases/{id}/coupons/{couponID} [delete]
func (h *Handler) RemoveCouponHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchase, err := h.Service.RemoveCoupon(r.Context(), actor.UserID, chi.URLParam(r, "id"), chi.URLParam(r, "couponID"))
	h.handleServiceResponse(w, r, purchase, err, http.StatusOK)
}

// ReconcileHandler lida com a requisição POST /v1/purchases/{id}/reconcile.
// @Summary Ajusta a compra pendente ao estoque atual
// @Tags purchases
// @Produce json
// @Param id path string true "ID da Compra"
// @Success 200 {object} ReconcileResponse
// @Failure 409 {object} domain.ErrorResponse "Compra fora de EM_PROCESSAMENTO"
// @Security ApiKeyAuth
// @Router /purchases/{id}/reconcile [post]
func (h *Handler) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	purchase, validation, err := h.Service.Reconcile(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, ReconcileResponse{Purchase: purchase, Validation: validation}, err, http.StatusOK)
}
