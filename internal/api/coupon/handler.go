package coupon

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
)

// CouponService define o contrato que o Handler espera da administração de cupons.
type CouponService interface {
	CreatePromotional(ctx context.Context, input domain.PromotionalCouponInput) (domain.Coupon, error)
	Deactivate(ctx context.Context, couponID string) (domain.Coupon, error)
	GetByCode(ctx context.Context, code string) (domain.Coupon, error)
	ListForClient(ctx context.Context, clientID string) ([]domain.Coupon, error)
}

// Handler agrupa os métodos de Handler de cupons.
type Handler struct {
	Service CouponService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc CouponService, log logger.Logger) *Handler {
	return &Handler{
		Service: svc,
		Logger:  log,
	}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Send(h.Logger, w, r, data, err, successStatus)
}

// CreatePromotionalHandler lida com a requisição POST /v1/coupons.
// @Summary Cria cupom promocional
// @Tags coupons
// @Accept json
// @Produce json
// @Param coupon body domain.PromotionalCouponInput true "Dados do cupom"
// @Success 201 {object} domain.Coupon
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 409 {object} domain.ErrorResponse "Código já existe"
// @Security ApiKeyAuth
// @Router /coupons [post]
func (h *Handler) CreatePromotionalHandler(w http.ResponseWriter, r *http.Request) {
	var input domain.PromotionalCouponInput
	if err := response.Decode(r, &input); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	coupon, err := h.Service.CreatePromotional(r.Context(), input)
	h.handleServiceResponse(w, r, coupon, err, http.StatusCreated)
}

// DeactivateHandler lida com a requisição POST /v1/coupons/{id}/deactivate.
// @Summary Desativa um cupom
// @Tags coupons
// @Produce json
// @Param id path string true "ID do Cupom"
// @Success 200 {object} domain.Coupon
// @Failure 404 {object} domain.ErrorResponse "Cupom não encontrado"
// @Security ApiKeyAuth
// @Router /coupons/{id}/deactivate [post]
func (h *Handler) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	coupon, err := h.Service.Deactivate(r.Context(), chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, coupon, err, http.StatusOK)
}

// ListMineHandler lida com a requisição GET /v1/coupons/mine.
// @Summary Lista os cupons de troco e troca do cliente
// @Tags coupons
// @Produce json
// @Success 200 {array} domain.Coupon
// @Security ApiKeyAuth
// @Router /coupons/mine [get]
func (h *Handler) ListMineHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	coupons, err := h.Service.ListForClient(r.Context(), actor.UserID)
	h.handleServiceResponse(w, r, coupons, err, http.StatusOK)
}

// GetByCodeHandler lida com a requisição GET /v1/coupons/{code}.
// Cupons gerados só são visíveis para o dono e para administradores.
// @Summary Consulta um cupom pelo código
// @Tags coupons
// @Produce json
// @Param code path string true "Código do cupom"
// @Success 200 {object} domain.Coupon
// @Failure 404 {object} domain.ErrorResponse "Cupom não encontrado"
// @Security ApiKeyAuth
// @Router /coupons/{code} [get]
func (h *Handler) GetByCodeHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	coupon, err := h.Service.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err == nil && coupon.ClientID != "" && coupon.ClientID != actor.UserID && !actor.IsAdmin() {
		err = apperror.ErrCouponNotFound.With("cupom não encontrado", map[string]interface{}{"code": coupon.Code})
	}
	h.handleServiceResponse(w, r, coupon, err, http.StatusOK)
}
