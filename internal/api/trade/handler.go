package trade

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// TradeService define o contrato que o Handler espera do fluxo de trocas.
type TradeService interface {
	RequestTrade(ctx context.Context, clientID string, req domain.TradeRequest) (domain.Trade, error)
	Authorize(ctx context.Context, tradeID string) (domain.Trade, error)
	Reject(ctx context.Context, tradeID, reason string) (domain.Trade, error)
	Cancel(ctx context.Context, clientID, tradeID string) (domain.Trade, error)
	Conclude(ctx context.Context, tradeID string) (domain.Trade, error)
	ReceiveAndGenerateCoupon(ctx context.Context, tradeID string, cond domain.ItemCondition) (domain.Trade, domain.Coupon, error)
	Get(ctx context.Context, actor domain.Actor, tradeID string) (domain.Trade, error)
	ListForPurchase(ctx context.Context, actor domain.Actor, purchaseID string) ([]domain.Trade, error)
}

// ReceiveResponse é a troca recebida e o cupom TRADE gerado para o cliente.
type ReceiveResponse struct {
	Trade  domain.Trade  `json:"trade"`
	Coupon domain.Coupon `json:"coupon"`
}

// Handler agrupa todos os métodos de Handler de trocas.
type Handler struct {
	Service TradeService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc TradeService, log logger.Logger) *Handler {
	return &Handler{
		Service: svc,
		Logger:  log,
	}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Send(h.Logger, w, r, data, err, successStatus)
}

// RequestHandler lida com a requisição POST /v1/trades.
// @Summary Solicita a troca de um item entregue
// @Tags trades
// @Accept json
// @Produce json
// @Param trade body domain.TradeRequest true "Compra, item e quantidade"
// @Success 201 {object} domain.Trade
// @Failure 422 {object} domain.ErrorResponse "Compra não entregue, prazo expirado ou quantidade excedida"
// @Security ApiKeyAuth
// @Router /trades [post]
func (h *Handler) RequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	var req domain.TradeRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	trade, err := h.Service.RequestTrade(r.Context(), actor.UserID, req)
	h.handleServiceResponse(w, r, trade, err, http.StatusCreated)
}

// GetHandler lida com a requisição GET /v1/trades/{id}.
// @Summary Obtém uma troca
// @Tags trades
// @Produce json
// @Param id path string true "ID da Troca"
// @Success 200 {object} domain.Trade
// @Failure 404 {object} domain.ErrorResponse "Troca não encontrada"
// @Security ApiKeyAuth
// @Router /trades/{id} [get]
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	trade, err := h.Service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, trade, err, http.StatusOK)
}

// ListForPurchaseHandler lida com a requisição GET /v1/purchases/{id}/trades.
// @Summary Lista as trocas de uma compra
// @Tags trades
// @Produce json
// @Param id path string true "ID da Compra"
// @Success 200 {array} domain.Trade
// @Security ApiKeyAuth
// @Router /purchases/{id}/trades [get]
func (h *Handler) ListForPurchaseHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	trades, err := h.Service.ListForPurchase(r.Context(), actor, chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, trades, err, http.StatusOK)
}

// AuthorizeHandler lida com a requisição POST /v1/trades/{id}/authorize.
// @Summary Autoriza uma troca
// @Tags trades
// @Produce json
// @Param id path string true "ID da Troca"
// @Success 200 {object} domain.Trade
// @Failure 409 {object} domain.ErrorResponse "Transição de troca inválida"
// @Security ApiKeyAuth
// @Router /trades/{id}/authorize [post]
func (h *Handler) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	trade, err := h.Service.Authorize(r.Context(), chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, trade, err, http.StatusOK)
}

// RejectHandler lida com a requisição POST /v1/trades/{id}/reject.
// @Summary Recusa uma troca
// @Tags trades
// @Accept json
// @Produce json
// @Param id path string true "ID da Troca"
// @Param reject body domain.RejectTradeRequest true "Motivo da recusa"
// @Success 200 {object} domain.Trade
// @Failure 409 {object} domain.ErrorResponse "Transição de troca inválida"
// @Security ApiKeyAuth
// @Router /trades/{id}/reject [post]
func (h *Handler) RejectHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.RejectTradeRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	trade, err := h.Service.Reject(r.Context(), chi.URLParam(r, "id"), req.Reason)
	h.handleServiceResponse(w, r, trade, err, http.StatusOK)
}

// CancelHandler lida com a requisição POST /v1/trades/{id}/cancel.
// @Summary Cancela a própria solicitação de troca
// @Tags trades
// @Produce json
// @Param id path string true "ID da Troca"
// @Success 200 {object} domain.Trade
// @Failure 403 {object} domain.ErrorResponse "Troca de outro cliente"
// @Security ApiKeyAuth
// @Router /trades/{id}/cancel [post]
func (h *Handler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := response.Actor(r)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	trade, err := h.Service.Cancel(r.Context(), actor.UserID, chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, trade, err, http.StatusOK)
}

// ReceiveHandler lida com a requisição POST /v1/trades/{id}/receive.
// @Summary Registra o recebimento do item e gera o cupom de troca
// @Description Item revendável volta ao estoque (TRADE_REENTRY); caso contrário é descartado. Gera no máximo um cupom por troca.
// @Tags trades
// @Accept json
// @Produce json
// @Param id path string true "ID da Troca"
// @Param condition body domain.ItemCondition true "Estado do item recebido"
// @Success 200 {object} ReceiveResponse
// @Failure 409 {object} domain.ErrorResponse "Cupom já gerado ou transição inválida"
// @Security ApiKeyAuth
// @Router /trades/{id}/receive [post]
func (h *Handler) ReceiveHandler(w http.ResponseWriter, r *http.Request) {
	var cond domain.ItemCondition
	if err := response.Decode(r, &cond); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	trade, coupon, err := h.Service.ReceiveAndGenerateCoupon(r.Context(), chi.URLParam(r, "id"), cond)
	h.handleServiceResponse(w, r, ReceiveResponse{Trade: trade, Coupon: coupon}, err, http.StatusOK)
}

// ConcludeHandler lida com a requisição POST /v1/trades/{id}/conclude.
// @Summary Conclui uma troca recebida
// @Tags trades
// @Produce json
// @Param id path string true "ID da Troca"
// @Success 200 {object} domain.Trade
// @Failure 409 {object} domain.ErrorResponse "Transição de troca inválida"
// @Security ApiKeyAuth
// @Router /trades/{id}/conclude [post]
func (h *Handler) ConcludeHandler(w http.ResponseWriter, r *http.Request) {
	trade, err := h.Service.Conclude(r.Context(), chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, trade, err, http.StatusOK)
}
