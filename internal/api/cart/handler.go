package cart

import (
	"context"
	"net/http"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// CartService confere linhas de carrinho contra o estoque atual.
type CartService interface {
	Validate(ctx context.Context, lines []domain.CartLine) (domain.CartValidation, error)
}

type Handler struct {
	Service CartService
	Logger  logger.Logger
}

func NewHandler(svc CartService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

// ValidateHandler lida com a requisição POST /v1/cart/validate.
// @Summary Confere o carrinho contra o estoque
// @Description Devolve as linhas ajustadas, removidas e inalteradas. Não altera estoque.
// @Tags cart
// @Accept json
// @Produce json
// @Param cart body domain.CartValidationRequest true "Linhas do carrinho"
// @Success 200 {object} domain.CartValidation
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Security ApiKeyAuth
// @Router /cart/validate [post]
func (h *Handler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CartValidationRequest
	if err := response.Decode(r, &req); err != nil {
		response.Send(h.Logger, w, r, nil, err, http.StatusOK)
		return
	}

	result, err := h.Service.Validate(r.Context(), req.Lines)
	response.Send(h.Logger, w, r, result, err, http.StatusOK)
}
