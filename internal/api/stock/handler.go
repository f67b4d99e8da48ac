package stock

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// StockService define o contrato que o Handler espera do livro-razão de estoque.
type StockService interface {
	Entry(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovement, error)
	Discard(ctx context.Context, productID string, quantity int, referenceID string) (domain.StockMovement, error)
	Movements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)
	Audit(ctx context.Context, productID string) (domain.LedgerAudit, error)
}

// Handler agrupa todos os métodos de Handler de estoque.
type Handler struct {
	Service StockService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc StockService, log logger.Logger) *Handler {
	return &Handler{
		Service: svc,
		Logger:  log,
	}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Send(h.Logger, w, r, data, err, successStatus)
}

// EntryHandler lida com a requisição POST /v1/stock/entries.
// @Summary Registra entrada de estoque
// @Description Grava uma movimentação ENTRY e soma a quantidade ao saldo do produto.
// @Tags stock
// @Accept json
// @Produce json
// @Param entry body domain.StockAdjustmentRequest true "Produto, quantidade e referência"
// @Success 201 {object} domain.StockMovement
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 404 {object} domain.ErrorResponse "Produto desconhecido"
// @Failure 409 {object} domain.ErrorResponse "Referência já registrada"
// @Security ApiKeyAuth
// @Router /stock/entries [post]
func (h *Handler) EntryHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.StockAdjustmentRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	movement, err := h.Service.Entry(r.Context(), req)
	h.handleServiceResponse(w, r, movement, err, http.StatusCreated)
}

// DiscardHandler lida com a requisição POST /v1/stock/discards.
// @Summary Registra descarte
// @Description Registra itens descartados. O saldo não muda; a movimentação fica no histórico.
// @Tags stock
// @Accept json
// @Produce json
// @Param discard body domain.DiscardRequest true "Produto, quantidade e referência"
// @Success 201 {object} domain.StockMovement
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Security ApiKeyAuth
// @Router /stock/discards [post]
func (h *Handler) DiscardHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.DiscardRequest
	if err := response.Decode(r, &req); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}
	if req.ReferenceID == "" {
		req.ReferenceID = "discard-" + uuid.NewString()
	}

	movement, err := h.Service.Discard(r.Context(), req.ProductID, req.Quantity, req.ReferenceID)
	h.handleServiceResponse(w, r, movement, err, http.StatusCreated)
}

// MovementsHandler lida com a requisição GET /v1/stock/movements.
// Após um OUTCOME_UNKNOWN o cliente consulta aqui por reference_id antes de repetir a operação.
// @Summary Consulta o histórico de movimentações
// @Tags stock
// @Produce json
// @Param product_id query string false "Produto"
// @Param reference_id query string false "Referência (compra, troca, entrada)"
// @Param kind query string false "Tipo (ENTRY, SALE_DEBIT, SALE_CREDIT, TRADE_REENTRY, DISCARD)"
// @Param limit query int false "Máximo de registros"
// @Success 200 {array} domain.StockMovement
// @Security ApiKeyAuth
// @Router /stock/movements [get]
func (h *Handler) MovementsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := response.QueryInt(r, "limit", 0)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	q := r.URL.Query()
	filter := domain.MovementFilter{
		ProductID:   q.Get("product_id"),
		ReferenceID: q.Get("reference_id"),
		Kind:        domain.MovementKind(q.Get("kind")),
		Limit:       limit,
	}

	movements, err := h.Service.Movements(r.Context(), filter)
	h.handleServiceResponse(w, r, movements, err, http.StatusOK)
}

// AuditHandler lida com a requisição GET /v1/stock/{productID}/audit.
// @Summary Audita o saldo contra o histórico
// @Description Reconstrói o saldo a partir das movimentações e compara com o saldo gravado.
// @Tags stock
// @Produce json
// @Param productID path string true "ID do Produto"
// @Success 200 {object} domain.LedgerAudit
// @Failure 404 {object} domain.ErrorResponse "Produto desconhecido"
// @Security ApiKeyAuth
// @Router /stock/{productID}/audit [get]
func (h *Handler) AuditHandler(w http.ResponseWriter, r *http.Request) {
	audit, err := h.Service.Audit(r.Context(), chi.URLParam(r, "productID"))
	h.handleServiceResponse(w, r, audit, err, http.StatusOK)
}
