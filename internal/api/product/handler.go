package product

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"goloja/internal/api/response"
	"goloja/internal/domain"
	"goloja/internal/pkg/logger"
)

// ProductService define o contrato que o Handler espera da camada de Serviço.
type ProductService interface {
	CreateProduct(ctx context.Context, input domain.ProductInput) (domain.Product, error)
	GetProductByID(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, id string, input domain.ProductInput) (domain.Product, error)
}

// Handler agrupa todos os métodos de Handler do produto.
type Handler struct {
	Service ProductService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc ProductService, log logger.Logger) *Handler {
	return &Handler{
		Service: svc,
		Logger:  log,
	}
}

func (h *Handler) handleServiceResponse(w http.ResponseWriter, r *http.Request, data interface{}, err error, successStatus int) {
	response.Send(h.Logger, w, r, data, err, successStatus)
}

// CreateProductHandler lida com a requisição POST /v1/products.
// @Summary Cadastra um produto
// @Description Cria um produto no catálogo. initial_stock positivo gera uma movimentação ENTRY.
// @Tags products
// @Accept json
// @Produce json
// @Param product body domain.ProductInput true "Dados do produto"
// @Success 201 {object} domain.Product
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 409 {object} domain.ErrorResponse "SKU já cadastrado"
// @Security ApiKeyAuth
// @Router /products [post]
func (h *Handler) CreateProductHandler(w http.ResponseWriter, r *http.Request) {
	var input domain.ProductInput
	if err := response.Decode(r, &input); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusCreated)
		return
	}

	if actor, err := response.Actor(r); err == nil {
		h.Logger.Info("Tentativa de criação de produto por", map[string]interface{}{
			"user_id": actor.UserID,
			"role":    actor.Role,
		})
	}

	product, err := h.Service.CreateProduct(r.Context(), input)
	h.handleServiceResponse(w, r, product, err, http.StatusCreated)
}

// GetProductByIDHandler lida com a requisição GET /v1/products/{id}.
// @Summary Obtém um produto por ID
// @Tags products
// @Produce json
// @Param id path string true "ID do Produto"
// @Success 200 {object} domain.Product
// @Failure 404 {object} domain.ErrorResponse "Produto não encontrado"
// @Security ApiKeyAuth
// @Router /products/{id} [get]
func (h *Handler) GetProductByIDHandler(w http.ResponseWriter, r *http.Request) {
	product, err := h.Service.GetProductByID(r.Context(), chi.URLParam(r, "id"))
	h.handleServiceResponse(w, r, product, err, http.StatusOK)
}

// ListProductsHandler lida com a requisição GET /v1/products.
// @Summary Lista o catálogo
// @Tags products
// @Produce json
// @Param page query int false "Página (1..n)"
// @Param limit query int false "Itens por página (máx. 100)"
// @Param name query string false "Filtro por nome"
// @Param sku query string false "Filtro por SKU"
// @Param active query bool false "Somente produtos ativos"
// @Success 200 {array} domain.Product
// @Security ApiKeyAuth
// @Router /products [get]
func (h *Handler) ListProductsHandler(w http.ResponseWriter, r *http.Request) {
	page, err := response.QueryInt(r, "page", 1)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}
	limit, err := response.QueryInt(r, "limit", 0)
	if err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	q := r.URL.Query()
	filter := domain.ProductFilter{
		Page:       page,
		Limit:      limit,
		Name:       q.Get("name"),
		SKU:        q.Get("sku"),
		ActiveOnly: q.Get("active") == "true",
	}

	products, err := h.Service.ListProducts(r.Context(), filter)
	h.handleServiceResponse(w, r, products, err, http.StatusOK)
}

// UpdateProductHandler lida com a requisição PUT /v1/products/{id}.
// O estoque não é alterado por esta rota; use /v1/stock.
// @Summary Atualiza dados cadastrais do produto
// @Tags products
// @Accept json
// @Produce json
// @Param id path string true "ID do Produto"
// @Param product body domain.ProductInput true "Dados do produto"
// @Success 200 {object} domain.Product
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 404 {object} domain.ErrorResponse "Produto não encontrado"
// @Security ApiKeyAuth
// @Router /products/{id} [put]
func (h *Handler) UpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	var input domain.ProductInput
	if err := response.Decode(r, &input); err != nil {
		h.handleServiceResponse(w, r, nil, err, http.StatusOK)
		return
	}

	product, err := h.Service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), input)
	h.handleServiceResponse(w, r, product, err, http.StatusOK)
}
