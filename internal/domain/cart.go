package domain

// CartLine é uma linha do carrinho a ser conferida contra o estoque.
type CartLine struct {
	OrderID   string `json:"order_id,omitempty"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Motivos de ajuste devolvidos pelo validador de carrinho.
const (
	CartReasonOutOfStock     = "OUT_OF_STOCK"
	CartReasonClamped        = "QUANTITY_CLAMPED"
	CartReasonUnknownProduct = "UNKNOWN_PRODUCT"
	CartReasonInactive       = "PRODUCT_INACTIVE"
)

// CartLineResult é o resultado da conferência de uma linha.
type CartLineResult struct {
	OrderID           string `json:"order_id,omitempty"`
	ProductID         string `json:"product_id"`
	RequestedQuantity int    `json:"requested_quantity"`
	Quantity          int    `json:"quantity"`
	AvailableStock    int    `json:"available_stock"`
	Reason            string `json:"reason,omitempty"`
}

// CartValidation agrupa as linhas conferidas em ajustadas, removidas e inalteradas.
type CartValidation struct {
	Adjusted  []CartLineResult `json:"adjusted"`
	Removed   []CartLineResult `json:"removed"`
	Unchanged []CartLineResult `json:"unchanged"`
}

// Clean informa se o carrinho pode seguir para pagamento sem revisão.
func (v CartValidation) Clean() bool {
	return len(v.Adjusted) == 0 && len(v.Removed) == 0
}

// CartValidationRequest é o payload da conferência on-demand.
type CartValidationRequest struct {
	Lines []CartLine `json:"lines"`
}
