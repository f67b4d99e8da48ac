package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Códigos das regras de negócio do domínio de compras, cupons e trocas.
const (
	CodeUnknownProduct           = "UNKNOWN_PRODUCT"
	CodeInsufficientStock        = "INSUFFICIENT_STOCK"
	CodeDuplicateMovement        = "DUPLICATE_MOVEMENT"
	CodeCouponNotFound           = "COUPON_NOT_FOUND"
	CodeCouponExpired            = "COUPON_EXPIRED"
	CodeCouponInactive           = "COUPON_INACTIVE"
	CodeMinValueNotMet           = "MIN_VALUE_NOT_MET"
	CodePromotionalLimitExceeded = "PROMOTIONAL_LIMIT_EXCEEDED"
	CodeCouponUsageLimitReached  = "COUPON_USAGE_LIMIT_REACHED"
	CodeCouponNotOwned           = "COUPON_NOT_OWNED"
	CodeCouponNotNeeded          = "COUPON_NOT_NEEDED"
	CodeInvalidCouponType        = "INVALID_COUPON_TYPE"
	CodeNoOverpayment            = "NO_OVERPAYMENT"
	CodeInvalidStatusTransition  = "INVALID_STATUS_TRANSITION"
	CodeInvalidTradeTransition   = "INVALID_TRADE_TRANSITION"
	CodeNotDelivered             = "NOT_DELIVERED"
	CodeTradeWindowExpired       = "TRADE_WINDOW_EXPIRED"
	CodeRefundQuantityExceeded   = "REFUND_QUANTITY_EXCEEDED"
	CodeDuplicateCouponGen       = "DUPLICATE_COUPON_GENERATION"
	CodeCartNeedsReview          = "CART_NEEDS_REVIEW"
	CodeOutcomeUnknown           = "OUTCOME_UNKNOWN"
)

// BusinessError é uma violação de regra de negócio com código estável e detalhes estruturados.
// Dois BusinessError são equivalentes para errors.Is quando têm o mesmo Code.
type BusinessError struct {
	Code    string
	Msg     string
	Details map[string]interface{}
	status  int
}

func (e *BusinessError) Error() string    { return fmt.Sprintf("%s: %s", e.Code, e.Msg) }
func (e *BusinessError) Category() string { return e.Code }
func (e *BusinessError) HTTPStatus() int  { return e.status }
func (e *BusinessError) Unwrap() error    { return nil }

// Is compara pelo código, permitindo errors.Is(err, ErrInsufficientStock).
func (e *BusinessError) Is(target error) bool {
	var t *BusinessError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// With devolve uma cópia do erro com mensagem e detalhes específicos da ocorrência.
func (e *BusinessError) With(msg string, details map[string]interface{}) *BusinessError {
	return &BusinessError{Code: e.Code, Msg: msg, Details: details, status: e.status}
}

func newBusiness(code string, status int, msg string) *BusinessError {
	return &BusinessError{Code: code, Msg: msg, status: status}
}

// Sentinelas. Use With para anexar contexto e errors.Is para comparar.
var (
	ErrUnknownProduct           = newBusiness(CodeUnknownProduct, http.StatusNotFound, "produto desconhecido")
	ErrInsufficientStock        = newBusiness(CodeInsufficientStock, http.StatusConflict, "estoque insuficiente")
	ErrDuplicateMovement        = newBusiness(CodeDuplicateMovement, http.StatusConflict, "movimentação já registrada para esta referência")
	ErrCouponNotFound           = newBusiness(CodeCouponNotFound, http.StatusNotFound, "cupom não encontrado")
	ErrCouponExpired            = newBusiness(CodeCouponExpired, http.StatusUnprocessableEntity, "cupom expirado")
	ErrCouponInactive           = newBusiness(CodeCouponInactive, http.StatusUnprocessableEntity, "cupom inativo")
	ErrMinValueNotMet           = newBusiness(CodeMinValueNotMet, http.StatusUnprocessableEntity, "valor mínimo da compra não atingido")
	ErrPromotionalLimitExceeded = newBusiness(CodePromotionalLimitExceeded, http.StatusUnprocessableEntity, "a compra já possui um cupom promocional")
	ErrCouponUsageLimitReached  = newBusiness(CodeCouponUsageLimitReached, http.StatusUnprocessableEntity, "limite de uso do cupom atingido")
	ErrCouponNotOwned           = newBusiness(CodeCouponNotOwned, http.StatusForbidden, "cupom pertence a outro cliente")
	ErrCouponNotNeeded          = newBusiness(CodeCouponNotNeeded, http.StatusUnprocessableEntity, "a compra não possui saldo a pagar")
	ErrInvalidCouponType        = newBusiness(CodeInvalidCouponType, http.StatusUnprocessableEntity, "tipo de cupom inválido para esta operação")
	ErrNoOverpayment            = newBusiness(CodeNoOverpayment, http.StatusUnprocessableEntity, "não há valor excedente para gerar troco")
	ErrInvalidStatusTransition  = newBusiness(CodeInvalidStatusTransition, http.StatusConflict, "transição de status inválida")
	ErrInvalidTradeTransition   = newBusiness(CodeInvalidTradeTransition, http.StatusConflict, "transição de troca inválida")
	ErrNotDelivered             = newBusiness(CodeNotDelivered, http.StatusUnprocessableEntity, "a compra ainda não foi entregue")
	ErrTradeWindowExpired       = newBusiness(CodeTradeWindowExpired, http.StatusUnprocessableEntity, "prazo de troca expirado")
	ErrRefundQuantityExceeded   = newBusiness(CodeRefundQuantityExceeded, http.StatusUnprocessableEntity, "quantidade de troca excede o disponível")
	ErrDuplicateCouponGen       = newBusiness(CodeDuplicateCouponGen, http.StatusConflict, "cupom da troca já foi gerado")
	ErrCartNeedsReview          = newBusiness(CodeCartNeedsReview, http.StatusConflict, "o carrinho foi ajustado e precisa de revisão")
	ErrOutcomeUnknown           = newBusiness(CodeOutcomeUnknown, http.StatusServiceUnavailable, "resultado da operação desconhecido; consulte o estado antes de repetir")
)

// IsCode informa se algum BusinessError na cadeia de err possui o código informado.
func IsCode(err error, code string) bool {
	var bizErr *BusinessError
	if errors.As(err, &bizErr) {
		return bizErr.Code == code
	}
	return false
}

// NewInvalidStatusTransition cria o erro de transição com origem, destino e os destinos
// permitidos a partir da origem.
func NewInvalidStatusTransition(from, to string, allowed ...string) *BusinessError {
	if allowed == nil {
		allowed = []string{}
	}
	return ErrInvalidStatusTransition.With(
		fmt.Sprintf("transição de %s para %s não permitida", from, to),
		map[string]interface{}{"from": from, "to": to, "allowed": allowed},
	)
}

// NewInvalidTradeTransition cria o erro de transição de troca com origem e destino.
func NewInvalidTradeTransition(from, to string) *BusinessError {
	return ErrInvalidTradeTransition.With(
		fmt.Sprintf("troca não pode ir de %s para %s", from, to),
		map[string]interface{}{"from": from, "to": to},
	)
}

// NewInsufficientStock cria o erro de estoque insuficiente com o saldo observado.
func NewInsufficientStock(productID string, requested, available int) *BusinessError {
	return ErrInsufficientStock.With(
		fmt.Sprintf("produto %s: solicitado %d, disponível %d", productID, requested, available),
		map[string]interface{}{"product_id": productID, "requested": requested, "available": available},
	)
}

// NewOutcomeUnknown embrulha falhas de commit/timeout em que o efeito pode ter sido aplicado.
func NewOutcomeUnknown(op string, cause error) error {
	return fmt.Errorf("%s: %w (%v)", op, ErrOutcomeUnknown, cause)
}
