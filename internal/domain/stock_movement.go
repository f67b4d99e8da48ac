package domain

import "time"

// MovementKind identifica a natureza de uma movimentação do livro-razão de estoque.
type MovementKind string

const (
	MovementEntry        MovementKind = "ENTRY"         // entrada manual / recebimento de fornecedor
	MovementSaleDebit    MovementKind = "SALE_DEBIT"    // baixa na aprovação da compra
	MovementSaleCredit   MovementKind = "SALE_CREDIT"   // estorno de compra aprovada e cancelada
	MovementTradeReentry MovementKind = "TRADE_REENTRY" // item trocado e devolvido ao estoque
	MovementDiscard      MovementKind = "DISCARD"       // item trocado e descartado (sem efeito no saldo)
)

// Valid informa se o tipo de movimentação é conhecido.
func (k MovementKind) Valid() bool {
	switch k {
	case MovementEntry, MovementSaleDebit, MovementSaleCredit, MovementTradeReentry, MovementDiscard:
		return true
	}
	return false
}

// IsCredit informa se o tipo é aceito pela primitiva Credit do livro-razão.
func (k MovementKind) IsCredit() bool {
	return k == MovementEntry || k == MovementSaleCredit || k == MovementTradeReentry
}

// ReferenceScoped informa se a movimentação só pode existir uma vez por (referência, produto).
// ENTRY pode se repetir para a mesma nota de entrada; DISCARD é apenas registro.
func (k MovementKind) ReferenceScoped() bool {
	return k == MovementSaleDebit || k == MovementSaleCredit || k == MovementTradeReentry
}

// Sign devolve o efeito de uma unidade desta movimentação sobre o saldo.
func (k MovementKind) Sign() int {
	switch k {
	case MovementSaleDebit:
		return -1
	case MovementEntry, MovementSaleCredit, MovementTradeReentry:
		return 1
	}
	return 0
}

func (k MovementKind) String() string {
	return string(k)
}

// StockMovement é uma linha imutável do livro-razão de estoque.
// Quantity é sempre positiva; QuantityDelta é o efeito assinado sobre Product.Stock
// (zero para DISCARD), de forma que Stock == soma de QuantityDelta.
type StockMovement struct {
	ID            string       `json:"id"`
	ProductID     string       `json:"product_id"`
	Kind          MovementKind `json:"kind"`
	Quantity      int          `json:"quantity"`
	QuantityDelta int          `json:"quantity_delta"`
	StockBefore   int          `json:"stock_before"`
	StockAfter    int          `json:"stock_after"`
	ReferenceID   string       `json:"reference_id"`
	CreatedAt     time.Time    `json:"created_at"`
}

// MovementFilter restringe a consulta ao histórico de movimentações.
type MovementFilter struct {
	ProductID   string
	ReferenceID string
	Kind        MovementKind
	Limit       int
}

// StockAdjustmentRequest é o payload de entrada manual de estoque (ENTRY).
type StockAdjustmentRequest struct {
	ProductID   string `json:"product_id" validate:"required,uuid"`
	Quantity    int    `json:"quantity" validate:"required,numeric"`
	ReferenceID string `json:"reference_id"`
}

// DiscardRequest é o payload de descarte manual.
type DiscardRequest struct {
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	ReferenceID string `json:"reference_id"`
}

// LedgerAudit é o resultado da reconstrução do saldo a partir do histórico.
type LedgerAudit struct {
	ProductID      string               `json:"product_id"`
	Stock          int                  `json:"stock"`
	LedgerStock    int                  `json:"ledger_stock"`
	Consistent     bool                 `json:"consistent"`
	Totals         map[MovementKind]int `json:"totals"`
	MovementsCount int                  `json:"movements_count"`
}
