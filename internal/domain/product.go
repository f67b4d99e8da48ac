package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa o item do catálogo vendido na loja.
// O campo Stock é somente leitura fora do livro-razão de estoque (stockservice):
// nenhum outro caminho de escrita altera a coluna stock.
type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"` // Stock Keeping Unit (código único de produto)
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	WeightKg    decimal.Decimal `json:"weight_kg"`
	Stock       int             `json:"stock"`
	Version     int             `json:"version"` // Para Controle de Concorrência Otimista (OCC)
	IsActive    bool            `json:"is_active"`
	LastSaleAt  *time.Time      `json:"last_sale_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductFilter define os parâmetros de busca e paginação do catálogo.
type ProductFilter struct {
	Page       int
	Limit      int
	Name       string
	SKU        string
	ActiveOnly bool
}

// ProductInput é o payload de criação/atualização de produto.
// InitialStock, quando positivo, vira uma movimentação ENTRY no livro-razão.
type ProductInput struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	WeightKg     decimal.Decimal `json:"weight_kg"`
	IsActive     *bool           `json:"is_active,omitempty"`
	InitialStock int             `json:"initial_stock"`
}
