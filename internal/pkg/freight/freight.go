package freight

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// Quote é a cotação de frete para um destino e peso.
type Quote struct {
	Value   decimal.Decimal `json:"value"`
	EtaDays int             `json:"eta_days"`
}

// Calculator cota o frete de uma entrega.
type Calculator interface {
	Quote(ctx context.Context, cep string, weightKg decimal.Decimal) (Quote, error)
}

// HTTPCalculator consulta um serviço externo de frete:
// GET {base}/quote?cep=..&weight=.. -> {"value": "12.50", "eta_days": 5}
type HTTPCalculator struct {
	client *resty.Client
}

// NewHTTPCalculator cria o cliente com timeout e retentativas em erros 5xx.
func NewHTTPCalculator(baseURL string, timeout time.Duration) *HTTPCalculator {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &HTTPCalculator{client: client}
}

func (c *HTTPCalculator) Quote(ctx context.Context, cep string, weightKg decimal.Decimal) (Quote, error) {
	var quote Quote
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cep":    cep,
			"weight": weightKg.StringFixed(3),
		}).
		SetResult(&quote).
		Get("/quote")
	if err != nil {
		return Quote{}, fmt.Errorf("falha ao cotar frete: %w", err)
	}
	if resp.IsError() {
		return Quote{}, fmt.Errorf("serviço de frete respondeu %d", resp.StatusCode())
	}
	if quote.Value.IsNegative() {
		return Quote{}, fmt.Errorf("frete negativo recebido: %s", quote.Value)
	}
	return quote, nil
}

// FlatCalculator cobra um valor fixo. Usado quando FREIGHT_API_URL não está configurada.
type FlatCalculator struct {
	Value   decimal.Decimal
	EtaDays int
}

func (c FlatCalculator) Quote(_ context.Context, _ string, _ decimal.Decimal) (Quote, error) {
	return Quote{Value: c.Value, EtaDays: c.EtaDays}, nil
}
