package stockservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/telemetry"
)

// TxRunner executa fn em uma transação (ou na transação já aberta no contexto).
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// LedgerRepository define o contrato que o livro-razão espera da camada de Persistência.
// É o único caminho de escrita da coluna products.stock.
type LedgerRepository interface {
	// LockProduct lê o produto bloqueando a linha até o fim da transação (SELECT ... FOR UPDATE).
	LockProduct(ctx context.Context, productID string) (domain.Product, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
	MovementExists(ctx context.Context, productID, referenceID string, kind domain.MovementKind) (bool, error)
	// ApplyMovement grava o novo saldo com OCC sobre product.Version e anexa a movimentação.
	ApplyMovement(ctx context.Context, product domain.Product, movement domain.StockMovement) error
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error)
}

// CacheInvalidator remove do cache a leitura de um produto cujo saldo mudou.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, productID string)
}

// Service é o livro-razão de estoque: débito, crédito e descarte com histórico imutável.
type Service struct {
	repo   LedgerRepository
	tx     TxRunner
	logger logger.Logger
	now    func() time.Time
	cache  CacheInvalidator

	movements metric.Int64Counter
	rejected  metric.Int64Counter
}

// NewService cria e retorna uma nova instância do livro-razão.
func NewService(repo LedgerRepository, tx TxRunner, logger logger.Logger) *Service {
	return &Service{
		repo:      repo,
		tx:        tx,
		logger:    logger,
		now:       time.Now,
		movements: telemetry.Counter("goloja.stock.movements", "Movimentações gravadas no livro-razão"),
		rejected:  telemetry.Counter("goloja.stock.rejected", "Movimentações recusadas (estoque, duplicidade, produto)"),
	}
}

// WithCacheInvalidator liga a invalidação do cache de produto após o COMMIT de cada movimentação.
func (s *Service) WithCacheInvalidator(inv CacheInvalidator) *Service {
	s.cache = inv
	return s
}

// Debit baixa quantity unidades do produto para a referência (id da compra).
// Um segundo débito para o mesmo (referência, produto) falha com ErrDuplicateMovement.
func (s *Service) Debit(ctx context.Context, productID string, quantity int, referenceID string) (domain.StockMovement, error) {
	return s.record(ctx, productID, quantity, referenceID, domain.MovementSaleDebit)
}

// Credit devolve quantity unidades ao produto. kind deve ser SALE_CREDIT, TRADE_REENTRY ou ENTRY.
func (s *Service) Credit(ctx context.Context, productID string, quantity int, referenceID string, kind domain.MovementKind) (domain.StockMovement, error) {
	if !kind.IsCredit() {
		return domain.StockMovement{}, apperror.NewValidationError(fmt.Sprintf("tipo de movimentação %s não é um crédito", kind))
	}
	return s.record(ctx, productID, quantity, referenceID, kind)
}

// Entry registra uma entrada manual de estoque (nota de fornecedor, inventário inicial).
func (s *Service) Entry(ctx context.Context, req domain.StockAdjustmentRequest) (domain.StockMovement, error) {
	ref := req.ReferenceID
	if ref == "" {
		ref = "entry-" + uuid.NewString()
	}
	return s.record(ctx, req.ProductID, req.Quantity, ref, domain.MovementEntry)
}

// Discard registra um item devolvido e descartado. O saldo não muda.
func (s *Service) Discard(ctx context.Context, productID string, quantity int, referenceID string) (domain.StockMovement, error) {
	return s.record(ctx, productID, quantity, referenceID, domain.MovementDiscard)
}

// record é o núcleo comum: trava o produto, valida, grava saldo e movimentação na mesma transação.
func (s *Service) record(ctx context.Context, productID string, quantity int, referenceID string, kind domain.MovementKind) (domain.StockMovement, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "stock."+string(kind))
	defer span.End()
	span.SetAttributes(
		attribute.String("product.id", productID),
		attribute.String("reference.id", referenceID),
		attribute.Int("quantity", quantity),
	)

	fields := map[string]interface{}{
		"product_id":   productID,
		"kind":         kind,
		"quantity":     quantity,
		"reference_id": referenceID,
	}
	s.logger.Debug("Iniciando movimentação de estoque.", fields)

	if quantity <= 0 {
		return domain.StockMovement{}, apperror.NewValidationError("A quantidade da movimentação deve ser positiva.")
	}
	if referenceID == "" {
		return domain.StockMovement{}, apperror.NewValidationError("A movimentação exige uma referência (compra, troca ou nota).")
	}

	var movement domain.StockMovement
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		product, err := s.repo.LockProduct(ctx, productID)
		if err != nil {
			var notFound *apperror.NotFoundError
			if errors.As(err, &notFound) {
				return apperror.ErrUnknownProduct.With(
					fmt.Sprintf("produto %s não existe", productID),
					map[string]interface{}{"product_id": productID},
				)
			}
			return err
		}

		if kind.ReferenceScoped() {
			exists, err := s.repo.MovementExists(ctx, productID, referenceID, kind)
			if err != nil {
				return err
			}
			if exists {
				return apperror.ErrDuplicateMovement.With(
					fmt.Sprintf("%s já registrado para a referência %s", kind, referenceID),
					map[string]interface{}{"product_id": productID, "reference_id": referenceID, "kind": kind},
				)
			}
		}

		delta := kind.Sign() * quantity
		after := product.Stock + delta
		if after < 0 {
			return apperror.NewInsufficientStock(productID, quantity, product.Stock)
		}

		now := s.now().UTC()
		movement = domain.StockMovement{
			ID:            uuid.NewString(),
			ProductID:     productID,
			Kind:          kind,
			Quantity:      quantity,
			QuantityDelta: delta,
			StockBefore:   product.Stock,
			StockAfter:    after,
			ReferenceID:   referenceID,
			CreatedAt:     now,
		}
		if err := s.repo.ApplyMovement(ctx, product, movement); err != nil {
			return err
		}
		if s.cache != nil && delta != 0 {
			// Dentro de uma aprovação ou troca, só depois do COMMIT externo.
			database.AfterCommit(ctx, func(ctx context.Context) {
				s.cache.Invalidate(ctx, productID)
			})
		}
		return nil
	})
	if err != nil {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
		telemetry.RecordError(span, err)
		s.logger.Warn("Movimentação de estoque recusada.", map[string]interface{}{
			"product_id":   productID,
			"kind":         kind,
			"reference_id": referenceID,
			"error":        err.Error(),
		})
		return domain.StockMovement{}, err
	}

	s.movements.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
	s.logger.Info("Movimentação de estoque registrada.", map[string]interface{}{
		"product_id":   productID,
		"kind":         kind,
		"stock_before": movement.StockBefore,
		"stock_after":  movement.StockAfter,
		"reference_id": referenceID,
	})
	return movement, nil
}

// Movements consulta o histórico. Usado para resolver um débito cujo resultado ficou desconhecido.
func (s *Service) Movements(ctx context.Context, filter domain.MovementFilter) ([]domain.StockMovement, error) {
	if filter.ProductID == "" && filter.ReferenceID == "" {
		return nil, apperror.NewValidationError("Informe product_id ou reference_id.")
	}
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, apperror.NewValidationError(fmt.Sprintf("Tipo de movimentação desconhecido: %s", filter.Kind))
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 500
	}
	return s.repo.ListMovements(ctx, filter)
}

// Audit reconstrói o saldo a partir do histórico e compara com products.stock.
func (s *Service) Audit(ctx context.Context, productID string) (domain.LedgerAudit, error) {
	var audit domain.LedgerAudit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		product, err := s.repo.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		movements, err := s.repo.ListMovements(ctx, domain.MovementFilter{ProductID: productID})
		if err != nil {
			return err
		}
		audit = Replay(product, movements)
		return nil
	})
	if err != nil {
		return domain.LedgerAudit{}, err
	}

	if !audit.Consistent {
		s.logger.Warn("Livro-razão divergente do saldo do produto.", map[string]interface{}{
			"product_id":   productID,
			"stock":        audit.Stock,
			"ledger_stock": audit.LedgerStock,
		})
	}
	return audit, nil
}

// Replay soma as movimentações: ENTRY − SALE_DEBIT + SALE_CREDIT + TRADE_REENTRY (DISCARD não altera o saldo).
func Replay(product domain.Product, movements []domain.StockMovement) domain.LedgerAudit {
	audit := domain.LedgerAudit{
		ProductID:      product.ID,
		Stock:          product.Stock,
		Totals:         make(map[domain.MovementKind]int),
		MovementsCount: len(movements),
	}
	for _, m := range movements {
		audit.Totals[m.Kind] += m.Quantity
		audit.LedgerStock += m.Kind.Sign() * m.Quantity
	}
	audit.Consistent = audit.LedgerStock == audit.Stock
	return audit
}
