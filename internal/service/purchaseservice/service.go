package purchaseservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/freight"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/notify"
	"goloja/internal/pkg/telemetry"
)

// PurchaseRepository define o contrato que a máquina de estados espera da camada de Persistência.
type PurchaseRepository interface {
	Create(ctx context.Context, purchase *domain.Purchase) error
	FindByID(ctx context.Context, id string) (domain.Purchase, error)
	// LockByID lê a compra com FOR UPDATE. Deve ser chamado dentro de WithinTx.
	LockByID(ctx context.Context, id string) (domain.Purchase, error)
	// Update grava a compra com OCC sobre Version e incrementa Version.
	Update(ctx context.Context, purchase *domain.Purchase) error
	ListByClient(ctx context.Context, clientID string) ([]domain.Purchase, error)
}

// ProductReader lê preço, peso e saldo dos produtos do carrinho.
type ProductReader interface {
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

// StockLedger é a parte do livro-razão usada nas transições.
type StockLedger interface {
	Debit(ctx context.Context, productID string, quantity int, referenceID string) (domain.StockMovement, error)
	Credit(ctx context.Context, productID string, quantity int, referenceID string, kind domain.MovementKind) (domain.StockMovement, error)
}

// CouponEngine aplica e consome cupons sobre a compra em memória.
type CouponEngine interface {
	ApplyPromotional(ctx context.Context, p *domain.Purchase, code string) (decimal.Decimal, error)
	ApplyGenerated(ctx context.Context, p *domain.Purchase, code string) (decimal.Decimal, error)
	ApplyOptimized(ctx context.Context, p *domain.Purchase, codes []string, policy domain.ChangePolicy) (domain.CouponSelection, error)
	RemoveCoupon(p *domain.Purchase, couponID string) error
	Finalize(ctx context.Context, p *domain.Purchase) (*domain.Coupon, error)
}

// CartValidator confere linhas contra o estoque.
type CartValidator interface {
	Validate(ctx context.Context, lines []domain.CartLine) (domain.CartValidation, error)
}

// TxRunner executa fn em uma transação.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps agrupa as dependências do serviço de compras.
type Deps struct {
	Repo     PurchaseRepository
	Products ProductReader
	Ledger   StockLedger
	Coupons  CouponEngine
	Cart     CartValidator
	Freight  freight.Calculator
	Notifier notify.Dispatcher
	Tx       TxRunner
	Logger   logger.Logger
}

// notifyTimeout limita a entrega de cada evento após o commit.
const notifyTimeout = 2 * time.Second

// Service é a máquina de estados da compra e o checkout.
type Service struct {
	repo     PurchaseRepository
	products ProductReader
	ledger   StockLedger
	coupons  CouponEngine
	cart     CartValidator
	freight  freight.Calculator
	notifier notify.Dispatcher
	tx       TxRunner
	logger   logger.Logger
	now      func() time.Time

	transitions metric.Int64Counter
}

// NewService cria e retorna uma nova instância do Serviço de Compras.
func NewService(d Deps) *Service {
	return &Service{
		repo:        d.Repo,
		products:    d.Products,
		ledger:      d.Ledger,
		coupons:     d.Coupons,
		cart:        d.Cart,
		freight:     d.Freight,
		notifier:    d.Notifier,
		tx:          d.Tx,
		logger:      d.Logger,
		now:         time.Now,
		transitions: telemetry.Counter("goloja.purchase.transitions", "Transições de status de compra confirmadas"),
	}
}

// WithClock troca o relógio usado nas datas de transição.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// mergeItems soma linhas repetidas do mesmo produto, preservando a ordem da primeira ocorrência.
func mergeItems(items []domain.CheckoutItem) ([]domain.CartLine, error) {
	index := make(map[string]int, len(items))
	lines := make([]domain.CartLine, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.ProductID) == "" {
			return nil, apperror.NewValidationError("Todo item precisa de product_id.")
		}
		if it.Quantity <= 0 {
			return nil, apperror.NewValidationError("A quantidade de cada item deve ser positiva.")
		}
		if i, ok := index[it.ProductID]; ok {
			lines[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(lines)
		lines = append(lines, domain.CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

// Checkout confere o carrinho, congela os preços, cota o frete e cria a compra em EM_PROCESSAMENTO.
// Se alguma linha precisar de ajuste a compra não é criada e o erro ErrCartNeedsReview traz o resultado.
func (s *Service) Checkout(ctx context.Context, clientID string, req domain.CheckoutRequest) (domain.Purchase, error) {
	if clientID == "" {
		return domain.Purchase{}, apperror.NewUnauthorizedError("Cliente não identificado.")
	}
	if len(req.Items) == 0 {
		return domain.Purchase{}, apperror.NewValidationError("O carrinho está vazio.")
	}
	cep := strings.TrimSpace(req.DeliveryCEP)
	if cep == "" {
		return domain.Purchase{}, apperror.NewValidationError("O CEP de entrega é obrigatório.")
	}

	lines, err := mergeItems(req.Items)
	if err != nil {
		return domain.Purchase{}, err
	}

	validation, err := s.cart.Validate(ctx, lines)
	if err != nil {
		return domain.Purchase{}, err
	}
	if !validation.Clean() {
		return domain.Purchase{}, apperror.ErrCartNeedsReview.With(
			"itens do carrinho foram ajustados ao estoque disponível",
			map[string]interface{}{"adjusted": validation.Adjusted, "removed": validation.Removed, "unchanged": validation.Unchanged},
		)
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return domain.Purchase{}, err
	}

	now := s.now().UTC()
	p := domain.Purchase{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		Status:      domain.PurchaseEmProcessamento,
		DeliveryCEP: cep,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	weight := decimal.Zero
	for _, l := range lines {
		product := products[l.ProductID]
		p.Orders = append(p.Orders, domain.CartOrder{
			ID:         uuid.NewString(),
			PurchaseID: p.ID,
			ProductID:  l.ProductID,
			Quantity:   l.Quantity,
			UnitPrice:  product.Price,
		})
		weight = weight.Add(product.WeightKg.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}

	quote, err := s.freight.Quote(ctx, cep, weight)
	if err != nil {
		return domain.Purchase{}, err
	}
	p.FreightValue = quote.Value
	p.FreightEtaDays = quote.EtaDays
	p.Recalculate()

	if err := s.repo.Create(ctx, &p); err != nil {
		return domain.Purchase{}, err
	}

	s.logger.Info("Compra criada.", map[string]interface{}{
		"purchase_id": p.ID,
		"client_id":   clientID,
		"items":       len(p.Orders),
		"total":       p.TotalPrice.StringFixed(2),
	})
	s.publish(ctx, domain.Event{
		Type:        domain.EventPurchaseStatusChanged,
		AggregateID: p.ID,
		ClientID:    clientID,
		To:          string(p.Status),
		OccurredAt:  now,
	})
	return p, nil
}

// authorize aplica a regra de papéis: cliente só cancela a própria compra; o resto é admin.
func authorize(actor domain.Actor, p domain.Purchase, target domain.PurchaseStatus) error {
	if actor.IsAdmin() {
		return nil
	}
	if target != domain.PurchaseCancelada {
		return apperror.NewForbiddenError(fmt.Sprintf("Somente administradores podem mover a compra para %s.", target))
	}
	if actor.UserID == "" || actor.UserID != p.ClientID {
		return apperror.NewForbiddenError("O cliente só pode cancelar a própria compra.")
	}
	return nil
}

// Transition move a compra para target aplicando os efeitos de estoque e cupons
// na mesma transação da gravação do status. Qualquer falha desfaz tudo.
func (s *Service) Transition(ctx context.Context, actor domain.Actor, purchaseID string, target domain.PurchaseStatus) (domain.Purchase, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "purchase.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("purchase.id", purchaseID),
		attribute.String("purchase.target", string(target)),
	)

	if !target.Valid() {
		return domain.Purchase{}, apperror.NewValidationError(fmt.Sprintf("Status desconhecido: %s", target))
	}

	var (
		out    domain.Purchase
		from   domain.PurchaseStatus
		minted *domain.Coupon
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.LockByID(ctx, purchaseID)
		if err != nil {
			return err
		}
		if err := authorize(actor, p, target); err != nil {
			return err
		}
		from = p.Status
		if !from.CanTransitionTo(target) {
			allowed := make([]string, 0, len(from.AllowedTransitions()))
			for _, st := range from.AllowedTransitions() {
				allowed = append(allowed, string(st))
			}
			return apperror.NewInvalidStatusTransition(string(from), string(target), allowed...)
		}

		now := s.now().UTC()
		switch target {
		case domain.PurchaseAprovada:
			if len(p.Orders) == 0 {
				return apperror.NewValidationError("A compra não possui itens.")
			}
			for _, o := range p.Orders {
				if _, err := s.ledger.Debit(ctx, o.ProductID, o.Quantity, p.ID); err != nil {
					return err
				}
			}
			if minted, err = s.coupons.Finalize(ctx, &p); err != nil {
				return err
			}
			p.ApprovedAt = &now
		case domain.PurchaseReprovada, domain.PurchaseCancelada:
			if from.StockDebited() {
				for _, o := range p.Orders {
					if _, err := s.ledger.Credit(ctx, o.ProductID, o.Quantity, p.ID, domain.MovementSaleCredit); err != nil {
						return err
					}
				}
			}
		case domain.PurchaseEmTransito:
			p.ShippedAt = &now
		case domain.PurchaseEntregue:
			p.DeliveredAt = &now
		}
		if target.IsTerminal() {
			p.ClosedAt = &now
		}

		p.Status = target
		p.UpdatedAt = now
		if err := s.repo.Update(ctx, &p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Transição de compra recusada.", map[string]interface{}{
			"purchase_id": purchaseID,
			"target":      target,
			"actor":       actor.UserID,
			"error":       err.Error(),
		})
		return domain.Purchase{}, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(target))))
	fields := map[string]interface{}{"purchase_id": purchaseID, "from": from, "to": target, "actor": actor.UserID}
	if from == domain.PurchaseEmProcessamento && (target == domain.PurchaseCancelada || target == domain.PurchaseReprovada) {
		fields["released_coupons"] = len(out.Coupons)
	}
	s.logger.Info("Status da compra alterado.", fields)

	s.publish(ctx, domain.Event{
		Type:        domain.EventPurchaseStatusChanged,
		AggregateID: out.ID,
		ClientID:    out.ClientID,
		From:        string(from),
		To:          string(target),
		OccurredAt:  out.UpdatedAt,
	})
	if minted != nil {
		s.publish(ctx, domain.Event{
			Type:        domain.EventCouponMinted,
			AggregateID: minted.ID,
			ClientID:    minted.ClientID,
			Data:        map[string]interface{}{"code": minted.Code, "type": minted.Type, "value": minted.Value.StringFixed(2), "origin_id": out.ID},
			OccurredAt:  out.UpdatedAt,
		})
	}
	return out, nil
}

// publish entrega o evento depois do commit. Falha só é registrada.
func (s *Service) publish(ctx context.Context, event domain.Event) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := s.notifier.Notify(nctx, event); err != nil {
		s.logger.Warn("Falha ao notificar evento.", map[string]interface{}{
			"type":         event.Type,
			"aggregate_id": event.AggregateID,
			"error":        err.Error(),
		})
	}
}

// mutatePending trava a compra do cliente em EM_PROCESSAMENTO, aplica fn e grava.
func (s *Service) mutatePending(ctx context.Context, clientID, purchaseID string, fn func(ctx context.Context, p *domain.Purchase) error) (domain.Purchase, error) {
	var out domain.Purchase
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.LockByID(ctx, purchaseID)
		if err != nil {
			return err
		}
		if p.ClientID != clientID {
			return apperror.NewForbiddenError("A compra pertence a outro cliente.")
		}
		if p.Status != domain.PurchaseEmProcessamento {
			return apperror.NewConflictError(fmt.Sprintf("A compra está em %s; só é possível alterá-la em %s.", p.Status, domain.PurchaseEmProcessamento))
		}
		if err := fn(ctx, &p); err != nil {
			return err
		}
		p.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, &p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// ApplyCoupon aplica um cupom promocional.
func (s *Service) ApplyCoupon(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error) {
	return s.mutatePending(ctx, clientID, purchaseID, func(ctx context.Context, p *domain.Purchase) error {
		_, err := s.coupons.ApplyPromotional(ctx, p, code)
		return err
	})
}

// ApplyGeneratedCoupon aplica um cupom TRADE/CHANGE.
func (s *Service) ApplyGeneratedCoupon(ctx context.Context, clientID, purchaseID, code string) (domain.Purchase, error) {
	return s.mutatePending(ctx, clientID, purchaseID, func(ctx context.Context, p *domain.Purchase) error {
		_, err := s.coupons.ApplyGenerated(ctx, p, code)
		return err
	})
}

// OptimizeCoupons escolhe e aplica os cupons gerados que melhor cobrem o saldo.
func (s *Service) OptimizeCoupons(ctx context.Context, clientID, purchaseID string, req domain.OptimizeCouponsRequest) (domain.Purchase, domain.CouponSelection, error) {
	var sel domain.CouponSelection
	p, err := s.mutatePending(ctx, clientID, purchaseID, func(ctx context.Context, p *domain.Purchase) error {
		var err error
		sel, err = s.coupons.ApplyOptimized(ctx, p, req.Codes, req.Policy)
		return err
	})
	if err != nil {
		return domain.Purchase{}, domain.CouponSelection{}, err
	}
	return p, sel, nil
}

// RemoveCoupon retira um cupom pendente.
func (s *Service) RemoveCoupon(ctx context.Context, clientID, purchaseID, couponID string) (domain.Purchase, error) {
	return s.mutatePending(ctx, clientID, purchaseID, func(_ context.Context, p *domain.Purchase) error {
		return s.coupons.RemoveCoupon(p, couponID)
	})
}

// Reconcile aplica à compra pendente os ajustes do validador de carrinho
// (limita quantidades e remove itens sem estoque). O frete cotado no checkout é mantido.
func (s *Service) Reconcile(ctx context.Context, clientID, purchaseID string) (domain.Purchase, domain.CartValidation, error) {
	var validation domain.CartValidation
	p, err := s.mutatePending(ctx, clientID, purchaseID, func(ctx context.Context, p *domain.Purchase) error {
		lines := make([]domain.CartLine, 0, len(p.Orders))
		for _, o := range p.Orders {
			lines = append(lines, domain.CartLine{OrderID: o.ID, ProductID: o.ProductID, Quantity: o.Quantity})
		}
		var err error
		validation, err = s.cart.Validate(ctx, lines)
		if err != nil {
			return err
		}

		drop := make(map[string]bool, len(validation.Removed))
		for _, r := range validation.Removed {
			drop[r.OrderID] = true
		}
		clamp := make(map[string]int, len(validation.Adjusted))
		for _, a := range validation.Adjusted {
			clamp[a.OrderID] = a.Quantity
		}

		kept := p.Orders[:0]
		for _, o := range p.Orders {
			if drop[o.ID] {
				continue
			}
			if q, ok := clamp[o.ID]; ok {
				o.Quantity = q
			}
			kept = append(kept, o)
		}
		p.Orders = kept
		p.Recalculate()
		return nil
	})
	if err != nil {
		return domain.Purchase{}, domain.CartValidation{}, err
	}
	if !validation.Clean() {
		s.logger.Info("Compra reconciliada com o estoque.", map[string]interface{}{
			"purchase_id": purchaseID,
			"adjusted":    len(validation.Adjusted),
			"removed":     len(validation.Removed),
		})
	}
	return p, validation, nil
}

// Get devolve a compra. Cliente só enxerga as próprias.
func (s *Service) Get(ctx context.Context, actor domain.Actor, purchaseID string) (domain.Purchase, error) {
	p, err := s.repo.FindByID(ctx, purchaseID)
	if err != nil {
		return domain.Purchase{}, err
	}
	if !actor.IsAdmin() && p.ClientID != actor.UserID {
		return domain.Purchase{}, apperror.NewNotFoundError(fmt.Sprintf("Compra com ID %s não existe.", purchaseID))
	}
	return p, nil
}

// ListForClient lista as compras do cliente, mais recentes primeiro.
func (s *Service) ListForClient(ctx context.Context, clientID string) ([]domain.Purchase, error) {
	purchases, err := s.repo.ListByClient(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if purchases == nil {
		purchases = []domain.Purchase{}
	}
	return purchases, nil
}
