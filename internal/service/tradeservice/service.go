package tradeservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/notify"
	"goloja/internal/pkg/telemetry"
)

// DefaultWindow é o prazo de troca contado a partir da entrega.
const DefaultWindow = 30 * 24 * time.Hour

const notifyTimeout = 2 * time.Second

// TradeRepository define o contrato que o fluxo de trocas espera da camada de Persistência.
type TradeRepository interface {
	Create(ctx context.Context, trade domain.Trade) error
	FindByID(ctx context.Context, id string) (domain.Trade, error)
	LockByID(ctx context.Context, id string) (domain.Trade, error)
	Update(ctx context.Context, trade domain.Trade) error
	ListByPurchase(ctx context.Context, purchaseID string) ([]domain.Trade, error)
	SumOpenQuantity(ctx context.Context, cartOrderID string) (int, error)
}

// PurchaseRepository é a parte do repositório de compras usada pelas trocas.
type PurchaseRepository interface {
	FindByID(ctx context.Context, id string) (domain.Purchase, error)
	LockByID(ctx context.Context, id string) (domain.Purchase, error)
	// IncrementRefund soma ao quantity_refund do item sem ultrapassar quantity.
	IncrementRefund(ctx context.Context, orderID string, quantity int) error
}

// StockLedger é a parte do livro-razão usada no recebimento.
type StockLedger interface {
	Credit(ctx context.Context, productID string, quantity int, referenceID string, kind domain.MovementKind) (domain.StockMovement, error)
	Discard(ctx context.Context, productID string, quantity int, referenceID string) (domain.StockMovement, error)
}

// CouponMinter emite o cupom TRADE.
type CouponMinter interface {
	MintTradeCoupon(ctx context.Context, t domain.Trade) (domain.Coupon, error)
}

// TxRunner executa fn em uma transação.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Deps agrupa as dependências do fluxo de trocas.
type Deps struct {
	Repo      TradeRepository
	Purchases PurchaseRepository
	Ledger    StockLedger
	Coupons   CouponMinter
	Notifier  notify.Dispatcher
	Tx        TxRunner
	Logger    logger.Logger
	// Window é o prazo de troca após a entrega. Zero usa DefaultWindow.
	Window time.Duration
}

// Service conduz as solicitações de troca até a emissão do cupom.
type Service struct {
	repo      TradeRepository
	purchases PurchaseRepository
	ledger    StockLedger
	coupons   CouponMinter
	notifier  notify.Dispatcher
	tx        TxRunner
	logger    logger.Logger
	window    time.Duration
	now       func() time.Time
}

// NewService cria e retorna uma nova instância do Serviço de Trocas.
func NewService(d Deps) *Service {
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		repo:      d.Repo,
		purchases: d.Purchases,
		ledger:    d.Ledger,
		coupons:   d.Coupons,
		notifier:  d.Notifier,
		tx:        d.Tx,
		logger:    d.Logger,
		window:    window,
		now:       time.Now,
	}
}

// WithClock troca o relógio usado no prazo de troca.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestTrade abre uma troca sobre um item de compra entregue.
// Trocas ainda abertas sobre o mesmo item contam contra a quantidade disponível.
func (s *Service) RequestTrade(ctx context.Context, clientID string, req domain.TradeRequest) (domain.Trade, error) {
	if req.Quantity <= 0 {
		return domain.Trade{}, apperror.NewValidationError("A quantidade da troca deve ser positiva.")
	}
	if req.PurchaseID == "" || req.CartOrderID == "" {
		return domain.Trade{}, apperror.NewValidationError("purchase_id e cart_order_id são obrigatórios.")
	}

	var trade domain.Trade
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// trava a compra para serializar pedidos concorrentes sobre os mesmos itens
		p, err := s.purchases.LockByID(ctx, req.PurchaseID)
		if err != nil {
			return err
		}
		if p.ClientID != clientID {
			return apperror.NewNotFoundError(fmt.Sprintf("Compra com ID %s não existe.", req.PurchaseID))
		}
		if p.Status != domain.PurchaseEntregue || p.DeliveredAt == nil {
			return apperror.ErrNotDelivered.With(
				fmt.Sprintf("compra %s está em %s", p.ID, p.Status),
				map[string]interface{}{"purchase_id": p.ID, "status": p.Status},
			)
		}

		now := s.now().UTC()
		deadline := p.DeliveredAt.Add(s.window)
		if now.After(deadline) {
			return apperror.ErrTradeWindowExpired.With(
				fmt.Sprintf("prazo de troca encerrado em %s", deadline.Format(time.RFC3339)),
				map[string]interface{}{"purchase_id": p.ID, "delivered_at": p.DeliveredAt, "deadline": deadline},
			)
		}

		order, ok := p.Order(req.CartOrderID)
		if !ok {
			return apperror.NewNotFoundError(fmt.Sprintf("Item %s não pertence à compra %s.", req.CartOrderID, p.ID))
		}
		open, err := s.repo.SumOpenQuantity(ctx, order.ID)
		if err != nil {
			return err
		}
		available := order.AvailableRefundQuantity() - open
		if req.Quantity > available {
			return apperror.ErrRefundQuantityExceeded.With(
				fmt.Sprintf("item %s: disponível %d, solicitado %d", order.ID, available, req.Quantity),
				map[string]interface{}{"order_id": order.ID, "available": available, "requested": req.Quantity, "open_trades": open},
			)
		}

		trade = domain.Trade{
			ID:          uuid.NewString(),
			PurchaseID:  p.ID,
			CartOrderID: order.ID,
			ProductID:   order.ProductID,
			ClientID:    clientID,
			Quantity:    req.Quantity,
			Value:       order.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
			Status:      domain.TradeSolicitada,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return s.repo.Create(ctx, trade)
	})
	if err != nil {
		s.logger.Warn("Solicitação de troca recusada.", map[string]interface{}{
			"purchase_id": req.PurchaseID,
			"order_id":    req.CartOrderID,
			"quantity":    req.Quantity,
			"error":       err.Error(),
		})
		return domain.Trade{}, err
	}

	s.logger.Info("Troca solicitada.", map[string]interface{}{"trade_id": trade.ID, "purchase_id": trade.PurchaseID, "quantity": trade.Quantity})
	s.publish(ctx, trade, "", nil)
	return trade, nil
}

// move aplica uma transição simples da troca.
func (s *Service) move(ctx context.Context, tradeID string, target domain.TradeStatus, fn func(t *domain.Trade) error) (domain.Trade, error) {
	var (
		out  domain.Trade
		from domain.TradeStatus
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.LockByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if fn != nil {
			if err := fn(&t); err != nil {
				return err
			}
		}
		from = t.Status
		if !from.CanTransitionTo(target) {
			return apperror.NewInvalidTradeTransition(string(from), string(target))
		}
		t.Status = target
		t.UpdatedAt = s.now().UTC()
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return domain.Trade{}, err
	}
	s.logger.Info("Status da troca alterado.", map[string]interface{}{"trade_id": tradeID, "from": from, "to": target})
	s.publish(ctx, out, from, nil)
	return out, nil
}

// Authorize aceita a solicitação (admin).
func (s *Service) Authorize(ctx context.Context, tradeID string) (domain.Trade, error) {
	return s.move(ctx, tradeID, domain.TradeAutorizada, nil)
}

// Reject recusa a solicitação (admin). Não há efeito de estoque.
func (s *Service) Reject(ctx context.Context, tradeID, reason string) (domain.Trade, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Trade{}, apperror.NewValidationError("Informe o motivo da recusa.")
	}
	return s.move(ctx, tradeID, domain.TradeRejeitada, func(t *domain.Trade) error {
		t.Reason = reason
		return nil
	})
}

// Cancel desiste da troca ainda não avaliada (cliente dono).
func (s *Service) Cancel(ctx context.Context, clientID, tradeID string) (domain.Trade, error) {
	return s.move(ctx, tradeID, domain.TradeCancelada, func(t *domain.Trade) error {
		if t.ClientID != clientID {
			return apperror.NewForbiddenError("A troca pertence a outro cliente.")
		}
		return nil
	})
}

// Conclude encerra a troca já recebida.
func (s *Service) Conclude(ctx context.Context, tradeID string) (domain.Trade, error) {
	return s.move(ctx, tradeID, domain.TradeConcluida, nil)
}

// ReceiveAndGenerateCoupon registra o item recebido e emite o cupom da troca em uma única transação:
// incrementa a quantidade trocada do item, devolve ao estoque (ou descarta) e gera exatamente um cupom TRADE.
func (s *Service) ReceiveAndGenerateCoupon(ctx context.Context, tradeID string, cond domain.ItemCondition) (domain.Trade, domain.Coupon, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "trade.receive")
	defer span.End()
	span.SetAttributes(attribute.String("trade.id", tradeID), attribute.Bool("trade.resellable", cond.Resellable))

	var (
		out    domain.Trade
		coupon domain.Coupon
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		t, err := s.repo.LockByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if t.HasCoupon() {
			return apperror.ErrDuplicateCouponGen.With(
				fmt.Sprintf("troca %s já gerou o cupom %s", t.ID, t.CouponID),
				map[string]interface{}{"trade_id": t.ID, "coupon_id": t.CouponID},
			)
		}
		if !t.Status.CanTransitionTo(domain.TradeRecebida) {
			return apperror.NewInvalidTradeTransition(string(t.Status), string(domain.TradeRecebida))
		}

		if err := s.purchases.IncrementRefund(ctx, t.CartOrderID, t.Quantity); err != nil {
			return err
		}
		if cond.Resellable {
			_, err = s.ledger.Credit(ctx, t.ProductID, t.Quantity, t.ID, domain.MovementTradeReentry)
		} else {
			_, err = s.ledger.Discard(ctx, t.ProductID, t.Quantity, t.ID)
		}
		if err != nil {
			return err
		}

		coupon, err = s.coupons.MintTradeCoupon(ctx, t)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		resellable := cond.Resellable
		t.Status = domain.TradeRecebida
		t.Resellable = &resellable
		t.CouponID = coupon.ID
		t.ReceivedAt = &now
		t.UpdatedAt = now
		if err := s.repo.Update(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Recebimento de troca recusado.", map[string]interface{}{"trade_id": tradeID, "error": err.Error()})
		return domain.Trade{}, domain.Coupon{}, err
	}

	s.logger.Info("Troca recebida e cupom emitido.", map[string]interface{}{
		"trade_id":   out.ID,
		"coupon_id":  coupon.ID,
		"value":      coupon.Value.StringFixed(2),
		"resellable": cond.Resellable,
	})
	s.publish(ctx, out, domain.TradeAutorizada, &coupon)
	return out, coupon, nil
}

// Get devolve a troca. Cliente só enxerga as próprias.
func (s *Service) Get(ctx context.Context, actor domain.Actor, tradeID string) (domain.Trade, error) {
	t, err := s.repo.FindByID(ctx, tradeID)
	if err != nil {
		return domain.Trade{}, err
	}
	if !actor.IsAdmin() && t.ClientID != actor.UserID {
		return domain.Trade{}, apperror.NewNotFoundError(fmt.Sprintf("Troca com ID %s não existe.", tradeID))
	}
	return t, nil
}

// ListForPurchase lista as trocas de uma compra.
func (s *Service) ListForPurchase(ctx context.Context, actor domain.Actor, purchaseID string) ([]domain.Trade, error) {
	p, err := s.purchases.FindByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && p.ClientID != actor.UserID {
		return nil, apperror.NewNotFoundError(fmt.Sprintf("Compra com ID %s não existe.", purchaseID))
	}
	trades, err := s.repo.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if trades == nil {
		trades = []domain.Trade{}
	}
	return trades, nil
}

func (s *Service) publish(ctx context.Context, t domain.Trade, from domain.TradeStatus, coupon *domain.Coupon) {
	if s.notifier == nil {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	events := []domain.Event{{
		Type:        domain.EventTradeStatusChanged,
		AggregateID: t.ID,
		ClientID:    t.ClientID,
		From:        string(from),
		To:          string(t.Status),
		Data:        map[string]interface{}{"purchase_id": t.PurchaseID, "quantity": t.Quantity},
		OccurredAt:  t.UpdatedAt,
	}}
	if coupon != nil {
		events = append(events, domain.Event{
			Type:        domain.EventCouponMinted,
			AggregateID: coupon.ID,
			ClientID:    coupon.ClientID,
			Data:        map[string]interface{}{"code": coupon.Code, "type": coupon.Type, "value": coupon.Value.StringFixed(2), "origin_id": t.ID},
			OccurredAt:  t.UpdatedAt,
		})
	}
	for _, e := range events {
		if err := s.notifier.Notify(nctx, e); err != nil {
			s.logger.Warn("Falha ao notificar evento.", map[string]interface{}{"type": e.Type, "aggregate_id": e.AggregateID, "error": err.Error()})
		}
	}
}
