package couponservice

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"goloja/internal/domain"
	apperror "goloja/internal/errors"
	"goloja/internal/pkg/logger"
	"goloja/internal/pkg/telemetry"
)

// CouponRepository define o contrato que o motor de cupons espera da camada de Persistência.
type CouponRepository interface {
	Create(ctx context.Context, coupon domain.Coupon) error
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	FindByID(ctx context.Context, id string) (domain.Coupon, error)
	LockByID(ctx context.Context, id string) (domain.Coupon, error)
	Update(ctx context.Context, coupon domain.Coupon) error
	CountUsages(ctx context.Context, couponID, clientID string) (int, error)
	RecordUsage(ctx context.Context, usage domain.CouponUsage) error
	ListByClient(ctx context.Context, clientID string) ([]domain.Coupon, error)
}

// Service aplica, otimiza, consome e emite cupons.
// Os métodos que recebem *domain.Purchase só alteram a compra em memória;
// quem persiste é o purchaseservice, dentro da transação dele.
type Service struct {
	repo   CouponRepository
	logger logger.Logger
	now    func() time.Time

	minted metric.Int64Counter
}

// NewService cria e retorna uma nova instância do motor de cupons.
func NewService(repo CouponRepository, logger logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		minted: telemetry.Counter("goloja.coupons.minted", "Cupons TRADE/CHANGE emitidos"),
	}
}

// WithClock troca o relógio usado para validade e datas.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newCode(prefix string) string {
	return prefix + "-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// lookup busca pelo código e traduz NotFound para ErrCouponNotFound.
func (s *Service) lookup(ctx context.Context, code string) (domain.Coupon, error) {
	code = normalizeCode(code)
	if code == "" {
		return domain.Coupon{}, apperror.NewValidationError("O código do cupom é obrigatório.")
	}
	coupon, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		var notFound *apperror.NotFoundError
		if errors.As(err, &notFound) {
			return domain.Coupon{}, apperror.ErrCouponNotFound.With(
				fmt.Sprintf("cupom %s não encontrado", code),
				map[string]interface{}{"code": code},
			)
		}
		return domain.Coupon{}, err
	}
	return coupon, nil
}

// checkUsable verifica as regras comuns a qualquer cupom: ativo e dentro da validade.
func (s *Service) checkUsable(c domain.Coupon) error {
	if !c.IsActive {
		return apperror.ErrCouponInactive.With(fmt.Sprintf("cupom %s está inativo", c.Code), map[string]interface{}{"code": c.Code})
	}
	if c.ExpiredAt(s.now()) {
		return apperror.ErrCouponExpired.With(
			fmt.Sprintf("cupom %s expirou", c.Code),
			map[string]interface{}{"code": c.Code, "expires_at": c.ExpiresAt},
		)
	}
	return nil
}

// checkGenerated valida um cupom TRADE/CHANGE para uso na compra.
func (s *Service) checkGenerated(p *domain.Purchase, c domain.Coupon) error {
	if !c.Type.IsGenerated() {
		return apperror.ErrInvalidCouponType.With(
			fmt.Sprintf("cupom %s é %s; use a aplicação de cupom promocional", c.Code, c.Type),
			map[string]interface{}{"code": c.Code, "type": c.Type},
		)
	}
	if c.ClientID != p.ClientID {
		return apperror.ErrCouponNotOwned.With(fmt.Sprintf("cupom %s pertence a outro cliente", c.Code), map[string]interface{}{"code": c.Code})
	}
	if err := s.checkUsable(c); err != nil {
		return err
	}
	if p.HasCoupon(c.ID) {
		return apperror.NewConflictError(fmt.Sprintf("Cupom %s já está aplicado nesta compra.", c.Code))
	}
	return nil
}

func (s *Service) attach(p *domain.Purchase, c domain.Coupon) {
	p.Coupons = append(p.Coupons, domain.AppliedCoupon{
		CouponID:  c.ID,
		Code:      c.Code,
		Type:      c.Type,
		FaceValue: c.Value,
		AppliedAt: s.now().UTC(),
	})
	p.Recalculate()
}

func checkMinOrderValue(p *domain.Purchase, coupon domain.Coupon) error {
	if p.Subtotal.LessThan(coupon.MinOrderValue) {
		return apperror.ErrMinValueNotMet.With(
			fmt.Sprintf("cupom %s exige compra mínima de %s", coupon.Code, coupon.MinOrderValue.StringFixed(2)),
			map[string]interface{}{"code": coupon.Code, "subtotal": p.Subtotal.StringFixed(2), "min_order_value": coupon.MinOrderValue.StringFixed(2)},
		)
	}
	return nil
}

// ApplyPromotional aplica um cupom promocional e devolve o novo total. Nada é consumido aqui.
func (s *Service) ApplyPromotional(ctx context.Context, p *domain.Purchase, code string) (decimal.Decimal, error) {
	coupon, err := s.lookup(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if coupon.Type != domain.CouponPromotional {
		return decimal.Zero, apperror.ErrInvalidCouponType.With(
			fmt.Sprintf("cupom %s é %s; use a aplicação de cupom gerado", coupon.Code, coupon.Type),
			map[string]interface{}{"code": coupon.Code, "type": coupon.Type},
		)
	}
	if current, ok := p.PromotionalCoupon(); ok {
		return decimal.Zero, apperror.ErrPromotionalLimitExceeded.With(
			fmt.Sprintf("a compra já possui o cupom promocional %s", current.Code),
			map[string]interface{}{"applied_code": current.Code, "code": coupon.Code},
		)
	}
	if err := s.checkUsable(coupon); err != nil {
		return decimal.Zero, err
	}

	p.Recalculate()
	if err := checkMinOrderValue(p, coupon); err != nil {
		return decimal.Zero, err
	}
	if err := s.checkUsageLimit(ctx, coupon, p.ClientID); err != nil {
		return decimal.Zero, err
	}

	s.attach(p, coupon)
	s.logger.Info("Cupom promocional aplicado.", map[string]interface{}{"purchase_id": p.ID, "code": coupon.Code, "total": p.TotalPrice.StringFixed(2)})
	return p.TotalPrice, nil
}

func (s *Service) checkUsageLimit(ctx context.Context, c domain.Coupon, clientID string) error {
	if c.UsageLimit <= 0 {
		return nil
	}
	used, err := s.repo.CountUsages(ctx, c.ID, clientID)
	if err != nil {
		return err
	}
	if used >= c.UsageLimit {
		return apperror.ErrCouponUsageLimitReached.With(
			fmt.Sprintf("cupom %s já foi usado %d vez(es) por este cliente", c.Code, used),
			map[string]interface{}{"code": c.Code, "usage_limit": c.UsageLimit, "used": used},
		)
	}
	return nil
}

// ApplyGenerated aplica um cupom TRADE ou CHANGE do próprio cliente.
// Não há valor mínimo nem limite de um por compra.
func (s *Service) ApplyGenerated(ctx context.Context, p *domain.Purchase, code string) (decimal.Decimal, error) {
	coupon, err := s.lookup(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.checkGenerated(p, coupon); err != nil {
		return decimal.Zero, err
	}

	p.Recalculate()
	if !p.Balance().IsPositive() {
		return decimal.Zero, apperror.ErrCouponNotNeeded.With(
			fmt.Sprintf("a compra %s não tem saldo a pagar", p.ID),
			map[string]interface{}{"purchase_id": p.ID, "code": coupon.Code},
		)
	}

	s.attach(p, coupon)
	s.logger.Info("Cupom gerado aplicado.", map[string]interface{}{"purchase_id": p.ID, "code": coupon.Code, "type": coupon.Type, "change_due": p.ChangeDue.StringFixed(2)})
	return p.TotalPrice, nil
}

// RemoveCoupon retira da compra um cupom ainda não consumido.
func (s *Service) RemoveCoupon(p *domain.Purchase, couponID string) error {
	for i, c := range p.Coupons {
		if c.CouponID != couponID {
			continue
		}
		if c.Consumed {
			return apperror.NewConflictError(fmt.Sprintf("Cupom %s já foi consumido e não pode ser removido.", c.Code))
		}
		p.Coupons = append(p.Coupons[:i], p.Coupons[i+1:]...)
		p.Recalculate()
		return nil
	}
	return apperror.ErrCouponNotFound.With(
		fmt.Sprintf("cupom %s não está aplicado na compra", couponID),
		map[string]interface{}{"coupon_id": couponID, "purchase_id": p.ID},
	)
}

// ApplyOptimized resolve os códigos, roda o otimizador sobre o saldo da compra e aplica a seleção.
func (s *Service) ApplyOptimized(ctx context.Context, p *domain.Purchase, codes []string, policy domain.ChangePolicy) (domain.CouponSelection, error) {
	if policy == "" {
		policy = domain.ChangeAvoid
	}
	if policy != domain.ChangeAvoid && policy != domain.ChangeAllow {
		return domain.CouponSelection{}, apperror.NewValidationError(fmt.Sprintf("Política de troco desconhecida: %s", policy))
	}
	if len(codes) == 0 {
		return domain.CouponSelection{}, apperror.NewValidationError("Informe ao menos um código de cupom.")
	}

	seen := make(map[string]bool, len(codes))
	candidates := make([]domain.Coupon, 0, len(codes))
	for _, code := range codes {
		code = normalizeCode(code)
		if seen[code] {
			continue
		}
		seen[code] = true

		coupon, err := s.lookup(ctx, code)
		if err != nil {
			return domain.CouponSelection{}, err
		}
		if err := s.checkGenerated(p, coupon); err != nil {
			return domain.CouponSelection{}, err
		}
		candidates = append(candidates, coupon)
	}

	p.Recalculate()
	if !p.Balance().IsPositive() {
		return domain.CouponSelection{}, apperror.ErrCouponNotNeeded.With(
			fmt.Sprintf("a compra %s não tem saldo a pagar", p.ID),
			map[string]interface{}{"purchase_id": p.ID},
		)
	}

	sel := OptimizeForNoChange(p.Balance(), candidates, policy)
	for _, use := range sel.Selected {
		s.attach(p, use.Coupon)
	}

	s.logger.Info("Cupons otimizados aplicados.", map[string]interface{}{
		"purchase_id": p.ID,
		"policy":      policy,
		"selected":    len(sel.Selected),
		"remaining":   sel.Remaining.StringFixed(2),
		"change":      sel.Change.StringFixed(2),
	})
	return sel, nil
}

// Finalize consome os cupons pendentes da compra aprovada e emite o cupom de troco, se houver.
// Deve rodar na transação da aprovação.
func (s *Service) Finalize(ctx context.Context, p *domain.Purchase) (*domain.Coupon, error) {
	now := s.now().UTC()
	p.Recalculate()
	for i := range p.Coupons {
		applied := &p.Coupons[i]
		if applied.Consumed {
			continue
		}

		coupon, err := s.repo.LockByID(ctx, applied.CouponID)
		if err != nil {
			return nil, err
		}
		if err := s.checkUsable(coupon); err != nil {
			return nil, err
		}

		if coupon.Type == domain.CouponPromotional {
			// Itens podem ter sido reduzidos depois da aplicação (Reconcile).
			if err := checkMinOrderValue(p, coupon); err != nil {
				return nil, err
			}
			if err := s.checkUsageLimit(ctx, coupon, p.ClientID); err != nil {
				return nil, err
			}
			if err := s.repo.RecordUsage(ctx, domain.CouponUsage{
				ID:         uuid.NewString(),
				CouponID:   coupon.ID,
				ClientID:   p.ClientID,
				PurchaseID: p.ID,
				UsedAt:     now,
			}); err != nil {
				return nil, err
			}
			coupon.UsageCount++
		} else {
			// Cupom gerado é de uso único: consumido inteiro, o excedente vira troco.
			coupon.UsageCount = 1
			coupon.IsActive = false
		}
		coupon.UpdatedAt = now
		if err := s.repo.Update(ctx, coupon); err != nil {
			return nil, err
		}
		applied.Consumed = true
	}

	p.Recalculate()
	if !p.ChangeDue.IsPositive() {
		return nil, nil
	}
	change, err := s.MintChangeCoupon(ctx, *p, p.ChangeDue)
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// MintChangeCoupon emite um cupom CHANGE com o valor pago a mais.
func (s *Service) MintChangeCoupon(ctx context.Context, p domain.Purchase, overpaid decimal.Decimal) (domain.Coupon, error) {
	if !overpaid.IsPositive() {
		return domain.Coupon{}, apperror.ErrNoOverpayment.With(
			fmt.Sprintf("compra %s não tem valor excedente", p.ID),
			map[string]interface{}{"purchase_id": p.ID, "overpaid": overpaid.StringFixed(2)},
		)
	}
	return s.mint(ctx, domain.CouponChange, "TROCO", p.ClientID, p.ID, overpaid)
}

// MintTradeCoupon emite o cupom TRADE de uma troca recebida.
// Um segundo cupom para a mesma troca falha com ErrDuplicateCouponGen.
func (s *Service) MintTradeCoupon(ctx context.Context, t domain.Trade) (domain.Coupon, error) {
	if !t.Value.IsPositive() {
		return domain.Coupon{}, apperror.NewValidationError("O valor da troca deve ser positivo.")
	}
	return s.mint(ctx, domain.CouponTrade, "TROCA", t.ClientID, t.ID, t.Value)
}

func (s *Service) mint(ctx context.Context, kind domain.CouponType, prefix, clientID, originID string, value decimal.Decimal) (domain.Coupon, error) {
	now := s.now().UTC()
	coupon := domain.Coupon{
		ID:            uuid.NewString(),
		Code:          newCode(prefix),
		ClientID:      clientID,
		Type:          kind,
		Value:         value.Round(2),
		MinOrderValue: decimal.Zero,
		UsageLimit:    1,
		IsActive:      true,
		OriginID:      originID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return domain.Coupon{}, err
	}

	s.minted.Add(ctx, 1, metric.WithAttributes(attribute.String("type", string(kind))))
	s.logger.Info("Cupom emitido.", map[string]interface{}{
		"coupon_id": coupon.ID,
		"code":      coupon.Code,
		"type":      kind,
		"value":     coupon.Value.StringFixed(2),
		"client_id": clientID,
		"origin_id": originID,
	})
	return coupon, nil
}

// CreatePromotional cadastra um cupom promocional (admin).
// UsageLimit zero significa uso ilimitado por cliente.
func (s *Service) CreatePromotional(ctx context.Context, input domain.PromotionalCouponInput) (domain.Coupon, error) {
	code := normalizeCode(input.Code)
	if code == "" {
		return domain.Coupon{}, apperror.NewValidationError("O código do cupom é obrigatório.")
	}
	if !input.Value.IsPositive() {
		return domain.Coupon{}, apperror.NewValidationError("O valor do cupom deve ser positivo.")
	}
	if input.MinOrderValue.IsNegative() {
		return domain.Coupon{}, apperror.NewValidationError("O valor mínimo da compra não pode ser negativo.")
	}
	if input.UsageLimit < 0 {
		return domain.Coupon{}, apperror.NewValidationError("O limite de uso não pode ser negativo.")
	}
	now := s.now().UTC()
	if input.ExpiresAt != nil && !input.ExpiresAt.After(now) {
		return domain.Coupon{}, apperror.NewValidationError("A validade do cupom deve estar no futuro.")
	}

	coupon := domain.Coupon{
		ID:            uuid.NewString(),
		Code:          code,
		Type:          domain.CouponPromotional,
		Value:         input.Value.Round(2),
		MinOrderValue: input.MinOrderValue.Round(2),
		UsageLimit:    input.UsageLimit,
		IsActive:      true,
		ExpiresAt:     input.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		return domain.Coupon{}, err
	}
	s.logger.Info("Cupom promocional criado.", map[string]interface{}{"coupon_id": coupon.ID, "code": code})
	return coupon, nil
}

// Deactivate desativa um cupom. Compras que já o aplicaram falham na aprovação.
func (s *Service) Deactivate(ctx context.Context, couponID string) (domain.Coupon, error) {
	coupon, err := s.repo.FindByID(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	if !coupon.IsActive {
		return coupon, nil
	}
	coupon.IsActive = false
	coupon.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, coupon); err != nil {
		return domain.Coupon{}, err
	}
	s.logger.Info("Cupom desativado.", map[string]interface{}{"coupon_id": coupon.ID, "code": coupon.Code})
	return coupon, nil
}

// GetByCode busca um cupom pelo código.
func (s *Service) GetByCode(ctx context.Context, code string) (domain.Coupon, error) {
	return s.lookup(ctx, code)
}

// ListForClient lista os cupons gerados para o cliente.
func (s *Service) ListForClient(ctx context.Context, clientID string) ([]domain.Coupon, error) {
	return s.repo.ListByClient(ctx, clientID)
}
