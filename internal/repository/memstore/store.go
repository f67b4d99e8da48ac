// Package memstore implementa os contratos de repositório em memória.
// Um único mutex protege todo o estado; WithinTx segura o mutex durante a
// transação inteira e restaura um snapshot se fn falhar, o que dá às
// operações de estoque as mesmas garantias do caminho PostgreSQL
// (serialização por produto e atomicidade entre entidades).
package memstore

import (
	"context"
	"sync"

	"goloja/internal/domain"
	"goloja/internal/pkg/database"
)

type state struct {
	products     map[string]domain.Product
	movements    []domain.StockMovement
	purchases    map[string]domain.Purchase
	coupons      map[string]domain.Coupon
	couponUsages []domain.CouponUsage
	trades       map[string]domain.Trade
}

func newState() *state {
	return &state{
		products:  make(map[string]domain.Product),
		purchases: make(map[string]domain.Purchase),
		coupons:   make(map[string]domain.Coupon),
		trades:    make(map[string]domain.Trade),
	}
}

func (st *state) clone() *state {
	out := newState()
	for k, v := range st.products {
		out.products[k] = v
	}
	out.movements = append([]domain.StockMovement(nil), st.movements...)
	for k, v := range st.purchases {
		out.purchases[k] = copyPurchase(v)
	}
	for k, v := range st.coupons {
		out.coupons[k] = v
	}
	out.couponUsages = append([]domain.CouponUsage(nil), st.couponUsages...)
	for k, v := range st.trades {
		out.trades[k] = v
	}
	return out
}

func copyPurchase(p domain.Purchase) domain.Purchase {
	p.Orders = append([]domain.CartOrder(nil), p.Orders...)
	p.Coupons = append([]domain.AppliedCoupon(nil), p.Coupons...)
	return p
}

// Store guarda todas as entidades do GoLoja em memória.
type Store struct {
	mu sync.Mutex
	st *state
}

// New cria um store vazio.
func New() *Store {
	return &Store{st: newState()}
}

type txKey struct{ s *Store }

func (s *Store) inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{s}).(bool)
	return v
}

// WithinTx executa fn com o store bloqueado. Se fn falhar, o estado volta ao snapshot.
// Chamadas aninhadas reaproveitam a transação externa.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	hookCtx, runHooks := database.WithCommitHooks(ctx)
	if err := s.locked(func() error {
		snapshot := s.st.clone()
		if err := fn(context.WithValue(hookCtx, txKey{s}, true)); err != nil {
			s.st = snapshot
			return err
		}
		return nil
	}); err != nil {
		return err
	}
	// Ganchos de AfterCommit rodam com o store já liberado.
	runHooks()
	return nil
}

func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

// run executa fn sobre o estado, bloqueando apenas quando não há transação aberta.
func (s *Store) run(ctx context.Context, fn func(st *state) error) error {
	if s.inTx(ctx) {
		return fn(s.st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

// Products devolve o repositório de catálogo.
func (s *Store) Products() *ProductRepository { return &ProductRepository{s: s} }

// Stock devolve o repositório do livro-razão.
func (s *Store) Stock() *StockRepository { return &StockRepository{s: s} }

// Purchases devolve o repositório de compras.
func (s *Store) Purchases() *PurchaseRepository { return &PurchaseRepository{s: s} }

// Coupons devolve o repositório de cupons.
func (s *Store) Coupons() *CouponRepository { return &CouponRepository{s: s} }

// Trades devolve o repositório de trocas.
func (s *Store) Trades() *TradeRepository { return &TradeRepository{s: s} }
