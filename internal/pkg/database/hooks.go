package database

import (
	"context"
	"sync"
)

type hooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func(ctx context.Context)
}

// AfterCommit agenda fn para depois do COMMIT da transação mais externa do contexto.
// Sem transação aberta, fn roda na hora. Se a transação for desfeita, fn é descartada.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if h, ok := ctx.Value(hooksKey{}).(*commitHooks); ok {
		h.mu.Lock()
		h.fns = append(h.fns, fn)
		h.mu.Unlock()
		return
	}
	fn(ctx)
}

// WithCommitHooks prepara o contexto da transação mais externa para acumular ganchos.
// run executa os ganchos acumulados com ctx original, fora da transação.
func WithCommitHooks(ctx context.Context) (txCtx context.Context, run func()) {
	h := &commitHooks{}
	return context.WithValue(ctx, hooksKey{}, h), func() {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn(ctx)
		}
	}
}
