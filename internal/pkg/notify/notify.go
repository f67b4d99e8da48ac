package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"goloja/internal/domain"
	"goloja/internal/pkg/cache"
	"goloja/internal/pkg/logger"
)

// Dispatcher entrega eventos de transição já confirmados.
// Falhas de entrega são só registradas: nunca desfazem a operação de origem.
type Dispatcher interface {
	Notify(ctx context.Context, event domain.Event) error
}

// RedisDispatcher publica o evento em JSON em um canal pub/sub.
type RedisDispatcher struct {
	Publisher cache.Publisher
	Channel   string
}

// NewRedisDispatcher cria o despachante sobre o cliente Redis.
func NewRedisDispatcher(p cache.Publisher, channel string) *RedisDispatcher {
	return &RedisDispatcher{Publisher: p, Channel: channel}
}

func (d *RedisDispatcher) Notify(ctx context.Context, event domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("falha ao serializar evento %s: %w", event.Type, err)
	}
	if err := d.Publisher.Publish(ctx, d.Channel, payload); err != nil {
		return fmt.Errorf("falha ao publicar evento %s: %w", event.Type, err)
	}
	return nil
}

// LogDispatcher apenas registra o evento. Usado sem Redis.
type LogDispatcher struct {
	Logger logger.Logger
}

func (d *LogDispatcher) Notify(_ context.Context, event domain.Event) error {
	d.Logger.Info("Evento de domínio", map[string]interface{}{
		"type":         event.Type,
		"aggregate_id": event.AggregateID,
		"from":         event.From,
		"to":           event.To,
	})
	return nil
}

// Recorder guarda os eventos em memória. Usado nos testes.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *Recorder) Notify(_ context.Context, event domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events devolve uma cópia dos eventos recebidos.
func (r *Recorder) Events() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Event, len(r.events))
	copy(out, r.events)
	return out
}
