package bus

import "context"

// Listener — подписчик на событие.
//
// Контракт: Handle не должен бросать ошибку как control flow —
// ошибка логируется и не откатывает завершённое состояние publisher'а
// (запись задачи уже durable к моменту публикации).
type Listener interface {
	// Name — имя listener'а для логов.
	Name() string

	// Handle обрабатывает событие.
	Handle(ctx context.Context, ev *Event) error
}

// Registry — статическая таблица подписок: событие → упорядоченный
// список listener'ов.
//
// Строится один раз при старте процесса, инжектится в Bus
// и после этого не мутируется.
type Registry struct {
	subs map[Name][]Listener
}

// NewRegistry создаёт пустой Registry.
func NewRegistry() *Registry {
	return &Registry{subs: make(map[Name][]Listener)}
}

// Subscribe добавляет listener на событие. Вызывается только при старте,
// до Bus.Start — динамическая переподписка не поддерживается.
func (r *Registry) Subscribe(name Name, l Listener) {
	r.subs[name] = append(r.subs[name], l)
}

// Listeners возвращает listener'ы события в порядке подписки.
func (r *Registry) Listeners(name Name) []Listener {
	return r.subs[name]
}

// Events возвращает все имена событий, на которые есть подписки.
func (r *Registry) Events() []Name {
	names := make([]Name, 0, len(r.subs))
	for name := range r.subs {
		names = append(names, name)
	}
	return names
}
