package dispatch

import (
	"sort"

	"github.com/shaiso/nephele/internal/mq"
)

// Registry — реестр обработчиков по имени.
//
// Привязки топологии ссылаются на обработчики строковыми именами;
// реестр — явная таблица имя→callback, заполняемая при старте из
// фиксированного набора регистраций. Неизвестное имя не ошибка
// реестра: registrar пропускает такую привязку и продолжает.
type Registry struct {
	handlers map[string]mq.Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]mq.Handler)}
}

// Register добавляет обработчик под именем name.
// Повторная регистрация имени перезаписывает обработчик.
func (r *Registry) Register(name string, h mq.Handler) {
	r.handlers[name] = h
}

// Resolve возвращает обработчик по имени.
func (r *Registry) Resolve(name string) (mq.Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Names возвращает зарегистрированные имена в алфавитном порядке.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
