package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы событий, публикуемые backend'ами платформы. Диспетчер не
// интерпретирует их сам — декодирование происходит в обработчиках.

// InstanceEvent — событие изменения состояния инстанса.
//
// Routing key: <backend>.event.<operation>, например
// "ganeti-master.event.startup".
type InstanceEvent struct {
	// InstanceID — идентификатор инстанса.
	InstanceID uuid.UUID `json:"instance_id"`

	// Status — новый статус инстанса.
	Status InstanceStatus `json:"status"`

	// Reason — человекочитаемая причина перехода.
	Reason string `json:"reason,omitempty"`

	// OccurredAt — время события на стороне backend'а.
	OccurredAt time.Time `json:"occurred_at"`
}

// NetworkEvent — событие изменения состояния сетевого линка.
//
// Routing key: <backend>.link.<link-name>.
type NetworkEvent struct {
	// NetworkID — идентификатор сети.
	NetworkID uuid.UUID `json:"network_id"`

	// Link — имя линка.
	Link string `json:"link"`

	// State — новое состояние линка.
	State LinkState `json:"state"`

	// OccurredAt — время события на стороне backend'а.
	OccurredAt time.Time `json:"occurred_at"`
}

// EmailEvent — запрос на e-mail уведомление пользователю.
//
// Routing key: email.<kind>. Диспетчер только логирует запрос: сама
// доставка почты — забота внешнего notification-сервиса.
type EmailEvent struct {
	// Recipient — адрес получателя.
	Recipient string `json:"recipient"`

	// Subject — тема письма.
	Subject string `json:"subject"`

	// Body — текст письма.
	Body string `json:"body,omitempty"`
}
