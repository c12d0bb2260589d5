package mq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — функция обработки одного доставленного сообщения.
//
// Handler сам подтверждает сообщение (d.Ack): диспетчер не управляет
// ack-семантикой и не заглядывает в payload. Возвращённая ошибка
// считается ошибкой бизнес-логики и роняет worker-процесс (fail-fast
// граница, см. пакет dispatch).
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение.
//
// Наружу отдаются payload, routing metadata и операция подтверждения;
// содержимое тела интерпретирует только handler.
type Delivery struct {
	// Queue — очередь, из которой пришло сообщение.
	Queue string

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Body возвращает тело сообщения.
func (d *Delivery) Body() []byte {
	return d.Raw.Body
}

// RoutingKey возвращает ключ маршрутизации сообщения.
func (d *Delivery) RoutingKey() string {
	return d.Raw.RoutingKey
}

// Exchange возвращает exchange, через который сообщение пришло.
func (d *Delivery) Exchange() string {
	return d.Raw.Exchange
}

// Redelivered сообщает, доставляется ли сообщение повторно.
func (d *Delivery) Redelivered() bool {
	return d.Raw.Redelivered
}

// Ack подтверждает обработку сообщения.
func (d *Delivery) Ack() error {
	return d.Raw.Ack(false)
}
