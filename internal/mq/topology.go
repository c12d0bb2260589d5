package mq

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/nephele/internal/telemetry"
)

// Exchange — дескриптор exchange'а.
//
// Все exchange'ы платформы — topic: routing key сравнивается с паттерном
// привязки по словам через точку, `*` — ровно одно слово, `#` — ноль и
// больше.
type Exchange struct {
	Name       string
	Kind       string // всегда "topic" в конфигурации по умолчанию
	Durable    bool
	AutoDelete bool
}

// Queue — дескриптор очереди.
type Queue struct {
	Name       string
	Durable    bool
	Exclusive  bool
	AutoDelete bool
}

// Binding — привязка очереди к exchange с именованным обработчиком.
//
// Инвариант: Handler должен разрешаться в реестре обработчиков. Если не
// разрешается — привязка пропускается с записью в лог, остальные
// привязки не страдают.
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Handler    string
}

// Topology — полное описание топологии брокера.
//
// DebugQueue и DebugBindings активны только в debug-режиме и объявляются
// после production-набора с той же политикой пропуска неизвестных
// обработчиков.
type Topology struct {
	Exchanges     []Exchange
	Queues        []Queue
	Bindings      []Binding
	DebugQueue    Queue
	DebugBindings []Binding
}

// QueueNames возвращает имена production-очередей в порядке объявления.
func (t Topology) QueueNames() []string {
	names := make([]string, len(t.Queues))
	for i, q := range t.Queues {
		names[i] = q.Name
	}
	return names
}

// ExchangeNames возвращает имена exchange'ей в порядке объявления.
func (t Topology) ExchangeNames() []string {
	names := make([]string, len(t.Exchanges))
	for i, e := range t.Exchanges {
		names[i] = e.Name
	}
	return names
}

// HasQueue проверяет, есть ли очередь в конфигурации.
func (t Topology) HasQueue(name string) bool {
	for _, q := range t.Queues {
		if q.Name == name {
			return true
		}
	}
	return false
}

// ExchangeFor возвращает exchange первой привязки очереди.
func (t Topology) ExchangeFor(queue string) (string, bool) {
	for _, b := range t.Bindings {
		if b.Queue == queue {
			return b.Exchange, true
		}
	}
	return "", false
}

// Channel — операции AMQP канала, нужные registrar'у, worker'у и
// административным командам. *amqp.Channel реализует интерфейс как есть;
// тесты подставляют фальшивый канал.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	ExchangeDelete(name string, ifUnused, noWait bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Close() error
}

// ResolveFunc отображает имя обработчика из привязки в callback.
type ResolveFunc func(name string) (Handler, bool)

// Consumer — одна действующая connection между очередью и обработчиком.
//
// Tag принадлежит worker'у: по нему consumption отменяется при drain.
// При переинициализации worker'а consumers создаются заново.
type Consumer struct {
	Tag         string
	Queue       string
	HandlerName string
	Handler     Handler
	Deliveries  <-chan amqp.Delivery
}

// Registrar объявляет топологию и привязывает очереди к обработчикам.
type Registrar struct {
	logger *slog.Logger
}

// NewRegistrar создаёт Registrar.
func NewRegistrar(logger *slog.Logger) *Registrar {
	return &Registrar{logger: logger}
}

// Apply объявляет exchanges и queues, затем для каждой привязки ищет
// обработчик через resolve и регистрирует consumer.
//
// Объявление идемпотентно: повторный Apply с той же топологией не меняет
// брокер и не возвращает ошибку. Привязка с неизвестным обработчиком
// пропускается (лог + счётчик), инициализация продолжается. Ошибки
// самого брокера фатальны для Apply — вызывающий трактует их как
// проблему соединения.
func (r *Registrar) Apply(ch Channel, topo Topology, resolve ResolveFunc, debug bool) ([]Consumer, error) {
	for _, ex := range topo.Exchanges {
		err := ch.ExchangeDeclare(
			ex.Name,       // name
			ex.Kind,       // type
			ex.Durable,    // durable
			ex.AutoDelete, // auto-delete
			false,         // internal
			false,         // no-wait
			nil,           // arguments
		)
		if err != nil {
			return nil, fmt.Errorf("declare exchange %s: %w", ex.Name, err)
		}
	}

	queues := topo.Queues
	bindings := topo.Bindings

	// Debug-очередь не должна появляться в production
	if debug {
		queues = append(queues[:len(queues):len(queues)], topo.DebugQueue)
		bindings = append(bindings[:len(bindings):len(bindings)], topo.DebugBindings...)
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.Name,       // name
			q.Durable,    // durable
			q.AutoDelete, // delete when unused
			q.Exclusive,  // exclusive
			false,        // no-wait
			nil,          // arguments
		)
		if err != nil {
			return nil, fmt.Errorf("declare queue %s: %w", q.Name, err)
		}
	}

	var consumers []Consumer

	for _, b := range bindings {
		handler, ok := resolve(b.Handler)
		if !ok {
			r.logger.Error("cannot find handler, skipping binding",
				"handler", b.Handler,
				"queue", b.Queue,
				"exchange", b.Exchange,
				"routing_key", b.RoutingKey,
			)
			telemetry.BindingsSkipped.Inc()
			continue
		}

		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return nil, fmt.Errorf("bind queue %s to %s: %w", b.Queue, b.Exchange, err)
		}

		tag := consumerTag(b.Queue)
		deliveries, err := ch.Consume(
			b.Queue, // queue
			tag,     // consumer tag
			false,   // auto-ack (подтверждает handler)
			false,   // exclusive
			false,   // no-local
			false,   // no-wait
			nil,     // args
		)
		if err != nil {
			return nil, fmt.Errorf("consume %s: %w", b.Queue, err)
		}

		r.logger.Debug("bound queue",
			"queue", b.Queue,
			"exchange", b.Exchange,
			"routing_key", b.RoutingKey,
			"handler", b.Handler,
			"consumer_tag", tag,
		)

		consumers = append(consumers, Consumer{
			Tag:         tag,
			Queue:       b.Queue,
			HandlerName: b.Handler,
			Handler:     handler,
			Deliveries:  deliveries,
		})
	}

	return consumers, nil
}

// consumerTag генерирует уникальный тег consumer'а.
func consumerTag(queue string) string {
	return fmt.Sprintf("nephele.%s.%s", queue, uuid.NewString())
}
