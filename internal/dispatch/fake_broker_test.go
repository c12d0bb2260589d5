package dispatch

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/nephele/internal/mq"
)

// Фальшивый брокер для тестов worker'а и админских операций.

type fakeAcknowledger struct {
	mu   sync.Mutex
	acks int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error { return nil }
func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error              { return nil }

func (a *fakeAcknowledger) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acks
}

type fakeChannel struct {
	mu sync.Mutex

	declaredQueues    []string
	declaredExchanges []string
	binds             []string // "queue|key|exchange"
	consumed          []string
	cancelled         []string
	deletedQueues     []string
	deletedExchanges  []string

	failQueueDelete    map[string]error
	failExchangeDelete map[string]error

	deliveries map[string]chan amqp.Delivery
}

func newTestChannel() *fakeChannel {
	return &fakeChannel{
		failQueueDelete:    make(map[string]error),
		failExchangeDelete: make(map[string]error),
		deliveries:         make(map[string]chan amqp.Delivery),
	}
}

// delivery возвращает (создавая при необходимости) поток доставки
// очереди, чтобы тест мог публиковать в него сообщения.
func (f *fakeChannel) delivery(queue string) chan amqp.Delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.deliveries[queue]
	if !ok {
		ch = make(chan amqp.Delivery, 16)
		f.deliveries[queue] = ch
	}
	return ch
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declaredExchanges = append(f.declaredExchanges, name)
	return nil
}

func (f *fakeChannel) ExchangeDelete(name string, ifUnused, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failExchangeDelete[name]; ok {
		return err
	}
	f.deletedExchanges = append(f.deletedExchanges, name)
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declaredQueues = append(f.declaredQueues, name)
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binds = append(f.binds, name+"|"+key+"|"+exchange)
	return nil
}

func (f *fakeChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failQueueDelete[name]; ok {
		return 0, err
	}
	f.deletedQueues = append(f.deletedQueues, name)
	return 0, nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	f.mu.Lock()
	f.consumed = append(f.consumed, queue)
	ch, ok := f.deliveries[queue]
	if !ok {
		ch = make(chan amqp.Delivery, 16)
		f.deliveries[queue] = ch
	}
	f.mu.Unlock()
	return ch, nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, consumer)
	return nil
}

func (f *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error { return nil }

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cancelled)
}

type fakeSession struct {
	mu           sync.Mutex
	ch           *fakeChannel
	closeCh      chan *amqp.Error
	closed       bool
	reopens      int
	channelCalls int
}

func newFakeSession(ch *fakeChannel) *fakeSession {
	return &fakeSession{ch: ch, closeCh: make(chan *amqp.Error, 1)}
}

func (s *fakeSession) Channel() mq.Channel {
	s.mu.Lock()
	s.channelCalls++
	s.mu.Unlock()
	return s.ch
}

// used сообщает, добрался ли worker до канала этой session.
func (s *fakeSession) used() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelCalls > 0
}

func (s *fakeSession) NotifyClose() <-chan *amqp.Error { return s.closeCh }

func (s *fakeSession) Reopen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reopens++
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
