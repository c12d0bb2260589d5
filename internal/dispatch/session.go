package dispatch

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/nephele/internal/mq"
)

// brokerSession — срез mq.Session, который нужен worker'у и админским
// операциям. Тесты подставляют фальшивую session с фальшивым каналом.
type brokerSession interface {
	Channel() mq.Channel
	NotifyClose() <-chan *amqp.Error
	Reopen() error
	Close() error
}

// liveSession адаптирует конкретную *mq.Session к brokerSession
// (метод Channel у mq.Session возвращает *amqp.Channel, не интерфейс).
type liveSession struct {
	s *mq.Session
}

func (l liveSession) Channel() mq.Channel                { return l.s.Channel() }
func (l liveSession) NotifyClose() <-chan *amqp.Error    { return l.s.NotifyClose() }
func (l liveSession) Reopen() error                      { return l.s.Reopen() }
func (l liveSession) Close() error                       { return l.s.Close() }
