package mq

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultRetryDelay — пауза между попытками соединения с брокером.
const DefaultRetryDelay = time.Second

// Session — соединение с RabbitMQ и один открытый канал.
//
// Worker владеет ровно одной Session; при потере соединения он не чинит
// её, а выбрасывает и создаёт новую через Connect (переинициализация
// на месте). Поэтому Session намеренно не содержит reconnect-логики.
type Session struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger
}

// Connect устанавливает соединение с брокером.
//
// Повторяет попытки бесконечно с фиксированной паузой retryDelay:
// диспетчер работает без присмотра и обязан пережить брокер, который
// недоступен на старте или после сетевого разрыва. Возвращает ошибку
// только при отмене ctx.
func Connect(ctx context.Context, url string, retryDelay time.Duration, logger *slog.Logger) (*Session, error) {
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	for {
		logger.Info("attempting to connect to broker")

		sess, err := Dial(url, logger)
		if err == nil {
			logger.Info("connection successful, channel opened")
			return sess, nil
		}

		logger.Warn("broker unreachable, retrying", "error", err, "delay", retryDelay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Dial — одна попытка соединения, без retry.
//
// Используется административными операциями: они интерактивны, и
// блокироваться бесконечно за confirmation-prompt'ом было бы враждебно.
func Dial(url string, logger *slog.Logger) (*Session, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	return &Session{conn: conn, channel: ch, logger: logger}, nil
}

// Channel возвращает текущий AMQP канал.
func (s *Session) Channel() *amqp.Channel {
	return s.channel
}

// Reopen открывает свежий канал поверх живого соединения.
//
// Нужен административным операциям: channel-level ошибка брокера (например
// PRECONDITION_FAILED при удалении очереди) закрывает канал, и чтобы
// продолжить batch, его надо пересоздать.
func (s *Session) Reopen() error {
	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("reopen channel: %w", err)
	}
	s.channel = ch
	return nil
}

// NotifyClose возвращает канал уведомлений о закрытии соединения.
func (s *Session) NotifyClose() <-chan *amqp.Error {
	return s.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close закрывает канал, затем соединение.
func (s *Session) Close() error {
	var errs []error

	if s.channel != nil && !s.channel.IsClosed() {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
	}

	if s.conn != nil && !s.conn.IsClosed() {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
