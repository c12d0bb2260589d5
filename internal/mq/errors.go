package mq

import "errors"

// Ошибки пакета mq.
var (
	// ErrNoChannel — канал недоступен (соединение не установлено).
	ErrNoChannel = errors.New("no channel available")

	// ErrConnectionLost — соединение с брокером потеряно во время
	// потребления. Worker реагирует переинициализацией на месте.
	ErrConnectionLost = errors.New("connection to broker lost")

	// ErrUnknownQueue — очередь отсутствует в конфигурации топологии.
	ErrUnknownQueue = errors.New("queue is not configured")

	// ErrUnboundQueue — очередь не привязана ни к одному exchange.
	ErrUnboundQueue = errors.New("queue is not bound to any exchange")
)
