// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — установка соединения с брокером (бесконечный retry,
//     фиксированный backoff) и жизненный цикл канала
//   - topology.go   — дескрипторы topic-топологии (exchanges, queues,
//     bindings) и Registrar, который объявляет её идемпотентно
//   - delivery.go   — обёртка доставленного сообщения (payload, routing
//     metadata, ack) и тип Handler
//
// Диспетчер только потребляет: publish-сторона топологии принадлежит
// внешним компонентам платформы (compute/network backend'ы), которые
// публикуют события в те же topic exchanges.
package mq
