// Package telemetry обеспечивает наблюдаемость диспетчера.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики
//
// Каждый worker-процесс использует единый формат логирования (с pid для
// различения процессов) и экспортирует собственные метрики на /metrics.
package telemetry
