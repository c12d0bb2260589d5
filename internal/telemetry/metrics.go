package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики диспетчера.
//
// Каждый worker-процесс экспортирует собственный набор значений:
// процессы не разделяют память, поэтому агрегация происходит на стороне
// Prometheus по label'у instance.
var (
	// MessagesDispatched — сообщения, переданные обработчикам.
	MessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nephele",
		Subsystem: "dispatcher",
		Name:      "messages_dispatched_total",
		Help:      "Messages dispatched to handlers.",
	}, []string{"queue", "handler"})

	// HandlerFailures — ошибки обработчиков (fail-fast: после инкремента
	// worker-процесс завершается).
	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nephele",
		Subsystem: "dispatcher",
		Name:      "handler_failures_total",
		Help:      "Handler errors that terminated a worker process.",
	}, []string{"queue", "handler"})

	// Reconnects — переинициализации после потери соединения с брокером.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nephele",
		Subsystem: "dispatcher",
		Name:      "reconnects_total",
		Help:      "Worker re-initializations after a lost broker connection.",
	})

	// BindingsSkipped — привязки, пропущенные из-за неизвестного
	// обработчика.
	BindingsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nephele",
		Subsystem: "dispatcher",
		Name:      "bindings_skipped_total",
		Help:      "Bindings skipped because the handler name did not resolve.",
	})

	// MessagesDiscarded — сообщения, сброшенные командой drain-queue.
	MessagesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nephele",
		Subsystem: "dispatcher",
		Name:      "messages_discarded_total",
		Help:      "Messages consumed and discarded by drain-queue.",
	})

	// ActiveConsumers — действующие consumer'ы данного процесса.
	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "nephele",
		Subsystem: "dispatcher",
		Name:      "active_consumers",
		Help:      "Consumer tags currently registered by this process.",
	})
)
