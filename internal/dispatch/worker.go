package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/nephele/internal/mq"
	"github.com/shaiso/nephele/internal/telemetry"
)

// Worker — один процесс-потребитель.
//
// State machine: INITIALIZING → CONSUMING → (потеря соединения →
// INITIALIZING) → ... → DRAINING → TERMINATED.
//
//   - INITIALIZING: соединение с брокером (бесконечный retry) и
//     объявление топологии; обе операции идемпотентны
//   - CONSUMING: строго последовательная выдача сообщений обработчикам —
//     следующее сообщение не берётся, пока обработчик не вернулся
//   - DRAINING: отмена всех consumer-тегов, закрытие канала, затем
//     соединения; вход — только отмена ctx (сигнал завершения)
//
// Ошибка обработчика не перехватывается: Run возвращает её без drain,
// процесс завершается с ненулевым кодом, неподтверждённые сообщения
// передоставляются брокером.
type Worker struct {
	topo      mq.Topology
	registry  *Registry
	registrar *mq.Registrar
	debug     bool
	delay     time.Duration
	logger    *slog.Logger

	// dial подменяется в тестах
	dial func(ctx context.Context) (brokerSession, error)

	session   brokerSession
	consumers []mq.Consumer
}

// WorkerConfig — конфигурация Worker.
type WorkerConfig struct {
	// BrokerURL — AMQP URL брокера.
	BrokerURL string

	// ReconnectDelay — фиксированная пауза между попытками соединения.
	ReconnectDelay time.Duration

	// Topology — топология для объявления при каждой инициализации.
	Topology mq.Topology

	// Registry — реестр обработчиков.
	Registry *Registry

	// Debug — включает debug-очередь и её привязки.
	Debug bool

	// Logger.
	Logger *slog.Logger
}

// NewWorker создаёт Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &Worker{
		topo:      cfg.Topology,
		registry:  cfg.Registry,
		registrar: mq.NewRegistrar(logger),
		debug:     cfg.Debug,
		delay:     cfg.ReconnectDelay,
		logger:    logger,
	}
	w.dial = func(ctx context.Context) (brokerSession, error) {
		sess, err := mq.Connect(ctx, cfg.BrokerURL, cfg.ReconnectDelay, logger)
		if err != nil {
			return nil, err
		}
		return liveSession{s: sess}, nil
	}
	return w
}

// Run выполняет state machine до отмены ctx или ошибки обработчика.
//
// Возвращает nil после штатного drain и ошибку обработчика при
// fail-fast завершении. Проблемы соединения наружу не выходят — они
// гасятся переинициализацией на месте.
func (w *Worker) Run(ctx context.Context) error {
	for {
		if err := w.initialize(ctx); err != nil {
			// сюда попадаем только по отмене ctx
			w.drainShutdown()
			return nil
		}

		err := w.consume(ctx)

		switch {
		case ctx.Err() != nil:
			w.drainShutdown()
			return nil

		case errors.Is(err, mq.ErrConnectionLost):
			w.logger.Error("server went away, reconnecting")
			telemetry.Reconnects.Inc()
			w.closeSession()

		default:
			// fail-fast: без drain, процесс умирает как есть
			return err
		}
	}
}

// initialize — состояние INITIALIZING: соединение плюс топология.
//
// Ошибка объявления топологии трактуется как проблема соединения:
// session закрывается и всё повторяется после паузы.
func (w *Worker) initialize(ctx context.Context) error {
	for {
		w.logger.Info("initializing")

		sess, err := w.dial(ctx)
		if err != nil {
			return err
		}

		consumers, err := w.setup(sess)
		if err == nil {
			w.session = sess
			w.consumers = consumers
			telemetry.ActiveConsumers.Set(float64(len(consumers)))
			w.logger.Info("consuming", "consumers", len(consumers))
			return nil
		}

		w.logger.Error("failed to declare topology, retrying", "error", err)
		sess.Close()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.delay):
		}
	}
}

// setup объявляет топологию и регистрирует consumer'ов на канале session.
func (w *Worker) setup(sess brokerSession) ([]mq.Consumer, error) {
	ch := sess.Channel()
	if ch == nil {
		return nil, mq.ErrNoChannel
	}

	// по одному неподтверждённому сообщению на процесс: выдача строго
	// последовательная
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return w.registrar.Apply(ch, w.topo, w.registry.Resolve, w.debug)
}

type inbound struct {
	consumer *mq.Consumer
	delivery amqp.Delivery
}

// consume — состояние CONSUMING.
//
// Потоки доставки всех consumer'ов сливаются в один канал; цикл выбирает
// следующее сообщение и синхронно передаёт обработчику. Закрытие всех
// потоков или уведомление соединения означает потерю брокера.
func (w *Worker) consume(ctx context.Context) error {
	closing := w.session.NotifyClose()

	// Ни одного consumer'а (все привязки пропущены или их нет):
	// ждать нечего, но и крутить переподключения нельзя — стоим на
	// месте до сигнала или закрытия соединения.
	if len(w.consumers) == 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closing:
			if amqpErr != nil {
				w.logger.Warn("connection closed by broker", "error", amqpErr)
			}
			return mq.ErrConnectionLost
		}
	}

	merged := make(chan inbound)

	var wg sync.WaitGroup
	for i := range w.consumers {
		c := &w.consumers[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range c.Deliveries {
				merged <- inbound{consumer: c, delivery: d}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(merged)
	}()

	// освобождает fan-in горутины, если цикл прерван раньше, чем брокер
	// закрыл потоки доставки
	defer func() {
		go func() {
			for range merged {
			}
		}()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case amqpErr := <-closing:
			if amqpErr != nil {
				w.logger.Warn("connection closed by broker", "error", amqpErr)
			}
			return mq.ErrConnectionLost

		case in, ok := <-merged:
			if !ok {
				return mq.ErrConnectionLost
			}
			if err := w.dispatchOne(ctx, in.consumer, in.delivery); err != nil {
				return err
			}
		}
	}
}

// dispatchOne синхронно передаёт одно сообщение его обработчику.
func (w *Worker) dispatchOne(ctx context.Context, c *mq.Consumer, raw amqp.Delivery) error {
	telemetry.MessagesDispatched.WithLabelValues(c.Queue, c.HandlerName).Inc()

	d := &mq.Delivery{Queue: c.Queue, Raw: raw}

	log := telemetry.WithHandler(telemetry.WithQueue(w.logger, c.Queue), c.HandlerName)
	log.Debug("dispatching message", "routing_key", d.RoutingKey())

	if err := c.Handler(ctx, d); err != nil {
		telemetry.HandlerFailures.WithLabelValues(c.Queue, c.HandlerName).Inc()
		return fmt.Errorf("%w: %s (queue %s): %v", ErrHandlerFailed, c.HandlerName, c.Queue, err)
	}
	return nil
}

// drainShutdown — состояние DRAINING: отменить каждый consumer-тег,
// затем закрыть канал и соединение.
func (w *Worker) drainShutdown() {
	if w.session == nil {
		return
	}

	w.logger.Info("draining", "consumers", len(w.consumers))

	ch := w.session.Channel()
	if ch != nil {
		for _, c := range w.consumers {
			if err := ch.Cancel(c.Tag, false); err != nil {
				w.logger.Debug("failed to cancel consumer", "consumer_tag", c.Tag, "error", err)
			}
		}
	}

	w.closeSession()
	w.logger.Info("terminated")
}

// closeSession закрывает текущую session и сбрасывает consumer-состояние.
func (w *Worker) closeSession() {
	if w.session == nil {
		return
	}
	if err := w.session.Close(); err != nil {
		w.logger.Debug("close session", "error", err)
	}
	w.session = nil
	w.consumers = nil
	telemetry.ActiveConsumers.Set(0)
}
