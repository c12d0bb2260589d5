package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/nephele/internal/mq"
	"github.com/shaiso/nephele/internal/telemetry"
)

// Admin — интерактивные операции обслуживания брокера.
//
// Все три операции необратимы и выполняются вне пула worker'ов; каждая
// защищена явным подтверждением. Ошибки брокера по отдельным элементам
// печатаются с reply-кодом и не прерывают batch: канал пересоздаётся и
// обработка продолжается со следующего элемента.
type Admin struct {
	topo    mq.Topology
	resolve mq.ResolveFunc
	logger  *slog.Logger

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer

	// dial подменяется в тестах
	dial func() (brokerSession, error)
}

// AdminConfig — конфигурация Admin.
type AdminConfig struct {
	// BrokerURL — AMQP URL брокера. Admin делает одну попытку соединения:
	// интерактивной команде нечего ждать бесконечно.
	BrokerURL string

	// Topology — конфигурация очередей и exchange'ей.
	Topology mq.Topology

	// Resolve — поиск обработчиков (drain использует discard).
	Resolve mq.ResolveFunc

	// In, Out — потоки подтверждения и отчёта (по умолчанию stdin/stdout).
	In  io.Reader
	Out io.Writer

	// ErrOut — поток бегущего счётчика drain-queue (по умолчанию stderr:
	// прогресс не должен перемешиваться с отчётом операции).
	ErrOut io.Writer

	// Logger.
	Logger *slog.Logger
}

// NewAdmin создаёт Admin.
func NewAdmin(cfg AdminConfig) *Admin {
	in := cfg.In
	if in == nil {
		in = os.Stdin
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	errOut := cfg.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Admin{
		topo:    cfg.Topology,
		resolve: cfg.Resolve,
		logger:  logger,
		in:      bufio.NewReader(in),
		out:     out,
		errOut:  errOut,
	}
	a.dial = func() (brokerSession, error) {
		sess, err := mq.Dial(cfg.BrokerURL, logger)
		if err != nil {
			return nil, err
		}
		return liveSession{s: sess}, nil
	}
	return a
}

// PurgeQueues удаляет все сконфигурированные очереди.
func (a *Admin) PurgeQueues() error {
	fmt.Fprintf(a.out, "Queues to be deleted: %v\n", a.topo.QueueNames())
	if !a.confirm() {
		return nil
	}

	sess, err := a.dial()
	if err != nil {
		return err
	}
	defer sess.Close()

	a.deleteQueues(sess)
	return nil
}

// deleteQueues удаляет очереди по одной; ошибка одной не прерывает
// остальные.
func (a *Admin) deleteQueues(sess brokerSession) {
	ch := sess.Channel()
	for _, q := range a.topo.QueueNames() {
		if _, err := ch.QueueDelete(q, false, false, false); err != nil {
			a.printBrokerError(err)
			// channel-level ошибка закрывает канал — пересоздаём, чтобы
			// продолжить batch
			if rerr := sess.Reopen(); rerr != nil {
				a.logger.Error("failed to reopen channel", "error", rerr)
				return
			}
			ch = sess.Channel()
			continue
		}
		fmt.Fprintf(a.out, "Deleting queue %s\n", q)
	}
}

// PurgeExchanges удаляет все сконфигурированные exchange'и.
//
// Сначала выполняется PurgeQueues: exchange нельзя убрать, пока на него
// ссылаются очереди.
func (a *Admin) PurgeExchanges() error {
	if err := a.PurgeQueues(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Exchanges to be deleted: %v\n", a.topo.ExchangeNames())
	if !a.confirm() {
		return nil
	}

	sess, err := a.dial()
	if err != nil {
		return err
	}
	defer sess.Close()

	a.deleteExchanges(sess)
	return nil
}

// deleteExchanges удаляет exchange'и с той же изоляцией ошибок, что и
// deleteQueues.
func (a *Admin) deleteExchanges(sess brokerSession) {
	ch := sess.Channel()
	for _, ex := range a.topo.ExchangeNames() {
		if err := ch.ExchangeDelete(ex, false, false); err != nil {
			a.printBrokerError(err)
			if rerr := sess.Reopen(); rerr != nil {
				a.logger.Error("failed to reopen channel", "error", rerr)
				return
			}
			ch = sess.Channel()
			continue
		}
		fmt.Fprintf(a.out, "Deleting exchange %s\n", ex)
	}
}

// DrainQueue вычищает очередь от всех накопленных сообщений.
//
// Очередь привязывается к своему exchange'у catch-all ключом `#` (на
// topic exchange он принимает любой routing key), после чего сообщения
// потребляются и сбрасываются обработчиком discard до отмены ctx
// (сигнал завершения). Счётчик сброшенного печатается по ходу.
func (a *Admin) DrainQueue(ctx context.Context, queue string) error {
	if !a.topo.HasQueue(queue) {
		return fmt.Errorf("%w: %s", mq.ErrUnknownQueue, queue)
	}
	exchange, ok := a.topo.ExchangeFor(queue)
	if !ok {
		return fmt.Errorf("%w: %s", mq.ErrUnboundQueue, queue)
	}
	discard, ok := a.resolve("discard")
	if !ok {
		return ErrNoDiscardHandler
	}

	fmt.Fprintf(a.out, "Queue to be drained: %s\n", queue)
	if !a.confirm() {
		return nil
	}

	sess, err := a.dial()
	if err != nil {
		return err
	}
	defer sess.Close()

	ch := sess.Channel()
	if err := ch.QueueBind(queue, "#", exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	tag := fmt.Sprintf("nephele.drain.%s.%d", queue, time.Now().Unix())
	deliveries, err := ch.Consume(queue, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	fmt.Fprintln(a.out, "Queue draining about to start, hit Ctrl+C when done")

	discarded := 0
	for {
		select {
		case <-ctx.Done():
			if err := ch.Cancel(tag, false); err != nil {
				a.logger.Debug("failed to cancel drain consumer", "error", err)
			}
			fmt.Fprintf(a.out, "\nDiscarded %d messages\n", discarded)
			return nil

		case raw, chanOpen := <-deliveries:
			if !chanOpen {
				fmt.Fprintf(a.out, "\nDiscarded %d messages\n", discarded)
				return mq.ErrConnectionLost
			}
			if err := discard(ctx, &mq.Delivery{Queue: queue, Raw: raw}); err != nil {
				return fmt.Errorf("discard message: %w", err)
			}
			discarded++
			telemetry.MessagesDiscarded.Inc()
			fmt.Fprintf(a.errOut, "Discarded %d messages\r", discarded)
		}
	}
}

// confirm запрашивает явное подтверждение. Принимается только y/Y.
func (a *Admin) confirm() bool {
	fmt.Fprint(a.out, "Are you sure (N/y): ")
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	ans := strings.TrimRight(line, " \r\n")
	return ans == "y" || ans == "Y"
}

// printBrokerError печатает reply-код и причину брокера, если ошибка —
// AMQP-ошибка, иначе саму ошибку.
func (a *Admin) printBrokerError(err error) {
	var amqpErr *amqp.Error
	if errors.As(err, &amqpErr) {
		fmt.Fprintf(a.out, "%d %s\n", amqpErr.Code, amqpErr.Reason)
		return
	}
	fmt.Fprintf(a.out, "%v\n", err)
}
