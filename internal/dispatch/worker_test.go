package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/nephele/internal/mq"
)

func workerTopology() mq.Topology {
	return mq.Topology{
		Exchanges: []mq.Exchange{{Name: "e1", Kind: "topic", Durable: true}},
		Queues:    []mq.Queue{{Name: "q1", Durable: true}},
		Bindings: []mq.Binding{
			{Queue: "q1", Exchange: "e1", RoutingKey: "a.event.#", Handler: "h"},
		},
	}
}

// newTestWorker собирает Worker с фальшивым dial'ом. Каждый вызов dial
// выдаёт следующую session из списка.
func newTestWorker(t *testing.T, registry *Registry, sessions ...*fakeSession) (*Worker, *int) {
	t.Helper()

	w := NewWorker(WorkerConfig{
		Topology:       workerTopology(),
		Registry:       registry,
		ReconnectDelay: time.Millisecond,
		Logger:         slog.Default(),
	})

	dials := 0
	w.dial = func(ctx context.Context) (brokerSession, error) {
		if dials >= len(sessions) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		s := sessions[dials]
		dials++
		return s, nil
	}
	return w, &dials
}

func delivery(ack amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  tag,
		Exchange:     "e1",
		RoutingKey:   "a.event.test",
		Body:         []byte(body),
	}
}

func TestWorkerSequentialDispatch(t *testing.T) {
	ch := newTestChannel()
	sess := newFakeSession(ch)

	var mu sync.Mutex
	var events []string
	handled := make(chan struct{}, 2)

	registry := NewRegistry()
	registry.Register("h", func(ctx context.Context, d *mq.Delivery) error {
		mu.Lock()
		events = append(events, "start:"+string(d.Body()))
		mu.Unlock()

		// первое сообщение обрабатывается заметно дольше второго: при
		// нарушении последовательности start второго опередил бы end
		// первого
		if string(d.Body()) == "m1" {
			time.Sleep(20 * time.Millisecond)
		}

		mu.Lock()
		events = append(events, "end:"+string(d.Body()))
		mu.Unlock()

		handled <- struct{}{}
		return d.Ack()
	})

	w, _ := newTestWorker(t, registry, sess)

	ack := &fakeAcknowledger{}
	ch.delivery("q1") <- delivery(ack, 1, "m1")
	ch.delivery("q1") <- delivery(ack, 2, "m2")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-handled:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for messages")
		}
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"start:m1", "end:m1", "start:m2", "end:m2"}
	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("dispatch order = %v, want %v", events, want)
	}
	if ack.count() != 2 {
		t.Errorf("acks = %d, want 2", ack.count())
	}

	// штатный drain: consumer-тег отменён, session закрыта
	if ch.cancelCount() != 1 {
		t.Errorf("cancelled consumers = %d, want 1", ch.cancelCount())
	}
	if !sess.isClosed() {
		t.Error("session should be closed after drain")
	}
}

func TestWorkerHandlerFailureFailsFast(t *testing.T) {
	ch := newTestChannel()
	sess := newFakeSession(ch)

	boom := errors.New("boom")
	registry := NewRegistry()
	registry.Register("h", func(ctx context.Context, d *mq.Delivery) error {
		return boom
	})

	w, _ := newTestWorker(t, registry, sess)
	ch.delivery("q1") <- delivery(&fakeAcknowledger{}, 1, "m1")

	err := w.Run(context.Background())
	if !errors.Is(err, ErrHandlerFailed) {
		t.Fatalf("expected ErrHandlerFailed, got %v", err)
	}

	// fail-fast: без drain — тег не отменяется, соединение не
	// закрывается аккуратно
	if ch.cancelCount() != 0 {
		t.Errorf("no consumer should be cancelled, got %d", ch.cancelCount())
	}
	if sess.isClosed() {
		t.Error("session should not be closed on fail-fast exit")
	}
}

func TestWorkerReconnectsInPlace(t *testing.T) {
	ch1 := newTestChannel()
	ch2 := newTestChannel()
	sess1 := newFakeSession(ch1)
	sess2 := newFakeSession(ch2)

	handled := make(chan string, 2)
	registry := NewRegistry()
	registry.Register("h", func(ctx context.Context, d *mq.Delivery) error {
		handled <- string(d.Body())
		return d.Ack()
	})

	w, dials := newTestWorker(t, registry, sess1, sess2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ch1.delivery("q1") <- delivery(&fakeAcknowledger{}, 1, "before")
	select {
	case got := <-handled:
		if got != "before" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first message")
	}

	// брокер пропал: поток доставки закрывается, worker обязан
	// переинициализироваться на месте, не выходя из процесса
	close(ch1.delivery("q1"))

	ch2.delivery("q1") <- delivery(&fakeAcknowledger{}, 2, "after")
	select {
	case got := <-handled:
		if got != "after" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not resume consuming after reconnect")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if *dials != 2 {
		t.Errorf("dials = %d, want 2", *dials)
	}
	if !sess1.isClosed() {
		t.Error("first session should be closed after reconnect")
	}
	// тег зарегистрирован заново на новом канале
	if len(ch2.consumed) != 1 || ch2.consumed[0] != "q1" {
		t.Errorf("second channel consumed = %v", ch2.consumed)
	}
}

func TestWorkerIdlesWithoutConsumers(t *testing.T) {
	ch := newTestChannel()
	sess1 := newFakeSession(ch)
	sess2 := newFakeSession(ch)

	// пустой реестр: все привязки пропускаются, consumer'ов нет —
	// worker обязан стоять на месте, а не крутить переподключения
	w, dials := newTestWorker(t, NewRegistry(), sess1, sess2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if *dials != 1 {
		t.Errorf("dials = %d, want 1", *dials)
	}
	if !sess1.isClosed() {
		t.Error("session should be closed after drain")
	}

	// закрытие соединения брокером по-прежнему ведёт к переинициализации
	sess3 := newFakeSession(ch)
	sess4 := newFakeSession(ch)
	w2, dials2 := newTestWorker(t, NewRegistry(), sess3, sess4)
	ctx2, cancel2 := context.WithCancel(context.Background())
	done2 := make(chan error, 1)
	go func() { done2 <- w2.Run(ctx2) }()

	sess3.closeCh <- &amqp.Error{Code: 320, Reason: "CONNECTION_FORCED"}
	waitFor(t, func() bool { return sess4.used() })

	cancel2()
	if err := <-done2; err != nil {
		t.Fatalf("run: %v", err)
	}
	if *dials2 != 2 {
		t.Errorf("dials after broker close = %d, want 2", *dials2)
	}
}

func TestWorkerBrokerCloseNotification(t *testing.T) {
	ch1 := newTestChannel()
	ch2 := newTestChannel()
	sess1 := newFakeSession(ch1)
	sess2 := newFakeSession(ch2)

	handled := make(chan string, 1)
	registry := NewRegistry()
	registry.Register("h", func(ctx context.Context, d *mq.Delivery) error {
		handled <- string(d.Body())
		return d.Ack()
	})

	w, dials := newTestWorker(t, registry, sess1, sess2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// соединение закрыто с ошибкой со стороны брокера
	sess1.closeCh <- &amqp.Error{Code: 320, Reason: "CONNECTION_FORCED"}

	ch2.delivery("q1") <- delivery(&fakeAcknowledger{}, 1, "recovered")
	select {
	case got := <-handled:
		if got != "recovered" {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not recover from broker close notification")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if *dials != 2 {
		t.Errorf("dials = %d, want 2", *dials)
	}
}
