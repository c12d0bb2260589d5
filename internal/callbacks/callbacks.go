package callbacks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/nephele/internal/dispatch"
	"github.com/shaiso/nephele/internal/domain"
	"github.com/shaiso/nephele/internal/mq"
)

// InstanceStore — обновления инстансов, нужные обработчикам.
// Реализуется repo.InstanceRepo.
type InstanceStore interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.InstanceStatus, reason string) error
}

// NetworkStore — обновления сетей, нужные обработчикам.
// Реализуется repo.NetworkRepo.
type NetworkStore interface {
	UpdateLinkState(ctx context.Context, id uuid.UUID, link string, state domain.LinkState) error
}

// Callbacks — набор обработчиков с их зависимостями.
type Callbacks struct {
	instances InstanceStore
	networks  NetworkStore
	logger    *slog.Logger
}

// New создаёт Callbacks.
func New(instances InstanceStore, networks NetworkStore, logger *slog.Logger) *Callbacks {
	return &Callbacks{
		instances: instances,
		networks:  networks,
		logger:    logger,
	}
}

// RegisterAll заполняет реестр фиксированной таблицей обработчиков.
// Это единственное место, где имя из привязки встречается с callback'ом.
func (c *Callbacks) RegisterAll(r *dispatch.Registry) {
	r.Register("instance_event", c.InstanceEvent)
	r.Register("network_event", c.NetworkEvent)
	r.Register("notify_email", c.NotifyEmail)
	r.Register("log_message", c.LogMessage)
	r.Register("discard", c.Discard)
}

// InstanceEvent обновляет статус инстанса по событию compute backend'а.
func (c *Callbacks) InstanceEvent(ctx context.Context, d *mq.Delivery) error {
	var ev domain.InstanceEvent
	if err := json.Unmarshal(d.Body(), &ev); err != nil {
		return fmt.Errorf("decode instance event: %w", err)
	}
	if !ev.Status.Valid() {
		return fmt.Errorf("unknown instance status %q", ev.Status)
	}

	if err := c.instances.UpdateStatus(ctx, ev.InstanceID, ev.Status, ev.Reason); err != nil {
		return fmt.Errorf("apply instance event: %w", err)
	}

	c.logger.Info("instance status updated",
		"instance_id", ev.InstanceID,
		"status", ev.Status,
		"routing_key", d.RoutingKey(),
	)

	return d.Ack()
}

// NetworkEvent обновляет состояние линка сети.
func (c *Callbacks) NetworkEvent(ctx context.Context, d *mq.Delivery) error {
	var ev domain.NetworkEvent
	if err := json.Unmarshal(d.Body(), &ev); err != nil {
		return fmt.Errorf("decode network event: %w", err)
	}
	if !ev.State.Valid() {
		return fmt.Errorf("unknown link state %q", ev.State)
	}

	if err := c.networks.UpdateLinkState(ctx, ev.NetworkID, ev.Link, ev.State); err != nil {
		return fmt.Errorf("apply network event: %w", err)
	}

	c.logger.Info("network link updated",
		"network_id", ev.NetworkID,
		"link", ev.Link,
		"state", ev.State,
	)

	return d.Ack()
}

// NotifyEmail логирует запрос на e-mail уведомление.
// Доставка почты принадлежит внешнему notification-сервису.
func (c *Callbacks) NotifyEmail(ctx context.Context, d *mq.Delivery) error {
	var ev domain.EmailEvent
	if err := json.Unmarshal(d.Body(), &ev); err != nil {
		return fmt.Errorf("decode email event: %w", err)
	}

	c.logger.Info("email notification requested",
		"recipient", ev.Recipient,
		"subject", ev.Subject,
	)

	return d.Ack()
}

// LogMessage — обработчик debug firehose: логирует всё, ничего не меняя.
func (c *Callbacks) LogMessage(ctx context.Context, d *mq.Delivery) error {
	c.logger.Debug("firehose message",
		"exchange", d.Exchange(),
		"routing_key", d.RoutingKey(),
		"redelivered", d.Redelivered(),
		"body", string(d.Body()),
	)
	return d.Ack()
}

// Discard подтверждает сообщение и выбрасывает его. Используется
// командой drain-queue.
func (c *Callbacks) Discard(ctx context.Context, d *mq.Delivery) error {
	return d.Ack()
}
