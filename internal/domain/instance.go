// Package domain содержит сущности платформы, которые трогают
// обработчики диспетчера.
//
// Это узкий срез модели данных: диспетчеру нужны только статусы
// инстансов и сетей, остальная модель принадлежит API-слою.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// InstanceStatus — статус виртуальной машины.
type InstanceStatus string

// Статусы инстанса.
const (
	InstanceStatusBuilding  InstanceStatus = "BUILDING"
	InstanceStatusRunning   InstanceStatus = "RUNNING"
	InstanceStatusStopped   InstanceStatus = "STOPPED"
	InstanceStatusRebooting InstanceStatus = "REBOOTING"
	InstanceStatusError     InstanceStatus = "ERROR"
	InstanceStatusDestroyed InstanceStatus = "DESTROYED"
)

// Valid проверяет, известен ли статус.
func (s InstanceStatus) Valid() bool {
	switch s {
	case InstanceStatusBuilding, InstanceStatusRunning, InstanceStatusStopped,
		InstanceStatusRebooting, InstanceStatusError, InstanceStatusDestroyed:
		return true
	}
	return false
}

// Instance — виртуальная машина платформы.
type Instance struct {
	// ID — уникальный идентификатор инстанса.
	ID uuid.UUID `json:"id"`

	// Name — имя инстанса.
	Name string `json:"name"`

	// Status — текущий статус.
	Status InstanceStatus `json:"status"`

	// Backend — имя compute backend'а, на котором живёт инстанс.
	Backend string `json:"backend"`

	// UpdatedAt — время последнего изменения статуса.
	UpdatedAt time.Time `json:"updated_at"`
}
