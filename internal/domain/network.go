package domain

import (
	"time"

	"github.com/google/uuid"
)

// LinkState — состояние сетевого линка.
type LinkState string

// Состояния линка.
const (
	LinkStateUp       LinkState = "UP"
	LinkStateDown     LinkState = "DOWN"
	LinkStateDegraded LinkState = "DEGRADED"
)

// Valid проверяет, известно ли состояние.
func (s LinkState) Valid() bool {
	switch s {
	case LinkStateUp, LinkStateDown, LinkStateDegraded:
		return true
	}
	return false
}

// Network — виртуальная сеть платформы.
type Network struct {
	// ID — уникальный идентификатор сети.
	ID uuid.UUID `json:"id"`

	// Name — имя сети.
	Name string `json:"name"`

	// Link — имя физического линка.
	Link string `json:"link"`

	// State — состояние линка.
	State LinkState `json:"state"`

	// UpdatedAt — время последнего изменения состояния.
	UpdatedAt time.Time `json:"updated_at"`
}
