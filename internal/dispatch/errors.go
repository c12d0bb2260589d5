package dispatch

import "errors"

// Ошибки пакета dispatch.
var (
	// ErrAlreadyRunning — pidfile уже захвачен другим экземпляром.
	ErrAlreadyRunning = errors.New("dispatcher is already running")

	// ErrHandlerFailed — обработчик вернул ошибку; worker-процесс
	// завершается (fail-fast).
	ErrHandlerFailed = errors.New("handler failed")

	// ErrNoDiscardHandler — в реестре нет обработчика discard,
	// drain-queue невозможен.
	ErrNoDiscardHandler = errors.New("discard handler is not registered")
)
