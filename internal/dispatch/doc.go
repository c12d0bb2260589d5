// Package dispatch — ядро асинхронной доставки сообщений и supervision
// worker-процессов.
//
// Структура:
//   - registry.go   — явный реестр обработчиков по имени
//   - worker.go     — state machine одного worker-процесса
//     (INITIALIZING → CONSUMING → DRAINING), переинициализация на месте
//     при потере соединения
//   - supervisor.go — запуск N worker-процессов, fan-out сигналов,
//     поочерёдный reap
//   - pidfile.go    — flock-блокировка единственного экземпляра демона
//   - admin.go      — интерактивные операции purge/drain
//
// Модель параллелизма — параллелизм OS-процессов, не горутин: каждый
// worker — отдельный процесс со своим соединением и каналом, общей
// памяти между worker'ами нет. Падение обработчика в одном worker'е
// не может испортить состояние другого.
//
// Ошибка обработчика намеренно не перехватывается: worker завершает
// процесс с ненулевым кодом (fail-fast граница), супервизор видит это
// как обычный exit потомка и не перезапускает его.
package dispatch
