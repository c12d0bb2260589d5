package dispatch

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
)

// WorkerRecord — пара (родительский PID, PID потомка).
// Создаётся при запуске потомка, забывается после его reap'а.
type WorkerRecord struct {
	ParentPID int
	PID       int

	proc childProcess
}

// childProcess — управление одним worker-процессом.
// Реализация по умолчанию — osProcess поверх exec.Cmd; тесты подставляют
// фальшивые процессы.
type childProcess interface {
	PID() int
	Signal(sig os.Signal) error
	Wait() error
}

// SpawnFunc запускает worker-процесс с порядковым номером index.
type SpawnFunc func(index int) (childProcess, error)

// Supervisor запускает пул worker-процессов и доводит его до полного
// завершения.
//
// Записи о потомках — явная упорядоченная коллекция, принадлежащая
// Supervisor'у; горутина-обработчик сигналов получает её через
// замыкание, а не через глобальное состояние. Умерший потомок не
// перезапускается: рестарт всего демона — дело внешнего process
// manager'а (операционный контракт, не упущение).
type Supervisor struct {
	spawn  SpawnFunc
	logger *slog.Logger

	// notify подменяется в тестах, чтобы доставлять сигналы руками
	notify chan os.Signal

	// mu защищает records: список пополняется при spawn'е и читается
	// горутиной fan-out'а сигналов
	mu      sync.Mutex
	records []*WorkerRecord
}

// NewSupervisor создаёт Supervisor.
func NewSupervisor(spawn SpawnFunc, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		spawn:  spawn,
		logger: logger,
		notify: make(chan os.Signal, 1),
	}
}

// Records возвращает снимок записей о запущенных worker-процессах.
func (s *Supervisor) Records() []*WorkerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*WorkerRecord(nil), s.records...)
}

// Run запускает n worker-процессов и возвращается только после того,
// как все они завершились.
//
// SIGINT/SIGTERM родителя веером рассылаются каждому записанному потомку
// (итерация по списку записей, не broadcast-примитив). Reap — best
// effort: ошибка ожидания одного потомка не мешает дождаться остальных.
func (s *Supervisor) Run(n int) error {
	signal.Notify(s.notify, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.notify)

	var spawnErr error
	for i := 0; i < n; i++ {
		p, err := s.spawn(i)
		if err != nil {
			spawnErr = fmt.Errorf("spawn worker %d: %w", i, err)
			s.logger.Error("failed to spawn worker", "index", i, "error", err)
			break
		}
		rec := &WorkerRecord{ParentPID: os.Getpid(), PID: p.PID(), proc: p}
		s.mu.Lock()
		s.records = append(s.records, rec)
		s.mu.Unlock()
		s.logger.Info("forked worker", "parent_pid", rec.ParentPID, "child_pid", rec.PID)
	}

	if spawnErr != nil {
		// уже запущенные потомки не должны осиротеть
		s.fanOut(syscall.SIGTERM)
	}

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-s.notify:
				s.logger.Info("caught signal, terminating workers", "signal", sig.String())
				s.fanOut(syscall.SIGTERM)
			case <-stop:
				return
			}
		}
	}()

	s.reap()
	close(stop)

	return spawnErr
}

// fanOut посылает sig каждому записанному потомку ровно один раз.
func (s *Supervisor) fanOut(sig os.Signal) {
	for _, rec := range s.Records() {
		if err := rec.proc.Signal(sig); err != nil {
			// потомок мог уже завершиться
			s.logger.Debug("failed to signal worker", "child_pid", rec.PID, "error", err)
		}
	}
}

// reap поочерёдно ждёт каждого потомка.
func (s *Supervisor) reap() {
	for _, rec := range s.Records() {
		err := rec.proc.Wait()
		if err == nil {
			s.logger.Info("worker exited", "child_pid", rec.PID)
			continue
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			s.logger.Warn("worker exited with error",
				"child_pid", rec.PID,
				"exit_code", exitErr.ExitCode(),
			)
			continue
		}
		s.logger.Debug("wait failed", "child_pid", rec.PID, "error", err)
	}
}

// SpawnWorkers возвращает SpawnFunc, перезапускающий текущий бинарник
// со скрытой командой worker.
//
// Worker'ы — независимые OS-процессы, не горутины: fail-fast политика
// обработчиков опирается на полную изоляцию памяти между ними.
func SpawnWorkers() SpawnFunc {
	return func(index int) (childProcess, error) {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}

		cmd := exec.Command(exe, "worker")
		cmd.Env = append(os.Environ(), fmt.Sprintf("NEPHELE_WORKER_INDEX=%d", index))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start worker: %w", err)
		}
		return &osProcess{cmd: cmd}, nil
	}
}

// osProcess — childProcess поверх exec.Cmd.
type osProcess struct {
	cmd *exec.Cmd
}

func (p *osProcess) PID() int {
	return p.cmd.Process.Pid
}

func (p *osProcess) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

func (p *osProcess) Wait() error {
	return p.cmd.Wait()
}
