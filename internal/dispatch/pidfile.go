package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile — эксклюзивная блокировка единственного экземпляра демона.
//
// Файл держится под flock(2) на всё время жизни супервизора: блокировка
// исчезает вместе с процессом даже при его аварийной смерти, поэтому
// устаревший pidfile не мешает следующему запуску. Содержимое — PID
// держателя, для диагностики и внешних инструментов.
type PIDFile struct {
	path string
	file *os.File
	held bool
}

// AcquirePIDFile захватывает блокировку по пути path.
// Возвращает ErrAlreadyRunning (с PID держателя, если он читается),
// когда блокировку держит другой процесс.
func AcquirePIDFile(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create pidfile dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open pidfile: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		holder := readPID(f)
		f.Close()
		if holder > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, holder)
		}
		return nil, ErrAlreadyRunning
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate pidfile: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("write pidfile: %w", err)
	}
	f.Sync()

	return &PIDFile{path: path, file: f, held: true}, nil
}

// Release снимает блокировку и удаляет файл.
// Идемпотентен: повторный вызов безопасен.
func (p *PIDFile) Release() error {
	if !p.held {
		return nil
	}
	p.held = false

	if err := syscall.Flock(int(p.file.Fd()), syscall.LOCK_UN); err != nil {
		p.file.Close()
		return fmt.Errorf("unlock pidfile: %w", err)
	}
	if err := p.file.Close(); err != nil {
		return fmt.Errorf("close pidfile: %w", err)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pidfile: %w", err)
	}
	return nil
}

// Path возвращает путь pidfile.
func (p *PIDFile) Path() string {
	return p.path
}

// readPID читает PID держателя из файла; 0 — прочитать не удалось.
func readPID(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}
