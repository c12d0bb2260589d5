package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

func TestPIDFileSingleInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatcher.pid")

	p, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// файл содержит PID держателя
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pidfile: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid != os.Getpid() {
		t.Errorf("pidfile content = %q, want own pid %d", data, os.Getpid())
	}

	// второй экземпляр не захватывает блокировку
	if _, err := AcquirePIDFile(path); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	if err := p.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pidfile should be removed on release")
	}

	// после release блокировка снова доступна
	p2, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	p2.Release()
}

func TestPIDFileReleaseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dispatcher.pid")

	p, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("second release should be a no-op, got %v", err)
	}
}

func TestPIDFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "dispatcher.pid")

	p, err := AcquirePIDFile(path)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer p.Release()

	if p.Path() != path {
		t.Errorf("path = %q, want %q", p.Path(), path)
	}
}
