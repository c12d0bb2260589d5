// Nephele Dispatcher — ядро асинхронной доставки сообщений платформы.
//
// Режимы запуска:
//
//	nephele-dispatcher                  — демон: пул из N worker-процессов
//	nephele-dispatcher --debug          — foreground, без fork, с debug-очередью
//	nephele-dispatcher purge-queues     — удалить все очереди (ОПАСНО)
//	nephele-dispatcher purge-exchanges  — удалить очереди, затем exchange'и (ОПАСНО)
//	nephele-dispatcher drain-queue NAME — вычистить очередь от сообщений
//
// Параметры брокера и БД берутся из окружения (NEPHELE_*), см. пакет
// config.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/shaiso/nephele/internal/callbacks"
	"github.com/shaiso/nephele/internal/config"
	"github.com/shaiso/nephele/internal/dispatch"
	"github.com/shaiso/nephele/internal/repo"
	"github.com/shaiso/nephele/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var debug bool
	var workers int
	var pidFile string

	rootCmd := &cobra.Command{
		Use:           "nephele-dispatcher",
		Short:         "Nephele message dispatcher — queue setup, dispatch and admin",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				return runWorker(true)
			}
			return runDaemon(workers, pidFile)
		},
	}

	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Run in foreground debug mode (no fork)")
	rootCmd.Flags().IntVarP(&workers, "workers", "w", config.DefaultWorkers, "Number of workers to spawn")
	rootCmd.Flags().StringVarP(&pidFile, "pid-file", "p", config.DefaultPIDFile, "Save PID to file")

	rootCmd.AddCommand(
		newWorkerCmd(),
		newPurgeQueuesCmd(),
		newPurgeExchangesCmd(),
		newDrainQueueCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newWorkerCmd — скрытая команда, под которой супервизор перезапускает
// этот же бинарник как worker-процесс.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(false)
		},
	}
}

// runWorker — контекст одного worker-процесса (или foreground debug
// режима). Сигналы завершения отменяют ctx, что разматывает wait-цикл
// worker'а в drain.
func runWorker(debug bool) error {
	logger := telemetry.WithPID(telemetry.SetupLogger())
	cfg := config.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	registry := dispatch.NewRegistry()
	cbs := callbacks.New(repo.NewInstanceRepo(pool), repo.NewNetworkRepo(pool), logger)
	cbs.RegisterAll(registry)

	if cfg.MetricsPort > 0 {
		port := cfg.MetricsPort
		if !debug {
			// отдельные процессы не могут делить listener
			port += cfg.WorkerIndex
		}
		go serveMetrics(port, logger)
	}

	w := dispatch.NewWorker(dispatch.WorkerConfig{
		BrokerURL:      cfg.BrokerURL(),
		ReconnectDelay: cfg.ReconnectDelay,
		Topology:       config.DefaultTopology(),
		Registry:       registry,
		// debug-привязки активны только при debug-запуске И глобальном
		// debug-флаге
		Debug:  debug && cfg.Debug,
		Logger: logger,
	})

	if err := w.Run(ctx); err != nil {
		// fail-fast граница: ошибка обработчика роняет процесс,
		// супервизор увидит ненулевой exit-код
		logger.Error("worker terminated", "error", err)
		os.Exit(1)
	}
	return nil
}

// runDaemon — контекст родительского процесса: pidfile-блокировка и
// supervision пула.
func runDaemon(workers int, pidFile string) error {
	logger := telemetry.WithPID(telemetry.SetupLogger())

	pidf, err := dispatch.AcquirePIDFile(pidFile)
	if err != nil {
		return err
	}
	// блокировка снимается на любом пути выхода, включая ошибку reap'а
	defer func() {
		if err := pidf.Release(); err != nil {
			logger.Error("failed to release pidfile", "error", err)
		}
	}()

	logger.Info("dispatcher daemon started", "workers", workers, "pid_file", pidFile)

	sup := dispatch.NewSupervisor(dispatch.SpawnWorkers(), logger)
	if err := sup.Run(workers); err != nil {
		return err
	}

	logger.Info("all workers exited, shutting down")
	return nil
}

// serveMetrics поднимает /metrics и /healthz.
func serveMetrics(port int, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server error", "error", err)
	}
}

func newPurgeQueuesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-queues",
		Short: "Remove all declared queues (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdmin().PurgeQueues()
		},
	}
}

func newPurgeExchangesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-exchanges",
		Short: "Remove all exchanges, deleting all queues first (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newAdmin().PurgeExchanges()
		},
	}
}

func newDrainQueueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drain-queue QUEUE",
		Short: "Strip a queue from all outstanding messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return newAdmin().DrainQueue(ctx, args[0])
		},
	}
}

// newAdmin собирает Admin с полным реестром обработчиков (drain
// использует discard; store-зависимости ему не нужны).
func newAdmin() *dispatch.Admin {
	logger := telemetry.SetupLogger()
	cfg := config.Load()

	registry := dispatch.NewRegistry()
	callbacks.New(nil, nil, logger).RegisterAll(registry)

	return dispatch.NewAdmin(dispatch.AdminConfig{
		BrokerURL: cfg.BrokerURL(),
		Topology:  config.DefaultTopology(),
		Resolve:   registry.Resolve,
		Logger:    logger,
	})
}
