// Command pagos-backup keeps a SQLite copy of the ledger. It copies after
// every "ledger saved" notification and whenever the copy is older than
// BACKUP_INTERVAL.
package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"pagos/internal/amqp"
	"pagos/internal/backend"
	"pagos/internal/cli"
	"pagos/internal/log"
	"pagos/internal/storage"
	"pagos/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger().WithComponent(log.ComponentBackup)
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the backup worker")
		os.Exit(1)
	}
	if cfg.DataBackend == backend.SQLiteBackend.String() && samePath(cfg.SQLiteDBPath, cfg.BackupDBPath) {
		logger.Error("BACKUP_DB_PATH must differ from SQLITE_DB_PATH", "path", cfg.BackupDBPath)
		os.Exit(1)
	}

	ctx := context.Background()

	// The worker only reads the source; it never publishes.
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	bcfg.AMQPURL = ""
	source, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize source backend", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	mirror, err := storage.NewSQLiteRepository(cfg.BackupDBPath)
	if err != nil {
		logger.Error("Failed to open backup database", log.FieldError, err, "path", cfg.BackupDBPath)
		os.Exit(1)
	}

	consumer, err := amqp.NewConsumer(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP consumer", log.FieldError, err)
		os.Exit(1)
	}

	closeAll := func() {
		consumer.Close()
		if err := mirror.Close(); err != nil {
			logger.Error("Backup database close error", log.FieldError, err)
		}
		if source.Cleanup != nil {
			if err := source.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", log.FieldError, err)
			}
		}
	}

	w := worker.NewBackupWorker(source.Store, mirror, logger)

	runCtx, cancel := context.WithCancel(ctx)
	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) { cancel() })

	logger.Info("Performing startup backup check...", "interval", cfg.BackupInterval.String())
	if _, err := w.MirrorIfStale(runCtx, cfg.BackupInterval); err != nil {
		// Keep running; the next notification or tick retries.
		logger.LogError(runCtx, "Startup backup failed", err, log.ErrorTypeStore, log.OpBackup, nil)
	}

	go w.Run(runCtx, cfg.BackupInterval)

	consumeErr := make(chan error, 1)
	go func() { consumeErr <- consumer.ConsumeLedgerSaved(runCtx, w.HandleLedgerSaved) }()

	exitCode := 0
	select {
	case <-shutdownCtx.Done():
		<-done
	case err := <-consumeErr:
		if !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			exitCode = 1
		}
	}
	cancel()
	closeAll()
	logger.Info("Backup worker stopped")
	os.Exit(exitCode)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
