// Package worker keeps a SQLite copy of the ledger in step with the primary
// row store.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pagos/internal/amqp"
	"pagos/internal/core"
	"pagos/internal/log"
	"pagos/internal/sheets"
)

// Mirror is the backup destination.
type Mirror interface {
	sheets.RowStore
	LastUpdated(ctx context.Context) (time.Time, error)
}

// BackupWorker copies the whole ledger from source to mirror. Copies are
// normalized first, so the mirror always has the canonical header.
type BackupWorker struct {
	source sheets.RowStore
	mirror Mirror
	logger *log.Logger
	now    func() time.Time

	mu         sync.Mutex
	lastMirror time.Time
}

func NewBackupWorker(source sheets.RowStore, mirror Mirror, logger *log.Logger) *BackupWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &BackupWorker{
		source: source,
		mirror: mirror,
		logger: logger.WithComponent(log.ComponentBackup),
		now:    time.Now,
	}
}

// Mirror copies the current ledger and returns the number of records.
func (w *BackupWorker) Mirror(ctx context.Context) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	started := w.now()
	raw, err := w.source.ReadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("read source ledger: %w", err)
	}
	t := core.Normalize(raw)
	if err := w.mirror.OverwriteAll(ctx, t.Rows()); err != nil {
		return 0, fmt.Errorf("write mirror: %w", err)
	}
	w.lastMirror = started

	w.logger.InfoContext(ctx, "Ledger mirrored",
		log.FieldRows, t.Len(),
		log.FieldDuration, w.now().Sub(started).Milliseconds())
	return t.Len(), nil
}

// HandleLedgerSaved mirrors after a save. Notifications older than the
// last copy are already covered and skipped.
func (w *BackupWorker) HandleLedgerSaved(ctx context.Context, msg *amqp.LedgerSavedMessage) error {
	w.mu.Lock()
	last := w.lastMirror
	w.mu.Unlock()

	if !msg.Timestamp.IsZero() && !last.IsZero() && msg.Timestamp.Before(last) {
		w.logger.DebugContext(ctx, "Skipping notification older than last mirror",
			"action", msg.Action, "timestamp", msg.Timestamp)
		return nil
	}
	_, err := w.Mirror(ctx)
	return err
}

// MirrorIfStale copies the ledger when the mirror is empty or was last
// written more than maxAge ago. It reports whether a copy was made.
func (w *BackupWorker) MirrorIfStale(ctx context.Context, maxAge time.Duration) (bool, error) {
	last, err := w.mirror.LastUpdated(ctx)
	if err != nil {
		return false, fmt.Errorf("check mirror age: %w", err)
	}
	if !last.IsZero() && w.now().Sub(last) <= maxAge {
		w.logger.DebugContext(ctx, "Mirror is fresh", "last_update", last.Format(time.RFC3339))
		return false, nil
	}
	if _, err := w.Mirror(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Run checks the mirror every interval until ctx is cancelled. Missed
// notifications are caught up this way.
func (w *BackupWorker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.MirrorIfStale(ctx, interval); err != nil {
				w.logger.LogError(ctx, "Periodic mirror failed", err, log.ErrorTypeStore, log.OpBackup, nil)
			}
		}
	}
}
