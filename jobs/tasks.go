package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/invoicing/internal/platform/httpx"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskInvoiceArchivePDF renders an invoice and stores the PDF alongside it.
	TaskInvoiceArchivePDF = "invoice:archive_pdf"
	// TaskInvoiceArchiveSweep enqueues archives for issued invoices that have none.
	TaskInvoiceArchiveSweep = "invoice:archive_sweep"
)

// InvoiceArchivePayload identifies the invoice to archive.
type InvoiceArchivePayload struct {
	InvoiceID string `json:"invoice_id"`
}

// NewInvoiceArchiveTask constructs an Asynq task.
func NewInvoiceArchiveTask(invoiceID string) (*asynq.Task, error) {
	if _, err := uuid.Parse(invoiceID); err != nil {
		return nil, fmt.Errorf("invoice archive: invalid invoice id %q", invoiceID)
	}
	data, err := json.Marshal(InvoiceArchivePayload{InvoiceID: invoiceID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInvoiceArchivePDF, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// InvoiceArchiver renders and stores the PDF of one invoice.
type InvoiceArchiver interface {
	ArchivePDF(ctx context.Context, invoiceID string) error
}

// JobObserver counts processed tasks.
type JobObserver interface {
	ObserveJob(taskType string, err error)
}

// ArchiveJob handles TaskInvoiceArchivePDF tasks.
type ArchiveJob struct {
	archiver InvoiceArchiver
	metrics  JobObserver
	logger   *slog.Logger
}

// NewArchiveJob wires the archive handler.
func NewArchiveJob(archiver InvoiceArchiver, metrics JobObserver, logger *slog.Logger) *ArchiveJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveJob{archiver: archiver, metrics: metrics, logger: logger.With(slog.String("job", TaskInvoiceArchivePDF))}
}

// Handle processes one archive task. Malformed payloads are not retried.
func (j *ArchiveJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.archiver == nil {
		return errors.New("invoice archive: handler not configured")
	}
	defer func() {
		if j.metrics != nil {
			j.metrics.ObserveJob(TaskInvoiceArchivePDF, err)
		}
	}()

	var payload InvoiceArchivePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		j.logger.Warn("decode payload", slog.Any("error", err))
		return fmt.Errorf("invoice archive: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := uuid.Parse(payload.InvoiceID); err != nil {
		return fmt.Errorf("invoice archive: invalid invoice id: %w", asynq.SkipRetry)
	}

	logger := j.logger.With(slog.String("invoice_id", payload.InvoiceID))
	if err := j.archiver.ArchivePDF(ctx, payload.InvoiceID); err != nil {
		logger.Error("archive failed", slog.Any("error", err))
		if errors.Is(err, httpx.ErrNotFound) {
			return fmt.Errorf("invoice archive: %v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	logger.Info("invoice archived")
	return nil
}

// NewArchiveSweepTask constructs the periodic sweep task.
func NewArchiveSweepTask() *asynq.Task {
	return asynq.NewTask(TaskInvoiceArchiveSweep, nil, asynq.Queue(QueueDefault), asynq.MaxRetry(1))
}

// ArchiveBacklog lists invoices still missing an archived PDF.
type ArchiveBacklog interface {
	PendingArchives(ctx context.Context, limit int) ([]string, error)
}

// ArchiveScheduler submits archive tasks.
type ArchiveScheduler interface {
	EnqueueInvoiceArchive(ctx context.Context, invoiceID string) error
}

// SweepJob handles TaskInvoiceArchiveSweep tasks.
type SweepJob struct {
	backlog   ArchiveBacklog
	scheduler ArchiveScheduler
	batch     int
	metrics   JobObserver
	logger    *slog.Logger
}

// NewSweepJob wires the sweep handler. batch caps how many invoices one run enqueues.
func NewSweepJob(backlog ArchiveBacklog, scheduler ArchiveScheduler, batch int, metrics JobObserver, logger *slog.Logger) *SweepJob {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 100
	}
	return &SweepJob{
		backlog:   backlog,
		scheduler: scheduler,
		batch:     batch,
		metrics:   metrics,
		logger:    logger.With(slog.String("job", TaskInvoiceArchiveSweep)),
	}
}

// Handle enqueues one archive task per pending invoice. Failed enqueues are
// reported together so the next run picks them up again.
func (j *SweepJob) Handle(ctx context.Context, _ *asynq.Task) (err error) {
	if j == nil || j.backlog == nil || j.scheduler == nil {
		return errors.New("archive sweep: handler not configured")
	}
	defer func() {
		if j.metrics != nil {
			j.metrics.ObserveJob(TaskInvoiceArchiveSweep, err)
		}
	}()

	ids, err := j.backlog.PendingArchives(ctx, j.batch)
	if err != nil {
		return fmt.Errorf("archive sweep: %w", err)
	}
	var errs []error
	for _, id := range ids {
		if err := j.scheduler.EnqueueInvoiceArchive(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("invoice %s: %w", id, err))
		}
	}
	j.logger.Info("archive sweep done", slog.Int("pending", len(ids)), slog.Int("failed", len(errs)))
	if len(errs) > 0 {
		return fmt.Errorf("archive sweep: %w", errors.Join(errs...))
	}
	return nil
}
