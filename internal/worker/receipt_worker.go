package worker

// receipt_worker.go
// Processes QueueReceipt jobs: renders the PDF ticket of a committed sale,
// records it in the receipts table and, when the customer left an email,
// chains an email job. Failures are kept on the receipt row and picked up
// again by the retry cron.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"retailpos/internal/infra"
	"retailpos/internal/metrics"
	"retailpos/internal/model"
	"retailpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReceiptJobPayload is the job envelope sent to QueueReceipt.
type ReceiptJobPayload struct {
	SaleID        string  `json:"sale_id"`
	CustomerEmail *string `json:"customer_email,omitempty"`
}

// SaleFinder loads a sale with its details, products and payments.
type SaleFinder interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Sale, error)
}

// ReceiptRenderer writes the receipt file and returns its path.
type ReceiptRenderer func(sale *model.Sale, storeName, storagePath string) (string, error)

type ReceiptWorkerConfig struct {
	StoragePath string
	StoreName   string
	// MaxRetries is the number of failed generations after which the receipt
	// is dead-lettered and no longer scheduled.
	MaxRetries int
}

type ReceiptWorker struct {
	receipts   repository.ReceiptRepository
	sales      SaleFinder
	dispatcher *Dispatcher
	metrics    *metrics.Metrics

	storagePath string
	storeName   string
	maxRetries  int

	render    ReceiptRenderer
	retryBase time.Duration
	now       func() time.Time
}

func NewReceiptWorker(
	receipts repository.ReceiptRepository,
	sales SaleFinder,
	dispatcher *Dispatcher,
	m *metrics.Metrics,
	cfg ReceiptWorkerConfig,
) *ReceiptWorker {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	return &ReceiptWorker{
		receipts:    receipts,
		sales:       sales,
		dispatcher:  dispatcher,
		metrics:     m,
		storagePath: cfg.StoragePath,
		storeName:   cfg.StoreName,
		maxRetries:  cfg.MaxRetries,
		render:      infra.GenerateTicketPDF,
		retryBase:   time.Second,
		now:         time.Now,
	}
}

// Process handles a single receipt job:
//  1. Parse the payload and load the sale
//  2. Upsert the receipt row (a redelivered job reuses it)
//  3. Render the PDF with in-process backoff
//  4. Chain an email job when an address is known
//
// Only jobs that can never succeed return an error.
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("receipt_worker: invalid payload: %w", err)
	}
	saleID, err := uuid.Parse(payload.SaleID)
	if err != nil {
		return fmt.Errorf("receipt_worker: invalid sale_id %q", payload.SaleID)
	}

	sale, err := w.sales.FindByID(ctx, saleID)
	if err != nil {
		w.metrics.RecordReceiptJob(JobReceipt, false)
		return fmt.Errorf("receipt_worker: load sale %s: %w", saleID, err)
	}

	rec := &model.Receipt{
		SaleID:     sale.ID,
		SaleNumber: sale.SaleNumber,
		Status:     model.ReceiptPending,
		Email:      payload.CustomerEmail,
	}
	if err := w.receipts.Upsert(ctx, rec); err != nil {
		w.metrics.RecordReceiptJob(JobReceipt, false)
		return fmt.Errorf("receipt_worker: upsert receipt: %w", err)
	}
	if rec.Status == model.ReceiptGenerated || rec.Status == model.ReceiptSent {
		log.Info().Str("sale_number", sale.SaleNumber).Msg("receipt_worker: receipt already generated, skipping")
		return nil
	}
	if rec.Email == nil && payload.CustomerEmail != nil {
		rec.Email = payload.CustomerEmail
	}

	w.generate(ctx, rec, sale)
	return nil
}

// Retry re-renders a receipt previously marked as failed.
func (w *ReceiptWorker) Retry(ctx context.Context, rec *model.Receipt) {
	sale, err := w.sales.FindByID(ctx, rec.SaleID)
	if err != nil {
		w.fail(ctx, rec, fmt.Errorf("load sale: %w", err))
		return
	}
	w.generate(ctx, rec, sale)
}

func (w *ReceiptWorker) generate(ctx context.Context, rec *model.Receipt, sale *model.Sale) {
	var path string
	err := withRetry(ctx, 3, w.retryBase, func(attempt int) error {
		p, err := w.render(sale, w.storeName, w.storagePath)
		if err != nil {
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Str("sale_number", sale.SaleNumber).
				Msg("receipt_worker: render attempt failed")
			return err
		}
		path = p
		return nil
	})
	if err != nil {
		w.fail(ctx, rec, err)
		return
	}

	rec.Status = model.ReceiptGenerated
	rec.PDFPath = &path
	rec.LastError = nil
	rec.NextRetryAt = nil
	if err := w.receipts.Update(ctx, rec); err != nil {
		log.Error().Err(err).Str("sale_number", sale.SaleNumber).Msg("receipt_worker: failed to update receipt")
	}
	w.metrics.RecordReceiptJob(JobReceipt, true)
	log.Info().Str("pdf", path).Str("sale_number", sale.SaleNumber).Msg("receipt_worker: receipt generated")

	if rec.Email == nil || *rec.Email == "" || w.dispatcher == nil {
		return
	}
	job := EmailJobPayload{
		SaleID:  sale.ID.String(),
		ToEmail: *rec.Email,
		Subject: fmt.Sprintf("%s - Comprobante %s", w.storeName, sale.SaleNumber),
		Body:    fmt.Sprintf("Adjuntamos tu comprobante de compra.\nTotal: %s", sale.TotalAmount.StringFixed(2)),
		PDFPath: path,
	}
	if err := w.dispatcher.EnqueueEmail(ctx, job); err != nil {
		log.Warn().Err(err).Str("email", *rec.Email).Msg("receipt_worker: failed to enqueue email")
	}
}

// fail records the error on the receipt and schedules the next attempt, or
// dead-letters it once the retry budget is spent.
func (w *ReceiptWorker) fail(ctx context.Context, rec *model.Receipt, cause error) {
	w.metrics.RecordReceiptJob(JobReceipt, false)

	rec.RetryCount++
	msg := cause.Error()
	rec.LastError = &msg
	rec.Status = model.ReceiptFailed

	if rec.RetryCount >= w.maxRetries {
		rec.NextRetryAt = nil
		log.Error().
			Str("sale_id", rec.SaleID.String()).
			Int("retries", rec.RetryCount).
			Msg("receipt_worker: max retries exceeded, moving to DLQ")
		if w.dispatcher != nil {
			payload, _ := json.Marshal(map[string]string{"sale_id": rec.SaleID.String(), "receipt_id": rec.ID.String()})
			w.dispatcher.DeadLetter(ctx, QueueReceipt, JobReceipt, payload,
				fmt.Sprintf("max retries (%d) exceeded: %s", w.maxRetries, msg), rec.RetryCount)
		}
	} else {
		next := w.now().Add(computeRetryBackoff(rec.RetryCount))
		rec.NextRetryAt = &next
		log.Warn().
			Str("sale_id", rec.SaleID.String()).
			Int("retry_count", rec.RetryCount).
			Time("next_retry_at", next).
			Msg("receipt_worker: generation failed, scheduled next attempt")
	}

	if err := w.receipts.Update(ctx, rec); err != nil {
		log.Error().Err(err).Str("sale_id", rec.SaleID.String()).Msg("receipt_worker: failed to persist failure")
	}
}

// withRetry calls fn up to maxAttempts times, doubling the wait from base
// after each failure. Returns the last error if every attempt fails.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := base << uint(i-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
