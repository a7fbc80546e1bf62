package worker

// email_worker.go
// Processes QueueEmail jobs: sends the receipt PDF to the customer and marks
// the receipt as sent.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"retailpos/internal/infra"
	"retailpos/internal/metrics"
	"retailpos/internal/model"
	"retailpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EmailJobPayload is the job envelope sent to QueueEmail.
type EmailJobPayload struct {
	SaleID  string `json:"sale_id"`
	ToEmail string `json:"to_email"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	PDFPath string `json:"pdf_path"`
}

// ReceiptSender is satisfied by *infra.Mailer.
type ReceiptSender interface {
	SendReceipt(to, subject, body, pdfPath string) error
}

type EmailWorker struct {
	mailer   ReceiptSender
	receipts repository.ReceiptRepository
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewEmailWorker(mailer ReceiptSender, receipts repository.ReceiptRepository, m *metrics.Metrics) *EmailWorker {
	return &EmailWorker{mailer: mailer, receipts: receipts, metrics: m, now: time.Now}
}

// Process sends an email with the PDF receipt as attachment. Send failures,
// including an open circuit, are returned so the job is dead-lettered.
func (w *EmailWorker) Process(ctx context.Context, raw json.RawMessage) error {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("email_worker: invalid payload: %w", err)
	}
	if payload.ToEmail == "" {
		log.Warn().Str("sale_id", payload.SaleID).Msg("email_worker: empty to_email, skipping")
		return nil
	}

	if err := w.mailer.SendReceipt(payload.ToEmail, payload.Subject, payload.Body, payload.PDFPath); err != nil {
		if errors.Is(err, infra.ErrMailerDisabled) {
			log.Info().Str("to", payload.ToEmail).Msg("email_worker: smtp not configured, skipping")
			return nil
		}
		w.metrics.RecordReceiptJob(JobEmail, false)
		return fmt.Errorf("email_worker: send to %s: %w", payload.ToEmail, err)
	}
	w.metrics.RecordReceiptJob(JobEmail, true)
	log.Info().Str("to", payload.ToEmail).Str("sale_id", payload.SaleID).Msg("email_worker: receipt sent")

	saleID, err := uuid.Parse(payload.SaleID)
	if err != nil || w.receipts == nil {
		return nil
	}
	rec, err := w.receipts.FindBySaleID(ctx, saleID)
	if err != nil {
		log.Warn().Err(err).Str("sale_id", payload.SaleID).Msg("email_worker: receipt row not found")
		return nil
	}
	sentAt := w.now()
	rec.Status = model.ReceiptSent
	rec.SentAt = &sentAt
	if err := w.receipts.Update(ctx, rec); err != nil {
		log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("email_worker: failed to mark receipt sent")
	}
	return nil
}
