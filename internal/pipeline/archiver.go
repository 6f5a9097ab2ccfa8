package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/aftermath/internal/domain"
)

const (
	archivePageSize = 500

	// Exports larger than this go through a multipart upload.
	multipartThreshold = 8 << 20
)

// JournalArchiver exports each day's executed trades from the journal to
// object storage as JSON lines.
type JournalArchiver struct {
	journal domain.TradeJournal
	blobs   domain.BlobWriter
	lister  domain.BlobLister
	logger  *slog.Logger
	now     func() time.Time
}

// NewJournalArchiver creates a JournalArchiver. lister may be nil, in which
// case existing archives are overwritten.
func NewJournalArchiver(journal domain.TradeJournal, blobs domain.BlobWriter, lister domain.BlobLister, logger *slog.Logger) *JournalArchiver {
	return &JournalArchiver{
		journal: journal,
		blobs:   blobs,
		lister:  lister,
		logger:  logger,
		now:     time.Now,
	}
}

// ArchivePath returns the object key for the UTC day containing day.
func ArchivePath(day time.Time) string {
	return day.UTC().Format("trades/2006/01/02.jsonl")
}

// Run exports the previous UTC day.
func (a *JournalArchiver) Run(ctx context.Context) error {
	day := a.now().UTC().AddDate(0, 0, -1)
	n, err := a.ExportDay(ctx, day)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "archive run complete",
		slog.String("path", ArchivePath(day)),
		slog.Int("trades", n),
	)
	return nil
}

// ExportDay writes every executed trade created on the UTC day containing
// day and returns how many were written. Nothing is uploaded for an empty
// day or when the archive already exists.
func (a *JournalArchiver) ExportDay(ctx context.Context, day time.Time) (int, error) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	path := ArchivePath(start)

	if a.lister != nil {
		exists, err := a.lister.Exists(ctx, path)
		if err != nil {
			return 0, fmt.Errorf("checking archive %s: %w", path, err)
		}
		if exists {
			a.logger.InfoContext(ctx, "archive already present", slog.String("path", path))
			return 0, nil
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	written := 0
	for offset := 0; ; offset += archivePageSize {
		page, err := a.journal.List(ctx, domain.ListOpts{
			Limit:  archivePageSize,
			Offset: offset,
			Since:  &start,
			Until:  &end,
		})
		if err != nil {
			return 0, fmt.Errorf("listing trades for %s: %w", start.Format(time.DateOnly), err)
		}
		for _, o := range page {
			if o.Status != domain.TradeStatusExecuted {
				continue
			}
			if err := enc.Encode(o); err != nil {
				return 0, fmt.Errorf("encoding trade %s: %w", o.ID, err)
			}
			written++
		}
		if len(page) < archivePageSize {
			break
		}
	}

	if written == 0 {
		return 0, nil
	}
	var err error
	if buf.Len() > multipartThreshold {
		err = a.blobs.PutMultipart(ctx, path, &buf, multipartThreshold)
	} else {
		err = a.blobs.Put(ctx, path, &buf, "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("uploading %s: %w", path, err)
	}
	return written, nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. Expressions use the 5-field "minute hour dom month dow" form
// evaluated in UTC, e.g. "15 0 * * *" for 00:15 every day.
func (a *JournalArchiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", cronExpr))

	for {
		next := sched.Next(a.now().UTC())
		if next.IsZero() {
			return fmt.Errorf("cron expression %q never fires", cronExpr)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// parseCron accepts the standard 5-field form and the @daily style
// descriptors.
func parseCron(expr string) (cron.Schedule, error) {
	return cron.ParseStandard(expr)
}
