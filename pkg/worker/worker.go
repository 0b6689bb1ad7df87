package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitewise-ai/sitewise/pkg/crawler"
	"github.com/sitewise-ai/sitewise/pkg/extract"
	"github.com/sitewise-ai/sitewise/pkg/process"
	"github.com/sitewise-ai/sitewise/pkg/queue"
	"github.com/sitewise-ai/sitewise/pkg/resource"
)

// Jobs is the worker-facing side of the ingestion queue.
type Jobs interface {
	Claim(ctx context.Context) (*queue.Job, error)
	Complete(ctx context.Context, jobID int64) error
	Fail(ctx context.Context, jobID int64, errMsg string) error
	RequeueStuck(ctx context.Context, horizon time.Duration, maxAttempts int) (requeued, failed []queue.Job, err error)
}

// Waiter blocks until new work may exist.
type Waiter interface {
	Wait(ctx context.Context)
}

// Blobs reads uploaded bytes for extraction.
type Blobs interface {
	Get(key string) ([]byte, error)
}

// Pages ages out expired cache rows during housekeeping.
type Pages interface {
	PurgeExpiredPages(ctx context.Context) (int64, error)
}

// Worker is the out-of-process half of ingestion: it claims jobs, runs the
// crawl or extraction, and reports the outcome back into the registry.
type Worker struct {
	jobs         Jobs
	waiter       Waiter
	registry     *resource.Registry
	builder      *crawler.Builder
	blobs        Blobs
	pages        Pages
	concurrency  int
	stuckHorizon time.Duration
	maxAttempts  int
}

type Config struct {
	Concurrency  int
	StuckHorizon time.Duration
	MaxAttempts  int
}

func New(jobs Jobs, waiter Waiter, registry *resource.Registry, builder *crawler.Builder, blobs Blobs, pages Pages, cfg Config) *Worker {
	w := &Worker{
		jobs:         jobs,
		waiter:       waiter,
		registry:     registry,
		builder:      builder,
		blobs:        blobs,
		pages:        pages,
		concurrency:  cfg.Concurrency,
		stuckHorizon: cfg.StuckHorizon,
		maxAttempts:  cfg.MaxAttempts,
	}
	if w.concurrency <= 0 {
		w.concurrency = 1
	}
	if w.stuckHorizon <= 0 {
		w.stuckHorizon = 30 * time.Minute
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = 3
	}
	return w
}

// Run processes jobs until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started", slog.Int("concurrency", w.concurrency))

	done := make(chan struct{})
	go func() {
		defer close(done)
		w.housekeeping(ctx)
	}()

	loops := make(chan struct{}, w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func(id int) {
			defer func() { loops <- struct{}{} }()
			w.loop(ctx, id)
		}(i)
	}
	for i := 0; i < w.concurrency; i++ {
		<-loops
	}
	<-done
	slog.Info("worker stopped")
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.jobs.Claim(ctx)
		if errors.Is(err, queue.ErrEmpty) {
			w.waiter.Wait(ctx)
			continue
		}
		if err != nil {
			slog.Error("job claim failed", slog.Int("worker", id), slog.Any("err", err))
			w.waiter.Wait(ctx)
			continue
		}

		slog.Info("job claimed",
			slog.Int("worker", id),
			slog.Int64("job_id", job.ID),
			slog.String("target", job.TargetID),
			slog.String("kind", string(job.Kind)),
		)

		if err := w.dispatch(ctx, job); err != nil {
			if ferr := w.jobs.Fail(ctx, job.ID, err.Error()); ferr != nil {
				slog.Error("could not mark job failed", slog.Int64("job_id", job.ID), slog.Any("err", ferr))
			}
			continue
		}
		if err := w.jobs.Complete(ctx, job.ID); err != nil {
			slog.Error("could not mark job done", slog.Int64("job_id", job.ID), slog.Any("err", err))
		}
	}
}

func (w *Worker) dispatch(ctx context.Context, job *queue.Job) error {
	switch job.Kind {
	case resource.KindWebsiteURL:
		return w.crawlWebsite(ctx, job.TargetID)
	case resource.KindRawHTML:
		return w.indexRawHTML(ctx, job.TargetID)
	case resource.KindScreenshot:
		return w.completeScreenshot(ctx, job.TargetID)
	case resource.KindUploadedFile:
		return w.extractDocument(ctx, job.TargetID)
	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func (w *Worker) crawlWebsite(ctx context.Context, resourceID string) error {
	r, err := w.registry.MarkStatus(ctx, resourceID, resource.StatusCrawling, "")
	if err != nil {
		return fmt.Errorf("mark crawling: %w", err)
	}

	report, err := w.builder.Build(ctx, r)
	if err != nil {
		if _, merr := w.registry.MarkStatus(ctx, resourceID, resource.StatusFailed, err.Error()); merr != nil {
			slog.Error("could not record crawl failure", slog.String("resource", resourceID), slog.Any("err", merr))
		}
		return err
	}

	if err := w.registry.SetCrawlStats(ctx, resourceID, report.PagesCrawled, report.ContentSize, report.Keywords); err != nil {
		return err
	}
	_, err = w.registry.MarkStatus(ctx, resourceID, resource.StatusCompleted, "")
	return err
}

func (w *Worker) indexRawHTML(ctx context.Context, resourceID string) error {
	r, err := w.registry.MarkStatus(ctx, resourceID, resource.StatusCrawling, "")
	if err != nil {
		return fmt.Errorf("mark crawling: %w", err)
	}

	html, err := w.blobs.Get(r.Source)
	if err == nil {
		var report *crawler.Report
		report, err = w.builder.BuildFromHTML(ctx, r, html)
		if err == nil {
			if err := w.registry.SetCrawlStats(ctx, resourceID, report.PagesCrawled, report.ContentSize, report.Keywords); err != nil {
				return err
			}
			_, err := w.registry.MarkStatus(ctx, resourceID, resource.StatusCompleted, "")
			return err
		}
	}

	if _, merr := w.registry.MarkStatus(ctx, resourceID, resource.StatusFailed, err.Error()); merr != nil {
		slog.Error("could not record raw html failure", slog.String("resource", resourceID), slog.Any("err", merr))
	}
	return err
}

func (w *Worker) completeScreenshot(ctx context.Context, resourceID string) error {
	// Screenshots are stored, not read: no OCR collaborator exists.
	_, err := w.registry.MarkStatus(ctx, resourceID, resource.StatusCompleted, "")
	return err
}

func (w *Worker) extractDocument(ctx context.Context, documentID string) error {
	d, err := w.registry.MarkDocumentStatus(ctx, documentID, resource.StatusProcessing, "")
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	data, err := w.blobs.Get(d.BlobKey)
	if err == nil {
		var text string
		text, err = extract.Text(d.MediaType, data)
		if err == nil {
			if serr := w.registry.SetDocumentText(ctx, documentID, text, process.Keywords(d.Name, text)); serr != nil {
				return serr
			}
			_, err := w.registry.MarkDocumentStatus(ctx, documentID, resource.StatusCompleted, "")
			return err
		}
	}

	// Extraction failed: record why and keep the original blob.
	if _, merr := w.registry.MarkDocumentStatus(ctx, documentID, resource.StatusFailed, err.Error()); merr != nil {
		slog.Error("could not record extraction failure", slog.String("document", documentID), slog.Any("err", merr))
	}
	return err
}

// housekeeping requeues jobs whose worker died between claim and report-back
// and purges expired page cache rows.
func (w *Worker) housekeeping(ctx context.Context) {
	ticker := time.NewTicker(w.stuckHorizon / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		requeued, failed, err := w.jobs.RequeueStuck(ctx, w.stuckHorizon, w.maxAttempts)
		if err != nil {
			slog.Error("stuck job sweep failed", slog.Any("err", err))
		}
		for _, job := range requeued {
			slog.Warn("requeued stuck job", slog.Int64("job_id", job.ID), slog.String("target", job.TargetID))
		}
		for _, job := range failed {
			slog.Warn("gave up on stuck job", slog.Int64("job_id", job.ID), slog.String("target", job.TargetID))
			w.failTarget(ctx, job)
		}

		if n, err := w.pages.PurgeExpiredPages(ctx); err != nil {
			slog.Error("page cache purge failed", slog.Any("err", err))
		} else if n > 0 {
			slog.Info("purged expired cached pages", slog.Int64("count", n))
		}
	}
}

func (w *Worker) failTarget(ctx context.Context, job queue.Job) {
	const msg = "ingestion worker never reported back"
	if job.Kind == resource.KindUploadedFile {
		if _, err := w.registry.MarkDocumentStatus(ctx, job.TargetID, resource.StatusFailed, msg); err != nil {
			slog.Error("could not fail stuck document", slog.String("id", job.TargetID), slog.Any("err", err))
		}
		return
	}
	if _, err := w.registry.MarkStatus(ctx, job.TargetID, resource.StatusFailed, msg); err != nil {
		slog.Error("could not fail stuck resource", slog.String("id", job.TargetID), slog.Any("err", err))
	}
}
