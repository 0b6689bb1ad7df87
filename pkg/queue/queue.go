package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sitewise-ai/sitewise/pkg/resource"
)

const notifyChannel = "ingest_jobs"

// ErrEmpty means no claimable job exists right now.
var ErrEmpty = errors.New("queue empty")

// Job is one queued ingestion task. TargetID names a resource or, for
// uploaded-file jobs, a document.
type Job struct {
	ID        int64
	TargetID  string
	Kind      resource.Kind
	Attempts  int
	CreatedAt time.Time
}

// Gateway dispatches ingestion work to the worker process through a durable
// jobs table, with a NOTIFY to wake listeners. The gateway's job ends at
// successful handoff; the crawl itself runs elsewhere.
type Gateway struct {
	db *sql.DB
}

func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{db: db}
}

// Enqueue records a job and notifies workers. The caller must already have
// moved the target to processing; on failure here the caller is expected to
// force the target to failed rather than leave it stuck.
func (g *Gateway) Enqueue(ctx context.Context, targetID string, kind resource.Kind) error {
	var id int64
	err := g.db.QueryRowContext(ctx, `
		INSERT INTO ingest_jobs (target_id, kind) VALUES ($1, $2) RETURNING id`,
		targetID, kind,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", targetID, err)
	}

	if _, err := g.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, targetID); err != nil {
		// The row is durable; workers poll as a backstop, so a lost wakeup
		// only delays pickup.
		slog.Warn("job notify failed", slog.String("target", targetID), slog.Any("err", err))
	}

	slog.Info("job enqueued", slog.Int64("job_id", id), slog.String("target", targetID), slog.String("kind", string(kind)))
	return nil
}

// TestConnection probes the queue before a caller commits to enqueueing.
// A false result must be treated as advisory: ingestion still attempts the
// enqueue and reports the real failure there.
func (g *Gateway) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := g.db.PingContext(ctx); err != nil {
		slog.Warn("queue connectivity probe failed", slog.Any("err", err))
		return false
	}
	if _, err := g.db.ExecContext(ctx, `SELECT pg_notify($1, 'probe')`, notifyChannel); err != nil {
		slog.Warn("queue notify probe failed", slog.Any("err", err))
		return false
	}
	return true
}

// Claim atomically takes the oldest pending job. SKIP LOCKED lets multiple
// workers claim without serializing on each other.
func (g *Gateway) Claim(ctx context.Context) (*Job, error) {
	var job Job
	err := g.db.QueryRowContext(ctx, `
		UPDATE ingest_jobs
		SET status = 'processing', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM ingest_jobs
			WHERE status = 'pending'
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, target_id, kind, attempts, created_at`,
	).Scan(&job.ID, &job.TargetID, &job.Kind, &job.Attempts, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (g *Gateway) Complete(ctx context.Context, jobID int64) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE ingest_jobs SET status = 'done', updated_at = now() WHERE id = $1`,
		jobID,
	)
	return err
}

func (g *Gateway) Fail(ctx context.Context, jobID int64, errMsg string) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE ingest_jobs SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`,
		jobID, errMsg,
	)
	return err
}

// RequeueStuck returns jobs stuck in processing longer than horizon to
// pending, up to maxAttempts claims, after which they are marked failed.
// This is the housekeeping sweep that recovers from a worker crashing
// between claim and report-back.
func (g *Gateway) RequeueStuck(ctx context.Context, horizon time.Duration, maxAttempts int) (requeued, failed []Job, err error) {
	cutoff := time.Now().Add(-horizon)

	rows, err := g.db.QueryContext(ctx, `
		UPDATE ingest_jobs
		SET status = CASE WHEN attempts >= $2 THEN 'failed' ELSE 'pending' END,
		    last_error = CASE WHEN attempts >= $2 THEN 'worker never reported back' ELSE last_error END,
		    updated_at = now()
		WHERE status = 'processing' AND updated_at < $1
		RETURNING id, target_id, kind, attempts, created_at, status`,
		cutoff, maxAttempts,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var job Job
		var status string
		if err := rows.Scan(&job.ID, &job.TargetID, &job.Kind, &job.Attempts, &job.CreatedAt, &status); err != nil {
			return nil, nil, err
		}
		if status == "failed" {
			failed = append(failed, job)
		} else {
			requeued = append(requeued, job)
		}
	}
	return requeued, failed, rows.Err()
}
