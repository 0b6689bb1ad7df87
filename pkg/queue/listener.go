package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// Listener wakes workers when a job lands on the queue. It is an
// optimization over the poll interval, never a correctness requirement.
type Listener struct {
	pql  *pq.Listener
	poll time.Duration
}

func NewListener(dsn string, poll time.Duration) *Listener {
	pql := pq.NewListener(dsn, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("queue listener event", slog.Int("event", int(ev)), slog.Any("err", err))
		}
	})
	if err := pql.Listen(notifyChannel); err != nil {
		slog.Warn("queue listen failed, falling back to polling only", slog.Any("err", err))
	}
	return &Listener{pql: pql, poll: poll}
}

// Wait blocks until a notification arrives, the poll interval elapses, or
// ctx is done.
func (l *Listener) Wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case n := <-l.pql.Notify:
		if n != nil {
			slog.Debug("queue wakeup", slog.String("target", n.Extra))
		}
	case <-time.After(l.poll):
	}
}

func (l *Listener) Close() error {
	return l.pql.Close()
}
