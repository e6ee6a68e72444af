package jobs

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/riverqueue/river"

	"webcaf.gov.uk/webcaf/internal/pkg/metrics"
)

func TestNotificationCleanupArgsKind(t *testing.T) {
	t.Parallel()

	if got := (NotificationCleanupArgs{}).Kind(); got != "notification_cleanup" {
		t.Fatalf("Kind() = %q, want %q", got, "notification_cleanup")
	}
}

func TestNotificationCleanupArgsInsertOpts(t *testing.T) {
	t.Parallel()

	opts := (NotificationCleanupArgs{}).InsertOpts()
	if opts.Queue != river.QueueDefault {
		t.Fatalf("Queue = %q, want %q", opts.Queue, river.QueueDefault)
	}
	if opts.MaxAttempts != 1 {
		t.Fatalf("MaxAttempts = %d, want 1", opts.MaxAttempts)
	}
	if opts.UniqueOpts.ByPeriod != 24*time.Hour {
		t.Fatalf("UniqueOpts.ByPeriod = %s, want %s", opts.UniqueOpts.ByPeriod, 24*time.Hour)
	}
	if !opts.UniqueOpts.ByQueue {
		t.Fatal("UniqueOpts.ByQueue = false, want true")
	}
	if !opts.UniqueOpts.ByArgs {
		t.Fatal("UniqueOpts.ByArgs = false, want true")
	}
}

func TestNewNotificationCleanupWorkerRetention(t *testing.T) {
	t.Parallel()

	t.Run("defaults to ninety days when non-positive", func(t *testing.T) {
		w := NewNotificationCleanupWorker(nil, 0, nil)
		if w.retention != DefaultNotificationRetention {
			t.Fatalf("retention = %s, want %s", w.retention, DefaultNotificationRetention)
		}
	})

	t.Run("uses explicit retention when provided", func(t *testing.T) {
		want := 7 * 24 * time.Hour
		w := NewNotificationCleanupWorker(nil, want, nil)
		if w.retention != want {
			t.Fatalf("retention = %s, want %s", w.retention, want)
		}
	})
}

func TestNotificationCleanupWorkerWork_Uninitialized(t *testing.T) {
	t.Parallel()

	t.Run("nil receiver", func(t *testing.T) {
		var w *NotificationCleanupWorker
		err := w.Work(context.Background(), nil)
		if err == nil || !strings.Contains(err.Error(), "not initialized") {
			t.Fatalf("Work() error = %v, want contains %q", err, "not initialized")
		}
	})

	t.Run("nil store", func(t *testing.T) {
		w := &NotificationCleanupWorker{}
		err := w.Work(context.Background(), nil)
		if err == nil || !strings.Contains(err.Error(), "not initialized") {
			t.Fatalf("Work() error = %v, want contains %q", err, "not initialized")
		}
	})
}


type purger struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (p *purger) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.cutoff = cutoff
	return p.deleted, p.err
}

func TestNotificationCleanupWorkerWork(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m := metrics.NewCollector()

	store := &purger{deleted: 4}
	w := NewNotificationCleanupWorker(store, 30*24*time.Hour, m)
	w.now = func() time.Time { return now }
	if err := w.Work(context.Background(), nil); err != nil {
		t.Fatalf("Work() error = %v", err)
	}
	if want := now.Add(-30 * 24 * time.Hour); !store.cutoff.Equal(want) {
		t.Fatalf("cutoff = %s, want %s", store.cutoff, want)
	}

	store.err = errors.New("db down")
	if err := w.Work(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "db down") {
		t.Fatalf("Work() error = %v, want db down", err)
	}

	if got := promtest.ToFloat64(m.JobsProcessed.WithLabelValues("notification_cleanup", "success")); got != 1 {
		t.Fatalf("success count = %v, want 1", got)
	}
	if got := promtest.ToFloat64(m.JobsProcessed.WithLabelValues("notification_cleanup", "failure")); got != 1 {
		t.Fatalf("failure count = %v, want 1", got)
	}
}
