package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"library-ledger/library"
	"library-ledger/logger"
)

// OverdueJob logs the overdue loans each time it runs. Loans that became
// overdue since the previous run are logged as warnings.
type OverdueJob struct {
	mu      sync.Mutex
	store   library.Store
	now     func() time.Time
	dueDays int
	seen    map[int64]bool
}

// NewOverdueJob creates an overdue watch over store.
func NewOverdueJob(store library.Store, dueDays int, now func() time.Time) *OverdueJob {
	if now == nil {
		now = time.Now
	}
	return &OverdueJob{store: store, now: now, dueDays: dueDays, seen: make(map[int64]bool)}
}

// Run is called by cron.
func (j *OverdueJob) Run() {
	if _, err := j.Check(context.Background()); err != nil {
		logger.Warning("overdue check failed:", err)
	}
}

// Check loads a snapshot and returns the loans that are overdue now and were
// not overdue on the previous check.
func (j *OverdueJob) Check(ctx context.Context) ([]library.OverdueRow, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap, err := library.LoadSnapshot(ctx, j.store)
	if err != nil {
		return nil, err
	}
	rows := library.BuildOverdueReport(snap, j.now(), j.dueDays)

	current := make(map[int64]bool, len(rows))
	var fresh []library.OverdueRow
	for _, r := range rows {
		current[r.ID] = true
		if j.seen[r.ID] {
			logger.Infof("still overdue: %q held by %s, %d days", r.BookTitle, r.UserName, r.DaysOverdue)
			continue
		}
		fresh = append(fresh, r)
		logger.Warningf("overdue: %q held by %s since %s, %d days",
			r.BookTitle, r.UserName, r.BorrowDate.Local().Format(time.DateOnly), r.DaysOverdue)
	}
	j.seen = current
	logger.Debugf("overdue check: %d overdue, %d new", len(rows), len(fresh))
	return fresh, nil
}

// Start registers j with a new scheduler and starts it. A run that is still
// going when the next one is due makes the next one skip. Stop the returned
// cron to end the watch.
func Start(schedule string, j *OverdueJob) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddJob(schedule, j); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", schedule, err)
	}
	c.Start()
	return c, nil
}
