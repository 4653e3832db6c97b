package quota

import (
	"context"
	"time"

	"banknifty/internal/repository"
)

// Tracker owns the per-day, per-leg execution counts. Days are exchange-local
// calendar days; rollover is just a new key, no reset job.
type Tracker struct {
	Repo     repository.Repository
	Location *time.Location
}

func New(repo repository.Repository, loc *time.Location) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{Repo: repo, Location: loc}
}

// Today returns the current exchange-local calendar day as YYYY-MM-DD.
func (t *Tracker) Today() string {
	loc := t.Location
	if loc == nil {
		loc = time.UTC
	}
	return time.Now().In(loc).Format("2006-01-02")
}

// Count returns today's execution count for the leg type, zero when the row
// does not exist yet.
func (t *Tracker) Count(ctx context.Context, tradeType string) (int, error) {
	return t.Repo.GetExecutionCount(ctx, t.Today(), tradeType)
}

// Increment bumps today's count for the leg type and returns the new value.
func (t *Tracker) Increment(ctx context.Context, tradeType string) (int, error) {
	return t.Repo.IncrementExecutionCount(ctx, t.Today(), tradeType)
}
