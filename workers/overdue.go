package workers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"library-app-backend/loggers"
	"library-app-backend/models"
)

// OverdueScanner flips active borrow records past their due date to overdue.
// The overdue status is backend-authoritative; this is the only place it is
// ever set.
type OverdueScanner struct {
	Pool     *pgxpool.Pool
	Interval time.Duration
}

func NewOverdueScanner(pool *pgxpool.Pool) *OverdueScanner {
	return &OverdueScanner{Pool: pool, Interval: time.Hour}
}

// Start runs an immediate scan, then rescans on every tick until ctx ends.
func (s *OverdueScanner) Start(ctx context.Context) {
	go func() {
		s.Check(ctx)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Check(ctx)
			}
		}
	}()
}

// Check marks every active record whose due date has passed as overdue.
// Pending return requests are left alone; they are already with an admin.
func (s *OverdueScanner) Check(ctx context.Context) {
	cmd, err := s.Pool.Exec(ctx, `
		UPDATE borrow_records SET status=$1, updated_at=NOW()
		WHERE status=$2 AND due_date < NOW()
	`, models.BorrowOverdue, models.BorrowActive)
	if err != nil {
		loggers.Logger.Errorf("overdue scan failed: %v", err)
		return
	}
	if n := cmd.RowsAffected(); n > 0 {
		loggers.Logger.Infof("overdue scan: marked %d record(s) overdue", n)
	}
}
