package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/drawdash/api/internal/model"
)

// ReportRepo accumulates reports against users and drawings.
type ReportRepo struct {
	db *sql.DB
}

// NewReportRepo creates a ReportRepo.
func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

// Add records reporterID against (roomID, targetID, kind), creating the row
// on first report. The reporters JSON array is treated as a set; counted is
// false when this reporter already reported the target.
func (r *ReportRepo) Add(ctx context.Context, roomID int64, targetID, kind, reporterID string) (*model.Report, bool, error) {
	var rep *model.Report
	var counted bool
	err := withRetry(func() error {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin report tx: %w", err)
		}
		defer tx.Rollback()

		_, err = tx.ExecContext(ctx,
			`INSERT INTO reports (room_id, target_id, kind)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (room_id, target_id, kind) DO NOTHING`,
			roomID, targetID, kind)
		if err != nil {
			return fmt.Errorf("ensure report row: %w", err)
		}

		var rr model.Report
		var reporters []byte
		err = tx.QueryRowContext(ctx,
			`SELECT id, room_id, target_id, kind, reporters, strike_count, created_at
			 FROM reports
			 WHERE room_id = $1 AND target_id = $2 AND kind = $3 FOR UPDATE`,
			roomID, targetID, kind,
		).Scan(&rr.ID, &rr.RoomID, &rr.TargetID, &rr.Kind, &reporters, &rr.StrikeCount, &rr.CreatedAt)
		if err != nil {
			return fmt.Errorf("lock report row: %w", err)
		}
		if len(reporters) > 0 {
			if err := json.Unmarshal(reporters, &rr.Reporters); err != nil {
				return fmt.Errorf("decode reporters: %w", err)
			}
		}

		counted = true
		for _, id := range rr.Reporters {
			if id == reporterID {
				counted = false
				break
			}
		}
		if counted {
			rr.Reporters = append(rr.Reporters, reporterID)
			updated, _ := json.Marshal(rr.Reporters)
			if _, err := tx.ExecContext(ctx,
				`UPDATE reports SET reporters = $2 WHERE id = $1`,
				rr.ID, updated); err != nil {
				return fmt.Errorf("update reporters: %w", err)
			}
		}
		rep = &rr
		return tx.Commit()
	})
	if err != nil {
		return nil, false, err
	}
	return rep, counted, nil
}

// Strike increments the strike count and returns the new value.
func (r *ReportRepo) Strike(ctx context.Context, roomID int64, targetID, kind string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`UPDATE reports SET strike_count = strike_count + 1
		 WHERE room_id = $1 AND target_id = $2 AND kind = $3
		 RETURNING strike_count`,
		roomID, targetID, kind).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("strike report: %w", err)
	}
	return n, nil
}
