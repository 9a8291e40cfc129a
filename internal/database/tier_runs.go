package database

import (
	"context"
	"time"

	"feedpipe/internal/domain"
)

// GetTierRuns returns the start time of the last completed batch per tier.
// Tiers that never completed a batch are absent from the map.
func (d *Database) GetTierRuns(ctx context.Context) (map[domain.Frequency]time.Time, error) {
	rows, err := d.db.QueryContext(ctx, "select tier, started_at from tier_runs")
	if err != nil {
		return nil, storageError("query tier runs", err)
	}
	defer d.closeRows(ctx, rows, "GetTierRuns")

	runs := make(map[domain.Frequency]time.Time)
	for rows.Next() {
		var (
			tier      string
			startedAt time.Time
		)
		if err = rows.Scan(&tier, &startedAt); err != nil {
			return nil, storageError("scan tier run", err)
		}

		runs[domain.Frequency(tier)] = startedAt
	}

	if err = rows.Err(); err != nil {
		return nil, storageError("iterate tier runs", err)
	}

	return runs, nil
}

func (d *Database) RecordTierRun(ctx context.Context, tier domain.Frequency, startedAt time.Time) error {
	query := `insert into tier_runs (tier, started_at)
	values (?, ?)
	on conflict (tier) do update
	set started_at = excluded.started_at`

	if _, err := d.db.ExecContext(ctx, query, string(tier), startedAt.UTC()); err != nil {
		return storageError("record tier run", err)
	}

	return nil
}
