package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresTracker is a Tracker backed by PostgreSQL. Atomicity of Reserve
// rests on a single conditional UPSERT: the row-level lock serializes
// concurrent increments on one (tenant, period) row without any in-memory
// lock, so unrelated tenants never queue behind each other.
type PostgresTracker struct {
	db *sql.DB
}

// NewPostgresTracker creates a new PostgreSQL-backed tracker.
func NewPostgresTracker(db *sql.DB) *PostgresTracker {
	return &PostgresTracker{db: db}
}

func (p *PostgresTracker) Reserve(ctx context.Context, tenantID string, period Period, quota int64) (int64, error) {
	if quota <= 0 {
		_, err := p.db.ExecContext(ctx, `
			INSERT INTO usage_records (tenant_id, period_start, count)
			VALUES ($1, $2, 1)
			ON CONFLICT (tenant_id, period_start)
			DO UPDATE SET count = usage_records.count + 1`,
			tenantID, period.Start())
		if err != nil {
			return 0, fmt.Errorf("reserve usage: %w", err)
		}
		return Unbounded, nil
	}

	var count int64
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO usage_records (tenant_id, period_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, period_start)
		DO UPDATE SET count = usage_records.count + 1
		WHERE usage_records.count < $3
		RETURNING count`,
		tenantID, period.Start(), quota).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, ErrQuotaExceeded
	}
	if err != nil {
		return 0, fmt.Errorf("reserve usage: %w", err)
	}
	return quota - count, nil
}

func (p *PostgresTracker) Release(ctx context.Context, tenantID string, period Period) error {
	_, err := p.db.ExecContext(ctx, `
		UPDATE usage_records SET count = count - 1
		WHERE tenant_id = $1 AND period_start = $2 AND count > 0`,
		tenantID, period.Start())
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

func (p *PostgresTracker) Count(ctx context.Context, tenantID string, period Period) (int64, error) {
	var count int64
	err := p.db.QueryRowContext(ctx, `
		SELECT count FROM usage_records
		WHERE tenant_id = $1 AND period_start = $2`,
		tenantID, period.Start()).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return count, nil
}

func (p *PostgresTracker) History(ctx context.Context, tenantID string, limit int) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT period_start, count FROM usage_records
		WHERE tenant_id = $1
		ORDER BY period_start DESC
		LIMIT $2`,
		tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("usage history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		var start time.Time
		var count int64
		if err := rows.Scan(&start, &count); err != nil {
			return nil, err
		}
		out = append(out, Record{
			TenantID:    tenantID,
			Period:      CurrentPeriod(start),
			PeriodStart: start.UTC(),
			Count:       count,
		})
	}
	return out, rows.Err()
}

var _ Tracker = (*PostgresTracker)(nil)
