package tenant

import (
	"context"
	"database/sql"
	"strings"

	"github.com/lib/pq"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, email, password_hash, plan_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.Name, strings.ToLower(t.Email), t.PasswordHash, t.PlanID,
		string(t.Status), t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23505": // unique_violation on email
				return ErrEmailTaken
			case "23503": // foreign_key_violation on plan_id
				return ErrPlanNotFound
			}
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, plan_id, status, created_at, updated_at
		FROM tenants WHERE id = $1`, id))
}

func (p *PostgresStore) GetByEmail(ctx context.Context, email string) (*Tenant, error) {
	return scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, plan_id, status, created_at, updated_at
		FROM tenants WHERE email = $1`, strings.ToLower(email)))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET name = $1, plan_id = $2, status = $3, updated_at = $4
		WHERE id = $5`,
		t.Name, t.PlanID, string(t.Status), t.UpdatedAt, t.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrPlanNotFound
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context) ([]*Tenant, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, email, password_hash, plan_id, status, created_at, updated_at
		FROM tenants ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t := &Tenant{}
		var status string
		if err := rows.Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash,
			&t.PlanID, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Status = Status(status)
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (p *PostgresStore) GetPlan(ctx context.Context, id string) (*Plan, error) {
	plan := &Plan{}
	err := p.db.QueryRowContext(ctx, `
		SELECT id, name, rate_limit, monthly_quota FROM plans WHERE id = $1`, id).
		Scan(&plan.ID, &plan.Name, &plan.RateLimit, &plan.MonthlyQuota)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func scanTenant(row *sql.Row) (*Tenant, error) {
	t := &Tenant{}
	var status string
	err := row.Scan(&t.ID, &t.Name, &t.Email, &t.PasswordHash,
		&t.PlanID, &status, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = Status(status)
	return t, nil
}

var _ Store = (*PostgresStore)(nil)
