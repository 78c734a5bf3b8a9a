package apikey

import (
	"context"
	"database/sql"
)

// PostgresStore persists API keys in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed key store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, key *Key) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, tenant_id, secret_hash, key_prefix, name, created_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.TenantID, key.Hash, key.KeyPrefix, key.Name, key.CreatedAt, key.RevokedAt,
	)
	return err
}

func (p *PostgresStore) GetByHash(ctx context.Context, hash string) (*Key, error) {
	key := &Key{}
	var revokedAt sql.NullTime
	err := p.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, secret_hash, key_prefix, name, created_at, revoked_at
		FROM api_keys
		WHERE secret_hash = $1 AND revoked_at IS NULL`, hash).
		Scan(&key.ID, &key.TenantID, &key.Hash, &key.KeyPrefix, &key.Name,
			&key.CreatedAt, &revokedAt)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		key.RevokedAt = &revokedAt.Time
	}
	return key, nil
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]*Key, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, tenant_id, secret_hash, key_prefix, name, created_at, revoked_at
		FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []*Key
	for rows.Next() {
		key := &Key{}
		var revokedAt sql.NullTime
		if err := rows.Scan(&key.ID, &key.TenantID, &key.Hash, &key.KeyPrefix,
			&key.Name, &key.CreatedAt, &revokedAt); err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			key.RevokedAt = &revokedAt.Time
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (p *PostgresStore) Revoke(ctx context.Context, keyID, tenantID string) error {
	query := `UPDATE api_keys SET revoked_at = NOW() WHERE id = $1 AND revoked_at IS NULL`
	args := []any{keyID}
	if tenantID != "" {
		query += ` AND tenant_id = $2`
		args = append(args, tenantID)
	}
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrKeyNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
