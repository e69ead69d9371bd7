package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orderdesk/internal/handler"
)

var _ handler.APIKeyRepository = (*APIKeyRepository)(nil)

// APIKeyRepository looks up API keys by hash in PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

var errAPIKeyNotFound = errors.New("api key not found")

// FindByHash returns the key info for a SHA-256 hex hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*handler.APIKeyInfo, error) {
	var info handler.APIKeyInfo
	err := r.pool.QueryRow(ctx, `
		SELECT key_hash, user_id, name, privileged
		FROM api_keys
		WHERE key_hash = $1`, hash).
		Scan(&info.KeyHash, &info.UserID, &info.Name, &info.Privileged)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errAPIKeyNotFound
		}
		return nil, errors.Wrap(err, "find api key")
	}
	return &info, nil
}
