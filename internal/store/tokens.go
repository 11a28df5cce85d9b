package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TokensStore records issued access tokens by the sha256 hash of their
// jti claim. A token authenticates only while its row exists; logout
// deletes the row, which revokes the token without touching its
// signature or expiry.
type TokensStore struct {
	db *pgxpool.Pool
}

func (s *TokensStore) Insert(ctx context.Context, userID int64, hash string) error {
	query := `
		INSERT INTO access_tokens (user_id, token_hash)
		VALUES ($1, $2)
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.db.Exec(ctx, query, userID, hash)
	return err
}

func (s *TokensStore) Exists(ctx context.Context, hash string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM access_tokens WHERE token_hash = $1)`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, query, hash).Scan(&exists)
	return exists, err
}

func (s *TokensStore) Delete(ctx context.Context, hash string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.db.Exec(ctx, `DELETE FROM access_tokens WHERE token_hash = $1`, hash)
	return err
}
