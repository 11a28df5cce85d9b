package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Category struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryRef is the id+title projection embedded in product responses
// and returned by the unpaginated listing that feeds select inputs.
type CategoryRef struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type CategoriesStore struct {
	db *pgxpool.Pool
}

func (s *CategoriesStore) Create(ctx context.Context, c *Category) (*Category, error) {
	query := `
		INSERT INTO categories (title, slug)
		VALUES ($1, $2)
		RETURNING id, title, slug, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	created := &Category{}
	err := s.db.QueryRow(ctx, query, c.Title, c.Slug).
		Scan(&created.ID, &created.Title, &created.Slug, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("create category: %w", err)
	}
	return created, nil
}

func (s *CategoriesStore) GetByID(ctx context.Context, id int64) (*Category, error) {
	query := `
		SELECT id, title, slug, created_at, updated_at
		FROM categories
		WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	c := &Category{}
	err := s.db.QueryRow(ctx, query, id).
		Scan(&c.ID, &c.Title, &c.Slug, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get category by id: %w", err)
	}
	return c, nil
}

// List returns a page of categories and the true total. The total rides
// along as COUNT(*) OVER(); paging past the end falls back to a separate
// COUNT(*) so the metadata stays correct.
func (s *CategoriesStore) List(ctx context.Context, limit, offset int) ([]*Category, int, error) {
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, title, slug, created_at, updated_at,
		       COUNT(*) OVER() AS total_count
		FROM categories
		ORDER BY id
		LIMIT $1 OFFSET $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var (
		list       []*Category
		totalCount int
	)
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.CreatedAt, &c.UpdatedAt, &totalCount); err != nil {
			return nil, 0, fmt.Errorf("scan category: %w", err)
		}
		list = append(list, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	if len(list) == 0 && offset > 0 {
		if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM categories`).Scan(&totalCount); err != nil {
			return nil, 0, fmt.Errorf("count categories: %w", err)
		}
	}

	return list, totalCount, nil
}

func (s *CategoriesStore) ListRefs(ctx context.Context) ([]CategoryRef, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, `SELECT id, title FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list category refs: %w", err)
	}
	defer rows.Close()

	var refs []CategoryRef
	for rows.Next() {
		var ref CategoryRef
		if err := rows.Scan(&ref.ID, &ref.Title); err != nil {
			return nil, fmt.Errorf("scan category ref: %w", err)
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return refs, nil
}

func (s *CategoriesStore) Update(ctx context.Context, c *Category) (*Category, error) {
	query := `
		UPDATE categories
		SET title = $1, slug = $2, updated_at = NOW()
		WHERE id = $3
		RETURNING id, title, slug, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	updated := &Category{}
	err := s.db.QueryRow(ctx, query, c.Title, c.Slug, c.ID).
		Scan(&updated.ID, &updated.Title, &updated.Slug, &updated.CreatedAt, &updated.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateSlug
		}
		return nil, fmt.Errorf("update category: %w", err)
	}
	return updated, nil
}

func (s *CategoriesStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	// join rows go with the category via ON DELETE CASCADE
	result, err := s.db.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *CategoriesStore) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM categories WHERE slug = $1 AND id <> $2)`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, query, slug, excludeID).Scan(&exists)
	return exists, err
}

// AllExist reports whether every id in ids references a category. The
// caller is expected to pass a deduplicated set.
func (s *CategoriesStore) AllExist(ctx context.Context, ids []int64) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var n int
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM categories WHERE id = ANY($1)`, ids).Scan(&n)
	if err != nil {
		return false, err
	}
	return n == len(ids), nil
}
