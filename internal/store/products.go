package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Price       int64         `json:"price"`
	Quantity    int           `json:"quantity"`
	Slug        string        `json:"slug"`
	Thumbnail   string        `json:"-"`
	Status      bool          `json:"status"`
	Categories  []CategoryRef `json:"categories"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// ProductFilter narrows the product listing. All dimensions combine as
// AND; the ids inside CategoryIDs combine as OR (any shared category
// keeps the product in the result).
type ProductFilter struct {
	Name        string
	Sort        string // "asc" or "desc" on price; empty keeps id order
	CategoryIDs []int64
}

type ProductsStore struct {
	db *pgxpool.Pool
}

const productColumns = `p.id, p.name, p.description, p.price, p.quantity, p.slug, p.thumbnail, p.status, p.created_at, p.updated_at`

// categoriesAgg folds each product's categories into a JSON array of
// {id, title} pairs so a page of products costs a single query.
const categoriesAgg = `COALESCE(
		json_agg(json_build_object('id', c.id, 'title', c.title) ORDER BY c.id)
			FILTER (WHERE c.id IS NOT NULL),
		'[]'
	)`

// buildListQuery translates a ProductFilter into SQL. Name becomes a
// substring ILIKE, category membership an EXISTS over the join table,
// and sort an ORDER BY on price; the total rides along via COUNT(*)
// OVER() evaluated after grouping.
func buildListQuery(f ProductFilter, limit, offset int) (string, []any) {
	var (
		where []string
		args  []any
	)

	if f.Name != "" {
		args = append(args, "%"+f.Name+"%")
		where = append(where, fmt.Sprintf("p.name ILIKE $%d", len(args)))
	}
	if len(f.CategoryIDs) > 0 {
		args = append(args, f.CategoryIDs)
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM category_product x WHERE x.product_id = p.id AND x.category_id = ANY($%d))",
			len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + productColumns + `,
	` + categoriesAgg + ` AS categories,
	COUNT(*) OVER() AS total_count
FROM products p
LEFT JOIN category_product cp ON cp.product_id = p.id
LEFT JOIN categories c ON c.id = cp.category_id
`)
	if len(where) > 0 {
		sb.WriteString("WHERE " + strings.Join(where, " AND ") + "\n")
	}
	sb.WriteString("GROUP BY p.id\n")

	switch f.Sort {
	case "asc":
		sb.WriteString("ORDER BY p.price ASC, p.id ASC\n")
	case "desc":
		sb.WriteString("ORDER BY p.price DESC, p.id ASC\n")
	default:
		sb.WriteString("ORDER BY p.id ASC\n")
	}

	args = append(args, limit)
	sb.WriteString(fmt.Sprintf("LIMIT $%d", len(args)))
	args = append(args, offset)
	sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))

	return sb.String(), args
}

func (s *ProductsStore) List(ctx context.Context, f ProductFilter, limit, offset int) ([]*Product, int, error) {
	if offset < 0 {
		offset = 0
	}

	query, args := buildListQuery(f, limit, offset)

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var (
		list       []*Product
		totalCount int
	)
	for rows.Next() {
		p, total, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		totalCount = total
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	// Past-the-end pages return no rows; refetch the first filtered row,
	// whose window total is the true count (no row at all means the
	// filtered set is empty).
	if len(list) == 0 && offset > 0 {
		countQuery, countArgs := buildListQuery(f, 1, 0)
		_, total, err := scanProduct(s.db.QueryRow(ctx, countQuery, countArgs...))
		if err == nil {
			totalCount = total
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, fmt.Errorf("count products: %w", err)
		}
	}

	return list, totalCount, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*Product, int, error) {
	p := &Product{}
	var (
		rawCategories []byte
		total         int
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.Quantity,
		&p.Slug, &p.Thumbnail, &p.Status, &p.CreatedAt, &p.UpdatedAt,
		&rawCategories, &total,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("scan product: %w", err)
	}

	p.Categories = []CategoryRef{}
	if err := json.Unmarshal(rawCategories, &p.Categories); err != nil {
		return nil, 0, fmt.Errorf("decode product categories: %w", err)
	}
	return p, total, nil
}

// Create inserts the product and synchronizes its category set in one
// transaction, then reloads the fresh row so store-side defaults are
// visible to the caller.
func (s *ProductsStore) Create(ctx context.Context, p *Product, categoryIDs []int64) (*Product, error) {
	query := `
		INSERT INTO products (name, description, price, quantity, slug, thumbnail, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	err := s.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, query,
			p.Name, p.Description, p.Price, p.Quantity, p.Slug, p.Thumbnail, p.Status,
		).Scan(&p.ID)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrDuplicateSlug
			}
			return fmt.Errorf("insert product: %w", err)
		}
		return syncCategories(ctx, tx, p.ID, categoryIDs)
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, p.ID)
}

func (s *ProductsStore) GetByID(ctx context.Context, id int64) (*Product, error) {
	query := `SELECT ` + productColumns + `,
	` + categoriesAgg + ` AS categories,
	0 AS total_count
FROM products p
LEFT JOIN category_product cp ON cp.product_id = p.id
LEFT JOIN categories c ON c.id = cp.category_id
WHERE p.id = $1
GROUP BY p.id`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	p, _, err := scanProduct(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// Update persists the scalar fields only; the category set is managed
// separately through SyncCategories.
func (s *ProductsStore) Update(ctx context.Context, p *Product) error {
	query := `
		UPDATE products
		SET name = $1, description = $2, price = $3, quantity = $4,
		    slug = $5, thumbnail = $6, status = $7, updated_at = NOW()
		WHERE id = $8
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	result, err := s.db.Exec(ctx, query,
		p.Name, p.Description, p.Price, p.Quantity, p.Slug, p.Thumbnail, p.Status, p.ID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateSlug
		}
		return fmt.Errorf("update product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SyncCategories replaces the product's association set with exactly
// categoryIDs, adding and removing join rows as needed. Surviving rows
// keep their original created_at.
func (s *ProductsStore) SyncCategories(ctx context.Context, productID int64, categoryIDs []int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	return s.withTx(ctx, func(tx pgx.Tx) error {
		return syncCategories(ctx, tx, productID, categoryIDs)
	})
}

func syncCategories(ctx context.Context, tx pgx.Tx, productID int64, categoryIDs []int64) error {
	if _, err := tx.Exec(ctx,
		`DELETE FROM category_product WHERE product_id = $1 AND category_id <> ALL($2)`,
		productID, categoryIDs,
	); err != nil {
		return fmt.Errorf("detach categories: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO category_product (product_id, category_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT (product_id, category_id) DO NOTHING`,
		productID, categoryIDs,
	); err != nil {
		return fmt.Errorf("attach categories: %w", err)
	}
	return nil
}

func (s *ProductsStore) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	// association rows cascade with the product
	result, err := s.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ProductsStore) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM products WHERE slug = $1 AND id <> $2)`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, query, slug, excludeID).Scan(&exists)
	return exists, err
}

func (s *ProductsStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
