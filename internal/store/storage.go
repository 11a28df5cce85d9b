package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateSlug     = errors.New("slug already exists")
	ErrDuplicateEmail    = errors.New("a user with that email already exists")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	Users interface {
		Create(context.Context, *User) error
		GetByID(context.Context, int64) (*User, error)
		GetByEmail(context.Context, string) (*User, error)
	}
	Tokens interface {
		Insert(ctx context.Context, userID int64, hash string) error
		Exists(ctx context.Context, hash string) (bool, error)
		Delete(ctx context.Context, hash string) error
	}
	Categories interface {
		Create(context.Context, *Category) (*Category, error)
		GetByID(context.Context, int64) (*Category, error)
		List(ctx context.Context, limit, offset int) ([]*Category, int, error)
		ListRefs(context.Context) ([]CategoryRef, error)
		Update(context.Context, *Category) (*Category, error)
		Delete(context.Context, int64) error
		SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
		AllExist(ctx context.Context, ids []int64) (bool, error)
	}
	Products interface {
		List(ctx context.Context, f ProductFilter, limit, offset int) ([]*Product, int, error)
		Create(ctx context.Context, p *Product, categoryIDs []int64) (*Product, error)
		GetByID(context.Context, int64) (*Product, error)
		Update(context.Context, *Product) error
		SyncCategories(ctx context.Context, productID int64, categoryIDs []int64) error
		Delete(context.Context, int64) error
		SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error)
	}
}

func NewStorage(db *pgxpool.Pool) Storage {
	return Storage{
		Users:      &UsersStore{db},
		Tokens:     &TokensStore{db},
		Categories: &CategoriesStore{db},
		Products:   &ProductsStore{db},
	}
}
