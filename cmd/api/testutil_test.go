package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"shopdesk/internal/auth"
	"shopdesk/internal/ratelimiter"
	"shopdesk/internal/store"

	"go.uber.org/zap"
)

func newTestApp(t *testing.T) *application {
	t.Helper()

	categories := &fakeCategories{cats: map[int64]*store.Category{}}
	products := &fakeProducts{
		products:   map[int64]*store.Product{},
		attached:   map[int64][]int64{},
		categories: categories,
	}

	return &application{
		config: config{
			env: "test",
			auth: authConfig{
				basic: basicConfig{user: "admin", pass: "secret"},
				token: tokenConfig{secret: "test-secret", exp: time.Hour, iss: "Shopdesk"},
			},
			rateLimiter: ratelimiter.Config{Enabled: false},
		},
		store: store.Storage{
			Users:      &fakeUsers{users: map[int64]*store.User{}},
			Tokens:     &fakeTokens{rows: map[string]int64{}},
			Categories: categories,
			Products:   products,
		},
		logger:        zap.NewNop().Sugar(),
		uploads:       &fakeUploads{files: map[string][]byte{}},
		authenticator: auth.NewJWTAuthenticator("test-secret", "Shopdesk", "Shopdesk", time.Hour),
		rateLimiter:   ratelimiter.NewFixedWindowLimiter(100, time.Second),
	}
}

func executeRequest(app *application, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	app.mount().ServeHTTP(rr, req)
	return rr
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

// registerUser creates a user through the store and returns a live
// bearer token for it.
func registerUser(t *testing.T, app *application, email string) (*store.User, string) {
	t.Helper()

	user := &store.User{Name: "Test User", Email: email}
	if err := user.Password.Set("password123"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if err := app.store.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}

	token, err := app.issueToken(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, token
}

// --- fakes ---

type fakeUsers struct {
	users  map[int64]*store.User
	nextID int64
}

func (f *fakeUsers) Create(_ context.Context, user *store.User) error {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, user.Email) {
			return store.ErrDuplicateEmail
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	f.users[user.ID] = user
	return nil
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*store.User, error) {
	user, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*store.User, error) {
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

type fakeTokens struct {
	rows map[string]int64
}

func (f *fakeTokens) Insert(_ context.Context, userID int64, hash string) error {
	f.rows[hash] = userID
	return nil
}

func (f *fakeTokens) Exists(_ context.Context, hash string) (bool, error) {
	_, ok := f.rows[hash]
	return ok, nil
}

func (f *fakeTokens) Delete(_ context.Context, hash string) error {
	delete(f.rows, hash)
	return nil
}

type fakeCategories struct {
	cats   map[int64]*store.Category
	nextID int64
}

func (f *fakeCategories) Create(_ context.Context, c *store.Category) (*store.Category, error) {
	for _, existing := range f.cats {
		if existing.Slug == c.Slug {
			return nil, store.ErrDuplicateSlug
		}
	}
	f.nextID++
	created := *c
	created.ID = f.nextID
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	f.cats[created.ID] = &created
	return &created, nil
}

func (f *fakeCategories) GetByID(_ context.Context, id int64) (*store.Category, error) {
	c, ok := f.cats[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *fakeCategories) sorted() []*store.Category {
	out := make([]*store.Category, 0, len(f.cats))
	for _, c := range f.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeCategories) List(_ context.Context, limit, offset int) ([]*store.Category, int, error) {
	all := f.sorted()
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (f *fakeCategories) ListRefs(_ context.Context) ([]store.CategoryRef, error) {
	var refs []store.CategoryRef
	for _, c := range f.sorted() {
		refs = append(refs, store.CategoryRef{ID: c.ID, Title: c.Title})
	}
	return refs, nil
}

func (f *fakeCategories) Update(_ context.Context, c *store.Category) (*store.Category, error) {
	existing, ok := f.cats[c.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for _, other := range f.cats {
		if other.ID != c.ID && other.Slug == c.Slug {
			return nil, store.ErrDuplicateSlug
		}
	}
	existing.Title = c.Title
	existing.Slug = c.Slug
	existing.UpdatedAt = time.Now()
	copied := *existing
	return &copied, nil
}

func (f *fakeCategories) Delete(_ context.Context, id int64) error {
	if _, ok := f.cats[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.cats, id)
	return nil
}

func (f *fakeCategories) SlugExists(_ context.Context, slug string, excludeID int64) (bool, error) {
	for _, c := range f.cats {
		if c.Slug == slug && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCategories) AllExist(_ context.Context, ids []int64) (bool, error) {
	for _, id := range ids {
		if _, ok := f.cats[id]; !ok {
			return false, nil
		}
	}
	return true, nil
}

type fakeProducts struct {
	products   map[int64]*store.Product
	attached   map[int64][]int64
	categories *fakeCategories
	nextID     int64
}

func (f *fakeProducts) withCategories(p *store.Product) *store.Product {
	copied := *p
	copied.Categories = []store.CategoryRef{}
	ids := append([]int64(nil), f.attached[p.ID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if c, ok := f.categories.cats[id]; ok {
			copied.Categories = append(copied.Categories, store.CategoryRef{ID: c.ID, Title: c.Title})
		}
	}
	return &copied
}

func (f *fakeProducts) List(_ context.Context, filter store.ProductFilter, limit, offset int) ([]*store.Product, int, error) {
	var matched []*store.Product
	for _, p := range f.products {
		if filter.Name != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filter.Name)) {
			continue
		}
		if len(filter.CategoryIDs) > 0 {
			found := false
			for _, want := range filter.CategoryIDs {
				for _, have := range f.attached[p.ID] {
					if want == have {
						found = true
					}
				}
			}
			if !found {
				continue
			}
		}
		matched = append(matched, p)
	}

	switch filter.Sort {
	case "asc":
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Price != matched[j].Price {
				return matched[i].Price < matched[j].Price
			}
			return matched[i].ID < matched[j].ID
		})
	case "desc":
		sort.Slice(matched, func(i, j int) bool {
			if matched[i].Price != matched[j].Price {
				return matched[i].Price > matched[j].Price
			}
			return matched[i].ID < matched[j].ID
		})
	default:
		sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]*store.Product, 0, end-offset)
	for _, p := range matched[offset:end] {
		page = append(page, f.withCategories(p))
	}
	return page, total, nil
}

func (f *fakeProducts) Create(_ context.Context, p *store.Product, categoryIDs []int64) (*store.Product, error) {
	for _, existing := range f.products {
		if existing.Slug == p.Slug {
			return nil, store.ErrDuplicateSlug
		}
	}
	f.nextID++
	created := *p
	created.ID = f.nextID
	created.CreatedAt = time.Now()
	created.UpdatedAt = created.CreatedAt
	f.products[created.ID] = &created
	f.attached[created.ID] = append([]int64(nil), categoryIDs...)
	return f.withCategories(&created), nil
}

func (f *fakeProducts) GetByID(_ context.Context, id int64) (*store.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return f.withCategories(p), nil
}

func (f *fakeProducts) Update(_ context.Context, p *store.Product) error {
	existing, ok := f.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	for _, other := range f.products {
		if other.ID != p.ID && other.Slug == p.Slug {
			return store.ErrDuplicateSlug
		}
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.Price = p.Price
	existing.Quantity = p.Quantity
	existing.Slug = p.Slug
	existing.Thumbnail = p.Thumbnail
	existing.Status = p.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (f *fakeProducts) SyncCategories(_ context.Context, productID int64, categoryIDs []int64) error {
	if _, ok := f.products[productID]; !ok {
		return store.ErrNotFound
	}
	f.attached[productID] = append([]int64(nil), categoryIDs...)
	return nil
}

func (f *fakeProducts) Delete(_ context.Context, id int64) error {
	if _, ok := f.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.products, id)
	delete(f.attached, id)
	return nil
}

func (f *fakeProducts) SlugExists(_ context.Context, slug string, excludeID int64) (bool, error) {
	for _, p := range f.products {
		if p.Slug == slug && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

type fakeUploads struct {
	files   map[string][]byte
	saveErr error
}

func (f *fakeUploads) Save(_ context.Context, r io.Reader, key string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.files[key] = data
	return nil
}

func (f *fakeUploads) Delete(_ context.Context, key string) error {
	delete(f.files, key)
	return nil
}

func (f *fakeUploads) URL(key string) string {
	return "http://cdn.test/" + key
}
