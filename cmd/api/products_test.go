package main

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shopdesk/internal/store"
)

// eight-byte PNG signature plus filler, enough for content sniffing
var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 100)...)

func multipartRequest(t *testing.T, method, path string, fields map[string]string, filename string, file []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, value := range fields {
		if err := w.WriteField(name, value); err != nil {
			t.Fatalf("write field %s: %v", name, err)
		}
	}
	if file != nil {
		fw, err := w.CreateFormFile("thumbnail", filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(file); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func productFields(overrides map[string]string) map[string]string {
	fields := map[string]string{
		"name":        "Oak Desk",
		"description": "A sturdy oak desk.",
		"price":       "250",
		"quantity":    "4",
		"slug":        "oak-desk",
		"status":      "true",
		"categories":  "1",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return fields
}

// seedCategory inserts a category directly through the store.
func seedCategory(t *testing.T, app *application, title, slug string) int64 {
	t.Helper()

	created, err := app.store.Categories.Create(context.Background(), &store.Category{Title: title, Slug: slug})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	return created.ID
}

func TestCreateProduct(t *testing.T) {
	t.Run("stores the thumbnail and attaches categories", func(t *testing.T) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")

		req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "desk.png", pngBytes)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body %s", rr.Code, http.StatusOK, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["message"] != "Successfully Created" {
			t.Fatalf("message = %v", body["message"])
		}

		data, _ := body["data"].(map[string]any)
		thumbnailURL, _ := data["thumbnail_url"].(string)
		if !strings.HasPrefix(thumbnailURL, "http://cdn.test/images/products/") {
			t.Fatalf("thumbnail_url = %q", thumbnailURL)
		}
		if !strings.HasSuffix(thumbnailURL, ".png") {
			t.Fatalf("thumbnail_url = %q, want .png suffix", thumbnailURL)
		}

		categories, _ := data["categories"].([]any)
		if len(categories) != 1 {
			t.Fatalf("categories = %v", data["categories"])
		}

		uploads := app.uploads.(*fakeUploads)
		if len(uploads.files) != 1 {
			t.Fatalf("stored files = %d, want 1", len(uploads.files))
		}
	})

	t.Run("requires a thumbnail", func(t *testing.T) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")

		req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("rejects a non-image thumbnail", func(t *testing.T) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")

		req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "notes.txt", []byte("plain text, no image here"))
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("rejects unknown categories", func(t *testing.T) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")

		req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(map[string]string{"categories": "99"}), "desk.png", pngBytes)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("rejects a non-integer price", func(t *testing.T) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")

		req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(map[string]string{"price": "cheap"}), "desk.png", pngBytes)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("rejects a taken slug", func(t *testing.T) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")

		first := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "desk.png", pngBytes)
		first.Header.Set("Authorization", "Bearer "+token)
		if rr := executeRequest(app, first); rr.Code != http.StatusOK {
			t.Fatalf("seed create status = %d", rr.Code)
		}

		dup := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "desk.png", pngBytes)
		dup.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, dup)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
		}
	})
}

func TestListProducts(t *testing.T) {
	seed := func(t *testing.T) (*application, string) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")  // id 1
		seedCategory(t, app, "Chairs", "chairs") // id 2

		items := []struct {
			name, slug, price, categories string
		}{
			{"Oak Desk", "oak-desk", "250", "1"},
			{"Pine Desk", "pine-desk", "120", "1"},
			{"Leather Chair", "leather-chair", "400", "2"},
		}
		for _, item := range items {
			req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(map[string]string{
				"name":       item.name,
				"slug":       item.slug,
				"price":      item.price,
				"categories": item.categories,
			}), "x.png", pngBytes)
			req.Header.Set("Authorization", "Bearer "+token)
			if rr := executeRequest(app, req); rr.Code != http.StatusOK {
				t.Fatalf("seed %s status = %d; body %s", item.slug, rr.Code, rr.Body.String())
			}
		}
		return app, token
	}

	listNames := func(t *testing.T, app *application, token, query string) []string {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/v1/products"+query, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d; body %s", rr.Code, rr.Body.String())
		}
		data, _ := decodeBody(t, rr)["data"].([]any)
		var names []string
		for _, item := range data {
			m, _ := item.(map[string]any)
			names = append(names, m["name"].(string))
		}
		return names
	}

	t.Run("name filter matches substrings", func(t *testing.T) {
		app, token := seed(t)
		names := listNames(t, app, token, "?name=desk")
		if len(names) != 2 {
			t.Fatalf("names = %v", names)
		}
	})

	t.Run("sort orders by price", func(t *testing.T) {
		app, token := seed(t)

		asc := listNames(t, app, token, "?sort=asc")
		if asc[0] != "Pine Desk" || asc[len(asc)-1] != "Leather Chair" {
			t.Fatalf("asc order = %v", asc)
		}

		desc := listNames(t, app, token, "?sort=desc")
		if desc[0] != "Leather Chair" {
			t.Fatalf("desc order = %v", desc)
		}
	})

	t.Run("category filter keeps any match", func(t *testing.T) {
		app, token := seed(t)

		one := listNames(t, app, token, "?category_id=2")
		if len(one) != 1 || one[0] != "Leather Chair" {
			t.Fatalf("names = %v", one)
		}

		both := listNames(t, app, token, "?category_id=1,2")
		if len(both) != 3 {
			t.Fatalf("names = %v", both)
		}
	})

	t.Run("rejects an unknown sort", func(t *testing.T) {
		app, token := seed(t)

		req := httptest.NewRequest(http.MethodGet, "/v1/products?sort=sideways", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnprocessableEntity)
		}
	})

	t.Run("meta reflects the twelve-per-page size", func(t *testing.T) {
		app, token := seed(t)

		req := httptest.NewRequest(http.MethodGet, "/v1/products", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		meta, _ := decodeBody(t, rr)["meta"].(map[string]any)
		if meta["per_page"] != float64(12) || meta["total"] != float64(3) {
			t.Fatalf("meta = %v", meta)
		}
	})
}

func TestUpdateProduct(t *testing.T) {
	seed := func(t *testing.T) (*application, string, int64) {
		app := newTestApp(t)
		_, token := registerUser(t, app, "jo@example.com")
		seedCategory(t, app, "Desks", "desks")
		seedCategory(t, app, "Chairs", "chairs")

		req := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "desk.png", pngBytes)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("seed create status = %d; body %s", rr.Code, rr.Body.String())
		}
		data, _ := decodeBody(t, rr)["data"].(map[string]any)
		return app, token, int64(data["id"].(float64))
	}

	t.Run("identical resubmission reports no changes", func(t *testing.T) {
		app, token, id := seed(t)

		req := multipartRequest(t, http.MethodPut, fmt.Sprintf("/v1/products/%d", id), productFields(nil), "", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d; body %s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["message"] != "No changes were made" {
			t.Fatalf("message = %v", body["message"])
		}
	})

	t.Run("scalar change reports an update", func(t *testing.T) {
		app, token, id := seed(t)

		req := multipartRequest(t, http.MethodPut, fmt.Sprintf("/v1/products/%d", id), productFields(map[string]string{"price": "300"}), "", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		body := decodeBody(t, rr)
		if body["message"] != "Successfully Updated" {
			t.Fatalf("message = %v", body["message"])
		}
		data, _ := body["data"].(map[string]any)
		if data["price"] != float64(300) {
			t.Fatalf("price = %v", data["price"])
		}
	})

	t.Run("category-only change still reports no changes but syncs", func(t *testing.T) {
		app, token, id := seed(t)

		req := multipartRequest(t, http.MethodPut, fmt.Sprintf("/v1/products/%d", id), productFields(map[string]string{"categories": "2"}), "", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		body := decodeBody(t, rr)
		if body["message"] != "No changes were made" {
			t.Fatalf("message = %v", body["message"])
		}

		data, _ := body["data"].(map[string]any)
		categories, _ := data["categories"].([]any)
		if len(categories) != 1 {
			t.Fatalf("categories = %v", data["categories"])
		}
		ref, _ := categories[0].(map[string]any)
		if ref["title"] != "Chairs" {
			t.Fatalf("categories = %v", data["categories"])
		}
	})

	t.Run("omitted status keeps the stored value", func(t *testing.T) {
		app, token, id := seed(t) // seeded with status=true

		fields := productFields(nil)
		delete(fields, "status")
		req := multipartRequest(t, http.MethodPut, fmt.Sprintf("/v1/products/%d", id), fields, "", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d; body %s", rr.Code, rr.Body.String())
		}
		body := decodeBody(t, rr)
		if body["message"] != "No changes were made" {
			t.Fatalf("message = %v", body["message"])
		}
		data, _ := body["data"].(map[string]any)
		if data["status"] != true {
			t.Fatalf("status flipped to %v", data["status"])
		}
	})

	t.Run("new thumbnail replaces the old file", func(t *testing.T) {
		app, token, id := seed(t)
		uploads := app.uploads.(*fakeUploads)

		req := multipartRequest(t, http.MethodPut, fmt.Sprintf("/v1/products/%d", id), productFields(nil), "new.png", pngBytes)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := executeRequest(app, req)

		body := decodeBody(t, rr)
		if body["message"] != "Successfully Updated" {
			t.Fatalf("message = %v", body["message"])
		}
		// the old file is deleted before the replacement is written
		if len(uploads.files) != 1 {
			t.Fatalf("stored files = %d, want exactly the new thumbnail: %v", len(uploads.files), uploads.files)
		}
	})
}

func TestDeleteProduct(t *testing.T) {
	app := newTestApp(t)
	_, token := registerUser(t, app, "jo@example.com")
	seedCategory(t, app, "Desks", "desks")

	create := multipartRequest(t, http.MethodPost, "/v1/products", productFields(nil), "desk.png", pngBytes)
	create.Header.Set("Authorization", "Bearer "+token)
	rr := executeRequest(app, create)
	if rr.Code != http.StatusOK {
		t.Fatalf("seed create status = %d", rr.Code)
	}
	data, _ := decodeBody(t, rr)["data"].(map[string]any)
	id := int64(data["id"].(float64))

	del := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/v1/products/%d", id), nil)
	del.Header.Set("Authorization", "Bearer "+token)
	if rr := executeRequest(app, del); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	uploads := app.uploads.(*fakeUploads)
	if len(uploads.files) != 0 {
		t.Fatalf("thumbnail files left after delete: %v", uploads.files)
	}

	get := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/v1/products/%d", id), nil)
	get.Header.Set("Authorization", "Bearer "+token)
	if rr := executeRequest(app, get); rr.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
