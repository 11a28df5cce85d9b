package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"shopdesk/internal/params"
	"shopdesk/internal/store"
	"shopdesk/internal/uploads"

	"github.com/go-chi/chi/v5"
)

const (
	productsPerPage   = 12
	maxProductBytes   = 3 * 1024 * 1024 // form cap
	maxThumbnailBytes = 2 * 1024 * 1024 // 2048 KB per the validation rules
)

var allowedThumbnailMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

type ProductPayload struct {
	Name        string  `validate:"required,max=255"`
	Description string  `validate:"required,max=5000"`
	Price       int64   `validate:"required,min=5,max=4294967295"`
	Quantity    int     `validate:"required,min=1,max=10000"`
	Slug        string  `validate:"required,max=255,slug"`
	Status      bool    `validate:"-"`
	Categories  []int64 `validate:"required,min=1"`
}

type productResource struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Price        int64               `json:"price"`
	Quantity     int                 `json:"quantity"`
	Slug         string              `json:"slug"`
	ThumbnailURL string              `json:"thumbnail_url"`
	Status       bool                `json:"status"`
	Categories   []store.CategoryRef `json:"categories"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (app *application) productResource(p *store.Product) productResource {
	return productResource{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Price:        p.Price,
		Quantity:     p.Quantity,
		Slug:         p.Slug,
		ThumbnailURL: app.uploads.URL(p.Thumbnail),
		Status:       p.Status,
		Categories:   p.Categories,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

// helper: sniff first 512 bytes and reset reader
func sniffMIME(file multipart.File) (string, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read: %w", err)
	}
	mime := http.DetectContentType(buf[:n])

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("seek reset: %w", err)
	}
	return mime, nil
}

// parseCategoryIDs normalizes the two accepted shapes — repeated values
// or a single comma-separated string — into a deduplicated id set.
func parseCategoryIDs(values []string) ([]int64, error) {
	var (
		ids  []int64
		seen = map[int64]bool{}
	)
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				return nil, fmt.Errorf("category id must not be empty")
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, fmt.Errorf("invalid category id: %s", part)
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// parseProductForm binds the multipart fields into a payload, folding
// type errors (non-integer price and the like) into the same field
// error map the validator produces.
func parseProductForm(r *http.Request) (*ProductPayload, map[string][]string) {
	errs := make(map[string][]string)

	payload := &ProductPayload{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Slug:        strings.TrimSpace(r.FormValue("slug")),
	}

	if v := strings.TrimSpace(r.FormValue("price")); v != "" {
		price, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs["price"] = append(errs["price"], "The price must be an integer.")
		} else {
			payload.Price = price
		}
	}

	if v := strings.TrimSpace(r.FormValue("quantity")); v != "" {
		quantity, err := strconv.Atoi(v)
		if err != nil {
			errs["quantity"] = append(errs["quantity"], "The quantity must be an integer.")
		} else {
			payload.Quantity = quantity
		}
	}

	if v := strings.TrimSpace(r.FormValue("status")); v != "" {
		status, err := strconv.ParseBool(v)
		if err != nil {
			errs["status"] = append(errs["status"], "The status field must be true or false.")
		} else {
			payload.Status = status
		}
	}

	if r.MultipartForm != nil {
		if values := r.MultipartForm.Value["categories"]; len(values) > 0 {
			ids, err := parseCategoryIDs(values)
			if err != nil {
				errs["categories"] = append(errs["categories"], "The selected categories are invalid.")
			} else {
				payload.Categories = ids
			}
		}
	}

	if err := Validate.Struct(payload); err != nil {
		for field, messages := range fieldErrors(err) {
			errs[field] = append(errs[field], messages...)
		}
	}

	if len(errs) > 0 {
		return payload, errs
	}
	return payload, nil
}

// readThumbnail validates an uploaded thumbnail part and returns the
// open file plus the extension for key generation. A missing part
// returns a nil file and no error; required-ness is the caller's rule.
func readThumbnail(r *http.Request, errs map[string][]string) (multipart.File, string) {
	file, header, err := r.FormFile("thumbnail")
	if err == http.ErrMissingFile {
		return nil, ""
	}
	if err != nil {
		errs["thumbnail"] = append(errs["thumbnail"], "The thumbnail upload is invalid.")
		return nil, ""
	}

	if header.Size > maxThumbnailBytes {
		file.Close()
		errs["thumbnail"] = append(errs["thumbnail"], "The thumbnail may not be greater than 2048 kilobytes.")
		return nil, ""
	}

	mime, err := sniffMIME(file)
	if err != nil {
		file.Close()
		errs["thumbnail"] = append(errs["thumbnail"], "The thumbnail upload is invalid.")
		return nil, ""
	}
	if !allowedThumbnailMIMEs[mime] {
		file.Close()
		errs["thumbnail"] = append(errs["thumbnail"], "The thumbnail must be a file of type: jpg, png, jpeg.")
		return nil, ""
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if ext == "" {
		if mime == "image/png" {
			ext = ".png"
		} else {
			ext = ".jpg"
		}
	}
	return file, ext
}

// productChanged is the scalar half of the update reconciliation: it
// deliberately ignores the category set, which is synchronized
// unconditionally and never flips the changed flag.
func productChanged(existing *store.Product, in *ProductPayload) bool {
	return in.Name != existing.Name ||
		in.Description != existing.Description ||
		in.Price != existing.Price ||
		in.Quantity != existing.Quantity ||
		in.Slug != existing.Slug ||
		in.Status != existing.Status
}

// listProductsHandler godoc
//
//	@Summary		List products
//	@Description	Returns a paginated product listing filtered by name, category and price order
//	@Tags			products
//	@Produce		json
//	@Param			name		query		string	false	"Substring match on the product name"
//	@Param			sort		query		string	false	"Price order: asc or desc"
//	@Param			category_id	query		string	false	"Category IDs, repeated or comma-separated; matches products in any of them"
//	@Param			page		query		int		false	"Page number"
//	@Success		200			{object}	map[string]any	"Products with pagination meta"
//	@Failure		422			{object}	error			"Invalid filter values"
//	@Failure		500			{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/products [get]
func (app *application) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	errs := make(map[string][]string)

	filter := store.ProductFilter{
		Name: strings.TrimSpace(q.Get("name")),
	}

	if sort := strings.TrimSpace(q.Get("sort")); sort != "" {
		if sort != "asc" && sort != "desc" {
			errs["sort"] = append(errs["sort"], "The sort must be one of: asc desc.")
		} else {
			filter.Sort = sort
		}
	}

	if values := q["category_id"]; len(values) > 0 {
		ids, err := parseCategoryIDs(values)
		if err != nil {
			errs["category_id"] = append(errs["category_id"], "The selected category_id is invalid.")
		} else {
			filter.CategoryIDs = ids
		}
	}

	if len(errs) > 0 {
		app.failedValidationResponse(w, r, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pg := params.ParsePage(q, productsPerPage)

	items, total, err := app.store.Products.List(ctx, filter, pg.PerPage, pg.Offset)
	if err != nil {
		app.internalServerError(w, r, fmt.Errorf("list products: %w", err))
		return
	}
	pg.ComputeMeta(total)

	resources := make([]productResource, 0, len(items))
	for _, p := range items {
		resources = append(resources, app.productResource(p))
	}

	app.listResponse(w, http.StatusOK, resources, pg)
}

// createProductHandler godoc
//
//	@Summary		Create product
//	@Description	Creates a product from a multipart form, stores its thumbnail and attaches categories
//	@Tags			products
//	@Accept			mpfd
//	@Produce		json
//	@Param			name		formData	string	true	"Product name"
//	@Param			description	formData	string	true	"Product description"
//	@Param			price		formData	int		true	"Price, 5 to 4294967295"
//	@Param			quantity	formData	int		true	"Quantity, 1 to 10000"
//	@Param			slug		formData	string	true	"URL-safe slug"
//	@Param			status		formData	bool	false	"Visibility flag"
//	@Param			categories	formData	string	true	"Category IDs, repeated or comma-separated"
//	@Param			thumbnail	formData	file	true	"jpg/png image, max 2048 KB"
//	@Success		200			{object}	map[string]any	"Created product"
//	@Failure		400			{object}	error			"Unable to parse form"
//	@Failure		422			{object}	error			"Validation failed"
//	@Failure		500			{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/products [post]
func (app *application) createProductHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxProductBytes)
	if err := r.ParseMultipartForm(maxProductBytes); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("failed to parse form: %w", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	payload, errs := parseProductForm(r)
	if errs == nil {
		errs = make(map[string][]string)
	}

	file, ext := readThumbnail(r, errs)
	if file == nil && errs["thumbnail"] == nil {
		errs["thumbnail"] = append(errs["thumbnail"], "The thumbnail field is required.")
	}
	if file != nil {
		defer file.Close()
	}

	if len(errs) > 0 {
		app.failedValidationResponse(w, r, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if len(payload.Categories) > 0 {
		ok, err := app.store.Categories.AllExist(ctx, payload.Categories)
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		if !ok {
			errs["categories"] = append(errs["categories"], "The selected categories are invalid.")
		}
	}

	taken, err := app.store.Products.SlugExists(ctx, payload.Slug, 0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if taken {
		errs["slug"] = append(errs["slug"], "The slug has already been taken.")
	}

	if len(errs) > 0 {
		app.failedValidationResponse(w, r, errs)
		return
	}

	// store the file first; the row must never reference a thumbnail
	// that was not written
	key := uploads.ThumbnailKey(time.Now(), ext)
	if err := app.uploads.Save(ctx, file, key); err != nil {
		app.internalServerError(w, r, fmt.Errorf("store thumbnail: %w", err))
		return
	}

	created, err := app.store.Products.Create(ctx, &store.Product{
		Name:        payload.Name,
		Description: payload.Description,
		Price:       payload.Price,
		Quantity:    payload.Quantity,
		Slug:        payload.Slug,
		Thumbnail:   key,
		Status:      payload.Status,
	}, payload.Categories)
	if err != nil {
		// the row never landed; clean up the orphaned file
		go func(key string) {
			if delErr := app.uploads.Delete(context.Background(), key); delErr != nil {
				app.logger.Errorw("orphaned thumbnail cleanup failed", "key", key, "error", delErr)
			}
		}(key)

		if errors.Is(err, store.ErrDuplicateSlug) {
			app.failedValidationResponse(w, r, map[string][]string{
				"slug": {"The slug has already been taken."},
			})
			return
		}
		app.internalServerError(w, r, fmt.Errorf("create product: %w", err))
		return
	}

	app.messageResponse(w, http.StatusOK, app.productResource(created), "Successfully Created")
}

// getProductHandler godoc
//
//	@Summary		Get product
//	@Description	Fetches a single product by ID with its categories
//	@Tags			products
//	@Produce		json
//	@Param			productID	path		int				true	"Product ID"
//	@Success		200			{object}	map[string]any	"Product"
//	@Failure		404			{object}	error			"Product not found"
//	@Failure		500			{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/products/{productID} [get]
func (app *application) getProductHandler(w http.ResponseWriter, r *http.Request) {
	product, ok := app.productFromParam(w, r)
	if !ok {
		return
	}

	app.jsonResponse(w, http.StatusOK, app.productResource(product))
}

// updateProductHandler godoc
//
//	@Summary		Update product
//	@Description	Updates a product from a multipart form, optionally replacing its thumbnail; the category set is re-synchronized on every call
//	@Tags			products
//	@Accept			mpfd
//	@Produce		json
//	@Param			productID	path		int		true	"Product ID"
//	@Param			thumbnail	formData	file	false	"jpg/png image, max 2048 KB; omit to keep the current one"
//	@Success		200			{object}	map[string]any	"Updated product with an outcome message"
//	@Failure		400			{object}	error			"Unable to parse form"
//	@Failure		404			{object}	error			"Product not found"
//	@Failure		422			{object}	error			"Validation failed"
//	@Failure		500			{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/products/{productID} [put]
func (app *application) updateProductHandler(w http.ResponseWriter, r *http.Request) {
	existing, ok := app.productFromParam(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxProductBytes)
	if err := r.ParseMultipartForm(maxProductBytes); err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("failed to parse form: %w", err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	payload, errs := parseProductForm(r)
	if errs == nil {
		errs = make(map[string][]string)
	}

	// an absent status keeps the stored value; only an explicit value flips it
	if strings.TrimSpace(r.FormValue("status")) == "" {
		payload.Status = existing.Status
	}

	// thumbnail is optional on update; absent means keep the current one
	file, ext := readThumbnail(r, errs)
	if file != nil {
		defer file.Close()
	}

	if len(errs) > 0 {
		app.failedValidationResponse(w, r, errs)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if len(payload.Categories) > 0 {
		ok, err := app.store.Categories.AllExist(ctx, payload.Categories)
		if err != nil {
			app.internalServerError(w, r, err)
			return
		}
		if !ok {
			errs["categories"] = append(errs["categories"], "The selected categories are invalid.")
		}
	}

	taken, err := app.store.Products.SlugExists(ctx, payload.Slug, existing.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if taken {
		errs["slug"] = append(errs["slug"], "The slug has already been taken.")
	}

	if len(errs) > 0 {
		app.failedValidationResponse(w, r, errs)
		return
	}

	thumbnail := existing.Thumbnail
	newThumbnail := file != nil
	if newThumbnail {
		// replace-then-write: drop the old file best-effort, then store
		// the new one under a fresh key; a failed write aborts before
		// the row can reference it
		if err := app.uploads.Delete(ctx, existing.Thumbnail); err != nil {
			app.logger.Errorw("old thumbnail delete failed", "key", existing.Thumbnail, "error", err)
		}
		thumbnail = uploads.ThumbnailKey(time.Now(), ext)
		if err := app.uploads.Save(ctx, file, thumbnail); err != nil {
			app.internalServerError(w, r, fmt.Errorf("store thumbnail: %w", err))
			return
		}
	}

	// the association set is re-synchronized on every update, even when
	// nothing else changed
	if err := app.store.Products.SyncCategories(ctx, existing.ID, payload.Categories); err != nil {
		app.internalServerError(w, r, fmt.Errorf("sync categories: %w", err))
		return
	}

	changed := newThumbnail || productChanged(existing, payload)
	if changed {
		err := app.store.Products.Update(ctx, &store.Product{
			ID:          existing.ID,
			Name:        payload.Name,
			Description: payload.Description,
			Price:       payload.Price,
			Quantity:    payload.Quantity,
			Slug:        payload.Slug,
			Thumbnail:   thumbnail,
			Status:      payload.Status,
		})
		if err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				app.notFoundResponse(w, r, err)
			case errors.Is(err, store.ErrDuplicateSlug):
				app.failedValidationResponse(w, r, map[string][]string{
					"slug": {"The slug has already been taken."},
				})
			default:
				app.internalServerError(w, r, fmt.Errorf("update product: %w", err))
			}
			return
		}
	}

	fresh, err := app.store.Products.GetByID(ctx, existing.ID)
	if err != nil {
		app.internalServerError(w, r, fmt.Errorf("fetch updated product: %w", err))
		return
	}

	message := "Successfully Updated"
	if !changed {
		message = "No changes were made"
	}
	app.messageResponse(w, http.StatusOK, app.productResource(fresh), message)
}

// deleteProductHandler godoc
//
//	@Summary		Delete product
//	@Description	Deletes a product, its thumbnail file and its category attachments
//	@Tags			products
//	@Param			productID	path	int	true	"Product ID"
//	@Success		204			{string}	string	"Product deleted"
//	@Failure		404			{object}	error	"Product not found"
//	@Failure		500			{object}	error	"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/products/{productID} [delete]
func (app *application) deleteProductHandler(w http.ResponseWriter, r *http.Request) {
	product, ok := app.productFromParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	// file first, row second; a failed file delete is logged, not fatal
	if err := app.uploads.Delete(ctx, product.Thumbnail); err != nil {
		app.logger.Errorw("thumbnail delete failed", "key", product.Thumbnail, "error", err)
	}

	if err := app.store.Products.Delete(ctx, product.ID); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// productFromParam is the explicit lookup-or-404 step for the
// {productID} route parameter.
func (app *application) productFromParam(w http.ResponseWriter, r *http.Request) (*store.Product, bool) {
	idStr := chi.URLParam(r, "productID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		app.badRequestResponse(w, r, fmt.Errorf("invalid product ID: %s", idStr))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	product, err := app.store.Products.GetByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return nil, false
	}
	return product, true
}
