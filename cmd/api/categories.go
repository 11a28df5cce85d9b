package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"shopdesk/internal/params"
	"shopdesk/internal/store"

	"github.com/go-chi/chi/v5"
)

// the categories-management listing pages by 10, not the products' 12
const categoriesPerPage = 10

type CategoryPayload struct {
	Title string `json:"title" validate:"required,max=255"`
	Slug  string `json:"slug" validate:"required,max=255,slug"`
}

// listCategoriesHandler godoc
//
//	@Summary		List categories
//	@Description	Returns categories ten per page with pagination meta
//	@Tags			categories
//	@Produce		json
//	@Param			page	query		int				false	"Page number"
//	@Success		200		{object}	map[string]any	"Categories with pagination meta"
//	@Failure		500		{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/categories [get]
func (app *application) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	pg := params.ParsePage(r.URL.Query(), categoriesPerPage)

	categories, total, err := app.store.Categories.List(ctx, pg.PerPage, pg.Offset)
	if err != nil {
		app.internalServerError(w, r, fmt.Errorf("list categories: %w", err))
		return
	}
	if categories == nil {
		categories = []*store.Category{}
	}

	pg.ComputeMeta(total)

	app.listResponse(w, http.StatusOK, categories, pg)
}

// getAllCategoriesHandler serves the unpaginated id+title listing that
// feeds the category select when creating a product.
// getAllCategoriesHandler godoc
//
//	@Summary		All categories
//	@Description	Returns every category as id/title pairs, unpaginated, for pickers
//	@Tags			categories
//	@Produce		json
//	@Success		200	{object}	map[string]any	"Category references"
//	@Failure		500	{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/categories/all [get]
func (app *application) getAllCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	refs, err := app.store.Categories.ListRefs(ctx)
	if err != nil {
		app.internalServerError(w, r, fmt.Errorf("list all categories: %w", err))
		return
	}
	if refs == nil {
		refs = []store.CategoryRef{}
	}

	app.jsonResponse(w, http.StatusOK, refs)
}

// createCategoryHandler godoc
//
//	@Summary		Create category
//	@Description	Creates a category with a unique slug
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CategoryPayload	true	"Category title and slug"
//	@Success		201		{object}	map[string]any	"Created category"
//	@Failure		422		{object}	error			"Validation failed or slug taken"
//	@Failure		500		{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/categories [post]
func (app *application) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var payload CategoryPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.failedValidationResponse(w, r, fieldErrors(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	taken, err := app.store.Categories.SlugExists(ctx, payload.Slug, 0)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if taken {
		app.failedValidationResponse(w, r, map[string][]string{
			"slug": {"The slug has already been taken."},
		})
		return
	}

	created, err := app.store.Categories.Create(ctx, &store.Category{
		Title: payload.Title,
		Slug:  payload.Slug,
	})
	if err != nil {
		// unique index closes the race the pre-check leaves open
		if errors.Is(err, store.ErrDuplicateSlug) {
			app.failedValidationResponse(w, r, map[string][]string{
				"slug": {"The slug has already been taken."},
			})
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	app.messageResponse(w, http.StatusCreated, created, "Successfully Created")
}

// getCategoryHandler godoc
//
//	@Summary		Get category
//	@Description	Fetches a single category by ID
//	@Tags			categories
//	@Produce		json
//	@Param			categoryID	path		int				true	"Category ID"
//	@Success		200			{object}	map[string]any	"Category"
//	@Failure		404			{object}	error			"Category not found"
//	@Security		ApiKeyAuth
//	@Router			/categories/{categoryID} [get]
func (app *application) getCategoryHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := app.categoryFromParam(w, r)
	if !ok {
		return
	}

	app.jsonResponse(w, http.StatusOK, category)
}

// updateCategoryHandler godoc
//
//	@Summary		Update category
//	@Description	Updates a category; an identical payload reports that no changes were made
//	@Tags			categories
//	@Accept			json
//	@Produce		json
//	@Param			categoryID	path		int				true	"Category ID"
//	@Param			body		body		CategoryPayload	true	"Category title and slug"
//	@Success		200			{object}	map[string]any	"Category with an outcome message"
//	@Failure		404			{object}	error			"Category not found"
//	@Failure		422			{object}	error			"Validation failed or slug taken"
//	@Failure		500			{object}	error			"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/categories/{categoryID} [put]
func (app *application) updateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	existing, ok := app.categoryFromParam(w, r)
	if !ok {
		return
	}

	var payload CategoryPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.failedValidationResponse(w, r, fieldErrors(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	taken, err := app.store.Categories.SlugExists(ctx, payload.Slug, existing.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}
	if taken {
		app.failedValidationResponse(w, r, map[string][]string{
			"slug": {"The slug has already been taken."},
		})
		return
	}

	changed := payload.Title != existing.Title || payload.Slug != existing.Slug
	if !changed {
		app.messageResponse(w, http.StatusOK, existing, "No changes were made")
		return
	}

	updated, err := app.store.Categories.Update(ctx, &store.Category{
		ID:    existing.ID,
		Title: payload.Title,
		Slug:  payload.Slug,
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
			app.internalServerError(w, r, err)
		}
		return
	}

	app.messageResponse(w, http.StatusOK, updated, "Successfully Updated")
}

// deleteCategoryHandler godoc
//
//	@Summary		Delete category
//	@Description	Deletes a category and detaches it from any products
//	@Tags			categories
//	@Param			categoryID	path	int	true	"Category ID"
//	@Success		204			{string}	string	"Category deleted"
//	@Failure		404			{object}	error	"Category not found"
//	@Failure		500			{object}	error	"Internal server error"
//	@Security		ApiKeyAuth
//	@Router			/categories/{categoryID} [delete]
func (app *application) deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	category, ok := app.categoryFromParam(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := app.store.Categories.Delete(ctx, category.ID); err != nil {
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

// categoryFromParam is the explicit lookup-or-404 step for the
// {categoryID} route parameter.
func (app *application) categoryFromParam(w http.ResponseWriter, r *http.Request) (*store.Category, bool) {
	idStr := chi.URLParam(r, "categoryID")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		app.badRequestResponse(w, r, fmt.Errorf("invalid category ID: %s", idStr))
		return nil, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	category, err := app.store.Categories.GetByID(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			app.notFoundResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return nil, false
	}
	return category, true
}
