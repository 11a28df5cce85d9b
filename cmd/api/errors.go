package main

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

func (app *application) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("internal error", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusInternalServerError, "the server encountered a problem")
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("bad request", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusBadRequest, err.Error())
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("not found", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusNotFound, "not found")
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Errorw("conflict", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusConflict, err.Error())
}

func (app *application) unauthorizedErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) unauthorizedBasicErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.logger.Warnw("unauthorized basic", "method", r.Method, "path", r.URL.Path, "error", err.Error())

	w.Header().Set("WWW-Authenticate", `Basic realm="restricted", charset="UTF-8"`)
	writeJSONError(w, http.StatusUnauthorized, "unauthorized")
}

func (app *application) forbiddenResponse(w http.ResponseWriter, r *http.Request) {
	app.logger.Warnw("forbidden", "method", r.Method, "path", r.URL.Path)

	writeJSONError(w, http.StatusForbidden, "forbidden")
}

func (app *application) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request, retryAfter string) {
	app.logger.Warnw("rate limit exceeded", "method", r.Method, "path", r.URL.Path)

	w.Header().Set("Retry-After", retryAfter)
	writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded, retry after: "+retryAfter)
}

// failedValidationResponse reports field-level violations as a map of
// field name to messages with a 422, before any persistence happens.
func (app *application) failedValidationResponse(w http.ResponseWriter, r *http.Request, errs map[string][]string) {
	app.logger.Warnw("validation failed", "method", r.Method, "path", r.URL.Path, "fields", len(errs))

	type envelope struct {
		Message string              `json:"message"`
		Errors  map[string][]string `json:"errors"`
	}
	writeJSON(w, http.StatusUnprocessableEntity, &envelope{
		Message: "The given data was invalid.",
		Errors:  errs,
	})
}

// fieldErrors flattens validator violations into the wire format used
// by failedValidationResponse. Field names follow the request payload
// (lowercased struct field names).
func fieldErrors(err error) map[string][]string {
	errs := make(map[string][]string)

	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs["payload"] = append(errs["payload"], err.Error())
		return errs
	}

	for _, fe := range vErrs {
		field := toSnake(fe.Field())
		errs[field] = append(errs[field], validationMessage(field, fe))
	}
	return errs
}

func validationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", field)
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s.", field, fe.Param())
	case "min":
		return fmt.Sprintf("The %s must be at least %s.", field, fe.Param())
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", field)
	case "slug":
		return fmt.Sprintf("The %s format is invalid.", field)
	case "oneof":
		return fmt.Sprintf("The %s must be one of: %s.", field, fe.Param())
	default:
		return fmt.Sprintf("The %s is invalid.", field)
	}
}

func toSnake(name string) string {
	out := make([]rune, 0, len(name)+4)
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out = append(out, '_')
			}
			r += 'a' - 'A'
		}
		out = append(out, r)
	}
	return string(out)
}
