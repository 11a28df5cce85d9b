package main

import (
	"encoding/json"
	"net/http"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var Validate *validator.Validate

// slugRe accepts lowercase alphanumerics separated by single hyphens:
// no leading/trailing hyphen, no doubled hyphens, nothing outside
// [a-z0-9-].
var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

func isValidSlug(slug string) bool {
	return slugRe.MatchString(slug)
}

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	// Register custom validation for URL slugs
	Validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return isValidSlug(fl.Field().String())
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// it parses body into Go struct.
func readJSON(w http.ResponseWriter, r *http.Request, data any) error {
	maxBytes := 1_048_578 //1mb
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(data)
}

func writeJSONError(w http.ResponseWriter, status int, message string) error {
	type envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Status  int    `json:"status"`
	}

	return writeJSON(w, status, &envelope{
		Success: false,
		Message: message,
		Status:  status,
	})
}

func (app *application) jsonResponse(w http.ResponseWriter, status int, data any) error {
	type envelope struct {
		Data any `json:"data"`
	}
	return writeJSON(w, status, &envelope{Data: data})
}

// messageResponse wraps a single written resource together with its
// status message ("Successfully Created", "Successfully Updated",
// "No changes were made").
func (app *application) messageResponse(w http.ResponseWriter, status int, data any, message string) error {
	type envelope struct {
		Data    any    `json:"data"`
		Message string `json:"message"`
	}
	return writeJSON(w, status, &envelope{Data: data, Message: message})
}

// listResponse wraps a collection with its pagination metadata.
func (app *application) listResponse(w http.ResponseWriter, status int, data any, meta any) error {
	type envelope struct {
		Data any `json:"data"`
		Meta any `json:"meta"`
	}
	return writeJSON(w, status, &envelope{Data: data, Meta: meta})
}
