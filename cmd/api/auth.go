package main

import (
	"context"
	"net/http"
	"time"

	"shopdesk/internal/mailer"
	"shopdesk/internal/store"

	"github.com/google/uuid"
)

type RegisterUserPayload struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type UserWithToken struct {
	*store.User `json:"user"`
	Token       string `json:"token"`
}

// registerUserHandler godoc
//
//	@Summary		Registers a back-office user
//	@Description	Creates the user and issues a bearer token for immediate use
//	@Tags			authentication
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		RegisterUserPayload	true	"User credentials"
//	@Success		201		{object}	UserWithToken		"User registered"
//	@Failure		400		{object}	error				"Bad request"
//	@Failure		422		{object}	error				"Validation failed"
//	@Router			/register [post]
func (app *application) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	var payload RegisterUserPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.failedValidationResponse(w, r, fieldErrors(err))
		return
	}

	user := &store.User{
		Name:  payload.Name,
		Email: payload.Email,
	}
	if err := user.Password.Set(payload.Password); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	ctx := r.Context()

	if err := app.store.Users.Create(ctx, user); err != nil {
		switch err {
		case store.ErrDuplicateEmail:
			app.failedValidationResponse(w, r, map[string][]string{
				"email": {"The email has already been taken."},
			})
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	token, err := app.issueToken(ctx, user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	// welcome mail is best-effort; registration already succeeded
	if app.mailer != nil {
		go func(name, email string) {
			vars := struct{ Username string }{Username: name}
			if _, err := app.mailer.Send(mailer.UserWelcomeTemplate, name, email, vars); err != nil {
				app.logger.Errorw("error sending welcome email", "email", email, "error", err)
			}
		}(user.Name, user.Email)
	}

	if err := app.jsonResponse(w, http.StatusCreated, UserWithToken{User: user, Token: token}); err != nil {
		app.internalServerError(w, r, err)
	}
}

type LoginUserPayload struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// loginUserHandler godoc
//
//	@Summary		Login to get a bearer token
//	@Tags			authentication
//	@Accept			json
//	@Produce		json
//	@Param			payload	body	LoginUserPayload	true	"User credentials"
//	@Success		200		{object}	map[string]string	"Token"
//	@Failure		401		{object}	error				"Invalid credentials"
//	@Router			/login [post]
func (app *application) loginUserHandler(w http.ResponseWriter, r *http.Request) {
	var payload LoginUserPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.failedValidationResponse(w, r, fieldErrors(err))
		return
	}

	user, err := app.store.Users.GetByEmail(r.Context(), payload.Email)
	if err != nil {
		switch err {
		case store.ErrNotFound:
			app.unauthorizedErrorResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := user.Password.Compare(payload.Password); err != nil {
		app.unauthorizedErrorResponse(w, r, err)
		return
	}

	token, err := app.issueToken(r.Context(), user.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	response := map[string]string{
		"message": "Successfully logged In!",
		"token":   token,
	}
	if err := writeJSON(w, http.StatusOK, response); err != nil {
		app.internalServerError(w, r, err)
	}
}

// logoutHandler godoc
//
//	@Summary		Logout the current token
//	@Description	Revokes the presented bearer token
//	@Tags			authentication
//	@Success		204	{string}	string	"No Content"
//	@Security		ApiKeyAuth
//	@Router			/logout [post]
func (app *application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r)
	hash, _ := r.Context().Value(tokenHashCtx).(string)

	if err := app.store.Tokens.Delete(r.Context(), hash); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("user logged out", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// issueToken signs a fresh access token and stores the hash of its jti
// so the token can be revoked on logout.
func (app *application) issueToken(ctx context.Context, userID int64) (string, error) {
	tokenID := uuid.New().String()

	token, err := app.authenticator.GenerateToken(userID, tokenID)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := app.store.Tokens.Insert(ctx, userID, hashTokenID(tokenID)); err != nil {
		return "", err
	}
	return token, nil
}
