package main

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"shopdesk/internal/store"

	"github.com/golang-jwt/jwt/v5"
)

type ctxKey string

const (
	userCtx      ctxKey = "user"
	tokenHashCtx ctxKey = "token_hash"
)

func getUserFromContext(r *http.Request) *store.User {
	user, _ := r.Context().Value(userCtx).(*store.User)
	return user
}

// hashTokenID is how issued tokens are stored: the sha256 hex of the
// jti claim, never the token itself.
func hashTokenID(tokenID string) string {
	hash := sha256.Sum256([]byte(tokenID))
	return hex.EncodeToString(hash[:])
}

func (app *application) BasicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// read the auth header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is missing"))
				return
			}

			// parse it -> get the base64
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Basic" {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("authorization header is malformed"))
				return
			}

			// decode it
			decoded, err := base64.StdEncoding.DecodeString(parts[1])
			if err != nil {
				app.unauthorizedBasicErrorResponse(w, r, err)
				return
			}

			// check the credentials
			username := app.config.auth.basic.user
			pass := app.config.auth.basic.pass

			creds := strings.SplitN(string(decoded), ":", 2)
			if len(creds) != 2 || creds[0] != username || creds[1] != pass {
				app.unauthorizedBasicErrorResponse(w, r, fmt.Errorf("invalid credentials"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthTokenMiddleware authenticates a bearer token: the JWT must verify
// and its jti hash must still be stored, so logged-out tokens fail even
// before their expiry.
func (app *application) AuthTokenMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash, userID, err := app.resolveBearerToken(r)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}

		ctx := r.Context()

		user, err := app.store.Users.GetByID(ctx, userID)
		if err != nil {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}

		ctx = context.WithValue(ctx, userCtx, user)
		ctx = context.WithValue(ctx, tokenHashCtx, hash)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GuestOnlyMiddleware gates register/login: a caller presenting a live
// token is already authenticated and gets a 403.
func (app *application) GuestOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			if _, _, err := app.resolveBearerToken(r); err == nil {
				app.forbiddenResponse(w, r)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// resolveBearerToken parses and validates the Authorization header and
// returns the stored token hash plus the subject user id.
func (app *application) resolveBearerToken(r *http.Request) (hash string, userID int64, err error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", 0, fmt.Errorf("authorization header is missing")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", 0, fmt.Errorf("authorization header is malformed")
	}

	jwtToken, err := app.authenticator.ValidateToken(parts[1])
	if err != nil {
		return "", 0, err
	}

	claims, ok := jwtToken.Claims.(jwt.MapClaims)
	if !ok {
		return "", 0, fmt.Errorf("invalid claims")
	}

	tokenID, ok := claims["jti"].(string)
	if !ok || tokenID == "" {
		return "", 0, fmt.Errorf("missing jti claim")
	}

	hash = hashTokenID(tokenID)
	live, err := app.store.Tokens.Exists(r.Context(), hash)
	if err != nil {
		return "", 0, err
	}
	if !live {
		return "", 0, fmt.Errorf("token has been revoked")
	}

	userID, err = strconv.ParseInt(fmt.Sprintf("%.f", claims["sub"]), 10, 64)
	if err != nil {
		return "", 0, err
	}

	return hash, userID, nil
}

func (app *application) RateLimiterMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if app.config.rateLimiter.Enabled {
			if allow, retryAfter := app.rateLimiter.Allow(r.RemoteAddr); !allow {
				app.rateLimitExceededResponse(w, r, retryAfter.String())
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}
