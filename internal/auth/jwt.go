package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type JWTAuthenticator struct {
	secret string
	aud    string
	iss    string
	exp    time.Duration
}

func NewJWTAuthenticator(secret, aud, iss string, exp time.Duration) *JWTAuthenticator {
	return &JWTAuthenticator{secret, aud, iss, exp}
}

// GenerateToken signs an access token carrying the given token ID as jti.
// The jti is what the token store hashes, so a signed token stays usable
// only while its jti row exists.
func (a *JWTAuthenticator) GenerateToken(userID int64, tokenID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"jti": tokenID,
		"exp": now.Add(a.exp).Unix(),
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"iss": a.iss,
		"aud": a.aud,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(a.secret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken checks signature, expiry, signing method, audience and issuer.
func (a *JWTAuthenticator) ValidateToken(token string) (*jwt.Token, error) {
	return jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(a.secret), nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(a.aud),
		jwt.WithIssuer(a.iss),
	)
}
