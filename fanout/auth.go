package fanout

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned for missing, invalid or expired credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Authenticator resolves a handshake credential to a user id.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// JWTAuthenticator validates HS256 tokens whose subject is the user's
// document id.
type JWTAuthenticator struct {
	secret []byte
	issuer string
}

// NewJWTAuthenticator creates an authenticator. An empty issuer is neither
// set nor checked.
func NewJWTAuthenticator(secret []byte, issuer string) *JWTAuthenticator {
	return &JWTAuthenticator{secret: secret, issuer: issuer}
}

// Authenticate returns the subject of a valid token.
func (a *JWTAuthenticator) Authenticate(tokenString string) (string, error) {
	if tokenString == "" {
		return "", fmt.Errorf("%w: missing token", ErrUnauthorized)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", fmt.Errorf("%w: no subject", ErrUnauthorized)
	}
	return claims.Subject, nil
}

// Issue mints a token for userID valid for ttl.
func (a *JWTAuthenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
