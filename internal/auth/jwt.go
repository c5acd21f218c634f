package auth

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingToken = errors.New("missing token")
)

const tokenTypeAccess = "access"

// Identity is the caller resolved from an access token. The zero value is the
// anonymous caller.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

// Anonymous is returned whenever a token is absent or fails validation.
var Anonymous = Identity{}

// IsAnonymous reports whether the identity carries no user.
func (i Identity) IsAnonymous() bool {
	return i.UserID == 0
}

// DisplayName is the name shown to other room members.
func (i Identity) DisplayName() string {
	if i.IsAnonymous() {
		return "anonymous"
	}
	if i.Username != "" {
		return i.Username
	}
	return strconv.FormatInt(i.UserID, 10)
}

// Claims accepts the user id under either "user_id" or "user", as a number or a
// numeric string.
type Claims struct {
	UserID    json.Number `json:"user_id,omitempty"`
	User      json.Number `json:"user,omitempty"`
	Username  string      `json:"username,omitempty"`
	Email     string      `json:"email,omitempty"`
	TokenType string      `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) userID() (int64, error) {
	raw := c.UserID
	if raw == "" {
		raw = c.User
	}
	if raw == "" {
		return 0, ErrInvalidToken
	}
	id, err := raw.Int64()
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Authenticator validates and issues HS256 access tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator builds an Authenticator. An empty issuer disables the issuer check.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Validate parses the token and returns the identity it carries.
func (a *Authenticator) Validate(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Anonymous, ErrMissingToken
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Anonymous, ErrExpiredToken
		}
		return Anonymous, ErrInvalidToken
	}
	if !token.Valid {
		return Anonymous, ErrInvalidToken
	}
	if claims.TokenType != "" && claims.TokenType != tokenTypeAccess {
		return Anonymous, ErrInvalidToken
	}

	id, err := claims.userID()
	if err != nil {
		return Anonymous, err
	}
	return Identity{UserID: id, Username: claims.Username, Email: claims.Email}, nil
}

// Resolve never fails: any validation error yields the anonymous identity.
func (a *Authenticator) Resolve(tokenString string) Identity {
	identity, err := a.Validate(tokenString)
	if err != nil {
		return Anonymous
	}
	return identity
}

// Issue mints an access token for local development and tests.
func (a *Authenticator) Issue(identity Identity, ttl time.Duration) (string, error) {
	if identity.IsAnonymous() {
		return "", errors.New("cannot issue a token for the anonymous identity")
	}
	now := time.Now()
	subject := strconv.FormatInt(identity.UserID, 10)
	claims := Claims{
		UserID:    json.Number(subject),
		Username:  identity.Username,
		Email:     identity.Email,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
