// Package auth mints and verifies the identity tokens carried on the
// realtime socket.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 168 * time.Hour

// Sentinel kinds for auth errors.
var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token is required")
)

// Identity is the user a connection acts as.
type Identity struct {
	UserID string
	Name   string
}

// Claims are the JWT claims issued for a user.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator issues and checks HS256 tokens. With an empty secret it runs
// in development mode and trusts the user_id query parameter instead.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// New creates an Authenticator. A non-positive ttl uses one week.
func New(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// DevMode reports whether tokens are not required.
func (a *Authenticator) DevMode() bool { return len(a.secret) == 0 }

// Issue returns a signed token for userID.
func (a *Authenticator) Issue(userID, name string) (string, error) {
	if a.DevMode() {
		return "", fmt.Errorf("issue token: no jwt secret configured")
	}
	if userID == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	now := a.now()
	claims := Claims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the identity it carries.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{UserID: claims.Subject, Name: claims.Name}, nil
}

// FromRequest resolves the caller of r. Tokens are read from the
// Authorization bearer header or the token query parameter, since browsers
// cannot set headers on websocket upgrades.
func (a *Authenticator) FromRequest(r *http.Request) (Identity, error) {
	q := r.URL.Query()
	if a.DevMode() {
		id := strings.TrimSpace(q.Get("user_id"))
		if id == "" {
			return Identity{}, ErrMissingToken
		}
		return Identity{UserID: id, Name: q.Get("name")}, nil
	}

	tokenString := q.Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return Identity{}, fmt.Errorf("%w: authorization header format must be Bearer {token}", ErrInvalidToken)
		}
		tokenString = parts[1]
	}
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}
	return a.Verify(tokenString)
}
