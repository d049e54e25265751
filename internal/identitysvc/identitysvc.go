// Package identitysvc is the "Identity service" external collaborator
// from spec.md §1: it turns an inbound HTTP request into an
// identity.AuthIdentity, authenticating members via JWT and minting a
// stable browser-id cookie for guests.
package identitysvc

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/corvidchess/invitelobby/internal/identity"
)

const browserIDCookie = "browser-id"

// UserLookup resolves a JWT subject into the member fields the lobby
// needs to build an AuthIdentity. Implemented by internal/storage against
// Postgres.
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (username string, roles []string, verified bool, err error)
}

// Service authenticates requests using an ed25519-signed JWT (the same
// scheme the teacher's session package uses) for members, falling back to
// a long-lived random, unsigned browser-id cookie for anonymous guests.
type Service struct {
	privateKey   ed25519.PrivateKey
	publicKey    ed25519.PublicKey
	tokenExpiry  time.Duration // 0 => tokens never expire
	users        UserLookup
	cookieSecure bool
}

// Option configures a Service.
type Option func(*Service)

// WithTokenExpiry sets how long issued member JWTs remain valid; zero
// (the default) means tokens carry no exp claim.
func WithTokenExpiry(d time.Duration) Option {
	return func(s *Service) { s.tokenExpiry = d }
}

// WithSecureCookies marks the guest browser-id cookie Secure (set this in
// production, behind TLS).
func WithSecureCookies(secure bool) Option {
	return func(s *Service) { s.cookieSecure = secure }
}

// New constructs a Service from an ed25519 key pair and a user lookup.
func New(privateKey ed25519.PrivateKey, publicKey ed25519.PublicKey, users UserLookup, opts ...Option) *Service {
	s := &Service{privateKey: privateKey, publicKey: publicKey, users: users}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateKeyPair is a convenience for development/test wiring; production
// deployments should load a persisted key pair instead (see cmd/invitelobbyd).
func GenerateKeyPair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	return priv, pub, err
}

// CreateMemberToken signs a JWT for userID, for use by whatever external
// login flow issues session cookies to members.
func (s *Service) CreateMemberToken(userID string) (string, error) {
	claims := jwt.MapClaims{"sub": userID}
	if s.tokenExpiry > 0 {
		claims["exp"] = time.Now().Add(s.tokenExpiry).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(s.privateKey)
}

// Resolve authenticates r into an AuthIdentity: a valid "auth_token"
// cookie yields a Member, otherwise a "browser-id" cookie (minted if
// absent) yields a Guest.
func (s *Service) Resolve(w http.ResponseWriter, r *http.Request) (identity.AuthIdentity, error) {
	if cookie, err := r.Cookie("auth_token"); err == nil && cookie.Value != "" {
		userID, err := s.verifyJWT(cookie.Value)
		if err == nil {
			username, roles, verified, err := s.users.LookupUser(r.Context(), userID)
			if err != nil {
				return identity.AuthIdentity{}, fmt.Errorf("identitysvc: looking up member %s: %w", userID, err)
			}
			return identity.NewMember(userID, username, roles, verified), nil
		}
	}

	browserID, err := s.guestBrowserID(w, r)
	if err != nil {
		return identity.AuthIdentity{}, err
	}
	return identity.NewGuest(browserID), nil
}

func (s *Service) verifyJWT(tokenString string) (string, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("identitysvc: jwt parse: %w", err)
	}
	if !t.Valid {
		return "", fmt.Errorf("identitysvc: invalid token")
	}
	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("identitysvc: invalid claims")
	}
	userID, ok := claims["sub"].(string)
	if !ok {
		return "", fmt.Errorf("identitysvc: missing sub claim")
	}
	return userID, nil
}

// guestBrowserID reads the browser-id cookie, minting and setting a fresh
// one if absent. The value itself carries no signature — it is an opaque
// identifier, not a credential — so a client cannot forge someone else's
// invites by guessing it (it would need the cookie itself).
func (s *Service) guestBrowserID(w http.ResponseWriter, r *http.Request) (string, error) {
	if cookie, err := r.Cookie(browserIDCookie); err == nil && cookie.Value != "" {
		return cookie.Value, nil
	}

	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("identitysvc: generating browser id: %w", err)
	}
	id := base64.RawURLEncoding.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     browserIDCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, nil
}
