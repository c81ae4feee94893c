package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

// Claims carried by access tokens.
type Claims struct {
	UserID string      `json:"uid"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator verifies HS256 bearer tokens and provisions a user row the
// first time an identity is seen.
type JWTAuthenticator struct {
	secret []byte
	Users  storage.UserStore
	Logger *slog.Logger

	known sync.Map // uuid.UUID -> struct{}
}

func NewJWTAuthenticator(secret string, users storage.UserStore, logger *slog.Logger) *JWTAuthenticator {
	return &JWTAuthenticator{secret: []byte(secret), Users: users, Logger: logger}
}

// Sign issues a token for id; used by tooling and tests.
func (a *JWTAuthenticator) Sign(id uuid.UUID, role models.Role, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID: id.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *JWTAuthenticator) Parse(token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, apperr.New(apperr.Unauthorized, "missing bearer token")
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, apperr.Wrap(apperr.Unauthorized, "invalid token", err)
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return models.Identity{}, apperr.Wrap(apperr.Unauthorized, "invalid token subject", err)
	}
	if !claims.Role.Valid() {
		return models.Identity{}, apperr.New(apperr.Unauthorized, "invalid token role")
	}
	return models.Identity{UserID: id, Role: claims.Role}, nil
}

// Authenticate parses the token and makes sure the user row exists.
func (a *JWTAuthenticator) Authenticate(ctx context.Context, token string) (models.Identity, error) {
	ident, err := a.Parse(token)
	if err != nil {
		return models.Identity{}, err
	}
	if _, ok := a.known.Load(ident.UserID); ok {
		return ident, nil
	}
	if err := a.provision(ctx, ident); err != nil {
		return models.Identity{}, err
	}
	a.known.Store(ident.UserID, struct{}{})
	return ident, nil
}

const provisionAttempts = 3

func (a *JWTAuthenticator) provision(ctx context.Context, ident models.Identity) error {
	if _, err := a.Users.GetUser(ctx, ident.UserID); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return apperr.Store("get user", err)
	}
	var err error
	for i := 0; i < provisionAttempts; i++ {
		_, err = a.Users.EnsureUser(ctx, models.User{
			ID:           ident.UserID,
			Role:         ident.Role,
			ReferralCode: NewReferralCode(),
			Rating:       5.0,
			CreatedAt:    time.Now().UTC(),
		})
		if err == nil {
			if a.Logger != nil {
				a.Logger.Info("user provisioned", "user_id", ident.UserID, "role", ident.Role)
			}
			return nil
		}
		// a referral code collision; draw another
		if !errors.Is(err, storage.ErrConflict) {
			break
		}
	}
	return apperr.Store("provision user", err)
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReferralCode returns an 8 character code without look-alike characters.
func NewReferralCode() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand: %v", err))
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(models.Identity)
	return id, ok
}
