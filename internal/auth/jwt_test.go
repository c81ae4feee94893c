package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/example/ride-negotiation/internal/apperr"
	"github.com/example/ride-negotiation/internal/models"
	"github.com/example/ride-negotiation/internal/storage"
)

func TestAuthenticateProvisionsUser(t *testing.T) {
	store := storage.NewMemoryStore()
	a := NewJWTAuthenticator("secret", store, nil)
	id := uuid.New()
	tok, err := a.Sign(id, models.RoleDriver, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ident, err := a.Authenticate(context.Background(), tok)
	if err != nil {
		t.Fatal(err)
	}
	if ident.UserID != id || ident.Role != models.RoleDriver {
		t.Fatalf("identity %+v", ident)
	}
	u, err := store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("user not provisioned: %v", err)
	}
	if len(u.ReferralCode) != 8 || u.Role != models.RoleDriver {
		t.Fatalf("user %+v", u)
	}
}

func TestParseRejectsBadTokens(t *testing.T) {
	a := NewJWTAuthenticator("secret", storage.NewMemoryStore(), nil)
	other := NewJWTAuthenticator("other", storage.NewMemoryStore(), nil)
	id := uuid.New()

	wrongKey, _ := other.Sign(id, models.RolePassenger, time.Hour)
	expired, _ := a.Sign(id, models.RolePassenger, -time.Minute)
	badRole, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: id.String(), Role: "pilot"}).SignedString([]byte("secret"))
	badUID, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{UserID: "nope", Role: models.RolePassenger}).SignedString([]byte("secret"))

	for name, tok := range map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"wrong key": wrongKey,
		"expired":   expired,
		"bad role":  badRole,
		"bad uid":   badUID,
	} {
		if _, err := a.Parse(tok); apperr.KindOf(err) != apperr.Unauthorized {
			t.Errorf("%s: expected unauthorized, got %v", name, err)
		}
	}
}

func TestIdentityContext(t *testing.T) {
	want := models.Identity{UserID: uuid.New(), Role: models.RoleAdmin}
	got, ok := IdentityFrom(WithIdentity(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("got %+v %v", got, ok)
	}
	if _, ok := IdentityFrom(context.Background()); ok {
		t.Fatal("expected no identity")
	}
}
