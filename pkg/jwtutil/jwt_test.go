package jwtutil

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestUtil() *JWTUtil {
	return NewJWTUtil(&JWTConfig{
		SigningKey:      "test-secret",
		AccessLifetime:  time.Hour,
		RefreshLifetime: 7 * 24 * time.Hour,
	})
}

func TestAccessTokenRoundTrip(t *testing.T) {
	j := newTestUtil()
	lib := uint(3)
	signed, issued, err := j.GenerateAccessToken(Identity{UserID: 42, Username: "alice", Role: "reader", LibraryID: &lib, LibraryCode: "CENTRAL"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := j.ValidateToken(signed, AccessToken)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Role != "reader" {
		t.Fatalf("unexpected identity: %+v", claims.Identity)
	}
	if claims.LibraryID == nil || *claims.LibraryID != 3 || claims.LibraryCode != "CENTRAL" {
		t.Fatalf("library claims lost: %+v", claims.Identity)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Fatalf("jti mismatch: %q vs %q", claims.ID, issued.ID)
	}
	if claims.Subject != "42" {
		t.Fatalf("subject = %q", claims.Subject)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	j := newTestUtil()
	refresh, _, err := j.GenerateRefreshToken(Identity{UserID: 1, Username: "bob", Role: "library"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := j.ValidateToken(refresh, AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, err := j.ValidateToken(refresh, RefreshToken); err != nil {
		t.Fatalf("refresh token rejected: %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	j := NewJWTUtil(&JWTConfig{SigningKey: "k", AccessLifetime: -time.Minute})
	signed, _, err := j.GenerateAccessToken(Identity{UserID: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := j.ValidateToken(signed, AccessToken); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired, got %v", err)
	}
}

func TestForeignSignatureRejected(t *testing.T) {
	signed, _, _ := NewJWTUtil(&JWTConfig{SigningKey: "other", AccessLifetime: time.Hour}).
		GenerateAccessToken(Identity{UserID: 1})
	if _, err := newTestUtil().ValidateToken(signed, AccessToken); err == nil {
		t.Fatalf("token signed with another key was accepted")
	}
}

func TestEachTokenHasUniqueID(t *testing.T) {
	j := newTestUtil()
	_, a, _ := j.GenerateRefreshToken(Identity{UserID: 1})
	_, b, _ := j.GenerateRefreshToken(Identity{UserID: 1})
	if a.ID == b.ID {
		t.Fatalf("two refresh tokens share jti %q", a.ID)
	}
}
