package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// createTestToken creates a JWT token for testing (unsigned, for dev mode).
func createTestToken(claims *Claims) string {
	header := map[string]string{
		"alg": "none",
		"typ": "JWT",
	}
	headerJSON, _ := json.Marshal(header)
	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)

	claimsJSON, _ := json.Marshal(claims)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)

	return headerB64 + "." + claimsB64 + "."
}

func tenantPtr(id int64) *int64 { return &id }

func TestJWKSClient_ValidateToken_DevMode(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	token := createTestToken(&Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			Issuer:    "https://auth.example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenantPtr(42),
		Email:    "user@example.com",
		Roles:    []string{"admin"},
	})

	claims, err := client.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Subject != "user-123" {
		t.Errorf("expected Subject 'user-123', got %q", claims.Subject)
	}
	if id, ok := claims.Tenant(); !ok || id != 42 {
		t.Errorf("expected tenant 42, got %d (present=%v)", id, ok)
	}
	if claims.Email != "user@example.com" {
		t.Errorf("expected Email 'user@example.com', got %q", claims.Email)
	}
}

func TestJWKSClient_ValidateToken_Malformed(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	for _, token := range []string{"", "not-a-jwt", "a.b.c", "!!!.@@@.###"} {
		if _, err := client.ValidateToken(context.Background(), token); err == nil {
			t.Errorf("expected error for token %q", token)
		}
	}
}

func TestJWKSClient_ValidateToken_Audience(t *testing.T) {
	client, err := NewJWKSClient(context.Background(), &JWKSConfig{Audience: "tenantsql"})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	wrong := createTestToken(&Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"other"}}})
	if _, err := client.ValidateToken(context.Background(), wrong); !errors.Is(err, ErrInvalidAudience) {
		t.Errorf("expected ErrInvalidAudience, got: %v", err)
	}

	missing := createTestToken(&Claims{})
	if _, err := client.ValidateToken(context.Background(), missing); !errors.Is(err, ErrInvalidAudience) {
		t.Errorf("expected ErrInvalidAudience for missing audience, got: %v", err)
	}

	right := createTestToken(&Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"other", "tenantsql"}}})
	if _, err := client.ValidateToken(context.Background(), right); err != nil {
		t.Errorf("expected matching audience to validate, got: %v", err)
	}
}

func TestNewJWKSClient_VerificationWithoutEndpoints(t *testing.T) {
	if _, err := NewJWKSClient(context.Background(), &JWKSConfig{EnableVerification: true}); err == nil {
		t.Error("expected error when verification is enabled without endpoints")
	}
}

// jwksServer serves the public half of key as a single-key JWKS.
func jwksServer(t *testing.T, kid string, key *rsa.PublicKey) *httptest.Server {
	t.Helper()
	doc := map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"kid": kid,
			"alg": "RS256",
			"use": "sig",
			"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWKSClient_ValidateToken_Verified(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	const issuer = "https://auth.example.com"
	srv := jwksServer(t, "k1", &key.PublicKey)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	client, err := NewJWKSClient(ctx, &JWKSConfig{
		EnableVerification: true,
		JWKSEndpoints:      map[string]string{issuer: srv.URL},
	})
	if err != nil {
		t.Fatalf("NewJWKSClient failed: %v", err)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenantPtr(9),
	}

	got, err := client.ValidateToken(ctx, signToken(t, key, "k1", claims))
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if id, ok := got.Tenant(); !ok || id != 9 {
		t.Errorf("expected tenant 9, got %d (present=%v)", id, ok)
	}

	if _, err := client.ValidateToken(ctx, signToken(t, other, "k1", claims)); err == nil {
		t.Error("expected error for token signed by an unknown key")
	}

	foreign := *claims
	foreign.Issuer = "https://evil.example.com"
	if _, err := client.ValidateToken(ctx, signToken(t, key, "k1", &foreign)); err == nil {
		t.Error("expected error for unauthorized issuer")
	}

	expired := *claims
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	if _, err := client.ValidateToken(ctx, signToken(t, key, "k1", &expired)); err == nil {
		t.Error("expected error for expired token")
	}

	if _, err := client.ValidateToken(ctx, createTestToken(claims)); err == nil {
		t.Error("expected error for unsigned token when verification is enabled")
	}
}
