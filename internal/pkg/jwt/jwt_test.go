package jwt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := Config{Issuer: "unitevol", Audience: "unitevol-users", TTL: time.Hour, KID: "test"}
	return Build(cfg, priv, &priv.PublicKey)
}

func TestAccessTokenRoundTrip(t *testing.T) {
	m := testManager(t)

	tok, jti, err := m.Generator.GenerateAccessToken(Subject{
		PrincipalID: "01HX",
		Email:       "a@x.com",
		Role:        "ngo",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := m.Verifier.VerifyAccessToken(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ID != jti {
		t.Errorf("jti = %q, want %q", claims.ID, jti)
	}
	if claims.PrincipalID != "01HX" || claims.Email != "a@x.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if !claims.HasRole("volunteer", "ngo") {
		t.Error("expected ngo role to match")
	}
	if claims.HasRole("volunteer") {
		t.Error("volunteer should not match")
	}
}

func TestRefreshTokenIsNotAccessToken(t *testing.T) {
	m := testManager(t)

	tok, _, err := m.Generator.GenerateRefreshToken("01HX")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := m.Verifier.VerifyAccessToken(tok); err == nil {
		t.Fatal("refresh token accepted as access token")
	}
	if _, err := m.Verifier.VerifyRefreshToken(tok); err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
}

func TestVerifyRejectsOtherIssuer(t *testing.T) {
	m := testManager(t)
	other := NewVerifier(m.Verifier.pub, "someone-else", "unitevol-users")

	tok, _, err := m.Generator.GenerateAccessToken(Subject{PrincipalID: "01HX"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := other.Verify(tok); err == nil {
		t.Fatal("expected issuer mismatch")
	}
}

func TestParseRSAKeysPEM(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	pkix, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	tests := []struct {
		name    string
		pem     []byte
		public  bool
		wantErr bool
	}{
		{"pkcs8 private", pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8}), false, false},
		{"pkcs1 private", pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}), false, false},
		{"pkix public", pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pkix}), true, false},
		{"wrong type", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: pkix}), true, true},
		{"garbage", []byte("not pem"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			if tt.public {
				_, err = ParseRSAPublicKeyPEM(tt.pem)
			} else {
				_, err = ParseRSAPrivateKeyPEM(tt.pem)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
