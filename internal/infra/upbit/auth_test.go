package upbit

import (
	"crypto/sha512"
	"encoding/hex"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func parseClaims(t *testing.T, token, secret string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		t.Fatalf("claims type = %T", parsed.Claims)
	}
	return claims
}

func TestAuthToken(t *testing.T) {
	t.Run("no query", func(t *testing.T) {
		token, err := authToken("ak", "sk", "")
		if err != nil {
			t.Fatalf("authToken: %v", err)
		}
		claims := parseClaims(t, token, "sk")
		if claims["access_key"] != "ak" {
			t.Fatalf("access_key = %v", claims["access_key"])
		}
		if claims["nonce"] == "" || claims["nonce"] == nil {
			t.Fatalf("nonce missing")
		}
		if _, ok := claims["query_hash"]; ok {
			t.Fatalf("query_hash present without query")
		}
	})

	t.Run("query hash", func(t *testing.T) {
		query := "market=KRW-BTC&ord_type=price&price=300000&side=bid"
		token, err := authToken("ak", "sk", query)
		if err != nil {
			t.Fatalf("authToken: %v", err)
		}
		claims := parseClaims(t, token, "sk")
		sum := sha512.Sum512([]byte(query))
		if claims["query_hash"] != hex.EncodeToString(sum[:]) {
			t.Fatalf("query_hash = %v", claims["query_hash"])
		}
		if claims["query_hash_alg"] != "SHA512" {
			t.Fatalf("query_hash_alg = %v", claims["query_hash_alg"])
		}
	})

	t.Run("nonces differ", func(t *testing.T) {
		a, _ := authToken("ak", "sk", "")
		b, _ := authToken("ak", "sk", "")
		if a == b {
			t.Fatalf("tokens identical, nonce not rotating")
		}
	})
}
