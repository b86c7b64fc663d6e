package upbit

import (
	"crypto/sha512"
	"encoding/hex"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// authToken builds the JWT Upbit's private endpoints expect: the access key,
// a one-time nonce, and for parameterized requests a SHA512 hash of the raw
// urlencoded query string. Signed HS256 with the secret key.
func authToken(accessKey, secretKey, query string) (string, error) {
	claims := jwt.MapClaims{
		"access_key": accessKey,
		"nonce":      uuid.NewString(),
	}
	if query != "" {
		sum := sha512.Sum512([]byte(query))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}
