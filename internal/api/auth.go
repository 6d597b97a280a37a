package api

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	tokenHashIterations = 120_000
	tokenHashSaltLength = 16
	tokenHashKeyLength  = 32
)

// ErrInvalidToken is returned when a presented token matches no configured
// hash.
var ErrInvalidToken = errors.New("invalid token")

// HashToken derives a storable hash for an admin token. The encoded form is
// "pbkdf2$sha256$<iterations>$<salt>$<key>" with base64 raw encoding.
func HashToken(token string) (string, error) {
	salt := make([]byte, tokenHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(token), salt, tokenHashIterations, tokenHashKeyLength, sha256.New)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s",
		tokenHashIterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(derived),
	), nil
}

// TokenVerifier checks presented admin tokens against configured hashes.
// An empty verifier rejects everything; construct it with at least one hash
// to open the API.
type TokenVerifier struct {
	hashes []string
}

// NewTokenVerifier validates the hash formats up front so a misconfigured
// deployment fails at startup rather than at first request.
func NewTokenVerifier(hashes []string) (*TokenVerifier, error) {
	for _, encoded := range hashes {
		if _, _, _, err := decodeTokenHash(encoded); err != nil {
			return nil, err
		}
	}
	return &TokenVerifier{hashes: append([]string(nil), hashes...)}, nil
}

// Verify reports whether the token matches any configured hash.
func (v *TokenVerifier) Verify(token string) error {
	if v == nil || len(v.hashes) == 0 {
		return ErrInvalidToken
	}
	for _, encoded := range v.hashes {
		iterations, salt, key, err := decodeTokenHash(encoded)
		if err != nil {
			continue
		}
		derived := pbkdf2.Key([]byte(token), salt, iterations, len(key), sha256.New)
		if subtle.ConstantTimeCompare(derived, key) == 1 {
			return nil
		}
	}
	return ErrInvalidToken
}

func decodeTokenHash(encoded string) (iterations int, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 || parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return 0, nil, nil, fmt.Errorf("token hash: unsupported format")
	}
	iterations, err = strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return 0, nil, nil, fmt.Errorf("token hash: invalid iteration count")
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("token hash: decode salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("token hash: decode key: %w", err)
	}
	return iterations, salt, key, nil
}

// RequireToken wraps a handler with bearer-token authentication. When the
// verifier is nil the API runs open; intended only for development mode.
func RequireToken(verifier *TokenVerifier, next http.Handler) http.Handler {
	if verifier == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		if err := verifier.Verify(strings.TrimSpace(header[len(prefix):])); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
