package progress

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/mcoot/coursebattle/internal/dependencies/clock"
)

// expirySkew treats tokens this close to expiry as already expired
const expirySkew = 30 * time.Second

// TokenSource yields the bearer token for the progress API.
// An empty token with a nil error means "send the request unauthenticated".
type TokenSource interface {
	Token() (string, error)
}

// StaticToken always returns the same token
type StaticToken string

func (t StaticToken) Token() (string, error) {
	return strings.TrimSpace(string(t)), nil
}

// FileToken reads the token from a file on every call so an external
// process can refresh it. Expired tokens are treated as absent.
type FileToken struct {
	Path  string
	Clock clock.Clock
}

func (f FileToken) Token() (string, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	token := strings.TrimSpace(string(data))
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" || Expired(token, f.now()) {
		return "", nil
	}
	return token, nil
}

func (f FileToken) now() time.Time {
	if f.Clock == nil {
		return time.Now()
	}
	return f.Clock.Now()
}

// Expired reports whether a JWT's exp claim is within expirySkew of now.
// Tokens that cannot be decoded count as expired; tokens without exp never
// expire.
func Expired(token string, now time.Time) bool {
	parts := strings.Split(token, ".")
	if len(parts) < 2 {
		return true
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return true
	}

	var claims struct {
		Exp *float64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return true
	}
	if claims.Exp == nil || *claims.Exp == 0 {
		return false
	}

	expiresAt := time.Unix(int64(*claims.Exp), 0)
	return !now.Before(expiresAt.Add(-expirySkew))
}
