package media

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chat-sync/internal/apperrors"
)

// Resolver turns a stored-object key into a retrievable URL.
type Resolver interface {
	Resolve(ctx context.Context, key string) (string, error)
}

// SignedURLResolver issues expiring URLs signed with an HMAC over key and expiry.
type SignedURLResolver struct {
	baseURL string
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

func NewSignedURLResolver(baseURL, secret string, ttl time.Duration) *SignedURLResolver {
	return &SignedURLResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  []byte(secret),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (r *SignedURLResolver) Resolve(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", apperrors.NewValidationError("media key is required")
	}
	expires := strconv.FormatInt(r.now().Add(r.ttl).Unix(), 10)

	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", r.sign(key, expires))
	return r.baseURL + "/" + escapePath(key) + "?" + q.Encode(), nil
}

// Verify checks a signature produced by Resolve.
func (r *SignedURLResolver) Verify(key, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || r.now().Unix() > exp {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(r.sign(strings.TrimLeft(key, "/"), expires)))
}

func (r *SignedURLResolver) sign(key, expires string) string {
	mac := hmac.New(sha256.New, r.secret)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func escapePath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
