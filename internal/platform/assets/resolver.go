package assets

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const defaultURLTTL = 15 * time.Minute

// Resolver maps logical asset paths ("images/modelturning/s1.png") to URLs the browser can
// load. Without a bucket it prefixes a static base URL. With a bucket and signer it
// returns short-lived V4 signed GCS URLs.
type Resolver struct {
	baseURL string
	bucket  string
	signer  *ServiceAccountSigner
	ttl     time.Duration
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithBucket serves assets from a GCS bucket signed by signer.
func WithBucket(bucket string, signer *ServiceAccountSigner) Option {
	return func(r *Resolver) {
		r.bucket = strings.TrimSpace(bucket)
		r.signer = signer
	}
}

// WithTTL overrides the signed URL lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(r *Resolver) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewResolver builds a resolver rooted at baseURL.
func NewResolver(baseURL string, opts ...Option) *Resolver {
	r := &Resolver{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		ttl:     defaultURLTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// URL returns the browser URL for the asset.
func (r *Resolver) URL(ctx context.Context, asset string) (string, error) {
	asset = strings.TrimLeft(path.Clean("/"+strings.TrimSpace(asset)), "/")
	if asset == "" || asset == "." {
		return "", errors.New("assets: empty asset path")
	}
	if r == nil {
		return "/" + asset, nil
	}
	if r.bucket == "" || r.signer == nil {
		return r.baseURL + "/" + asset, nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	// SignedURL stamps X-Goog-Date from the wall clock, so expiry must be
	// relative to it as well.
	return storage.SignedURL(r.bucket, asset, &storage.SignedURLOptions{
		GoogleAccessID: r.signer.Email(),
		SignBytes:      r.signer.SignBytes,
		Method:         http.MethodGet,
		Expires:        time.Now().Add(r.ttl),
		Scheme:         storage.SigningSchemeV4,
	})
}

// MustURL is URL for call sites that render a best-effort link; failures yield the
// unsigned static path.
func (r *Resolver) MustURL(ctx context.Context, asset string) string {
	u, err := r.URL(ctx, asset)
	if err != nil {
		base := ""
		if r != nil {
			base = r.baseURL
		}
		return base + "/" + strings.TrimLeft(asset, "/")
	}
	return u
}

// ServiceAccountSigner signs URL payloads with a service account private key.
type ServiceAccountSigner struct {
	email string
	key   *rsa.PrivateKey
}

// NewServiceAccountSigner wraps an already parsed key.
func NewServiceAccountSigner(email string, key *rsa.PrivateKey) *ServiceAccountSigner {
	return &ServiceAccountSigner{email: email, key: key}
}

// NewServiceAccountSignerFromFile reads a service account JSON key file.
func NewServiceAccountSignerFromFile(file string) (*ServiceAccountSigner, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("assets: read service account file: %w", err)
	}
	var payload struct {
		ClientEmail string `json:"client_email"`
		PrivateKey  string `json:"private_key"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("assets: decode service account json: %w", err)
	}
	if strings.TrimSpace(payload.ClientEmail) == "" {
		return nil, errors.New("assets: client_email missing in service account JSON")
	}
	block, _ := pem.Decode([]byte(payload.PrivateKey))
	if block == nil {
		return nil, errors.New("assets: failed to decode PEM private key")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		rsaKey, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("assets: parse private key: %w", err)
		}
		return NewServiceAccountSigner(payload.ClientEmail, rsaKey), nil
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("assets: private key is not RSA")
	}
	return NewServiceAccountSigner(payload.ClientEmail, rsaKey), nil
}

// Email returns the signing service account.
func (s *ServiceAccountSigner) Email() string { return s.email }

// SignBytes applies RSA SHA256 signing over the payload.
func (s *ServiceAccountSigner) SignBytes(payload []byte) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("assets: signer not initialised")
	}
	digest := sha256.Sum256(payload)
	return rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
}
