package usertoken

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"loanportal/pkg/domain"
)

const (
	defaultIssuer   = "loanportal-auth"
	defaultAudience = "loanportal-api"
	defaultLeeway   = 30 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

var (
	errUnknownKey = errors.New("unknown token key")
	// ErrInvalidToken wraps every verification failure.
	ErrInvalidToken = errors.New("invalid access token")
)

// AppMetadata is the authorization block the auth service embeds in access
// tokens.
type AppMetadata struct {
	IsAdmin bool   `json:"is_admin"`
	Role    string `json:"role,omitempty"`
}

// Claims is the access-token payload.
type Claims struct {
	Email       string      `json:"email,omitempty"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// Identity converts verified claims into the caller identity.
func (c Claims) Identity() domain.Identity {
	role := domain.UserRole(strings.TrimSpace(c.AppMetadata.Role))
	if role == "" {
		role = domain.RoleUser
	}
	return domain.Identity{
		UserID:  strings.TrimSpace(c.Subject),
		Email:   c.Email,
		Role:    role,
		IsAdmin: c.AppMetadata.IsAdmin,
	}
}

type Config struct {
	JWKSURL    string
	Issuer     string
	Audience   string
	Leeway     time.Duration
	HTTPClient *http.Client
}

// Verifier checks RS256 access tokens against the auth service JWKS. Keys
// are cached for the Cache-Control max-age and refetched on an unknown kid.
type Verifier struct {
	issuer     string
	audience   string
	leeway     time.Duration
	jwksURL    string
	httpClient *http.Client

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
}

// NewVerifier fetches the key set once and fails if it is unusable.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	jwksURL := strings.TrimSpace(cfg.JWKSURL)
	if jwksURL == "" {
		return nil, errors.New("token verifier requires jwksURL")
	}
	v := &Verifier{
		issuer:     firstNonEmpty(cfg.Issuer, defaultIssuer),
		audience:   firstNonEmpty(cfg.Audience, defaultAudience),
		leeway:     cfg.Leeway,
		jwksURL:    jwksURL,
		httpClient: cfg.HTTPClient,
	}
	if v.leeway <= 0 {
		v.leeway = defaultLeeway
	}
	if v.httpClient == nil {
		v.httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	if err := v.refresh(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

// Verify validates the token and returns the caller identity.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	claims, err := v.parse(token)
	if err != nil && (errors.Is(err, errUnknownKey) || v.stale()) {
		if refreshErr := v.refresh(ctx); refreshErr != nil {
			return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, refreshErr)
		}
		claims, err = v.parse(token)
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	identity := claims.Identity()
	if identity.UserID == "" {
		return domain.Identity{}, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return identity, nil
}

func (v *Verifier) parse(token string) (Claims, error) {
	var claims Claims
	v.mu.RLock()
	keys := v.keys
	v.mu.RUnlock()
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		key, ok := keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errUnknownKey
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	return claims, err
}

func (v *Verifier) stale() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return time.Now().After(v.expires)
}

func (v *Verifier) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var set JWKS
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if !strings.EqualFold(k.Kty, "RSA") || strings.TrimSpace(k.Kid) == "" {
			continue
		}
		pub, err := k.PublicKey()
		if err != nil {
			continue
		}
		keys[strings.TrimSpace(k.Kid)] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks contains no usable rsa keys")
	}
	ttl := maxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	v.mu.Lock()
	v.keys = keys
	v.expires = time.Now().Add(ttl)
	v.mu.Unlock()
	return nil
}

// JWKS is the published key set document.
type JWKS struct {
	Keys []JWK `json:"keys"`
}

type JWK struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// NewJWK encodes an RSA public key.
func NewJWK(kid string, pub *rsa.PublicKey) JWK {
	return JWK{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: jwt.SigningMethodRS256.Alg(),
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

// PublicKey decodes the modulus and exponent.
func (k JWK) PublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(k.N))
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(k.E))
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || !e.IsInt64() || e.Int64() <= 0 {
		return nil, errors.New("invalid rsa key")
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

func maxAge(cacheControl string) time.Duration {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		raw, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		secs, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}

func firstNonEmpty(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
