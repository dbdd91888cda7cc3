package servicetoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// Header carries the service token on internal calls.
	Header = "X-Internal-Token"

	DefaultTTL    = 60 * time.Second
	DefaultLeeway = 15 * time.Second
	DefaultKeyID  = "internal-active"
)

// Signer mints short-lived RS256 tokens one service presents to another.
type Signer struct {
	issuer string
	ttl    time.Duration
	key    *rsa.PrivateKey
	kid    string
	now    func() time.Time
}

func NewSigner(key *rsa.PrivateKey, kid, issuer string, ttl time.Duration) (*Signer, error) {
	if key == nil {
		return nil, errors.New("service token private key is required")
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, errors.New("service token issuer is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if kid = strings.TrimSpace(kid); kid == "" {
		kid = DefaultKeyID
	}
	return &Signer{issuer: issuer, ttl: ttl, key: key, kid: kid, now: time.Now}, nil
}

// Sign issues a token for audience.
func (s *Signer) Sign(audience string) (string, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return "", errors.New("service token audience is required")
	}
	now := s.now().UTC()
	jti := make([]byte, 12)
	if _, err := rand.Read(jti); err != nil {
		return "", err
	}
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.issuer,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        hex.EncodeToString(jti),
	})
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

// Verifier accepts tokens for one audience from an issuer allowlist.
type Verifier struct {
	audience string
	issuers  map[string]struct{}
	leeway   time.Duration
	keys     map[string]*rsa.PublicKey
}

func NewVerifier(keys map[string]*rsa.PublicKey, audience string, issuers []string, leeway time.Duration) (*Verifier, error) {
	audience = strings.TrimSpace(audience)
	if audience == "" {
		return nil, errors.New("service token audience is required")
	}
	if len(keys) == 0 {
		return nil, errors.New("service token verifier requires a public key")
	}
	allowed := make(map[string]struct{}, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed[issuer] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil, errors.New("at least one allowed issuer is required")
	}
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	return &Verifier{audience: audience, issuers: allowed, leeway: leeway, keys: keys}, nil
}

// Verify checks signature, kid, expiry, audience, issuer, jti and subject.
func (v *Verifier) Verify(token string) (jwt.RegisteredClaims, error) {
	var claims jwt.RegisteredClaims
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("token required")
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("token key id required")
		}
		pub, ok := v.keys[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil {
		return claims, err
	}
	if _, ok := v.issuers[claims.Issuer]; !ok {
		return claims, errors.New("issuer not allowed")
	}
	if claims.ID == "" || strings.TrimSpace(claims.Subject) == "" {
		return claims, errors.New("jti and subject required")
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) < 7 || !strings.EqualFold(raw[:7], "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(raw[7:])
	return token, token != ""
}

// LoadRSAPrivateKey reads a PKCS1 or PKCS8 PEM file.
func LoadRSAPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not rsa")
	}
	return key, nil
}

// LoadRSAPublicKey reads a PKIX public key or certificate PEM file.
func LoadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	var parsed any
	if pub, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		parsed = pub
	} else {
		cert, certErr := x509.ParseCertificate(block.Bytes)
		if certErr != nil {
			return nil, certErr
		}
		parsed = cert.PublicKey
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not rsa")
	}
	return pub, nil
}

// LoadPublicKeys parses "kid=path,kid2=path2" and loads each key.
func LoadPublicKeys(raw string) (map[string]*rsa.PublicKey, error) {
	out := make(map[string]*rsa.PublicKey)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kid, path, ok := strings.Cut(pair, "=")
		kid, path = strings.TrimSpace(kid), strings.TrimSpace(path)
		if !ok || kid == "" || path == "" {
			return nil, fmt.Errorf("invalid verify key entry %q", pair)
		}
		pub, err := LoadRSAPublicKey(path)
		if err != nil {
			return nil, fmt.Errorf("load verify key %q: %w", kid, err)
		}
		out[kid] = pub
	}
	return out, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("invalid pem")
	}
	return block, nil
}
