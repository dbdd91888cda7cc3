package session

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"loanportal/internal/usertoken"
	"loanportal/pkg/domain"
)

const (
	defaultIssuer   = "loanportal-auth"
	defaultAudience = "loanportal-api"
	defaultKeyID    = "jwt-active"
	defaultLeeway   = 30 * time.Second
	defaultTTL      = 15 * time.Minute
)

var (
	ErrTokenRevoked = errors.New("token revoked")
	ErrInvalidToken = errors.New("invalid token")
)

// Options configures the access-token issuer.
type Options struct {
	Issuer   string
	Audience string
	KeyID    string
	TTL      time.Duration
	Leeway   time.Duration
	// PreviousKeys stay valid for verification during key rotation.
	PreviousKeys map[string]*rsa.PublicKey
}

// Issuer signs RS256 access tokens carrying the portal's app metadata and
// publishes the verification keys as a JWKS.
type Issuer struct {
	signer    *rsa.PrivateKey
	kid       string
	verifiers map[string]*rsa.PublicKey
	revoker   *Revoker

	issuer   string
	audience string
	ttl      time.Duration
	leeway   time.Duration
	now      func() time.Time
}

func NewIssuer(key *rsa.PrivateKey, revoker *Revoker, opts Options) (*Issuer, error) {
	if key == nil {
		return nil, errors.New("issuer requires a signing key")
	}
	kid := strings.TrimSpace(opts.KeyID)
	if kid == "" {
		kid = defaultKeyID
	}
	verifiers := map[string]*rsa.PublicKey{kid: &key.PublicKey}
	for prevKid, pub := range opts.PreviousKeys {
		prevKid = strings.TrimSpace(prevKid)
		if prevKid == "" || pub == nil || prevKid == kid {
			continue
		}
		verifiers[prevKid] = pub
	}
	iss := &Issuer{
		signer:    key,
		kid:       kid,
		verifiers: verifiers,
		revoker:   revoker,
		issuer:    firstNonEmpty(opts.Issuer, defaultIssuer),
		audience:  firstNonEmpty(opts.Audience, defaultAudience),
		ttl:       opts.TTL,
		leeway:    opts.Leeway,
		now:       time.Now,
	}
	if iss.ttl <= 0 {
		iss.ttl = defaultTTL
	}
	if iss.leeway <= 0 {
		iss.leeway = defaultLeeway
	}
	return iss, nil
}

// TTL is the access-token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs an access token for the user.
func (i *Issuer) Issue(u domain.User) (string, time.Time, error) {
	now := i.now().UTC()
	expires := now.Add(i.ttl)
	claims := usertoken.Claims{
		Email: u.Email,
		AppMetadata: usertoken.AppMetadata{
			IsAdmin: u.IsAdmin(),
			Role:    string(u.Role),
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        randomHex(12),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = i.kid
	signed, err := token.SignedString(i.signer)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

// Verify validates signature, claims and revocation state.
func (i *Issuer) Verify(ctx context.Context, token string) (usertoken.Claims, error) {
	claims, err := i.parse(token)
	if err != nil {
		return claims, err
	}
	if i.revoker == nil {
		return claims, nil
	}
	revoked, err := i.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return claims, err
	}
	if revoked {
		return claims, ErrTokenRevoked
	}
	cutoff, err := i.revoker.RevokedAfter(ctx, claims.Subject)
	if err != nil {
		return claims, err
	}
	if !cutoff.IsZero() && claims.IssuedAt.Time.Unix() < cutoff.Unix() {
		return claims, ErrTokenRevoked
	}
	return claims, nil
}

// Revoke blocks the token's jti until it would have expired. Invalid tokens
// are ignored.
func (i *Issuer) Revoke(ctx context.Context, token string) error {
	if i.revoker == nil {
		return nil
	}
	claims, err := i.parse(token)
	if err != nil {
		return nil
	}
	return i.revoker.Revoke(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
}

// RevokeUser invalidates every token of the user issued before since.
func (i *Issuer) RevokeUser(ctx context.Context, userID string, since time.Time) error {
	if i.revoker == nil {
		return nil
	}
	return i.revoker.RevokeUser(ctx, userID, since, i.ttl+i.leeway)
}

// JWKS returns the verification keys sorted by kid.
func (i *Issuer) JWKS() usertoken.JWKS {
	kids := make([]string, 0, len(i.verifiers))
	for kid := range i.verifiers {
		kids = append(kids, kid)
	}
	sort.Strings(kids)
	set := usertoken.JWKS{Keys: make([]usertoken.JWK, 0, len(kids))}
	for _, kid := range kids {
		set.Keys = append(set.Keys, usertoken.NewJWK(kid, i.verifiers[kid]))
	}
	return set
}

func (i *Issuer) parse(token string) (usertoken.Claims, error) {
	claims := usertoken.Claims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		pub, ok := i.verifiers[strings.TrimSpace(kid)]
		if !ok {
			return nil, errors.New("unknown token key")
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(i.leeway),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return claims, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.ID) == "" || claims.IssuedAt == nil {
		return claims, fmt.Errorf("%w: missing sub, jti or iat", ErrInvalidToken)
	}
	return claims, nil
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
