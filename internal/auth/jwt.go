package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "teamchat session token"

// Claims represents session token claims. The subject is the user ID.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Image string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// DeriveKey derives a 32-byte HMAC key from the configured secret.
// salt separates keys used for different cookies.
func DeriveKey(secret, salt string) ([]byte, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), []byte(salt), []byte(keyInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

// GenerateToken creates a signed session token for the identity.
func GenerateToken(cfg *JWTConfig, id Identity) (string, error) {
	if id.ID == "" {
		return "", fmt.Errorf("empty user id")
	}
	now := time.Now()
	claims := Claims{
		Name:  deref(id.Name),
		Email: deref(id.Email),
		Image: deref(id.Image),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(cfg.Secret)
}

// ValidateToken parses and validates a session token.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing subject")
	}
	return claims, nil
}

// JWTResolver resolves sessions from a signed token carried in a cookie,
// a Bearer header or an explicit token.
type JWTResolver struct {
	cfg        *JWTConfig
	cookieName string
}

// NewJWTResolver creates a resolver reading the named cookie.
func NewJWTResolver(cfg *JWTConfig, cookieName string) *JWTResolver {
	return &JWTResolver{cfg: cfg, cookieName: cookieName}
}

// Resolve implements SessionResolver.
func (r *JWTResolver) Resolve(_ context.Context, creds Credentials) (*Identity, error) {
	raw := cookieValue(creds.Cookie, r.cookieName)
	if raw == "" {
		raw = bearerToken(creds.Authorization)
	}
	if raw == "" {
		raw = creds.Token
	}
	if raw == "" {
		return nil, ErrNoSession
	}

	claims, err := ValidateToken(r.cfg, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	return &Identity{
		ID:    claims.Subject,
		Name:  optional(claims.Name),
		Email: optional(claims.Email),
		Image: optional(claims.Image),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
