package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessTokenDuration  = 15 * time.Minute
	RefreshTokenDuration = 10 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

type Claims struct {
	UserID    string `json:"userId"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Signer mints and verifies HS256 access and refresh tokens. The two halves
// may use different secrets.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Signer {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	if accessTTL <= 0 {
		accessTTL = AccessTokenDuration
	}
	if refreshTTL <= 0 {
		refreshTTL = RefreshTokenDuration
	}
	return &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (s *Signer) AccessToken(userID string) (string, error) {
	return s.sign(s.accessSecret, userID, tokenTypeAccess, s.accessTTL, "")
}

// RefreshToken carries a random jti so two tokens minted in the same second
// for the same account never compare equal.
func (s *Signer) RefreshToken(userID string) (string, error) {
	tokenID, err := newTokenID()
	if err != nil {
		return "", err
	}
	return s.sign(s.refreshSecret, userID, tokenTypeRefresh, s.refreshTTL, tokenID)
}

func (s *Signer) ParseAccess(tokenStr string) (*Claims, error) {
	return s.parse(s.accessSecret, tokenStr, tokenTypeAccess)
}

func (s *Signer) ParseRefresh(tokenStr string) (*Claims, error) {
	claims, err := s.parse(s.refreshSecret, tokenStr, tokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("refresh token without id")
	}
	return claims, nil
}

func (s *Signer) AccessTTL() time.Duration  { return s.accessTTL }
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *Signer) parse(secret []byte, tokenStr, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.TokenType != wantType {
		return nil, fmt.Errorf("expected %s token, got %q", wantType, claims.TokenType)
	}
	if claims.Subject == "" || claims.Subject != claims.UserID {
		return nil, fmt.Errorf("token subject missing")
	}
	return claims, nil
}

func (s *Signer) sign(secret []byte, userID, tokenType string, ttl time.Duration, tokenID string) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        tokenID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func newTokenID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
