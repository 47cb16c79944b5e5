// Package authtoken validates the access tokens callers present on
// session reads. The token service issuing these lives upstream; this
// package only needs the shared HMAC key to verify and extract the
// user identity.
package authtoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "meridian/pkg/domain"
	dErrors "meridian/pkg/domain-errors"
)

const (
	defaultIssuer   = "meridian"
	defaultAudience = "meridian-api"
)

// Claims are the JWT claims carried by access tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Service verifies access tokens and, for dev tooling and tests,
// issues them.
type Service struct {
	signingKey []byte
	issuer     string
	audience   string
}

// New constructs a token service around a shared HMAC signing key.
func New(signingKey string) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     defaultIssuer,
		audience:   defaultAudience,
	}
}

// Issue mints an access token for a user. Used by dev tooling and
// tests; production tokens come from the upstream identity service
// sharing the same key.
func (s *Service) Issue(userID id.UserID, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	if !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// UserID validates a token and parses the user identity out of it.
func (s *Service) UserID(tokenString string) (id.UserID, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return id.UserID{}, err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "token carries no usable user id")
	}
	return userID, nil
}
