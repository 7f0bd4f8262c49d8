package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"potluck/internal/domain"
)

// ErrInvalidToken is returned by Verify for any token it does not accept.
var ErrInvalidToken = errors.New("invalid token")

type jwtClaims struct {
	jwt.RegisteredClaims
	Name      string `json:"name,omitempty"`
	Anonymous bool   `json:"anonymous,omitempty"`
}

type jwtAuthority struct {
	secret []byte
	issuer string
}

// JWTAuthority both issues and verifies HS256 identity tokens.
type JWTAuthority interface {
	domain.TokenIssuer
	domain.TokenVerifier
}

// NewJWTAuthority returns an authority that signs with secret. issuer is
// written to and required in the iss claim when non-empty.
func NewJWTAuthority(secret, issuer string) JWTAuthority {
	return &jwtAuthority{secret: []byte(secret), issuer: issuer}
}

func (a *jwtAuthority) Issue(identity domain.Identity, expiry time.Duration) (string, error) {
	if identity.UserID == "" {
		return "", fmt.Errorf("%w: token subject is required", domain.ErrInvalidInput)
	}
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
		Name:      identity.DisplayName,
		Anonymous: identity.IsAnonymous,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func (a *jwtAuthority) Verify(tokenString string) (domain.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwtClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.Identity{
		UserID:      claims.Subject,
		DisplayName: claims.Name,
		IsAnonymous: claims.Anonymous,
	}, nil
}
