package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
)

// AccessTokenClaims identify the caller for the API layer. The core
// services never see the JWT; they receive the subject id as an
// explicit requester parameter.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type AccessTokenManager struct {
	signingKey []byte
	ttl        time.Duration
}

func NewAccessTokenManager(signingKey []byte, ttl time.Duration) *AccessTokenManager {
	return &AccessTokenManager{signingKey: signingKey, ttl: ttl}
}

func (m *AccessTokenManager) Generate(subjectID, role string) (string, error) {
	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   subjectID,
			Issuer:    "courselab",
		},
		Role: role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.signingKey)
}

func (m *AccessTokenManager) Validate(tokenString string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return m.signingKey, nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*AccessTokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
