// Package identity validates bearer tokens minted by the identity
// collaborator. Only validation lives here; issuing sessions is out of scope
// for this service.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	id "limsd/pkg/domain"
	"limsd/pkg/requestcontext"
)

// Validator checks HMAC-signed tokens carrying the acting user's id and role.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateToken parses and verifies the token, returning the verified actor.
func (v *Validator) ValidateToken(tokenString string) (requestcontext.ActorInfo, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return requestcontext.ActorInfo{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return requestcontext.ActorInfo{}, fmt.Errorf("token invalid")
	}

	userID, err := id.ParseUserID(c.Subject)
	if err != nil {
		return requestcontext.ActorInfo{}, fmt.Errorf("token subject: %w", err)
	}
	if c.Role == "" {
		return requestcontext.ActorInfo{}, fmt.Errorf("token missing role claim")
	}

	return requestcontext.ActorInfo{
		ID:   userID,
		Role: requestcontext.Role(c.Role),
	}, nil
}
