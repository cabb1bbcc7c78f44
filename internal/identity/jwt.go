package identity

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// supabaseAudience is the aud claim GoTrue puts on user access tokens.
const supabaseAudience = "authenticated"

// Claims are the access token claims issued by GoTrue.
type Claims struct {
	Email        string         `json:"email"`
	Role         string         `json:"role"`
	UserMetadata map[string]any `json:"user_metadata"`
	jwt.RegisteredClaims
}

// JWTVerifier checks GoTrue access tokens locally against the project's
// HS256 secret, without a provider round trip. Revoked sessions stay valid
// until the token expires.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTVerifier creates a local verifier for secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(supabaseAudience),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify parses and validates tokenString.
func (v *JWTVerifier) Verify(_ context.Context, tokenString string) (*Subject, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, &RejectedError{Status: http.StatusUnauthorized, Message: reason(err)}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &RejectedError{Status: http.StatusUnauthorized, Message: "invalid token"}
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, &RejectedError{Status: http.StatusUnauthorized, Message: "invalid subject claim"}
	}
	return &Subject{ID: id, Email: claims.Email, Role: claims.Role, Claims: claims.UserMetadata}, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token is expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature is invalid"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "invalid audience"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "token is malformed"
	default:
		return "invalid token"
	}
}
